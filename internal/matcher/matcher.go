// Package matcher drops already seen comments and finds the ones that match a post's keywords.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// Result is the verdict for one new comment. MatchedKeyword is nil for no match.
type Result struct {
	Comment        linkedapi.Comment
	DedupKey       string
	MatchedKeyword *string
	ByClassifier   bool
}

// Matched reports whether the comment matched a keyword
func (r Result) Matched() bool {
	return r.MatchedKeyword != nil
}

// Classifier proposes intent-based matches
type Classifier interface {
	ClassifyComments(ctx context.Context, comments []ai.CommentInput, keywords []string, postContext string) ([]ai.IntentMatch, error)
}

// Matcher evaluates comment batches
type Matcher struct {
	store      storage.CommentStore
	classifier Classifier
}

// NewMatcher creates a matcher; classifier may be nil
func NewMatcher(store storage.CommentStore, classifier Classifier) *Matcher {
	return &Matcher{store: store, classifier: classifier}
}

// Evaluate returns one Result per comment not seen before under this post.
// With useAI the classifier's verdict wins per comment and substring matching
// fills the gaps; a classifier failure falls back to substring matching for
// the whole batch.
func (m *Matcher) Evaluate(ctx context.Context, post models.MonitoredPost, comments []linkedapi.Comment, useAI bool) ([]Result, error) {
	seen := make(map[string]struct{}, len(comments))
	fresh := make([]Result, 0, len(comments))

	for _, c := range comments {
		key := models.DedupKey(post.ID, c.CommenterURL, c.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		exists, err := m.store.ProcessedCommentExists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to check comment from %s: %w", c.CommenterURL, err)
		}
		if exists {
			continue
		}
		fresh = append(fresh, Result{Comment: c, DedupKey: key})
	}

	if len(fresh) == 0 {
		return fresh, nil
	}

	proposed := m.classify(ctx, post, fresh, useAI)
	for i := range fresh {
		if kw, ok := proposed[i]; ok {
			fresh[i].MatchedKeyword = &kw
			fresh[i].ByClassifier = true
			continue
		}
		if kw, ok := MatchKeyword(fresh[i].Comment.Text, post.Keywords); ok {
			fresh[i].MatchedKeyword = &kw
		}
	}
	return fresh, nil
}

// classify returns configured keywords proposed by the classifier, by batch index
func (m *Matcher) classify(ctx context.Context, post models.MonitoredPost, fresh []Result, useAI bool) map[int]string {
	if !useAI || m.classifier == nil || len(post.Keywords) == 0 {
		return nil
	}

	inputs := make([]ai.CommentInput, len(fresh))
	for i, r := range fresh {
		inputs[i] = ai.CommentInput{Text: r.Comment.Text, CommenterName: r.Comment.CommenterName}
	}

	matches, err := m.classifier.ClassifyComments(ctx, inputs, post.Keywords, post.PostTitle)
	if err != nil {
		logrus.WithError(err).WithField("post_id", post.ID).Warn("Intent classification failed, using substring matching")
		return nil
	}

	proposed := make(map[int]string, len(matches))
	for _, match := range matches {
		if match.Index < 0 || match.Index >= len(fresh) {
			continue
		}
		if _, taken := proposed[match.Index]; taken {
			continue
		}
		if kw, ok := configuredKeyword(match.Keyword, post.Keywords); ok {
			proposed[match.Index] = kw
		}
	}
	return proposed
}

// MatchKeyword returns the first keyword, in list order, contained in text ignoring case
func MatchKeyword(text string, keywords []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(lower, needle) {
			return kw, true
		}
	}
	return "", false
}

// configuredKeyword maps a classifier keyword back onto the post's own spelling
func configuredKeyword(proposed string, keywords []string) (string, bool) {
	proposed = strings.TrimSpace(proposed)
	for _, kw := range keywords {
		if strings.EqualFold(strings.TrimSpace(kw), proposed) {
			return kw, true
		}
	}
	return "", false
}
