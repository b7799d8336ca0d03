// Package poller runs one poll of a monitored post: fetch new comments, match
// them, reply, check the commenter's connection and dispatch the next step.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/dispatch"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/matcher"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// CommentBatch is how many of the most recent comments one poll reads
const CommentBatch = 50

// Store is the persistence a poll touches directly
type Store interface {
	storage.PostStore
	storage.CommentStore
}

// Result summarizes one poll
type Result struct {
	PostID        string `json:"post_id"`
	CommentsFound int    `json:"comments_found"`
	MatchesFound  int    `json:"matches_found"`
	Replied       int    `json:"replied"`
	Queued        int    `json:"queued"`
}

// Poller polls monitored posts
type Poller struct {
	store      Store
	clients    linkedapi.ClientSource
	matcher    *matcher.Matcher
	leads      *leads.Service
	dispatcher *dispatch.Dispatcher
	delayer    pacing.Delayer
	activity   *activity.Logger
	now        func() time.Time
}

// NewPoller wires a poller
func NewPoller(store Store, clients linkedapi.ClientSource, m *matcher.Matcher, leadService *leads.Service,
	dispatcher *dispatch.Dispatcher, delayer pacing.Delayer, log *activity.Logger) *Poller {
	if delayer == nil {
		delayer = pacing.NoDelay{}
	}
	return &Poller{
		store:      store,
		clients:    clients,
		matcher:    m,
		leads:      leadService,
		dispatcher: dispatcher,
		delayer:    delayer,
		activity:   log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PollPost processes the post's new comments. The post's lastPolledAt and
// counters are updated on every call, including when the fetch fails.
// Failures of single matches are logged and skipped; a rejected credential
// stops the poll and is returned.
func (p *Poller) PollPost(ctx context.Context, settings models.Settings, post models.MonitoredPost) (result Result, err error) {
	result.PostID = post.ID
	logger := logrus.WithFields(logrus.Fields{"post_id": post.ID, "account_id": post.AccountID})

	defer func() {
		if rerr := p.store.RecordPoll(context.WithoutCancel(ctx), post.ID, result.CommentsFound, result.MatchesFound, p.now()); rerr != nil {
			logger.WithError(rerr).Error("Failed to record poll")
			if err == nil {
				err = rerr
			}
		}
	}()

	client, err := p.clients.ClientFor(ctx, post.AccountID)
	if err != nil {
		return result, err
	}

	comments, err := client.GetPostComments(ctx, post.PostURL, CommentBatch)
	if err != nil {
		return result, fmt.Errorf("failed to fetch comments for post %s: %w", post.ID, err)
	}
	result.CommentsFound = len(comments)

	verdicts, err := p.matcher.Evaluate(ctx, post, comments, settings.AIMatchingEnabled)
	if err != nil {
		return result, err
	}

	var matched []models.ProcessedComment
	for _, v := range verdicts {
		pc := models.ProcessedComment{
			PostID:            post.ID,
			DedupKey:          v.DedupKey,
			CommenterURL:      v.Comment.CommenterURL,
			CommenterName:     v.Comment.CommenterName,
			CommenterHeadline: v.Comment.CommenterHeadline,
			CommentText:       v.Comment.Text,
			CommentTime:       v.Comment.Time,
			MatchedKeyword:    v.MatchedKeyword,
			WasMatch:          v.Matched(),
		}
		created, err := p.store.CreateProcessedComment(ctx, &pc)
		if err != nil {
			return result, err
		}
		// Another poll got here first
		if !created || !pc.WasMatch {
			continue
		}
		matched = append(matched, pc)
	}
	result.MatchesFound = len(matched)

	logger.WithFields(logrus.Fields{
		"comments": len(comments),
		"new":      len(verdicts),
		"matches":  len(matched),
	}).Info("Polled post")

	for _, comment := range matched {
		if err := p.processMatch(ctx, settings, client, post, comment, &result); err != nil {
			if errors.Is(err, models.ErrAuth) {
				return result, err
			}
			p.activity.Failure(ctx, post.AccountID, "poll_match_error", err, activity.Details{
				"post_id":    post.ID,
				"comment_id": comment.ID,
			})
		}
	}
	return result, nil
}

func (p *Poller) processMatch(ctx context.Context, settings models.Settings, client linkedapi.Automation,
	post models.MonitoredPost, comment models.ProcessedComment, result *Result) error {
	outcome, err := p.dispatcher.Reply(ctx, settings, client, post, comment)
	switch {
	case errors.Is(err, models.ErrAuth):
		return err
	case err != nil && !models.IsSkip(err):
		// The lead is still worth following up when the reply failed
		p.activity.Failure(ctx, post.AccountID, "reply_error", err, activity.Details{"post_id": post.ID, "comment_id": comment.ID})
	case outcome == dispatch.OutcomeSent:
		result.Replied++
	case outcome == dispatch.OutcomeQueued:
		result.Queued++
	}

	if err := p.delayer.Delay(ctx, pacing.BeforeConnectionCheck); err != nil {
		return err
	}

	profileURL, err := linkedapi.NormalizeProfileURL(comment.CommenterURL)
	if err != nil {
		return err
	}
	status, err := client.CheckConnection(ctx, profileURL)
	if err != nil {
		return fmt.Errorf("failed to check connection of %s: %w", profileURL, err)
	}

	seed := models.Lead{
		AccountID:     post.AccountID,
		LinkedInURL:   profileURL,
		PostID:        &post.ID,
		Name:          comment.CommenterName,
		Headline:      comment.CommenterHeadline,
		SourcePostURL: post.PostURL,
	}
	if comment.MatchedKeyword != nil {
		seed.SourceKeyword = *comment.MatchedKeyword
	}
	lead, err := p.leads.Discover(ctx, seed, status)
	if err != nil {
		return err
	}

	switch lead.ConnectionStatus {
	case models.ConnectionConnected:
		_, err = p.dispatcher.SendDM(ctx, settings, client, lead.ID)
	case models.ConnectionNotConnected:
		_, err = p.dispatcher.SendConnectionRequest(ctx, settings, client, lead.ID)
	}
	if models.IsSkip(err) {
		return nil
	}
	return err
}
