// Package commentbot reacts to and comments on new posts of watched people.
package commentbot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

const (
	// PostsPerCheck bounds how many recent posts of a target are considered
	PostsPerCheck = 5
	// Reaction is left on every engaged post
	Reaction = "like"
)

// Result summarizes one target check
type Result struct {
	TargetID   string `json:"target_id"`
	PostsFound int    `json:"posts_found"`
	Engaged    int    `json:"engaged"`
	Skipped    int    `json:"skipped"`
}

// Engager engages with watched targets' posts
type Engager struct {
	store    storage.WatchStore
	clients  linkedapi.ClientSource
	limiter  *ratelimit.Limiter
	writer   *ai.Writer
	delayer  pacing.Delayer
	gate     *pacing.AccountGate
	activity *activity.Logger
	now      func() time.Time
}

// NewEngager wires an engager. The gate must be the one the dispatcher uses.
func NewEngager(store storage.WatchStore, clients linkedapi.ClientSource, limiter *ratelimit.Limiter, writer *ai.Writer,
	delayer pacing.Delayer, gate *pacing.AccountGate, log *activity.Logger) *Engager {
	if delayer == nil {
		delayer = pacing.NoDelay{}
	}
	if gate == nil {
		gate = pacing.NewAccountGate()
	}
	return &Engager{
		store:    store,
		clients:  clients,
		limiter:  limiter,
		writer:   writer,
		delayer:  delayer,
		gate:     gate,
		activity: log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CheckAndEngage looks at the target's posts since the last check and engages
// with the ones not engaged before, until the comment quota runs out.
func (e *Engager) CheckAndEngage(ctx context.Context, settings models.Settings, target models.WatchedAccount) (Result, error) {
	result := Result{TargetID: target.ID}
	logger := logrus.WithFields(logrus.Fields{"target_id": target.ID, "account_id": target.AccountID})

	client, err := e.clients.ClientFor(ctx, target.AccountID)
	if err != nil {
		return result, err
	}

	posts, err := client.GetPersonPosts(ctx, target.TargetURL, PostsPerCheck, target.LastCheckedAt)
	if err != nil {
		return result, fmt.Errorf("failed to fetch posts of %s: %w", target.TargetURL, err)
	}
	result.PostsFound = len(posts)
	limits := ratelimit.LimitsFrom(settings)

	for _, post := range posts {
		if post.URL == "" {
			continue
		}
		engaged, err := e.store.EngagementExists(ctx, target.ID, post.URL)
		if err != nil {
			return result, err
		}
		if engaged {
			continue
		}

		allowed, err := e.limiter.CanPerform(ctx, limits, target.AccountID, models.ActionComment)
		if err != nil {
			return result, err
		}
		if !allowed {
			e.activity.Skipped(ctx, target.AccountID, "engagement_skipped", "daily quota exhausted", activity.Details{"target_id": target.ID})
			break
		}

		text, ok := e.commentFor(ctx, target, post)
		if !ok {
			result.Skipped++
			logger.WithField("post_url", post.URL).Info("No comment available, skipping post")
			continue
		}

		if err := e.engage(ctx, limits, client, target, post, text); err != nil {
			if errors.Is(err, models.ErrQuotaExhausted) {
				e.activity.Skipped(ctx, target.AccountID, "engagement_skipped", "daily quota exhausted", activity.Details{"target_id": target.ID})
				break
			}
			if errors.Is(err, models.ErrAuth) || errors.Is(err, context.Canceled) {
				return result, err
			}
			e.activity.Failure(ctx, target.AccountID, "engagement_error", err, activity.Details{"target_id": target.ID, "post_url": post.URL})
			continue
		}
		result.Engaged++
	}

	if err := e.store.TouchWatchedAccount(ctx, target.ID, e.now()); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engager) engage(ctx context.Context, limits ratelimit.Limits, client linkedapi.Automation,
	target models.WatchedAccount, post linkedapi.PersonPost, text string) error {
	unlock := e.gate.Lock(target.AccountID)
	defer unlock()

	// Other jobs on this account may have used the quota while we waited on the gate
	allowed, err := e.limiter.CanPerform(ctx, limits, target.AccountID, models.ActionComment)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("engagement on %s: %w", post.URL, models.ErrQuotaExhausted)
	}

	if err := e.delayer.Delay(ctx, pacing.BeforeAction); err != nil {
		return err
	}
	if err := client.ReactAndComment(ctx, post.URL, Reaction, text); err != nil {
		return fmt.Errorf("engagement on %s: %w", post.URL, err)
	}
	if err := e.limiter.RecordAction(ctx, limits, target.AccountID, models.ActionComment); err != nil {
		logrus.WithError(err).WithField("account_id", target.AccountID).Warn("Engagement performed but not counted")
	}

	_, err = e.store.CreateEngagement(ctx, &models.Engagement{
		WatchedAccountID: target.ID,
		PostURL:          post.URL,
		PostText:         post.Text,
		Reacted:          true,
		ReactionType:     Reaction,
		Commented:        true,
		CommentText:      text,
	})
	if err != nil {
		return err
	}
	e.activity.Success(ctx, target.AccountID, "engagement", activity.Details{"target_id": target.ID, "post_url": post.URL})
	return nil
}

// commentFor writes the comment, falling back to one of the account's sample comments
func (e *Engager) commentFor(ctx context.Context, target models.WatchedAccount, post linkedapi.PersonPost) (string, bool) {
	text, err := e.writer.InsightfulComment(ctx, ai.InsightInput{
		PostContent:    post.Text,
		AuthorName:     target.TargetName,
		AuthorHeadline: target.TargetHeadline,
		Expertise:      target.Account.VoiceTopics,
		Tone:           target.Account.VoiceTone,
		Style:          target.CommentStyle,
		Samples:        target.Account.SampleComments,
	})
	if err == nil {
		return text, true
	}
	if !errors.Is(err, ai.ErrAIDisabled) {
		logrus.WithError(err).WithField("target_id", target.ID).Warn("Comment generation failed, using a sample comment")
	}

	var samples []string
	for _, s := range target.Account.SampleComments {
		if strings.TrimSpace(s) != "" {
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		return "", false
	}
	return samples[rand.Intn(len(samples))], true
}
