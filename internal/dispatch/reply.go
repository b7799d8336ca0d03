package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
)

// ReplyText writes the public reply for a matched comment, falling back to
// the fixed template when the AI layer is off or fails
func (d *Dispatcher) ReplyText(ctx context.Context, post models.MonitoredPost, comment models.ProcessedComment) string {
	text, err := d.writer.ReplyComment(ctx, ai.ReplyInput{
		CommentText:        comment.CommentText,
		CommenterName:      comment.CommenterName,
		PostTopic:          post.PostTitle,
		CTAHint:            post.CTAValue,
		VoiceTone:          post.Account.VoiceTone,
		CustomInstructions: post.ReplyStyle,
	})
	if err != nil {
		if !errors.Is(err, ai.ErrAIDisabled) {
			logrus.WithError(err).WithField("comment_id", comment.ID).Warn("Reply generation failed, using template")
		}
		return ai.TemplateReply(comment.CommenterName)
	}
	return text
}

// Reply answers a matched comment publicly, or queues the reply for approval
// when the post asks for review
func (d *Dispatcher) Reply(ctx context.Context, settings models.Settings, client linkedapi.Automation, post models.MonitoredPost, comment models.ProcessedComment) (Outcome, error) {
	if comment.RepliedAt != nil {
		return OutcomeNoop, nil
	}

	details := activity.Details{"post_id": post.ID, "comment_id": comment.ID}
	limits := ratelimit.LimitsFrom(settings)
	if err := d.gateQuota(ctx, limits, post.AccountID, models.ActionComment, details); err != nil {
		return "", err
	}

	text := d.ReplyText(ctx, post, comment)

	if post.ReviewReplies {
		created, err := d.store.CreatePendingReply(ctx, &models.PendingReply{
			PostID:             post.ID,
			ProcessedCommentID: comment.ID,
			Message:            text,
		})
		if err != nil {
			return "", err
		}
		if created {
			d.activity.Success(ctx, post.AccountID, "reply_queued", details)
		}
		return OutcomeQueued, nil
	}

	unlock := d.gate.Lock(post.AccountID)
	defer unlock()

	// The first check ran before generation and the wait on the gate
	if err := d.gateQuota(ctx, limits, post.AccountID, models.ActionComment, details); err != nil {
		return "", err
	}
	if err := d.postReply(ctx, limits, client, post, comment.ID, text); err != nil {
		return "", err
	}
	d.activity.Success(ctx, post.AccountID, "reply_posted", details)
	return OutcomeSent, nil
}

// postReply paces, comments and records. The caller holds the account gate.
func (d *Dispatcher) postReply(ctx context.Context, limits ratelimit.Limits, client linkedapi.Automation, post models.MonitoredPost, commentID, text string) error {
	if err := d.delayer.Delay(ctx, pacing.BeforeAction); err != nil {
		return err
	}
	if err := client.CommentOnPost(ctx, post.PostURL, text); err != nil {
		return fmt.Errorf("reply on post %s: %w", post.ID, err)
	}
	d.record(ctx, limits, post.AccountID, models.ActionComment)
	if err := d.store.MarkCommentReplied(ctx, commentID, text, d.now()); err != nil {
		return fmt.Errorf("reply posted but comment %s not updated: %w", commentID, err)
	}
	return nil
}

// SendPendingReply posts an approved reply from the review queue
func (d *Dispatcher) SendPendingReply(ctx context.Context, settings models.Settings, client linkedapi.Automation, replyID string) (Outcome, error) {
	reply, err := d.store.GetPendingReply(ctx, replyID)
	if err != nil {
		return "", err
	}
	post, err := d.store.GetPost(ctx, reply.PostID)
	if err != nil {
		return "", err
	}

	unlock := d.gate.Lock(post.AccountID)
	defer unlock()

	reply, err = d.store.GetPendingReply(ctx, replyID)
	if err != nil {
		return "", err
	}
	if reply.Status != models.QueuePending {
		return "", fmt.Errorf("reply %s is %s: %w", reply.ID, reply.Status, models.ErrInvalidState)
	}

	details := activity.Details{"post_id": post.ID, "comment_id": reply.ProcessedCommentID, "pending_reply_id": reply.ID}
	limits := ratelimit.LimitsFrom(settings)
	if err := d.gateQuota(ctx, limits, post.AccountID, models.ActionComment, details); err != nil {
		return "", err
	}
	if err := d.postReply(ctx, limits, client, *post, reply.ProcessedCommentID, reply.Text()); err != nil {
		return "", err
	}
	if _, err := d.store.SetPendingReplyStatus(ctx, reply.ID, models.QueueSent, d.now()); err != nil {
		logrus.WithError(err).WithField("pending_reply_id", reply.ID).Error("Failed to close pending reply")
	}

	d.activity.Success(ctx, post.AccountID, "reply_posted", details)
	return OutcomeSent, nil
}

// RejectPendingReply discards a queued reply
func (d *Dispatcher) RejectPendingReply(ctx context.Context, replyID string) error {
	reply, err := d.store.GetPendingReply(ctx, replyID)
	if err != nil {
		return err
	}
	ok, err := d.store.SetPendingReplyStatus(ctx, reply.ID, models.QueueRejected, d.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("reply %s is %s: %w", reply.ID, reply.Status, models.ErrInvalidState)
	}
	return nil
}
