package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
)

// TextSource names where a DM body came from
type TextSource string

const (
	SourceEdited   TextSource = "edited"
	SourceQueued   TextSource = "queued"
	SourceAI       TextSource = "ai"
	SourceTemplate TextSource = "template"
)

// DMText is a resolved message body
type DMText struct {
	Text    string            `json:"text"`
	Source  TextSource        `json:"source"`
	Pending *models.PendingDM `json:"pending,omitempty"`
}

// SendDM sends the follow-up message to a connected lead. It is a no-op when the
// lead is not connected or has already been messaged.
func (d *Dispatcher) SendDM(ctx context.Context, settings models.Settings, client linkedapi.Automation, leadID string) (Outcome, error) {
	lead, unlock, err := d.lockLead(ctx, leadID)
	if err != nil {
		return "", err
	}
	defer unlock()

	if !leads.CanDM(*lead) {
		logrus.WithFields(logrus.Fields{"lead_id": lead.ID, "status": lead.ConnectionStatus, "dm_status": lead.DMStatus}).Debug("DM not sendable")
		return OutcomeNoop, nil
	}

	details := activity.Details{"lead_id": lead.ID}
	limits := ratelimit.LimitsFrom(settings)
	if err := d.gateQuota(ctx, limits, lead.AccountID, models.ActionMessage, details); err != nil {
		return "", err
	}

	post, err := d.postOf(ctx, lead)
	if err != nil {
		return "", err
	}
	resolved, err := d.ResolveDMText(ctx, settings, *lead, post)
	if errors.Is(err, models.ErrConfiguration) {
		d.activity.Skipped(ctx, lead.AccountID, "dm_skipped", "no DM template or AI configuration", details)
		return "", err
	}
	if err != nil {
		return "", err
	}

	if err := d.delayer.Delay(ctx, pacing.BeforeAction); err != nil {
		return "", err
	}
	if err := client.SendMessage(ctx, lead.LinkedInURL, resolved.Text); err != nil {
		if resolved.Pending != nil {
			if _, serr := d.store.SetPendingDMStatus(ctx, resolved.Pending.ID, models.QueueFailed, err.Error(), d.now()); serr != nil {
				logrus.WithError(serr).WithField("pending_dm_id", resolved.Pending.ID).Error("Failed to mark pending DM failed")
			}
		}
		return "", fmt.Errorf("message to lead %s: %w", lead.ID, err)
	}

	d.record(ctx, limits, lead.AccountID, models.ActionMessage)
	if _, err := d.leads.MarkDMSent(ctx, lead.ID, resolved.Text); err != nil {
		return OutcomeSent, fmt.Errorf("message sent but lead %s not updated: %w", lead.ID, err)
	}
	if resolved.Pending != nil {
		if _, err := d.store.SetPendingDMStatus(ctx, resolved.Pending.ID, models.QueueSent, "", d.now()); err != nil {
			logrus.WithError(err).WithField("pending_dm_id", resolved.Pending.ID).Error("Failed to close pending DM")
		}
	}

	details["source"] = string(resolved.Source)
	d.activity.Success(ctx, lead.AccountID, "dm_sent", details)
	return OutcomeSent, nil
}

// ResolveDMText picks the message body for a lead. An open queued DM wins, with
// its edited text ahead of its generated text; then fresh AI text; then the
// static template. With none of those available it returns ErrConfiguration.
func (d *Dispatcher) ResolveDMText(ctx context.Context, settings models.Settings, lead models.Lead, post *models.MonitoredPost) (DMText, error) {
	pending, err := d.store.FindPendingDM(ctx, lead.ID)
	if err != nil {
		return DMText{}, err
	}
	if pending != nil {
		if pending.EditedText != nil && strings.TrimSpace(*pending.EditedText) != "" {
			return DMText{Text: *pending.EditedText, Source: SourceEdited, Pending: pending}, nil
		}
		if strings.TrimSpace(pending.Message) != "" {
			return DMText{Text: pending.Message, Source: SourceQueued, Pending: pending}, nil
		}
	}

	resolved, err := d.generateDM(ctx, settings, lead, post)
	if err != nil {
		return DMText{}, err
	}
	resolved.Pending = pending
	return resolved, nil
}

// generateDM produces fresh text, ignoring any queued DM
func (d *Dispatcher) generateDM(ctx context.Context, settings models.Settings, lead models.Lead, post *models.MonitoredPost) (DMText, error) {
	if d.writer.Enabled() {
		var (
			text string
			err  error
		)
		switch {
		case post != nil && (post.HasCTA() || post.ReplyStyle != ""):
			text, err = d.writer.SalesDM(ctx, ai.DMInput{
				LeadName:           lead.Name,
				LeadHeadline:       lead.Headline,
				PostTopic:          post.PostTitle,
				CTAType:            post.CTAType,
				CTAValue:           post.CTAValue,
				CTAMessage:         post.CTAMessage,
				CustomInstructions: post.ReplyStyle,
			})
		case settings.HasDMAIConfig():
			origin := ""
			if post != nil {
				origin = fmt.Sprintf("they commented on my post about %s", post.Topic("a recent topic"))
			}
			text, err = d.writer.SettingsDM(ctx, ai.SettingsDMInput{
				LeadName:     lead.Name,
				LeadHeadline: lead.Headline,
				Prompt:       settings.DMAIPrompt,
				UserContext:  settings.DMUserContext,
				Origin:       origin,
			})
		default:
			err = ai.ErrAIDisabled
		}
		if err == nil {
			return DMText{Text: text, Source: SourceAI}, nil
		}
		if !errors.Is(err, ai.ErrAIDisabled) {
			logrus.WithError(err).WithField("lead_id", lead.ID).Warn("DM generation failed, falling back to template")
		}
	}

	if strings.TrimSpace(settings.DefaultDMTemplate) != "" {
		return DMText{Text: ai.RenderDMTemplate(settings.DefaultDMTemplate, lead.Name), Source: SourceTemplate}, nil
	}
	return DMText{}, fmt.Errorf("DM for lead %s: %w", lead.ID, models.ErrConfiguration)
}
