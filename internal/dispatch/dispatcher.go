// Package dispatch performs the external write actions for a lead or comment:
// replies, connection requests and direct messages, plus the review queues
// in front of them. Each action re-reads the lead under the account gate,
// checks the daily quota, paces, submits and only then writes state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// Outcome says what a dispatch call did
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeQueued Outcome = "queued"
	// OutcomeNoop means the stored state already made the action unnecessary
	OutcomeNoop Outcome = "noop"
)

// Store is the persistence the dispatcher needs
type Store interface {
	storage.PostStore
	storage.CommentStore
	storage.LeadStore
	storage.QueueStore
}

// Dispatcher performs gated, paced external actions
type Dispatcher struct {
	store    Store
	leads    *leads.Service
	limiter  *ratelimit.Limiter
	delayer  pacing.Delayer
	gate     *pacing.AccountGate
	writer   *ai.Writer
	activity *activity.Logger
	now      func() time.Time
}

// Deps groups the dispatcher's collaborators
type Deps struct {
	Store    Store
	Leads    *leads.Service
	Limiter  *ratelimit.Limiter
	Delayer  pacing.Delayer
	Gate     *pacing.AccountGate
	Writer   *ai.Writer
	Activity *activity.Logger
}

// New creates a dispatcher. Writer may be nil when the AI layer is off.
func New(deps Deps) *Dispatcher {
	if deps.Gate == nil {
		deps.Gate = pacing.NewAccountGate()
	}
	if deps.Delayer == nil {
		deps.Delayer = pacing.NoDelay{}
	}
	return &Dispatcher{
		store:    deps.Store,
		leads:    deps.Leads,
		limiter:  deps.Limiter,
		delayer:  deps.Delayer,
		gate:     deps.Gate,
		writer:   deps.Writer,
		activity: deps.Activity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// lockLead takes the lead's account gate and returns the lead as currently stored
func (d *Dispatcher) lockLead(ctx context.Context, leadID string) (*models.Lead, func(), error) {
	lead, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, nil, err
	}
	unlock := d.gate.Lock(lead.AccountID)

	current, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return current, unlock, nil
}

// postOf loads the lead's source post; nil when the lead came from elsewhere
func (d *Dispatcher) postOf(ctx context.Context, lead *models.Lead) (*models.MonitoredPost, error) {
	if lead.PostID == nil {
		return nil, nil
	}
	post, err := d.store.GetPost(ctx, *lead.PostID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return post, err
}

// gateQuota checks the daily cap and records the skip when it is reached
func (d *Dispatcher) gateQuota(ctx context.Context, limits ratelimit.Limits, accountID string, action models.ActionType, details activity.Details) error {
	err := d.limiter.Gate(ctx, limits, accountID, action)
	if errors.Is(err, models.ErrQuotaExhausted) {
		d.activity.Skipped(ctx, accountID, string(action)+"_skipped", "daily quota exhausted", details)
	}
	return err
}

// record counts a performed action. The action already happened, so losing
// the race for the last slot is logged rather than undone.
func (d *Dispatcher) record(ctx context.Context, limits ratelimit.Limits, accountID string, action models.ActionType) {
	if err := d.limiter.RecordAction(ctx, limits, accountID, action); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"account_id": accountID, "action": action}).Warn("Action performed but not counted")
	}
}

// SendConnectionRequest invites the lead to connect. It is a no-op for leads
// already pending or connected.
func (d *Dispatcher) SendConnectionRequest(ctx context.Context, settings models.Settings, client linkedapi.Automation, leadID string) (Outcome, error) {
	lead, unlock, err := d.lockLead(ctx, leadID)
	if err != nil {
		return "", err
	}
	defer unlock()

	if !leads.CanRequestConnection(*lead) {
		logrus.WithFields(logrus.Fields{"lead_id": lead.ID, "status": lead.ConnectionStatus}).Debug("Connection request not needed")
		return OutcomeNoop, nil
	}

	details := activity.Details{"lead_id": lead.ID}
	limits := ratelimit.LimitsFrom(settings)
	if err := d.gateQuota(ctx, limits, lead.AccountID, models.ActionConnectionRequest, details); err != nil {
		return "", err
	}

	post, err := d.postOf(ctx, lead)
	if err != nil {
		return "", err
	}
	note := BuildConnectionNote(*lead, post)

	if err := d.delayer.Delay(ctx, pacing.BeforeAction); err != nil {
		return "", err
	}
	if err := client.SendConnectionRequest(ctx, lead.LinkedInURL, note); err != nil {
		return "", fmt.Errorf("connection request to lead %s: %w", lead.ID, err)
	}

	d.record(ctx, limits, lead.AccountID, models.ActionConnectionRequest)
	if _, _, err := d.leads.UpdateConnectionStatus(ctx, lead, models.ConnectionPending); err != nil {
		return OutcomeSent, fmt.Errorf("connection request sent but lead %s not updated: %w", lead.ID, err)
	}

	d.activity.Success(ctx, lead.AccountID, "connection_sent", details)
	return OutcomeSent, nil
}

// BuildConnectionNote personalizes the invitation and keeps it within the platform limit
func BuildConnectionNote(lead models.Lead, post *models.MonitoredPost) string {
	var note string
	if post != nil {
		note = fmt.Sprintf("Hi %s, saw your comment on my post about %s. Would love to connect!",
			lead.FirstName(), post.Topic("a topic I shared"))
	} else {
		note = fmt.Sprintf("Hi %s, came across your profile and would love to connect!", lead.FirstName())
	}
	return linkedapi.TruncateNote(note)
}
