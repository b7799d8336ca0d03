package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// QueueDM creates the open PendingDM for a lead with freshly generated text.
// An existing open entry is returned unchanged.
func (d *Dispatcher) QueueDM(ctx context.Context, settings models.Settings, leadID string) (*models.PendingDM, bool, error) {
	lead, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, false, err
	}
	if lead.DMStatus == models.DMSent {
		return nil, false, fmt.Errorf("lead %s already messaged: %w", lead.ID, models.ErrInvalidState)
	}

	existing, err := d.store.FindPendingDM(ctx, lead.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && existing.Status == models.QueuePending {
		return existing, false, nil
	}

	post, err := d.postOf(ctx, lead)
	if err != nil {
		return nil, false, err
	}
	generated, err := d.generateDM(ctx, settings, *lead, post)
	if err != nil {
		return nil, false, err
	}
	return d.store.FindOrCreatePendingDM(ctx, lead.ID, generated.Text)
}

// EditPendingDM stores an operator override for a queued DM
func (d *Dispatcher) EditPendingDM(ctx context.Context, id, text string) (*models.PendingDM, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("edited text is empty: %w", models.ErrValidation)
	}
	dm, err := d.store.GetPendingDM(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.store.UpdatePendingDM(ctx, dm.ID, dm.Message, &text); err != nil {
		return nil, err
	}
	return d.store.GetPendingDM(ctx, dm.ID)
}

// RejectPendingDM closes a queued DM without sending it
func (d *Dispatcher) RejectPendingDM(ctx context.Context, id string) error {
	dm, err := d.store.GetPendingDM(ctx, id)
	if err != nil {
		return err
	}
	ok, err := d.store.SetPendingDMStatus(ctx, dm.ID, models.QueueRejected, "", d.now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pending DM %s is %s: %w", dm.ID, dm.Status, models.ErrInvalidState)
	}
	return nil
}

// PreviewDM resolves the text SendDM would use without sending anything
func (d *Dispatcher) PreviewDM(ctx context.Context, settings models.Settings, leadID string) (DMText, error) {
	lead, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		return DMText{}, err
	}
	post, err := d.postOf(ctx, lead)
	if err != nil {
		return DMText{}, err
	}
	return d.ResolveDMText(ctx, settings, *lead, post)
}

// MarkDMSentManually records a message the operator sent outside the bot
func (d *Dispatcher) MarkDMSentManually(ctx context.Context, leadID, text string) error {
	lead, unlock, err := d.lockLead(ctx, leadID)
	if err != nil {
		return err
	}
	defer unlock()

	ok, err := d.leads.MarkDMSent(ctx, lead.ID, text)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lead %s already messaged: %w", lead.ID, models.ErrInvalidState)
	}

	if pending, err := d.store.FindPendingDM(ctx, lead.ID); err == nil && pending != nil {
		_, _ = d.store.SetPendingDMStatus(ctx, pending.ID, models.QueueSent, "", d.now())
	}
	d.activity.Success(ctx, lead.AccountID, "dm_marked_sent", activity.Details{"lead_id": lead.ID})
	return nil
}
