package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// Service applies lead transitions through conditional updates
type Service struct {
	store storage.LeadStore
	now   func() time.Time
}

// NewService creates a lead service
func NewService(store storage.LeadStore) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Discover records a sighting of a person: the lead is created once per
// (account, profile URL) and then moved towards the observed status.
func (s *Service) Discover(ctx context.Context, seed models.Lead, observed models.ConnectionStatus) (*models.Lead, error) {
	seed.ID = ""
	seed.ConnectionStatus = models.ConnectionUnknown
	seed.DMStatus = models.DMNotSent

	lead, err := s.store.UpsertLead(ctx, &seed)
	if err != nil {
		return nil, err
	}

	updated, _, err := s.UpdateConnectionStatus(ctx, lead, observed)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateConnectionStatus moves the lead to status to when the stored status
// allows it. Illegal moves, including any move away from connected, are
// no-ops. It returns the lead as persisted and whether it changed.
func (s *Service) UpdateConnectionStatus(ctx context.Context, lead *models.Lead, to models.ConnectionStatus) (*models.Lead, bool, error) {
	from := AllowedFrom(to)
	if len(from) == 0 {
		return lead, false, nil
	}

	changed, err := s.store.TransitionConnection(ctx, lead.ID, to, from, s.now())
	if err != nil {
		return nil, false, err
	}

	current, err := s.store.GetLead(ctx, lead.ID)
	if err != nil {
		return nil, false, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"lead_id":    lead.ID,
		"account_id": lead.AccountID,
		"from":       lead.ConnectionStatus,
		"to":         to,
	})
	if changed {
		logger.Info("Lead connection status changed")
	} else {
		logger.WithField("current", current.ConnectionStatus).Debug("Lead transition refused")
	}
	return current, changed, nil
}

// MarkDMSent advances dm status; false means the lead was already messaged
func (s *Service) MarkDMSent(ctx context.Context, leadID, text string) (bool, error) {
	ok, err := s.store.MarkDMSent(ctx, leadID, text, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to mark dm sent: %w", err)
	}
	return ok, nil
}
