package linkedapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// Alerter notifies operators of conditions needing a human
type Alerter interface {
	SendAlert(alert *models.Alert) error
}

// Provider builds per-account clients from stored credentials
type Provider struct {
	store   storage.AccountStore
	alerter Alerter
	opts    Options
}

// Ensure Provider implements ClientSource
var _ ClientSource = (*Provider)(nil)

// NewProvider creates a provider; alerter may be nil
func NewProvider(store storage.AccountStore, alerter Alerter, opts Options) *Provider {
	return &Provider{store: store, alerter: alerter, opts: opts}
}

// ClientFor returns a client for the account. A credential already marked
// invalid short-circuits with ErrAuth so dead tokens are not retried.
func (p *Provider) ClientFor(ctx context.Context, accountID string) (Automation, error) {
	cred, err := p.store.GetCredential(ctx, accountID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("account %s: %w", accountID, models.ErrNoCredential)
	}
	if err != nil {
		return nil, err
	}
	if !cred.IsValid {
		return nil, fmt.Errorf("account %s credential invalid since last failure (%s): %w", accountID, cred.LastError, models.ErrAuth)
	}
	if cred.Token == "" {
		return nil, fmt.Errorf("account %s: %w", accountID, models.ErrNoCredential)
	}

	opts := p.opts
	var once sync.Once
	opts.OnAuthError = func(authErr error) {
		once.Do(func() { p.invalidate(accountID, authErr) })
	}
	opts.OnSuccess = func() {
		// detached: a cancelled job still records the use
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.store.TouchCredential(touchCtx, accountID, time.Now().UTC()); err != nil {
			logrus.WithError(err).WithField("account_id", accountID).Warn("Failed to stamp credential use")
		}
	}
	return NewClient(cred.Token, opts), nil
}

func (p *Provider) invalidate(accountID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := logrus.WithFields(logrus.Fields{"account_id": accountID})
	logger.WithError(cause).Error("Automation credential rejected, marking invalid")

	if err := p.store.InvalidateCredential(ctx, accountID, cause.Error()); err != nil {
		logger.WithError(err).Error("Failed to mark credential invalid")
	}

	if p.alerter == nil {
		return
	}
	name := accountID
	if account, err := p.store.GetAccount(ctx, accountID); err == nil {
		name = account.Name
	}
	alert := &models.Alert{
		ID:        uuid.New().String(),
		Type:      "critical",
		Title:     fmt.Sprintf("Automation credential rejected for %s", name),
		Message:   fmt.Sprintf("The provider rejected the identification token (%v). Automated actions for this account are paused until the credential is replaced.", cause),
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.alerter.SendAlert(alert); err != nil {
		logger.WithError(err).Error("Failed to send credential alert")
	}
}
