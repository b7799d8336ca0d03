// Package ratelimit enforces per-account daily caps on external write actions.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// DayLayout is the calendar-day key of a counter, always in UTC
const DayLayout = "2006-01-02"

// Limits maps an action type to its daily cap
type Limits map[models.ActionType]int

// LimitsFrom takes the caps out of a settings snapshot, defaults filled in
func LimitsFrom(settings models.Settings) Limits {
	return Limits(settings.Limits())
}

// Of returns the cap for an action, falling back to the hard-coded default
func (l Limits) Of(action models.ActionType) int {
	if v, ok := l[action]; ok && v > 0 {
		return v
	}
	return models.DefaultSettings().Limits()[action]
}

// Limiter gates actions against today's counters
type Limiter struct {
	store storage.RateLimitStore
	now   func() time.Time
}

// NewLimiter creates a limiter backed by the store
func NewLimiter(store storage.RateLimitStore) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock overrides the time source
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Today is the current counter day
func (l *Limiter) Today() string {
	return l.now().UTC().Format(DayLayout)
}

// CanPerform reports whether today's count for the action is below its cap.
// It reads the store every time; never cache the answer.
func (l *Limiter) CanPerform(ctx context.Context, limits Limits, accountID string, action models.ActionType) (bool, error) {
	count, err := l.store.GetActionCount(ctx, accountID, action, l.Today())
	if err != nil {
		return false, err
	}
	return count < limits.Of(action), nil
}

// RecordAction counts one performed action. The increment is a single
// conditional upsert, so concurrent callers can never push the counter past
// the cap; the caller that would is told ErrQuotaExhausted.
func (l *Limiter) RecordAction(ctx context.Context, limits Limits, accountID string, action models.ActionType) error {
	ok, err := l.store.IncrementActionCount(ctx, accountID, action, l.Today(), limits.Of(action))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s for account %s: %w", action, accountID, models.ErrQuotaExhausted)
	}

	logrus.WithFields(logrus.Fields{
		"account_id": accountID,
		"action":     action,
	}).Debug("Recorded rate-limited action")
	return nil
}

// GetUsage returns today's consumption of every action type
func (l *Limiter) GetUsage(ctx context.Context, limits Limits, accountID string) (map[models.ActionType]models.Usage, error) {
	counts, err := l.store.ListActionCounts(ctx, accountID, l.Today())
	if err != nil {
		return nil, err
	}

	usage := make(map[models.ActionType]models.Usage, len(models.AllActionTypes))
	for _, action := range models.AllActionTypes {
		usage[action] = models.Usage{Used: counts[action], Limit: limits.Of(action)}
	}
	return usage, nil
}

// Gate checks the cap and returns ErrQuotaExhausted when the action must be skipped
func (l *Limiter) Gate(ctx context.Context, limits Limits, accountID string, action models.ActionType) error {
	ok, err := l.CanPerform(ctx, limits, accountID, action)
	if err != nil {
		return fmt.Errorf("failed to check %s quota: %w", action, err)
	}
	if !ok {
		return fmt.Errorf("%s for account %s: %w", action, accountID, models.ErrQuotaExhausted)
	}
	return nil
}
