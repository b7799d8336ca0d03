// Package activity writes the append-only audit trail.
package activity

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// Details is the structured payload of an entry
type Details map[string]interface{}

// Logger records outcomes to the ActivityLog table and mirrors them to logrus.
// A failed insert is logged and swallowed so auditing never breaks a job.
type Logger struct {
	store storage.ActivityStore
	now   func() time.Time
}

// NewLogger creates an activity logger
func NewLogger(store storage.ActivityStore) *Logger {
	return &Logger{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Success records a completed action
func (l *Logger) Success(ctx context.Context, accountID, action string, details Details) {
	l.write(ctx, accountID, action, models.ActivitySuccess, details, nil)
}

// Failure records a failed unit of work with its error text
func (l *Logger) Failure(ctx context.Context, accountID, action string, err error, details Details) {
	l.write(ctx, accountID, action, models.ActivityFailed, details, err)
}

// Skipped records an action deliberately not taken, e.g. quota or missing configuration
func (l *Logger) Skipped(ctx context.Context, accountID, action, reason string, details Details) {
	if details == nil {
		details = Details{}
	}
	details["reason"] = reason
	l.write(ctx, accountID, action, models.ActivitySkipped, details, nil)
}

func (l *Logger) write(ctx context.Context, accountID, action string, status models.ActivityStatus, details Details, cause error) {
	payload := models.JSONMap{}
	for k, v := range details {
		payload[k] = v
	}
	if cause != nil {
		payload["error"] = cause.Error()
	}

	fields := logrus.Fields{"account_id": accountID, "action": action, "status": status}
	for k, v := range details {
		fields[k] = v
	}
	entry := logrus.WithFields(fields)
	switch status {
	case models.ActivityFailed:
		entry.WithError(cause).Error("Activity failed")
	case models.ActivitySkipped:
		entry.Info("Activity skipped")
	default:
		entry.Info("Activity succeeded")
	}

	if l == nil || l.store == nil {
		return
	}
	// Written even when the job's ctx is already cancelled
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := l.store.AppendActivity(writeCtx, &models.ActivityLog{
		AccountID: accountID,
		Action:    action,
		Status:    status,
		Details:   payload,
		CreatedAt: l.now(),
	})
	if err != nil {
		entry.WithError(err).Error("Failed to write activity log")
	}
}
