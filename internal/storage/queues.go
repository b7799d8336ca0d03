package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// openDMStatuses are the PendingDM states that can still be sent
var openDMStatuses = []models.QueueStatus{models.QueuePending, models.QueueFailed}

// GetPendingDM loads a queued DM by id
func (s *GormStore) GetPendingDM(ctx context.Context, id string) (*models.PendingDM, error) {
	var dm models.PendingDM
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&dm).Error; err != nil {
		return nil, notFound(err, "pending dm", id)
	}
	return &dm, nil
}

// FindPendingDM returns the lead's open queued DM, preferring a pending one
// over the most recent failed one. It returns nil when there is none.
func (s *GormStore) FindPendingDM(ctx context.Context, leadID string) (*models.PendingDM, error) {
	var dms []models.PendingDM
	err := s.db.WithContext(ctx).
		Where("lead_id = ? AND status IN ?", leadID, openDMStatuses).
		Order("created_at DESC").
		Find(&dms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending dm for lead %s: %w", leadID, err)
	}
	if len(dms) == 0 {
		return nil, nil
	}
	for i := range dms {
		if dms[i].Status == models.QueuePending {
			return &dms[i], nil
		}
	}
	return &dms[0], nil
}

// FindOrCreatePendingDM returns the lead's pending DM, creating one with message
// when none exists. The partial unique index on (lead_id) where status is
// pending keeps concurrent callers converging on one row.
func (s *GormStore) FindOrCreatePendingDM(ctx context.Context, leadID, message string) (*models.PendingDM, bool, error) {
	db := s.db.WithContext(ctx)

	var existing models.PendingDM
	err := db.Where("lead_id = ? AND status = ?", leadID, models.QueuePending).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to find pending dm for lead %s: %w", leadID, err)
	}

	dm := &models.PendingDM{
		ID:      newID(),
		LeadID:  leadID,
		Message: message,
		Status:  models.QueuePending,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(dm)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to queue dm for lead %s: %w", leadID, res.Error)
	}
	if res.RowsAffected > 0 {
		return dm, true, nil
	}

	// Lost the race; the winner's row is now visible
	if err := db.Where("lead_id = ? AND status = ?", leadID, models.QueuePending).First(&existing).Error; err != nil {
		return nil, false, notFound(err, "pending dm for lead", leadID)
	}
	return &existing, false, nil
}

// UpdatePendingDM replaces the text of a DM that has not been sent yet
func (s *GormStore) UpdatePendingDM(ctx context.Context, id string, message string, editedText *string) error {
	res := s.db.WithContext(ctx).
		Model(&models.PendingDM{}).
		Where("id = ? AND status IN ?", id, openDMStatuses).
		Updates(map[string]interface{}{"message": message, "edited_text": editedText})
	if res.Error != nil {
		return fmt.Errorf("failed to update pending dm %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("pending dm %s is closed: %w", id, models.ErrInvalidState)
	}
	return nil
}

// SetPendingDMStatus closes or fails an open queued DM. Sent and rejected are final.
func (s *GormStore) SetPendingDMStatus(ctx context.Context, id string, to models.QueueStatus, lastError string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"last_error": lastError,
		"updated_at": at,
	}
	if to == models.QueueSent {
		updates["sent_at"] = at
	}

	res := s.db.WithContext(ctx).
		Model(&models.PendingDM{}).
		Where("id = ? AND status IN ?", id, openDMStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to set pending dm %s to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListSendablePendingDMs returns open queued DMs whose lead is connected and not yet
// messaged, least recently attempted first
func (s *GormStore) ListSendablePendingDMs(ctx context.Context, limit int) ([]models.PendingDM, error) {
	q := s.db.WithContext(ctx).
		Joins("JOIN leads ON leads.id = pending_dms.lead_id").
		Joins("JOIN accounts ON accounts.id = leads.account_id AND accounts.is_active = ?", true).
		Where("pending_dms.status IN ?", openDMStatuses).
		Where("leads.connection_status = ? AND leads.dm_status = ?", models.ConnectionConnected, models.DMNotSent)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var dms []models.PendingDM
	err := q.Order("pending_dms.updated_at, pending_dms.created_at").Find(&dms).Error
	return dms, err
}

// CreatePendingReply queues a reply for approval; false when the comment already has one
func (s *GormStore) CreatePendingReply(ctx context.Context, r *models.PendingReply) (bool, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = models.QueuePending
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "processed_comment_id"}}, DoNothing: true}).
		Create(r)
	if res.Error != nil {
		return false, fmt.Errorf("failed to queue reply for comment %s: %w", r.ProcessedCommentID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetPendingReply loads a queued reply by id
func (s *GormStore) GetPendingReply(ctx context.Context, id string) (*models.PendingReply, error) {
	var r models.PendingReply
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err, "pending reply", id)
	}
	return &r, nil
}

// SetPendingReplyStatus closes a pending reply; it reports false when it was already closed
func (s *GormStore) SetPendingReplyStatus(ctx context.Context, id string, to models.QueueStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to, "updated_at": at}
	if to == models.QueueSent {
		updates["sent_at"] = at
	}

	res := s.db.WithContext(ctx).
		Model(&models.PendingReply{}).
		Where("id = ? AND status = ?", id, models.QueuePending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to set pending reply %s to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}
