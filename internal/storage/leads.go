package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// GetLead loads a lead by id
func (s *GormStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error; err != nil {
		return nil, notFound(err, "lead", id)
	}
	return &lead, nil
}

// UpsertLead inserts the lead unless (account, url) already exists and returns
// the persisted row. Connection and DM state of an existing row are never
// touched here; an existing lead without a source post adopts the new one.
func (s *GormStore) UpsertLead(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if lead.ID == "" {
		lead.ID = newID()
	}
	if lead.ConnectionStatus == "" {
		lead.ConnectionStatus = models.ConnectionUnknown
	}
	if lead.DMStatus == "" {
		lead.DMStatus = models.DMNotSent
	}

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "linkedin_url"}},
		DoNothing: true,
	}).Create(lead).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert lead %s: %w", lead.LinkedInURL, err)
	}

	var current models.Lead
	err = db.Where("account_id = ? AND linkedin_url = ?", lead.AccountID, lead.LinkedInURL).First(&current).Error
	if err != nil {
		return nil, notFound(err, "lead", lead.LinkedInURL)
	}

	if current.PostID == nil && lead.PostID != nil {
		res := db.Model(&models.Lead{}).
			Where("id = ? AND post_id IS NULL", current.ID).
			Updates(map[string]interface{}{
				"post_id":         *lead.PostID,
				"source_keyword":  lead.SourceKeyword,
				"source_post_url": lead.SourcePostURL,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to attach post to lead %s: %w", current.ID, res.Error)
		}
		if res.RowsAffected > 0 {
			current.PostID = lead.PostID
			current.SourceKeyword = lead.SourceKeyword
			current.SourcePostURL = lead.SourcePostURL
		}
	}

	return &current, nil
}

// TransitionConnection moves the lead to status to, but only while its current
// status is one of allowedFrom. The check and the write are one statement.
func (s *GormStore) TransitionConnection(ctx context.Context, leadID string, to models.ConnectionStatus, allowedFrom []models.ConnectionStatus, at time.Time) (bool, error) {
	if len(allowedFrom) == 0 {
		return false, nil
	}

	updates := map[string]interface{}{
		"connection_status": to,
		"updated_at":        at,
	}
	switch to {
	case models.ConnectionConnected:
		updates["connected_at"] = gorm.Expr("COALESCE(connected_at, ?)", at)
	case models.ConnectionPending:
		updates["connection_sent_at"] = gorm.Expr("COALESCE(connection_sent_at, ?)", at)
	}

	res := s.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ? AND connection_status IN ?", leadID, allowedFrom).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move lead %s to %s: %w", leadID, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkDMSent advances dm_status to sent exactly once
func (s *GormStore) MarkDMSent(ctx context.Context, leadID, text string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ? AND dm_status = ?", leadID, models.DMNotSent).
		Updates(map[string]interface{}{
			"dm_status":  models.DMSent,
			"dm_sent_at": at,
			"dm_text":    text,
			"cta_sent":   true,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark dm sent for lead %s: %w", leadID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TouchLeadCheck stamps last_checked_at. updated_at is left alone so a check
// that changes nothing does not look like a state change.
func (s *GormStore) TouchLeadCheck(ctx context.Context, leadID string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Lead{}).
		Where("id = ?", leadID).
		UpdateColumn("last_checked_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to stamp check of lead %s: %w", leadID, err)
	}
	return nil
}

// ListLeadsByStatus returns leads in a connection status, never checked first,
// then least recently checked. An empty dm matches any DM status.
func (s *GormStore) ListLeadsByStatus(ctx context.Context, conn models.ConnectionStatus, dm models.DMStatus, limit int) ([]models.Lead, error) {
	q := s.db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.id = leads.account_id AND accounts.is_active = ?", true).
		Where("leads.connection_status = ?", conn)
	if dm != "" {
		q = q.Where("leads.dm_status = ?", dm)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var leads []models.Lead
	err := q.Order("leads.last_checked_at IS NOT NULL, leads.last_checked_at, leads.created_at").Find(&leads).Error
	return leads, err
}

// ListLeadsAwaitingFirstDM returns connected, not yet messaged leads that came
// from a post and have no open PendingDM
func (s *GormStore) ListLeadsAwaitingFirstDM(ctx context.Context, limit int) ([]models.Lead, error) {
	q := s.db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.id = leads.account_id AND accounts.is_active = ?", true).
		Where("leads.connection_status = ? AND leads.dm_status = ?", models.ConnectionConnected, models.DMNotSent).
		Where("leads.post_id IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM pending_dms WHERE pending_dms.lead_id = leads.id AND pending_dms.status IN ?)",
			[]models.QueueStatus{models.QueuePending, models.QueueFailed})
	if limit > 0 {
		q = q.Limit(limit)
	}

	var leads []models.Lead
	err := q.Order("leads.connected_at").Find(&leads).Error
	return leads, err
}

// CountLeadsByStatus groups an account's leads by connection status
func (s *GormStore) CountLeadsByStatus(ctx context.Context, accountID string) (map[models.ConnectionStatus]int, error) {
	var rows []struct {
		ConnectionStatus models.ConnectionStatus
		Total            int
	}
	err := s.db.WithContext(ctx).
		Model(&models.Lead{}).
		Select("connection_status, COUNT(*) AS total").
		Where("account_id = ?", accountID).
		Group("connection_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count leads for %s: %w", accountID, err)
	}

	counts := make(map[models.ConnectionStatus]int, len(rows))
	for _, r := range rows {
		counts[r.ConnectionStatus] = r.Total
	}
	return counts, nil
}
