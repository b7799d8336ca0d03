package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// ProcessedCommentExists reports whether a comment with this dedupe key was already evaluated
func (s *GormStore) ProcessedCommentExists(ctx context.Context, dedupKey string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ProcessedComment{}).
		Where("dedup_key = ?", dedupKey).
		Count(&count).Error
	return count > 0, err
}

// CreateProcessedComment inserts the record unless its dedupe key exists.
// It reports whether a row was created.
func (s *GormStore) CreateProcessedComment(ctx context.Context, c *models.ProcessedComment) (bool, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.DedupKey == "" {
		c.DedupKey = models.DedupKey(c.PostID, c.CommenterURL, c.CommentText)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(c)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record comment from %s: %w", c.CommenterURL, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetProcessedComment loads a processed comment by id
func (s *GormStore) GetProcessedComment(ctx context.Context, id string) (*models.ProcessedComment, error) {
	var c models.ProcessedComment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "comment", id)
	}
	return &c, nil
}

// MarkCommentReplied stamps the reply fields
func (s *GormStore) MarkCommentReplied(ctx context.Context, id, text string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.ProcessedComment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"reply_text": text, "replied_at": at}).Error
}
