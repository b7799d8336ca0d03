package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// incrementSQL bumps the day's counter in one statement. The WHERE on the
// update branch makes the increment conditional, so a row at the cap is left
// untouched and reports zero affected rows. Works on Postgres and SQLite.
const incrementSQL = `INSERT INTO rate_limit_records (id, account_id, action_type, day, count, created_at, updated_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (account_id, action_type, day)
DO UPDATE SET count = rate_limit_records.count + 1, updated_at = excluded.updated_at
WHERE rate_limit_records.count < ?`

// GetActionCount returns the counter for one (account, action, day); zero when no row exists
func (s *GormStore) GetActionCount(ctx context.Context, accountID string, action models.ActionType, day string) (int, error) {
	var rec models.RateLimitRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND action_type = ? AND day = ?", accountID, action, day).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s count for %s: %w", action, accountID, err)
	}
	return rec.Count, nil
}

// ListActionCounts returns every counter of an account for one day
func (s *GormStore) ListActionCounts(ctx context.Context, accountID, day string) (map[models.ActionType]int, error) {
	var recs []models.RateLimitRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND day = ?", accountID, day).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read counts for %s: %w", accountID, err)
	}

	counts := make(map[models.ActionType]int, len(recs))
	for _, rec := range recs {
		counts[rec.ActionType] = rec.Count
	}
	return counts, nil
}

// IncrementActionCount atomically adds one to the counter unless it already reached limit.
// It reports whether the increment happened.
func (s *GormStore) IncrementActionCount(ctx context.Context, accountID string, action models.ActionType, day string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Exec(incrementSQL, newID(), accountID, action, day, now, now, limit)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record %s for %s: %w", action, accountID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
