package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// GormStore persists the engine's entities in Postgres or SQLite
type GormStore struct {
	db *gorm.DB
}

// Ensure GormStore implements Store
var _ Store = (*GormStore)(nil)

// Open connects to the database and migrates the schema.
// driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite allows a single writer; one connection also keeps :memory: databases alive
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	store := &GormStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	logrus.Infof("Connected to %s database", driver)
	return store, nil
}

func (s *GormStore) migrate() error {
	err := s.db.AutoMigrate(
		&models.Settings{},
		&models.Account{},
		&models.AutomationCredential{},
		&models.MonitoredPost{},
		&models.ProcessedComment{},
		&models.Lead{},
		&models.PendingDM{},
		&models.PendingReply{},
		&models.RateLimitRecord{},
		&models.ActivityLog{},
		&models.WatchedAccount{},
		&models.Engagement{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for seeding and admin tooling
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database is reachable
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func newID() string {
	return uuid.New().String()
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// GetSettings returns the global settings row, or ErrNotFound when none exists
func (s *GormStore) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := s.db.WithContext(ctx).Where("id = ?", models.GlobalSettingsID).First(&settings).Error
	if err != nil {
		return nil, notFound(err, "settings", models.GlobalSettingsID)
	}
	return &settings, nil
}

// GetAccount loads an account by id
func (s *GormStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, notFound(err, "account", id)
	}
	return &account, nil
}

// ListActiveAccounts returns every account that is not disabled
func (s *GormStore) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&accounts).Error
	return accounts, err
}

// GetCredential loads the automation credential of an account
func (s *GormStore) GetCredential(ctx context.Context, accountID string) (*models.AutomationCredential, error) {
	var cred models.AutomationCredential
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&cred).Error; err != nil {
		return nil, notFound(err, "credential", accountID)
	}
	return &cred, nil
}

// InvalidateCredential marks the credential unusable so later calls short-circuit
func (s *GormStore) InvalidateCredential(ctx context.Context, accountID, reason string) error {
	return s.db.WithContext(ctx).
		Model(&models.AutomationCredential{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{"is_valid": false, "last_error": reason}).Error
}

// TouchCredential stamps the last successful use
func (s *GormStore) TouchCredential(ctx context.Context, accountID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.AutomationCredential{}).
		Where("account_id = ?", accountID).
		Update("last_used_at", at).Error
}

// GetPost loads a monitored post with its account
func (s *GormStore) GetPost(ctx context.Context, id string) (*models.MonitoredPost, error) {
	var post models.MonitoredPost
	if err := s.db.WithContext(ctx).Preload("Account").Where("id = ?", id).First(&post).Error; err != nil {
		return nil, notFound(err, "post", id)
	}
	return &post, nil
}

// ListActivePosts returns active posts of active accounts, oldest poll first
func (s *GormStore) ListActivePosts(ctx context.Context) ([]models.MonitoredPost, error) {
	var posts []models.MonitoredPost
	err := s.db.WithContext(ctx).
		Preload("Account").
		Joins("JOIN accounts ON accounts.id = monitored_posts.account_id AND accounts.is_active = ?", true).
		Where("monitored_posts.is_active = ?", true).
		Order("monitored_posts.last_polled_at IS NOT NULL, monitored_posts.last_polled_at, monitored_posts.created_at").
		Find(&posts).Error
	return posts, err
}

// RecordPoll stamps lastPolledAt and adds to the running counters
func (s *GormStore) RecordPoll(ctx context.Context, postID string, newComments, newMatches int, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.MonitoredPost{}).
		Where("id = ?", postID).
		Updates(map[string]interface{}{
			"last_polled_at": at,
			"total_comments": gorm.Expr("total_comments + ?", newComments),
			"total_matches":  gorm.Expr("total_matches + ?", newMatches),
		}).Error
}

// ListActiveWatchedAccounts returns comment-bot targets of active accounts
func (s *GormStore) ListActiveWatchedAccounts(ctx context.Context) ([]models.WatchedAccount, error) {
	var targets []models.WatchedAccount
	err := s.db.WithContext(ctx).
		Preload("Account").
		Joins("JOIN accounts ON accounts.id = watched_accounts.account_id AND accounts.is_active = ?", true).
		Where("watched_accounts.is_active = ?", true).
		Order("watched_accounts.created_at").
		Find(&targets).Error
	return targets, err
}

// EngagementExists reports whether the target's post was already engaged with
func (s *GormStore) EngagementExists(ctx context.Context, watchedAccountID, postURL string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Engagement{}).
		Where("watched_account_id = ? AND post_url = ?", watchedAccountID, postURL).
		Count(&count).Error
	return count > 0, err
}

// CreateEngagement inserts the engagement; false means it already existed
func (s *GormStore) CreateEngagement(ctx context.Context, e *models.Engagement) (bool, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	return res.RowsAffected > 0, res.Error
}

// TouchWatchedAccount stamps lastCheckedAt
func (s *GormStore) TouchWatchedAccount(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.WatchedAccount{}).
		Where("id = ?", id).
		Update("last_checked_at", at).Error
}

// AppendActivity inserts an audit entry
func (s *GormStore) AppendActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// CountFailures counts failed audit entries for an account since a point in time
func (s *GormStore) CountFailures(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ActivityLog{}).
		Where("account_id = ? AND status = ? AND created_at >= ?", accountID, models.ActivityFailed, since.UTC()).
		Count(&count).Error
	return int(count), err
}
