package storage

import (
	"context"
	"time"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// Archive stores opaque blobs such as job-run reports
type Archive interface {
	Store(filename string, data []byte) error
	Retrieve(filename string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(filename string) error
}

// SettingsStore reads the global settings row
type SettingsStore interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
}

// AccountStore reads accounts and manages their automation credentials
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListActiveAccounts(ctx context.Context) ([]models.Account, error)
	GetCredential(ctx context.Context, accountID string) (*models.AutomationCredential, error)
	InvalidateCredential(ctx context.Context, accountID, reason string) error
	TouchCredential(ctx context.Context, accountID string, at time.Time) error
}

// RateLimitStore keeps per (account, action, day) counters.
// IncrementActionCount must be a single atomic statement that refuses to pass limit.
type RateLimitStore interface {
	GetActionCount(ctx context.Context, accountID string, action models.ActionType, day string) (int, error)
	ListActionCounts(ctx context.Context, accountID, day string) (map[models.ActionType]int, error)
	IncrementActionCount(ctx context.Context, accountID string, action models.ActionType, day string, limit int) (bool, error)
}

// PostStore reads monitored posts and records poll outcomes
type PostStore interface {
	GetPost(ctx context.Context, id string) (*models.MonitoredPost, error)
	ListActivePosts(ctx context.Context) ([]models.MonitoredPost, error)
	RecordPoll(ctx context.Context, postID string, newComments, newMatches int, at time.Time) error
}

// CommentStore holds the dedupe trail of processed comments
type CommentStore interface {
	ProcessedCommentExists(ctx context.Context, dedupKey string) (bool, error)
	CreateProcessedComment(ctx context.Context, c *models.ProcessedComment) (bool, error)
	GetProcessedComment(ctx context.Context, id string) (*models.ProcessedComment, error)
	MarkCommentReplied(ctx context.Context, id, text string, at time.Time) error
}

// LeadStore persists leads. TransitionConnection and MarkDMSent are conditional
// updates; they report false when the row was not in an allowed state.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	UpsertLead(ctx context.Context, lead *models.Lead) (*models.Lead, error)
	TransitionConnection(ctx context.Context, leadID string, to models.ConnectionStatus, allowedFrom []models.ConnectionStatus, at time.Time) (bool, error)
	MarkDMSent(ctx context.Context, leadID, text string, at time.Time) (bool, error)
	TouchLeadCheck(ctx context.Context, leadID string, at time.Time) error
	ListLeadsByStatus(ctx context.Context, conn models.ConnectionStatus, dm models.DMStatus, limit int) ([]models.Lead, error)
	ListLeadsAwaitingFirstDM(ctx context.Context, limit int) ([]models.Lead, error)
	CountLeadsByStatus(ctx context.Context, accountID string) (map[models.ConnectionStatus]int, error)
}

// QueueStore holds the human-reviewable PendingDM and PendingReply queues
type QueueStore interface {
	GetPendingDM(ctx context.Context, id string) (*models.PendingDM, error)
	FindPendingDM(ctx context.Context, leadID string) (*models.PendingDM, error)
	FindOrCreatePendingDM(ctx context.Context, leadID, message string) (*models.PendingDM, bool, error)
	UpdatePendingDM(ctx context.Context, id string, message string, editedText *string) error
	SetPendingDMStatus(ctx context.Context, id string, to models.QueueStatus, lastError string, at time.Time) (bool, error)
	ListSendablePendingDMs(ctx context.Context, limit int) ([]models.PendingDM, error)

	CreatePendingReply(ctx context.Context, r *models.PendingReply) (bool, error)
	GetPendingReply(ctx context.Context, id string) (*models.PendingReply, error)
	SetPendingReplyStatus(ctx context.Context, id string, to models.QueueStatus, at time.Time) (bool, error)
}

// ActivityStore is the append-only audit trail
type ActivityStore interface {
	AppendActivity(ctx context.Context, entry *models.ActivityLog) error
	CountFailures(ctx context.Context, accountID string, since time.Time) (int, error)
}

// WatchStore reads comment-bot targets and their engagements
type WatchStore interface {
	ListActiveWatchedAccounts(ctx context.Context) ([]models.WatchedAccount, error)
	EngagementExists(ctx context.Context, watchedAccountID, postURL string) (bool, error)
	CreateEngagement(ctx context.Context, e *models.Engagement) (bool, error)
	TouchWatchedAccount(ctx context.Context, id string, at time.Time) error
}

// Store is everything the engine persists
type Store interface {
	SettingsStore
	AccountStore
	RateLimitStore
	PostStore
	CommentStore
	LeadStore
	QueueStore
	ActivityStore
	WatchStore
}
