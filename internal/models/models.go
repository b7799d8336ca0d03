package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ConnectionStatus is the connection lifecycle of a lead
type ConnectionStatus string

const (
	ConnectionUnknown      ConnectionStatus = "unknown"
	ConnectionNotConnected ConnectionStatus = "notConnected"
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionConnected    ConnectionStatus = "connected"
)

// ParseConnectionStatus maps a provider value onto a known status.
// Anything unrecognised is treated as unknown.
func ParseConnectionStatus(s string) ConnectionStatus {
	switch ConnectionStatus(strings.TrimSpace(s)) {
	case ConnectionConnected:
		return ConnectionConnected
	case ConnectionPending:
		return ConnectionPending
	case ConnectionNotConnected:
		return ConnectionNotConnected
	default:
		return ConnectionUnknown
	}
}

// DMStatus tracks whether the follow-up message went out. It only moves forward.
type DMStatus string

const (
	DMNotSent DMStatus = "not_sent"
	DMSent    DMStatus = "sent"
)

// QueueStatus is the status of a human-reviewable queued message
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueSent     QueueStatus = "sent"
	QueueRejected QueueStatus = "rejected"
	QueueFailed   QueueStatus = "failed" // PendingDM only
)

// ActionType is a rate-limited external write action
type ActionType string

const (
	ActionComment           ActionType = "comment"
	ActionConnectionRequest ActionType = "connection_request"
	ActionMessage           ActionType = "message"
)

// AllActionTypes lists every rate-limited action in display order
var AllActionTypes = []ActionType{ActionComment, ActionConnectionRequest, ActionMessage}

// ActivityStatus is the outcome recorded in the audit trail
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
	ActivitySkipped ActivityStatus = "skipped"
)

// Account is a monitored LinkedIn identity and its writing voice
type Account struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name           string     `json:"name"`
	VoiceTone      string     `json:"voice_tone"`
	VoiceTopics    StringList `gorm:"type:text" json:"voice_topics"`
	SampleComments StringList `gorm:"type:text" json:"sample_comments"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AutomationCredential is the per-account identification token for the automation provider
type AutomationCredential struct {
	AccountID  string     `gorm:"primaryKey;type:varchar(36)" json:"account_id"`
	Token      string     `json:"-"`
	IsValid    bool       `json:"is_valid"`
	LastError  string     `json:"last_error,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// MonitoredPost is a post under keyword surveillance
type MonitoredPost struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID     string     `gorm:"type:varchar(36);index;not null" json:"account_id"`
	Account       Account    `gorm:"foreignKey:AccountID" json:"account"`
	PostURL       string     `gorm:"uniqueIndex;not null" json:"post_url"`
	PostTitle     string     `json:"post_title"`
	Keywords      StringList `gorm:"type:text" json:"keywords"`
	CTAType       string     `json:"cta_type"`
	CTAValue      string     `json:"cta_value"`
	CTAMessage    string     `json:"cta_message"`
	ReplyStyle    string     `json:"reply_style"`
	ReviewReplies bool       `json:"review_replies"` // queue replies for approval instead of posting
	IsActive      bool       `gorm:"index" json:"is_active"`
	TotalComments int        `json:"total_comments"`
	TotalMatches  int        `json:"total_matches"`
	LastPolledAt  *time.Time `json:"last_polled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Topic is the post title used in prompts and notes
func (p MonitoredPost) Topic(fallback string) string {
	if strings.TrimSpace(p.PostTitle) != "" {
		return p.PostTitle
	}
	return fallback
}

// HasCTA reports whether the post carries a call to action
func (p MonitoredPost) HasCTA() bool {
	return strings.TrimSpace(p.CTAValue) != "" || strings.TrimSpace(p.CTAMessage) != ""
}

// ProcessedComment is the dedupe record of a comment the poller evaluated
type ProcessedComment struct {
	ID                string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID            string     `gorm:"type:varchar(36);index;not null" json:"post_id"`
	DedupKey          string     `gorm:"type:char(64);uniqueIndex;not null" json:"-"`
	CommenterURL      string     `gorm:"not null" json:"commenter_url"`
	CommenterName     string     `json:"commenter_name"`
	CommenterHeadline string     `json:"commenter_headline,omitempty"`
	CommentText       string     `json:"comment_text"`
	CommentTime       string     `json:"comment_time,omitempty"`
	MatchedKeyword    *string    `json:"matched_keyword,omitempty"`
	WasMatch          bool       `gorm:"index" json:"was_match"`
	ReplyText         *string    `json:"reply_text,omitempty"`
	RepliedAt         *time.Time `json:"replied_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// DedupKey is the identity of a comment under a post: (post, commenter URL, text)
func DedupKey(postID, commenterURL, text string) string {
	sum := sha256.Sum256([]byte(postID + "\x00" + commenterURL + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Lead is a prospect tracked per account by profile URL
type Lead struct {
	ID               string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID        string           `gorm:"type:varchar(36);not null;uniqueIndex:ux_lead_account_url,priority:1" json:"account_id"`
	LinkedInURL      string           `gorm:"column:linkedin_url;not null;uniqueIndex:ux_lead_account_url,priority:2" json:"linkedin_url"`
	PostID           *string          `gorm:"type:varchar(36);index" json:"post_id,omitempty"`
	Name             string           `json:"name"`
	Headline         string           `json:"headline,omitempty"`
	ConnectionStatus ConnectionStatus `gorm:"type:varchar(16);index" json:"connection_status"`
	DMStatus         DMStatus         `gorm:"column:dm_status;type:varchar(16);index" json:"dm_status"`
	ConnectionSentAt *time.Time       `json:"connection_sent_at,omitempty"`
	ConnectedAt      *time.Time       `json:"connected_at,omitempty"`
	DMSentAt         *time.Time       `gorm:"column:dm_sent_at" json:"dm_sent_at,omitempty"`
	DMText           string           `gorm:"column:dm_text" json:"dm_text,omitempty"`
	CTASent          bool             `gorm:"column:cta_sent" json:"cta_sent"`
	Notes            string           `json:"notes,omitempty"`
	SourceKeyword    string           `json:"source_keyword,omitempty"`
	SourcePostURL    string           `json:"source_post_url,omitempty"`
	LastCheckedAt    *time.Time       `gorm:"index" json:"last_checked_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// FirstName returns the first word of the display name, or "there"
func (l Lead) FirstName() string {
	return FirstName(l.Name)
}

// FirstName returns the first word of a display name, or "there"
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// PendingDM is a queued direct message awaiting send
type PendingDM struct {
	ID         string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	LeadID     string      `gorm:"type:varchar(36);not null;index;index:ux_pending_dm_open,unique,where:status = 'pending'" json:"lead_id"`
	Message    string      `json:"message"`
	EditedText *string     `json:"edited_text,omitempty"`
	Status     QueueStatus `gorm:"type:varchar(16);index" json:"status"`
	LastError  string      `json:"last_error,omitempty"`
	SentAt     *time.Time  `json:"sent_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Text returns the edited override when present, else the generated message
func (p PendingDM) Text() string {
	if p.EditedText != nil && strings.TrimSpace(*p.EditedText) != "" {
		return *p.EditedText
	}
	return p.Message
}

// PendingReply is a queued public comment reply awaiting approval
type PendingReply struct {
	ID                 string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID             string      `gorm:"type:varchar(36);index;not null" json:"post_id"`
	ProcessedCommentID string      `gorm:"type:varchar(36);uniqueIndex;not null" json:"processed_comment_id"`
	Message            string      `json:"message"`
	EditedText         *string     `json:"edited_text,omitempty"`
	Status             QueueStatus `gorm:"type:varchar(16);index" json:"status"`
	SentAt             *time.Time  `json:"sent_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Text returns the edited override when present, else the generated message
func (p PendingReply) Text() string {
	if p.EditedText != nil && strings.TrimSpace(*p.EditedText) != "" {
		return *p.EditedText
	}
	return p.Message
}

// RateLimitRecord counts one action type for one account on one UTC day
type RateLimitRecord struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)"`
	AccountID  string     `gorm:"type:varchar(36);not null;uniqueIndex:ux_rate_account_action_day,priority:1"`
	ActionType ActionType `gorm:"type:varchar(32);not null;uniqueIndex:ux_rate_account_action_day,priority:2"`
	Day        string     `gorm:"type:char(10);not null;uniqueIndex:ux_rate_account_action_day,priority:3"`
	Count      int        `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActivityLog is an append-only audit entry
type ActivityLog struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID string         `gorm:"type:varchar(36);index" json:"account_id"`
	Action    string         `gorm:"index" json:"action"`
	Status    ActivityStatus `gorm:"type:varchar(16)" json:"status"`
	Details   JSONMap        `gorm:"type:text" json:"details"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// WatchedAccount is a comment-bot target whose new posts get engaged with
type WatchedAccount struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID      string     `gorm:"type:varchar(36);index;not null" json:"account_id"`
	Account        Account    `gorm:"foreignKey:AccountID" json:"account"`
	TargetURL      string     `gorm:"not null" json:"target_url"`
	TargetName     string     `json:"target_name"`
	TargetHeadline string     `json:"target_headline,omitempty"`
	CommentStyle   string     `json:"comment_style,omitempty"`
	IsActive       bool       `gorm:"index" json:"is_active"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Engagement records a reaction+comment left on a watched target's post
type Engagement struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	WatchedAccountID string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_engagement_target_post,priority:1" json:"watched_account_id"`
	PostURL          string    `gorm:"not null;uniqueIndex:ux_engagement_target_post,priority:2" json:"post_url"`
	PostText         string    `json:"post_text,omitempty"`
	Reacted          bool      `json:"reacted"`
	ReactionType     string    `json:"reaction_type,omitempty"`
	Commented        bool      `json:"commented"`
	CommentText      string    `json:"comment_text,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
