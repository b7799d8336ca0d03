package models

import "time"

// JobRun summarises one invocation of a scheduled job
type JobRun struct {
	Job        string         `json:"job"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   string         `json:"duration"`
	Skipped    bool           `json:"skipped"`              // feature flag off
	Units      int            `json:"units"`                // posts, leads or targets visited
	Failures   int            `json:"failures"`             // units that ended in error
	Counters   map[string]int `json:"counters,omitempty"`   // job specific, e.g. matches, dms_sent
	FatalError string         `json:"fatal_error,omitempty"`
}

// Usage is one action type's consumption against its daily cap
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// AccountDigest is one account's section of the daily digest
type AccountDigest struct {
	AccountID   string                   `json:"account_id"`
	AccountName string                   `json:"account_name"`
	Usage       map[ActionType]Usage     `json:"usage"`
	Leads       map[ConnectionStatus]int `json:"leads"`
	Failures    int                      `json:"failures"`
}

// Report is the daily digest sent to operators
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Period      string          `json:"period"`
	Accounts    []AccountDigest `json:"accounts"`
	Jobs        []JobRun        `json:"jobs,omitempty"`
}

// Alert is an urgent operator notification
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "critical", "urgent", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	AccountID string    `json:"account_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
