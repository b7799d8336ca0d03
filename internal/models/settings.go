package models

// Daily caps used when the settings row is absent or a cap is unset
const (
	DefaultMaxDailyComments    = 50
	DefaultMaxDailyConnections = 25
	DefaultMaxDailyMessages    = 100
)

// GlobalSettingsID is the primary key of the single settings row
const GlobalSettingsID = "global"

// Settings holds operator-tunable behaviour. Jobs read it once per invocation
// and pass the snapshot down, so edits apply on the next tick without a restart.
type Settings struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	ReplyBotEnabled   bool `json:"reply_bot_enabled"`
	CommentBotEnabled bool `json:"comment_bot_enabled"`
	AIMatchingEnabled bool `gorm:"column:ai_matching_enabled" json:"ai_matching_enabled"`
	DigestEnabled     bool `json:"digest_enabled"`

	ReplyBotIntervalMins   int `json:"reply_bot_interval_mins"`
	CommentBotIntervalMins int `json:"comment_bot_interval_mins"`
	ConnectionCheckMins    int `json:"connection_check_mins"`
	PendingDMIntervalMins  int `gorm:"column:pending_dm_interval_mins" json:"pending_dm_interval_mins"`

	MaxDailyComments    int `json:"max_daily_comments"`
	MaxDailyConnections int `json:"max_daily_connections"`
	MaxDailyMessages    int `json:"max_daily_messages"`

	DefaultDMTemplate string `gorm:"column:default_dm_template" json:"default_dm_template"`
	DMAIPrompt        string `gorm:"column:dm_ai_prompt" json:"dm_ai_prompt"`
	DMUserContext     string `gorm:"column:dm_user_context" json:"dm_user_context"`
}

// DefaultSettings is the snapshot used when no settings row exists
func DefaultSettings() Settings {
	return Settings{
		ID:                     GlobalSettingsID,
		ReplyBotEnabled:        true,
		CommentBotEnabled:      true,
		ReplyBotIntervalMins:   10,
		CommentBotIntervalMins: 30,
		ConnectionCheckMins:    60,
		PendingDMIntervalMins:  15,
		MaxDailyComments:       DefaultMaxDailyComments,
		MaxDailyConnections:    DefaultMaxDailyConnections,
		MaxDailyMessages:       DefaultMaxDailyMessages,
	}
}

// Limits returns the daily cap per action type, falling back to defaults for unset caps
func (s Settings) Limits() map[ActionType]int {
	return map[ActionType]int{
		ActionComment:           orDefault(s.MaxDailyComments, DefaultMaxDailyComments),
		ActionConnectionRequest: orDefault(s.MaxDailyConnections, DefaultMaxDailyConnections),
		ActionMessage:           orDefault(s.MaxDailyMessages, DefaultMaxDailyMessages),
	}
}

// HasDMAIConfig reports whether settings carry a DM prompt or user context
func (s Settings) HasDMAIConfig() bool {
	return s.DMAIPrompt != "" || s.DMUserContext != ""
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
