// Package storagetest provides an in-memory SQLite store and seed helpers for tests.
package storagetest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// NewStore opens a fresh migrated in-memory database, closed when the test ends
func NewStore(t testing.TB) *storage.GormStore {
	t.Helper()
	store, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedAccount inserts an active account with a valid automation credential
func SeedAccount(t testing.TB, store *storage.GormStore, name string) models.Account {
	t.Helper()
	account := models.Account{
		ID:             uuid.New().String(),
		Name:           name,
		VoiceTone:      "friendly",
		VoiceTopics:    models.StringList{"growth", "sales"},
		SampleComments: models.StringList{"Solid breakdown, the second point matches what we see too."},
		IsActive:       true,
	}
	require.NoError(t, store.DB().Create(&account).Error)
	require.NoError(t, store.DB().Create(&models.AutomationCredential{
		AccountID: account.ID,
		Token:     "ident-" + account.ID[:8],
		IsValid:   true,
	}).Error)
	return account
}

// SeedPost inserts an active monitored post
func SeedPost(t testing.TB, store *storage.GormStore, accountID string, keywords ...string) models.MonitoredPost {
	t.Helper()
	post := models.MonitoredPost{
		ID:        uuid.New().String(),
		AccountID: accountID,
		PostURL:   "https://www.linkedin.com/feed/update/urn:li:activity:" + uuid.New().String(),
		PostTitle: "cold outreach",
		Keywords:  keywords,
		CTAType:   "link",
		CTAValue:  "https://example.com/guide",
		IsActive:  true,
	}
	require.NoError(t, store.DB().Create(&post).Error)
	return post
}

// SeedLead inserts a lead in the given connection status
func SeedLead(t testing.TB, store *storage.GormStore, accountID string, postID *string, status models.ConnectionStatus) models.Lead {
	t.Helper()
	lead := models.Lead{
		ID:               uuid.New().String(),
		AccountID:        accountID,
		LinkedInURL:      "https://www.linkedin.com/in/" + uuid.New().String()[:8],
		PostID:           postID,
		Name:             "Dana Whitfield",
		ConnectionStatus: status,
		DMStatus:         models.DMNotSent,
	}
	require.NoError(t, store.DB().Create(&lead).Error)
	return lead
}

// SaveSettings writes the global settings row
func SaveSettings(t testing.TB, store *storage.GormStore, settings models.Settings) {
	t.Helper()
	settings.ID = models.GlobalSettingsID
	require.NoError(t, store.DB().Save(&settings).Error)
}
