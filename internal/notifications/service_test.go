package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/palma21/linkedin-outreach-bot/internal/config"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

func sampleReport() *models.Report {
	return &models.Report{
		GeneratedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Period:      "daily",
		Accounts: []models.AccountDigest{{
			AccountID:   "acc-1",
			AccountName: "Founder",
			Usage: map[models.ActionType]models.Usage{
				models.ActionComment:           {Used: 3, Limit: 50},
				models.ActionConnectionRequest: {Used: 1, Limit: 25},
			},
			Leads:    map[models.ConnectionStatus]int{models.ConnectionPending: 4, models.ConnectionConnected: 2},
			Failures: 1,
		}},
		Jobs: []models.JobRun{{Job: "reply_bot_poll", StartedAt: time.Date(2026, 3, 2, 7, 50, 0, 0, time.UTC), Units: 3, Failures: 1}},
	}
}

func TestSendReport_Teams(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewService(&config.Config{TeamsWebhookURL: server.URL})
	require.NoError(t, s.SendReport(sampleReport()))

	assert.Equal(t, "MessageCard", received.Type)
	require.Len(t, received.Sections, 2)
	assert.Equal(t, "Founder", received.Sections[0].ActivityTitle)
	assert.Equal(t, "comment 3/50, connection_request 1/25, message 0/0", received.Sections[0].Facts[0].Value)
	assert.Equal(t, "connected 2, pending 4", received.Sections[0].Facts[1].Value)
}

func TestSendReport_TeamsErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := NewService(&config.Config{TeamsWebhookURL: server.URL})
	err := s.SendReport(sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams")
}

func TestSendAlert_Email(t *testing.T) {
	s := NewService(&config.Config{NotificationEmail: "ops@example.com", SMTPUsername: "bot@example.com"})

	var sent *gomail.Message
	s.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	err := s.SendAlert(&models.Alert{
		Type:      "critical",
		Title:     "Automation credential rejected",
		Message:   "Replace the token for account acc-1",
		AccountID: "acc-1",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, []string{"ops@example.com"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"[CRITICAL] Automation credential rejected"}, sent.GetHeader("Subject"))
}

func TestSendAlert_EmailFailure(t *testing.T) {
	s := NewService(&config.Config{NotificationEmail: "ops@example.com"})
	s.send = func(m *gomail.Message) error { return errors.New("smtp down") }

	err := s.SendAlert(&models.Alert{Type: "info", Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}

func TestBuildReportBodies(t *testing.T) {
	report := sampleReport()

	html, err := buildReportHTML(report)
	require.NoError(t, err)
	assert.Contains(t, html, "Founder")
	assert.Contains(t, html, "failing")
	assert.Contains(t, html, "reply_bot_poll")

	text := buildReportText(report)
	assert.Contains(t, text, "Failures (24h): 1")
	assert.Contains(t, text, "Leads: connected 2, pending 4")
}

func TestNoChannelsIsNoop(t *testing.T) {
	s := NewService(&config.Config{})
	assert.NoError(t, s.SendReport(sampleReport()))
	assert.NoError(t, s.SendAlert(&models.Alert{Type: "info", Title: "t"}))
}
