package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/palma21/linkedin-outreach-bot/internal/config"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// Notifier delivers the daily digest and credential alerts to operators
type Notifier interface {
	SendReport(report *models.Report) error
	SendAlert(alert *models.Alert) error
}

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	send   func(m *gomail.Message) error
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		return d.DialAndSend(m)
	}
	return s
}

// SendReport sends the daily digest via configured notification channels
func (s *Service) SendReport(report *models.Report) error {
	subject := fmt.Sprintf("Outreach digest - %s", report.GeneratedAt.Format("Jan 2, 2006"))
	html, err := buildReportHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}
	return s.deliver("report", buildReportTeamsMessage(report), subject, buildReportText(report), html)
}

// SendAlert sends an urgent alert notification
func (s *Service) SendAlert(alert *models.Alert) error {
	logrus.WithFields(logrus.Fields{"type": alert.Type, "account_id": alert.AccountID}).Warnf("Alert: %s", alert.Title)

	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: alertColor(alert.Type),
		Title:      fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Type), alert.Title),
		Text:       alert.Message,
	}
	if alert.AccountID != "" {
		message.Sections = []TeamsSection{{Facts: []TeamsFact{
			{Name: "Account", Value: alert.AccountID},
			{Name: "Raised", Value: alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
		}}}
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Type), alert.Title)
	text := fmt.Sprintf("%s\n\n%s\n\nAccount: %s\nRaised: %s\n", alert.Title, alert.Message, alert.AccountID,
		alert.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	html := "<p><strong>" + template.HTMLEscapeString(alert.Title) + "</strong></p><p>" +
		template.HTMLEscapeString(alert.Message) + "</p>"
	return s.deliver("alert", message, subject, text, html)
}

// deliver fans one notification out to every configured channel
func (s *Service) deliver(kind string, teams *TeamsMessage, subject, text, html string) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(teams); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s to Teams", kind)
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(subject, text, html); err != nil {
			logrus.Errorf("Failed to send %s email: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s via email", kind)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) sendEmail(subject, text, html string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func alertColor(kind string) string {
	switch kind {
	case "critical":
		return "d13438"
	case "urgent":
		return "ff8c00"
	default:
		return "0078d4"
	}
}

// usageLine renders "comment 3/50, connection_request 1/25, ..." in a stable order
func usageLine(usage map[models.ActionType]models.Usage) string {
	parts := make([]string, 0, len(models.AllActionTypes))
	for _, action := range models.AllActionTypes {
		u := usage[action]
		parts = append(parts, fmt.Sprintf("%s %d/%d", action, u.Used, u.Limit))
	}
	return strings.Join(parts, ", ")
}

// leadsLine renders lead counts per connection status
func leadsLine(leads map[models.ConnectionStatus]int) string {
	statuses := make([]string, 0, len(leads))
	for status := range leads {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%s %d", status, leads[models.ConnectionStatus(status)]))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func buildReportTeamsMessage(report *models.Report) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Outreach Digest - %s", report.Period),
		Text:    fmt.Sprintf("%d active accounts, generated %s", len(report.Accounts), report.GeneratedAt.Format("2006-01-02 15:04 UTC")),
	}

	for _, account := range report.Accounts {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: account.AccountName,
			Facts: []TeamsFact{
				{Name: "Usage", Value: usageLine(account.Usage)},
				{Name: "Leads", Value: leadsLine(account.Leads)},
				{Name: "Failures (24h)", Value: fmt.Sprintf("%d", account.Failures)},
			},
			Markdown: true,
		})
	}

	if len(report.Jobs) > 0 {
		var runs []string
		for _, run := range report.Jobs {
			runs = append(runs, fmt.Sprintf("**%s** %s: %d units, %d failures", run.Job, run.StartedAt.Format("15:04"), run.Units, run.Failures))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Recent job runs",
			ActivityText:  strings.Join(runs, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

const reportHTML = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Outreach Digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0a66c2; color: white; padding: 20px; border-radius: 5px; }
        .account { border-left: 4px solid #0a66c2; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .failing { border-left-color: #d13438; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Outreach Digest</h1>
        <p>{{.Period}} digest generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    {{range .Accounts}}
    <div class="account{{if .Failures}} failing{{end}}">
        <h2>{{.AccountName}}</h2>
        <p><strong>Usage:</strong> {{usage .Usage}}</p>
        <p><strong>Leads:</strong> {{leads .Leads}}</p>
        <p class="meta">Failures in the last 24h: {{.Failures}}</p>
    </div>
    {{end}}

    {{if .Jobs}}
    <h2>Recent job runs</h2>
    <ul>
    {{range .Jobs}}
        <li>{{.Job}} at {{.StartedAt.Format "15:04"}}: {{.Units}} units, {{.Failures}} failures{{if .FatalError}} ({{.FatalError}}){{end}}</li>
    {{end}}
    </ul>
    {{end}}

    <hr>
    <p><small>This digest was generated automatically by the outreach bot.</small></p>
</body>
</html>
`

func buildReportHTML(report *models.Report) (string, error) {
	t, err := template.New("email").Funcs(template.FuncMap{
		"usage": usageLine,
		"leads": leadsLine,
	}).Parse(reportHTML)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildReportText(report *models.Report) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Outreach Digest - %s\n", report.Period))
	text.WriteString(fmt.Sprintf("Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	for _, account := range report.Accounts {
		text.WriteString(fmt.Sprintf("\n%s\n", account.AccountName))
		text.WriteString(strings.Repeat("=", len(account.AccountName)) + "\n")
		text.WriteString(fmt.Sprintf("Usage: %s\n", usageLine(account.Usage)))
		text.WriteString(fmt.Sprintf("Leads: %s\n", leadsLine(account.Leads)))
		text.WriteString(fmt.Sprintf("Failures (24h): %d\n", account.Failures))
	}

	if len(report.Jobs) > 0 {
		text.WriteString("\nRECENT JOB RUNS\n")
		text.WriteString("===============\n")
		for _, run := range report.Jobs {
			text.WriteString(fmt.Sprintf("%s at %s: %d units, %d failures\n", run.Job, run.StartedAt.Format("15:04"), run.Units, run.Failures))
		}
	}

	text.WriteString("\n---\nThis digest was generated automatically by the outreach bot.\n")
	return text.String()
}
