// Package linkedapi talks to the workflow-based LinkedIn automation provider.
package linkedapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// DefaultBaseURL is the provider's public endpoint
const DefaultBaseURL = "https://api.linkedapi.io"

// Polling bounds: 60 polls two seconds apart, about two minutes per workflow
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 60
)

// Options configures a Client
type Options struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxPolls     int
	Timeout      time.Duration

	// OnAuthError runs when the provider rejects the identification token
	OnAuthError func(err error)
	// OnSuccess runs after every completed workflow
	OnSuccess func()
}

// Client executes workflows on behalf of one account
type Client struct {
	http         *resty.Client
	pollInterval time.Duration
	maxPolls     int
	onAuthError  func(err error)
	onSuccess    func()
}

// Ensure Client implements Automation
var _ Automation = (*Client)(nil)

type submitResponse struct {
	WorkflowID string `json:"workflowId"`
}

type statusResponse struct {
	Status     string          `json:"status"`
	Completion json.RawMessage `json:"completion"`
	Error      json.RawMessage `json:"error"`
}

// NewClient creates a client that identifies as the account owning identificationToken
func NewClient(identificationToken string, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultMaxPolls
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("linked-api-token", opts.APIKey).
		SetHeader("identification-token", identificationToken).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:         httpClient,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		onAuthError:  opts.OnAuthError,
		onSuccess:    opts.OnSuccess,
	}
}

// Execute submits a workflow and polls until it completes, fails or the poll
// budget runs out. Failures and timeouts come back as ErrWorkflow and are
// meant to be retried on a later tick, never in a loop here.
func (c *Client) Execute(ctx context.Context, workflow interface{}) (Completion, error) {
	var submitted submitResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"workflow": workflow}).
		SetResult(&submitted).
		Post("/workflows")
	if err != nil {
		// The provider takes no idempotency key. A submit that timed out may still
		// have been accepted, so retrying it on a later tick can repeat the action.
		// Sends are at-least-once; the lead and queue state only advance on a
		// confirmed completion.
		return Completion{}, fmt.Errorf("failed to submit workflow: %v: %w", err, models.ErrWorkflow)
	}
	if err := c.checkStatus(resp); err != nil {
		return Completion{}, err
	}
	if submitted.WorkflowID == "" {
		return Completion{}, fmt.Errorf("provider returned no workflow id: %w", models.ErrWorkflow)
	}

	logger := logrus.WithFields(logrus.Fields{"workflow_id": submitted.WorkflowID, "action": actionOf(workflow)})
	logger.Debug("Workflow submitted")

	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		if err := sleep(ctx, c.pollInterval); err != nil {
			return Completion{}, fmt.Errorf("workflow %s abandoned: %v: %w", submitted.WorkflowID, err, models.ErrWorkflow)
		}

		var status statusResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&status).
			Get("/workflows/" + submitted.WorkflowID)
		if err != nil {
			logger.WithError(err).Warn("Workflow status poll failed")
			continue
		}
		if err := c.checkStatus(resp); err != nil {
			return Completion{}, err
		}

		switch status.Status {
		case "completed":
			completion, err := decodeCompletion(status.Completion)
			if err != nil {
				return Completion{}, fmt.Errorf("%v: %w", err, models.ErrWorkflow)
			}
			if c.onSuccess != nil {
				c.onSuccess()
			}
			logger.WithField("polls", attempt).Debug("Workflow completed")
			return completion, nil
		case "failed":
			return Completion{}, fmt.Errorf("workflow %s failed: %s: %w", submitted.WorkflowID, errorText(status.Error), models.ErrWorkflow)
		}
	}

	return Completion{}, fmt.Errorf("workflow %s timed out after %d polls: %w", submitted.WorkflowID, c.maxPolls, models.ErrWorkflow)
}

// checkStatus maps HTTP failures onto the error taxonomy
func (c *Client) checkStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		err := fmt.Errorf("provider answered %d: %w", code, models.ErrAuth)
		if c.onAuthError != nil {
			c.onAuthError(err)
		}
		return err
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("provider answered %d: %w", code, models.ErrProviderRateLimited)
	case code >= 400:
		return fmt.Errorf("provider answered %d: %s: %w", code, truncate(resp.String(), 200), models.ErrWorkflow)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func actionOf(workflow interface{}) string {
	if wf, ok := workflow.(Workflow); ok {
		if s, ok := wf["actionType"].(string); ok {
			return s
		}
	}
	return "batch"
}

// errorText renders the provider's error field, which is either a string or an object
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "workflow failed"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var obj interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg := firstString(obj, []interface{}{"message"}, []interface{}{"type"}); msg != "" {
			return msg
		}
	}
	return truncate(string(raw), 200)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
