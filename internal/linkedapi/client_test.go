package linkedapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// fakeProvider serves one workflow whose status responses are scripted
type fakeProvider struct {
	t          *testing.T
	submitted  atomic.Int32
	polls      atomic.Int32
	lastBody   atomic.Value
	submitCode int

	// submitDelay holds the submit response after the workflow is accepted
	submitDelay time.Duration
	statuses    []string
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	assert.Equal(f.t, "api-key", r.Header.Get("linked-api-token"))
	assert.Equal(f.t, "ident", r.Header.Get("identification-token"))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/workflows":
		f.submitted.Add(1)
		body, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(body))
		time.Sleep(f.submitDelay)
		if f.submitCode != 0 {
			w.WriteHeader(f.submitCode)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_, _ = w.Write([]byte(`{"workflowId":"wf-1"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/workflows/wf-1":
		n := int(f.polls.Add(1)) - 1
		if n >= len(f.statuses) {
			_, _ = w.Write([]byte(`{"status":"running"}`))
			return
		}
		_, _ = w.Write([]byte(f.statuses[n]))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeProvider, opts Options) *Client {
	f.t = t
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL
	opts.APIKey = "api-key"
	opts.PollInterval = time.Millisecond
	if opts.MaxPolls == 0 {
		opts.MaxPolls = 5
	}
	return NewClient("ident", opts)
}

func TestExecute_PollsUntilCompleted(t *testing.T) {
	f := &fakeProvider{statuses: []string{
		`{"status":"running"}`,
		`{"status":"completed","completion":{"success":true,"data":{"connectionStatus":"connected"}}}`,
	}}
	var succeeded atomic.Int32
	client := newTestClient(t, f, Options{OnSuccess: func() { succeeded.Add(1) }})

	status, err := client.CheckConnection(context.Background(), "https://www.linkedin.com/in/jane")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionConnected, status)
	assert.EqualValues(t, 2, f.polls.Load())
	assert.EqualValues(t, 1, succeeded.Load())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(f.lastBody.Load().(string)), &body))
	assert.Equal(t, ActionCheckConnectionStatus, body["workflow"].(map[string]interface{})["actionType"])
}

func TestExecute_FailedWorkflow(t *testing.T) {
	f := &fakeProvider{statuses: []string{`{"status":"failed","error":{"type":"personNotFound","message":"no such person"}}`}}
	client := newTestClient(t, f, Options{})

	err := client.SendMessage(context.Background(), "https://www.linkedin.com/in/jane", "hello")
	assert.ErrorIs(t, err, models.ErrWorkflow)
	assert.Contains(t, err.Error(), "no such person")
}

func TestExecute_TimesOutAfterMaxPolls(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f, Options{MaxPolls: 3})

	_, err := client.Execute(context.Background(), Workflow{"actionType": ActionSendMessage})
	assert.ErrorIs(t, err, models.ErrWorkflow)
	assert.Contains(t, err.Error(), "timed out")
	assert.EqualValues(t, 3, f.polls.Load())
}

func TestExecute_AuthErrorRunsHook(t *testing.T) {
	f := &fakeProvider{submitCode: http.StatusUnauthorized}
	var hooked atomic.Int32
	client := newTestClient(t, f, Options{OnAuthError: func(error) { hooked.Add(1) }})

	err := client.CommentOnPost(context.Background(), "https://www.linkedin.com/feed/update/urn:li:activity:1", "thanks!")
	assert.ErrorIs(t, err, models.ErrAuth)
	assert.EqualValues(t, 1, hooked.Load())
}

func TestExecute_ProviderRateLimit(t *testing.T) {
	f := &fakeProvider{submitCode: http.StatusTooManyRequests}
	var hooked atomic.Int32
	client := newTestClient(t, f, Options{OnAuthError: func(error) { hooked.Add(1) }})

	err := client.SendConnectionRequest(context.Background(), "https://www.linkedin.com/in/jane", "hi")
	assert.ErrorIs(t, err, models.ErrProviderRateLimited)
	assert.True(t, models.IsRetryable(err))
	assert.Zero(t, hooked.Load())
}

func TestExecute_ServerErrorIsWorkflowError(t *testing.T) {
	f := &fakeProvider{submitCode: http.StatusBadGateway}
	client := newTestClient(t, f, Options{})

	_, err := client.Execute(context.Background(), Workflow{"actionType": ActionSendMessage})
	assert.ErrorIs(t, err, models.ErrWorkflow)
}

func TestValidationHappensBeforeSubmit(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, client.SendMessage(ctx, "", "hello"), models.ErrValidation)
	assert.ErrorIs(t, client.SendMessage(ctx, "https://www.linkedin.com/in/jane", "   "), models.ErrValidation)
	_, err := client.GetPostComments(ctx, "not a url", 50)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorIs(t, client.ReactAndComment(ctx, "https://www.linkedin.com/feed/update/1", "angry", "hi"), models.ErrValidation)

	assert.Zero(t, f.submitted.Load())
}

func TestSendConnectionRequest_TruncatesNote(t *testing.T) {
	f := &fakeProvider{statuses: []string{`{"status":"completed","completion":{"success":true}}`}}
	client := newTestClient(t, f, Options{})

	long := ""
	for i := 0; i < 400; i++ {
		long += "é"
	}
	require.NoError(t, client.SendConnectionRequest(context.Background(), "https://www.linkedin.com/in/jane", long))

	var body struct {
		Workflow map[string]interface{} `json:"workflow"`
	}
	require.NoError(t, json.Unmarshal([]byte(f.lastBody.Load().(string)), &body))
	assert.Len(t, []rune(body.Workflow["note"].(string)), MaxNoteLength)
}

func TestSendMessage_ExplicitFailureFlag(t *testing.T) {
	f := &fakeProvider{statuses: []string{`{"status":"completed","completion":{"success":false,"error":"not connected"}}`}}
	client := newTestClient(t, f, Options{})

	err := client.SendMessage(context.Background(), "https://www.linkedin.com/in/jane", "hello")
	assert.ErrorIs(t, err, models.ErrWorkflow)
	assert.Contains(t, err.Error(), "not connected")
}

func TestExecute_ContextCancelled(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f, Options{MaxPolls: 1000})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Execute(ctx, Workflow{"actionType": ActionSendMessage})
	assert.ErrorIs(t, err, models.ErrWorkflow)
}

func TestExecute_SubmitTimeoutIsRetryableAndNotResubmitted(t *testing.T) {
	f := &fakeProvider{submitDelay: 200 * time.Millisecond}
	client := newTestClient(t, f, Options{Timeout: 20 * time.Millisecond})

	_, err := client.Execute(context.Background(), Workflow{"actionType": ActionSendMessage})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrWorkflow)
	assert.True(t, models.IsRetryable(err))
	assert.Equal(t, int32(1), f.submitted.Load(), "the client never resubmits on its own")
	assert.Equal(t, int32(0), f.polls.Load())
}
