package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/dispatch"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi/linkedapitest"
	"github.com/palma21/linkedin-outreach-bot/internal/matcher"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/poller"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/scheduler"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
	"github.com/palma21/linkedin-outreach-bot/internal/storage/storagetest"
)

type testServer struct {
	store   *storage.GormStore
	clients *linkedapitest.Source
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	store := storagetest.NewStore(t)
	clients := linkedapitest.NewSource(map[string]linkedapi.Automation{})

	leadService := leads.NewService(store)
	limiter := ratelimit.NewLimiter(store)
	log := activity.NewLogger(store)
	d := dispatch.New(dispatch.Deps{
		Store:    store,
		Leads:    leadService,
		Limiter:  limiter,
		Activity: log,
	})
	p := poller.NewPoller(store, clients, matcher.NewMatcher(store, nil), leadService, d, pacing.NoDelay{}, log)
	jobs := scheduler.NewJobs(scheduler.Deps{
		Store:      store,
		Clients:    clients,
		Poller:     p,
		Dispatcher: d,
		Leads:      leadService,
		Limiter:    limiter,
		Delayer:    pacing.NoDelay{},
		Activity:   log,
		Archive:    storage.NewMemoryArchive(),
	})

	h := NewHandler(Deps{
		Store:      store,
		Clients:    clients,
		Poller:     p,
		Dispatcher: d,
		Leads:      leadService,
		Limiter:    limiter,
		Jobs:       jobs,
	})
	return &testServer{store: store, clients: clients, handler: h.Router()}
}

func (s *testServer) client(accountID string) *linkedapitest.MockAutomation {
	c := &linkedapitest.MockAutomation{}
	s.clients.Clients[accountID] = c
	return c
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestCheckConnection_UpdatesLead(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	lead := storagetest.SeedLead(t, s.store, account.ID, nil, models.ConnectionPending)
	client := s.client(account.ID)
	client.On("CheckConnection", mock.Anything, lead.LinkedInURL).Return(models.ConnectionConnected, nil)

	rec := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/check-connection", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Changed bool        `json:"changed"`
		Lead    models.Lead `json:"lead"`
	}
	decode(t, rec, &body)
	assert.True(t, body.Changed)
	assert.Equal(t, models.ConnectionConnected, body.Lead.ConnectionStatus)

	stored, err := s.store.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionConnected, stored.ConnectionStatus)
	assert.NotNil(t, stored.LastCheckedAt)
}

func TestSendConnection(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	lead := storagetest.SeedLead(t, s.store, account.ID, nil, models.ConnectionNotConnected)
	client := s.client(account.ID)
	client.On("SendConnectionRequest", mock.Anything, lead.LinkedInURL, mock.AnythingOfType("string")).Return(nil).Once()

	rec := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/send-connection", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body outcomeResponse
	decode(t, rec, &body)
	assert.Equal(t, dispatch.OutcomeSent, body.Outcome)

	rec = s.do(t, http.MethodPost, "/leads/"+lead.ID+"/send-connection", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, dispatch.OutcomeNoop, body.Outcome)
	client.AssertExpectations(t)
}

func TestSendConnection_QuotaExhausted(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	lead := storagetest.SeedLead(t, s.store, account.ID, nil, models.ConnectionNotConnected)
	client := s.client(account.ID)

	settings := models.DefaultSettings()
	settings.MaxDailyConnections = 1
	storagetest.SaveSettings(t, s.store, settings)
	limiter := ratelimit.NewLimiter(s.store)
	require.NoError(t, limiter.RecordAction(context.Background(), ratelimit.LimitsFrom(settings), account.ID, models.ActionConnectionRequest))

	rec := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/send-connection", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	client.AssertNotCalled(t, "SendConnectionRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDM_WithoutTextSource(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	lead := storagetest.SeedLead(t, s.store, account.ID, nil, models.ConnectionConnected)
	s.client(account.ID)

	rec := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/send-dm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendDM_AuthFailure(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	lead := storagetest.SeedLead(t, s.store, account.ID, nil, models.ConnectionConnected)
	settings := models.DefaultSettings()
	settings.DefaultDMTemplate = "Hi {name}"
	storagetest.SaveSettings(t, s.store, settings)

	client := s.client(account.ID)
	client.On("SendMessage", mock.Anything, lead.LinkedInURL, "Hi Dana").Return(fmt.Errorf("send message: %w", models.ErrAuth))

	rec := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/send-dm", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQueueAndEditPendingDM(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	lead := storagetest.SeedLead(t, s.store, account.ID, nil, models.ConnectionPending)
	settings := models.DefaultSettings()
	settings.DefaultDMTemplate = "Hi {name}, thanks for connecting"
	storagetest.SaveSettings(t, s.store, settings)

	rec := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/queue-dm", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dm models.PendingDM
	decode(t, rec, &dm)

	rec = s.do(t, http.MethodPost, "/leads/"+lead.ID+"/queue-dm", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, "/pending-dms/"+dm.ID, textRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/pending-dms/"+dm.ID, textRequest{Text: "Hey Dana, the guide is attached"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/leads/"+lead.ID+"/preview-dm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var preview dispatch.DMText
	decode(t, rec, &preview)
	assert.Equal(t, "Hey Dana, the guide is attached", preview.Text)
	assert.Equal(t, dispatch.SourceEdited, preview.Source)

	rec = s.do(t, http.MethodPost, "/pending-dms/"+dm.ID+"/reject", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMarkSent(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	lead := storagetest.SeedLead(t, s.store, account.ID, nil, models.ConnectionConnected)

	rec := s.do(t, http.MethodPost, "/leads/"+lead.ID+"/mark-sent", textRequest{Text: "sent from my phone"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/leads/"+lead.ID+"/mark-sent", textRequest{Text: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/leads/"+lead.ID+"/mark-sent", bytes.NewBufferString("{"))
	bad := httptest.NewRecorder()
	s.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestUnknownEntities(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/leads/missing/send-dm",
		"/posts/missing/poll",
		"/pending-replies/missing/send",
		"/jobs/not_a_job/run",
	} {
		rec := s.do(t, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestUsage(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	limiter := ratelimit.NewLimiter(s.store)
	limits := ratelimit.LimitsFrom(models.DefaultSettings())
	require.NoError(t, limiter.RecordAction(context.Background(), limits, account.ID, models.ActionComment))

	rec := s.do(t, http.MethodGet, "/accounts/"+account.ID+"/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Day   string                             `json:"day"`
		Usage map[models.ActionType]models.Usage `json:"usage"`
	}
	decode(t, rec, &body)
	assert.Equal(t, limiter.Today(), body.Day)
	assert.Equal(t, models.Usage{Used: 1, Limit: models.DefaultMaxDailyComments}, body.Usage[models.ActionComment])
}

func TestPollPost(t *testing.T) {
	s := newTestServer(t)
	account := storagetest.SeedAccount(t, s.store, "Founder")
	post := storagetest.SeedPost(t, s.store, account.ID, "guide")
	client := s.client(account.ID)
	client.On("GetPostComments", mock.Anything, post.PostURL, poller.CommentBatch).Return([]linkedapi.Comment{
		{CommenterURL: "https://www.linkedin.com/in/reader", CommenterName: "Reader", Text: "nice"},
	}, nil)

	rec := s.do(t, http.MethodPost, "/posts/"+post.ID+"/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result poller.Result
	decode(t, rec, &result)
	assert.Equal(t, 1, result.CommentsFound)
	assert.Equal(t, 0, result.MatchesFound)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrAuth), http.StatusUnauthorized},
		{models.ErrNoCredential, http.StatusUnauthorized},
		{models.ErrProviderRateLimited, http.StatusTooManyRequests},
		{models.ErrWorkflow, http.StatusBadGateway},
		{models.ErrValidation, http.StatusBadRequest},
		{models.ErrConfiguration, http.StatusBadRequest},
		{models.ErrQuotaExhausted, http.StatusConflict},
		{models.ErrInvalidState, http.StatusConflict},
		{models.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
