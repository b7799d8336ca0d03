package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/dispatch"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi/linkedapitest"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
	"github.com/palma21/linkedin-outreach-bot/internal/storage/storagetest"
)

type staticGenerator struct {
	text string
	err  error
}

func (g staticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.text, g.err
}

func newDispatcher(store *storage.GormStore, writer *ai.Writer) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Deps{
		Store:    store,
		Leads:    leads.NewService(store),
		Limiter:  ratelimit.NewLimiter(store),
		Delayer:  pacing.NoDelay{},
		Gate:     pacing.NewAccountGate(),
		Writer:   writer,
		Activity: activity.NewLogger(store),
	})
}

func TestSendConnectionRequest_ConcurrentCallsSubmitOnce(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Founder")
	post := storagetest.SeedPost(t, store, account.ID, "guide")
	lead := storagetest.SeedLead(t, store, account.ID, &post.ID, models.ConnectionNotConnected)

	client := &linkedapitest.MockAutomation{}
	client.On("SendConnectionRequest", mock.Anything, lead.LinkedInURL, mock.Anything).Return(nil)

	d := newDispatcher(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make([]dispatch.Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := d.SendConnectionRequest(ctx, models.DefaultSettings(), client, lead.ID)
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	client.AssertNumberOfCalls(t, "SendConnectionRequest", 1)
	assert.ElementsMatch(t, []dispatch.Outcome{dispatch.OutcomeSent, dispatch.OutcomeNoop}, outcomes)

	stored, err := store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, stored.ConnectionStatus)
	assert.NotNil(t, stored.ConnectionSentAt)

	count, err := store.GetActionCount(ctx, account.ID, models.ActionConnectionRequest, ratelimit.NewLimiter(store).Today())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSendConnectionRequest_QuotaExhausted(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Founder")
	lead := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionUnknown)

	settings := models.DefaultSettings()
	settings.MaxDailyConnections = 1
	limiter := ratelimit.NewLimiter(store)
	require.NoError(t, limiter.RecordAction(context.Background(), ratelimit.LimitsFrom(settings), account.ID, models.ActionConnectionRequest))

	client := &linkedapitest.MockAutomation{}
	_, err := newDispatcher(store, nil).SendConnectionRequest(context.Background(), settings, client, lead.ID)

	assert.ErrorIs(t, err, models.ErrQuotaExhausted)
	assert.True(t, models.IsSkip(err))
	client.AssertNotCalled(t, "SendConnectionRequest", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendConnectionRequest_ConnectedLeadIsNoop(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Founder")
	lead := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionConnected)

	client := &linkedapitest.MockAutomation{}
	out, err := newDispatcher(store, nil).SendConnectionRequest(context.Background(), models.DefaultSettings(), client, lead.ID)

	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeNoop, out)
	client.AssertExpectations(t)
}

func TestSendConnectionRequest_FailureLeavesLeadUntouched(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Founder")
	lead := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionNotConnected)

	client := &linkedapitest.MockAutomation{}
	client.On("SendConnectionRequest", mock.Anything, lead.LinkedInURL, mock.Anything).Return(models.ErrWorkflow)

	_, err := newDispatcher(store, nil).SendConnectionRequest(context.Background(), models.DefaultSettings(), client, lead.ID)
	assert.ErrorIs(t, err, models.ErrWorkflow)

	stored, err := store.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionNotConnected, stored.ConnectionStatus)
}

func TestBuildConnectionNote(t *testing.T) {
	lead := models.Lead{Name: "Dana Whitfield"}

	note := dispatch.BuildConnectionNote(lead, &models.MonitoredPost{PostTitle: "cold outreach"})
	assert.Equal(t, "Hi Dana, saw your comment on my post about cold outreach. Would love to connect!", note)

	note = dispatch.BuildConnectionNote(lead, &models.MonitoredPost{})
	assert.Contains(t, note, "a topic I shared")

	long := dispatch.BuildConnectionNote(lead, &models.MonitoredPost{PostTitle: strings.Repeat("pipeline ", 50)})
	assert.LessOrEqual(t, len([]rune(long)), 300)
}

func TestSendDM_TextPrecedence(t *testing.T) {
	edited := "Edited by hand"
	tests := []struct {
		name     string
		queued   string
		edited   *string
		writer   *ai.Writer
		template string
		want     string
		source   dispatch.TextSource
	}{
		{name: "edited beats everything", queued: "Queued text", edited: &edited, writer: ai.NewWriter(staticGenerator{text: "AI text"}), template: "Hi {name}", want: edited, source: dispatch.SourceEdited},
		{name: "queued beats fresh generation", queued: "Queued text", writer: ai.NewWriter(staticGenerator{text: "AI text"}), template: "Hi {name}", want: "Queued text", source: dispatch.SourceQueued},
		{name: "ai beats template", writer: ai.NewWriter(staticGenerator{text: "AI text"}), template: "Hi {name}", want: "AI text", source: dispatch.SourceAI},
		{name: "failed generation falls back to template", writer: ai.NewWriter(staticGenerator{err: errors.New("boom")}), template: "Hi {name}", want: "Hi Dana", source: dispatch.SourceTemplate},
		{name: "template without ai", template: "Hello {full_name}", want: "Hello Dana Whitfield", source: dispatch.SourceTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storagetest.NewStore(t)
			account := storagetest.SeedAccount(t, store, "Founder")
			post := storagetest.SeedPost(t, store, account.ID, "guide")
			lead := storagetest.SeedLead(t, store, account.ID, &post.ID, models.ConnectionConnected)
			ctx := context.Background()

			if tt.queued != "" {
				dm, _, err := store.FindOrCreatePendingDM(ctx, lead.ID, tt.queued)
				require.NoError(t, err)
				if tt.edited != nil {
					require.NoError(t, store.UpdatePendingDM(ctx, dm.ID, dm.Message, tt.edited))
				}
			}

			settings := models.DefaultSettings()
			settings.DefaultDMTemplate = tt.template

			client := &linkedapitest.MockAutomation{}
			client.On("SendMessage", mock.Anything, lead.LinkedInURL, tt.want).Return(nil).Once()

			d := newDispatcher(store, tt.writer)
			preview, err := d.PreviewDM(ctx, settings, lead.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.source, preview.Source)

			out, err := d.SendDM(ctx, settings, client, lead.ID)
			require.NoError(t, err)
			assert.Equal(t, dispatch.OutcomeSent, out)
			client.AssertExpectations(t)

			stored, err := store.GetLead(ctx, lead.ID)
			require.NoError(t, err)
			assert.Equal(t, models.DMSent, stored.DMStatus)
			assert.Equal(t, tt.want, stored.DMText)
			assert.True(t, stored.CTASent)

			open, err := store.FindPendingDM(ctx, lead.ID)
			require.NoError(t, err)
			assert.Nil(t, open)
		})
	}
}

func TestSendDM_NoTextSourceIsConfigurationSkip(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Founder")
	lead := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionConnected)

	client := &linkedapitest.MockAutomation{}
	_, err := newDispatcher(store, nil).SendDM(context.Background(), models.DefaultSettings(), client, lead.ID)

	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.True(t, models.IsSkip(err))
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDM_NotConnectedIsNoop(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Founder")
	lead := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionPending)

	client := &linkedapitest.MockAutomation{}
	settings := models.DefaultSettings()
	settings.DefaultDMTemplate = "Hi {name}"

	out, err := newDispatcher(store, nil).SendDM(context.Background(), settings, client, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, dispatch.OutcomeNoop, out)
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDM_FailureMarksQueuedDMFailed(t *testing.T) {
	store := storagetest.NewStore(t)
	account := storagetest.SeedAccount(t, store, "Founder")
	lead := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionConnected)
	ctx := context.Background()

	dm, _, err := store.FindOrCreatePendingDM(ctx, lead.ID, "Queued text")
	require.NoError(t, err)

	client := &linkedapitest.MockAutomation{}
	client.On("SendMessage", mock.Anything, lead.LinkedInURL, "Queued text").Return(models.ErrWorkflow)

	_, err = newDispatcher(store, nil).SendDM(ctx, models.DefaultSettings(), client, lead.ID)
	assert.ErrorIs(t, err, models.ErrWorkflow)

	stored, err := store.GetPendingDM(ctx, dm.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueFailed, stored.Status)
	assert.NotEmpty(t, stored.LastError)

	lead2, err := store.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DMNotSent, lead2.DMStatus)

	sendable, err := store.ListSendablePendingDMs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sendable, 1)
	assert.Equal(t, dm.ID, sendable[0].ID)
}
