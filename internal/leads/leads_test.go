package leads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/storage/storagetest"
)

func TestCanTransition(t *testing.T) {
	all := []models.ConnectionStatus{
		models.ConnectionUnknown, models.ConnectionNotConnected, models.ConnectionPending, models.ConnectionConnected,
	}
	legal := map[[2]models.ConnectionStatus]bool{
		{models.ConnectionUnknown, models.ConnectionConnected}:      true,
		{models.ConnectionUnknown, models.ConnectionPending}:        true,
		{models.ConnectionUnknown, models.ConnectionNotConnected}:   true,
		{models.ConnectionNotConnected, models.ConnectionPending}:   true,
		{models.ConnectionNotConnected, models.ConnectionConnected}: true,
		{models.ConnectionPending, models.ConnectionConnected}:      true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]models.ConnectionStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestAllowedFrom_ReturnsCopy(t *testing.T) {
	from := AllowedFrom(models.ConnectionPending)
	from[0] = models.ConnectionConnected
	assert.False(t, CanTransition(models.ConnectionConnected, models.ConnectionPending))
}

func TestCanDMAndCanRequestConnection(t *testing.T) {
	assert.True(t, CanDM(models.Lead{ConnectionStatus: models.ConnectionConnected, DMStatus: models.DMNotSent}))
	assert.False(t, CanDM(models.Lead{ConnectionStatus: models.ConnectionConnected, DMStatus: models.DMSent}))
	assert.False(t, CanDM(models.Lead{ConnectionStatus: models.ConnectionPending, DMStatus: models.DMNotSent}))

	assert.True(t, CanRequestConnection(models.Lead{ConnectionStatus: models.ConnectionNotConnected}))
	assert.True(t, CanRequestConnection(models.Lead{ConnectionStatus: models.ConnectionUnknown}))
	assert.False(t, CanRequestConnection(models.Lead{ConnectionStatus: models.ConnectionPending}))
	assert.False(t, CanRequestConnection(models.Lead{ConnectionStatus: models.ConnectionConnected}))
}

func TestUpdateConnectionStatus_ConnectedIsSticky(t *testing.T) {
	store := storagetest.NewStore(t)
	ctx := context.Background()
	account := storagetest.SeedAccount(t, store, "Acme")
	seeded := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionPending)

	connectedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store).WithClock(func() time.Time { return connectedAt })

	lead, changed, err := svc.UpdateConnectionStatus(ctx, &seeded, models.ConnectionConnected)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.ConnectionConnected, lead.ConnectionStatus)

	svc.WithClock(func() time.Time { return connectedAt.Add(24 * time.Hour) })
	for _, to := range []models.ConnectionStatus{models.ConnectionNotConnected, models.ConnectionPending, models.ConnectionUnknown, models.ConnectionConnected} {
		lead, changed, err = svc.UpdateConnectionStatus(ctx, &seeded, to)
		require.NoError(t, err)
		assert.False(t, changed, to)
		assert.Equal(t, models.ConnectionConnected, lead.ConnectionStatus)
	}
	require.NotNil(t, lead.ConnectedAt)
	assert.True(t, lead.ConnectedAt.Equal(connectedAt), "connectedAt is stamped once")
}

func TestDiscover_ConvergesAndReflectsObservedStatus(t *testing.T) {
	store := storagetest.NewStore(t)
	ctx := context.Background()
	account := storagetest.SeedAccount(t, store, "Acme")
	post := storagetest.SeedPost(t, store, account.ID, "interested")
	svc := NewService(store)

	seed := models.Lead{
		AccountID:     account.ID,
		LinkedInURL:   "https://www.linkedin.com/in/jordan",
		Name:          "Jordan Lee",
		PostID:        &post.ID,
		SourceKeyword: "interested",
	}

	first, err := svc.Discover(ctx, seed, models.ConnectionNotConnected)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionNotConnected, first.ConnectionStatus)

	second, err := svc.Discover(ctx, seed, models.ConnectionConnected)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.ConnectionConnected, second.ConnectionStatus)

	third, err := svc.Discover(ctx, seed, models.ConnectionUnknown)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionConnected, third.ConnectionStatus)
}

func TestMarkDMSent_Monotonic(t *testing.T) {
	store := storagetest.NewStore(t)
	ctx := context.Background()
	account := storagetest.SeedAccount(t, store, "Acme")
	lead := storagetest.SeedLead(t, store, account.ID, nil, models.ConnectionConnected)
	svc := NewService(store)

	ok, err := svc.MarkDMSent(ctx, lead.ID, "hello")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.MarkDMSent(ctx, lead.ID, "hello again")
	require.NoError(t, err)
	assert.False(t, ok)
}
