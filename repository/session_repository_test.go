package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jansunwai/models"
)

func newSessionRepo(t *testing.T) (*SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionRepository(client), mr
}

func TestSessionRoundTrip(t *testing.T) {
	repo, _ := newSessionRepo(t)
	ctx := context.Background()

	missing, err := repo.Get(ctx, "whatsapp", "+919800000001")
	require.NoError(t, err)
	assert.Nil(t, missing)

	session := &models.ConversationSession{
		Channel:   "whatsapp",
		Address:   "+919800000001",
		CitizenID: 7,
		Phase:     models.PhaseAwaitingLocation,
		Draft:     models.ComplaintDraft{Description: "pothole on the road", Title: "pothole on the road"},
	}
	require.NoError(t, repo.Save(ctx, session, 30*time.Minute))

	loaded, err := repo.Get(ctx, "whatsapp", "+919800000001")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.PhaseAwaitingLocation, loaded.Phase)
	assert.Equal(t, "pothole on the road", loaded.Draft.Description)
	assert.EqualValues(t, 7, loaded.CitizenID)

	require.NoError(t, repo.Delete(ctx, "whatsapp", "+919800000001"))
	gone, err := repo.Get(ctx, "whatsapp", "+919800000001")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSessionExpiresWithTTL(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()

	session := &models.ConversationSession{Channel: "whatsapp", Address: "+919800000002", Phase: models.PhaseGreeting}
	require.NoError(t, repo.Save(ctx, session, time.Minute))

	mr.FastForward(61 * time.Second)
	loaded, err := repo.Get(ctx, "whatsapp", "+919800000002")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestAllowMessageWindow(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := repo.AllowMessage(ctx, "whatsapp", "+919800000003", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "message %d should pass", i+1)
	}
	ok, err := repo.AllowMessage(ctx, "whatsapp", "+919800000003", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A fresh window opens after the counter expires.
	mr.FastForward(61 * time.Second)
	ok, err = repo.AllowMessage(ctx, "whatsapp", "+919800000003", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Other addresses are unaffected.
	ok, err = repo.AllowMessage(ctx, "whatsapp", "+919800000004", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
