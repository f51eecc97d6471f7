package service

import (
	"context"
	"testing"

	"classlive-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceDefaultsToOffline(t *testing.T) {
	env := newTestEnv(t)

	presence, err := env.presence.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, "never-seen", presence.UserId)
	assert.Equal(t, entity.PresenceOffline, presence.Status)
	// No record means no last-seen timestamp, not a zero time.
	assert.Nil(t, presence.LastSeen)
}

func TestHeartbeatMarksOnline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.presence.Heartbeat(ctx, "u1", "teacher")

	presence, err := env.presence.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceOnline, presence.Status)
	require.NotNil(t, presence.LastSeen)
	assert.Equal(t, "teacher", presence.Metadata["role"])
}

func TestHeartbeatOverwritesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.presence.Heartbeat(ctx, "u1", "student")
	first, err := env.presence.Get(ctx, "u1")
	require.NoError(t, err)

	env.presence.Heartbeat(ctx, "u1", "student")
	second, err := env.presence.Get(ctx, "u1")
	require.NoError(t, err)

	require.NotNil(t, second.LastSeen)
	assert.False(t, second.LastSeen.Before(*first.LastSeen))
}

func TestMarkOfflineAfterHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.presence.Heartbeat(ctx, "u1", "student")
	env.presence.MarkOffline(ctx, "u1")

	presence, err := env.presence.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceOffline, presence.Status)
}

func TestSetInSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.presence.SetInSession(ctx, "u1", "session-1")

	presence, err := env.presence.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceInLiveSession, presence.Status)
	assert.Equal(t, "session-1", presence.Metadata["session_id"])
}

func TestGetManyOverlaysKnownRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.presence.Heartbeat(ctx, "u1", "student")

	records, err := env.presence.GetMany(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	require.Len(t, records, 3)

	byId := map[string]*entity.Presence{}
	for _, r := range records {
		byId[r.UserId] = r
	}
	assert.Equal(t, entity.PresenceOnline, byId["u1"].Status)
	assert.Equal(t, entity.PresenceOffline, byId["u2"].Status)
	assert.Nil(t, byId["u2"].LastSeen)
	assert.Equal(t, entity.PresenceOffline, byId["u3"].Status)
}
