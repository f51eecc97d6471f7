package service

import (
	"context"
	"testing"
	"time"

	"classlive-be/internal/apperr"
	"classlive-be/internal/entity"
	"classlive-be/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshSessionNotReaped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	reaped, err := env.reaper.CheckAndReap(ctx, session.Id)
	require.NoError(t, err)
	assert.False(t, reaped)

	got, err := env.sessions.Get(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, got.Status)
}

func TestInactiveSessionReaped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	env.backdate(t, session.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-6 * time.Minute),
	})

	reaped, err := env.reaper.CheckAndReap(ctx, session.Id)
	require.NoError(t, err)
	assert.True(t, reaped)

	got, err := env.sessions.Get(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionEnded, got.Status)
	assert.True(t, env.pub.has(events.SessionReaped))
}

func TestRecentActivityInsideWindowSurvives(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	env.backdate(t, session.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-4 * time.Minute),
	})

	reaped, err := env.reaper.CheckAndReap(ctx, session.Id)
	require.NoError(t, err)
	assert.False(t, reaped)
}

func TestMaxDurationReapedDespiteActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	// Recent activity, but the session started five hours ago.
	env.backdate(t, session.Id, map[string]interface{}{
		"startTime":    time.Now().Add(-5 * time.Hour),
		"lastActivity": time.Now(),
	})

	reaped, err := env.reaper.CheckAndReap(ctx, session.Id)
	require.NoError(t, err)
	assert.True(t, reaped)

	got, err := env.sessions.Get(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionEnded, got.Status)
}

func TestPausedSessionNotReaped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	require.NoError(t, env.sessions.Pause(ctx, session.Id))
	env.backdate(t, session.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-30 * time.Minute),
	})

	reaped, err := env.reaper.CheckAndReap(ctx, session.Id)
	require.NoError(t, err)
	assert.False(t, reaped)

	got, err := env.sessions.Get(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionPaused, got.Status)
}

func TestCheckAndReapMissingSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reaper.CheckAndReap(context.Background(), "does-not-exist")
	assert.True(t, apperr.IsNotFound(err))
}

func TestCleanupAllReapsOnlyViolators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale := env.createSession(t, "teacher-1")
	fresh := env.createSession(t, "teacher-1")
	other := env.createSession(t, "teacher-2")

	env.backdate(t, stale.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-10 * time.Minute),
	})
	env.backdate(t, other.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-10 * time.Minute),
	})

	reaped, err := env.reaper.CleanupAll(ctx, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, err := env.sessions.Get(ctx, stale.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionEnded, got.Status)

	got, err = env.sessions.Get(ctx, fresh.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, got.Status)

	// Another teacher's stale session is out of scope for this sweep.
	got, err = env.sessions.Get(ctx, other.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, got.Status)
}

func TestReapedSessionKeepsAttendance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	require.NoError(t, env.membership.Join(ctx, session.Id, "s1", "Ayu"))
	env.backdate(t, session.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-6 * time.Minute),
	})

	reaped, err := env.reaper.CheckAndReap(ctx, session.Id)
	require.NoError(t, err)
	require.True(t, reaped)

	// A reap is a forced End: the same attendance snapshot is derived.
	got, err := env.sessions.Get(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttendanceCount)
	require.Len(t, got.FinalAttendance, 1)
	assert.Equal(t, "s1", got.FinalAttendance[0].StudentId)
}
