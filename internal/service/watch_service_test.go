package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"classlive-be/internal/apperr"
	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/contract"
	"classlive-be/pkg/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitSession(t *testing.T, ch <-chan *entity.Session) *entity.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session notification")
		return nil
	}
}

func waitSessions(t *testing.T, ch <-chan []*entity.Session) []*entity.Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session list notification")
		return nil
	}
}

func TestSubscribeToSessionDeliversNilOnEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	ch := make(chan *entity.Session, 16)
	unsub, err := env.watch.SubscribeToSession(ctx, session.Id, func(s *entity.Session) {
		ch <- s
	})
	require.NoError(t, err)
	defer unsub()

	require.NotNil(t, waitSession(t, ch)) // snapshot

	require.NoError(t, env.repo.Delete(ctx, session.Id))
	assert.Nil(t, waitSession(t, ch))
}

func TestSubscribeToSessionMasksStaleActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	// Quiet past the inactivity policy but not yet reaped: the stored
	// status still says active, so liveness must be re-derived instead of
	// trusted.
	env.backdate(t, session.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-6 * time.Minute),
	})

	ch := make(chan *entity.Session, 16)
	unsub, err := env.watch.SubscribeToSession(ctx, session.Id, func(s *entity.Session) {
		ch <- s
	})
	require.NoError(t, err)
	defer unsub()

	assert.Nil(t, waitSession(t, ch))

	stored, err := env.repo.Get(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, stored.Status)
}

func TestSubscribeToSessionDeliversPausedState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	ch := make(chan *entity.Session, 16)
	unsub, err := env.watch.SubscribeToSession(ctx, session.Id, func(s *entity.Session) {
		ch <- s
	})
	require.NoError(t, err)
	defer unsub()

	require.NotNil(t, waitSession(t, ch)) // snapshot

	require.NoError(t, env.sessions.Pause(ctx, session.Id))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			require.NotNil(t, s, "paused session must stay visible")
			if s.Status == entity.SessionPaused {
				return
			}
		case <-deadline:
			t.Fatal("never observed the paused state")
		}
	}
}

func TestTeacherListSortedNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older := env.createSession(t, "teacher-1")
	newer := env.createSession(t, "teacher-1")
	env.backdate(t, older.Id, map[string]interface{}{
		"startTime": time.Now().Add(-time.Hour),
	})

	ch := make(chan []*entity.Session, 16)
	unsub, err := env.watch.SubscribeToTeacherSessions(ctx, "teacher-1", func(sessions []*entity.Session) {
		ch <- sessions
	})
	require.NoError(t, err)
	defer unsub()

	sessions := waitSessions(t, ch)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.Id, sessions[0].Id)
	assert.Equal(t, older.Id, sessions[1].Id)
}

func TestTeacherListExcludesEnded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.createSession(t, "teacher-1")

	ch := make(chan []*entity.Session, 16)
	unsub, err := env.watch.SubscribeToTeacherSessions(ctx, "teacher-1", func(sessions []*entity.Session) {
		ch <- sessions
	})
	require.NoError(t, err)
	defer unsub()

	require.Len(t, waitSessions(t, ch), 1)

	_, err = env.sessions.End(ctx, session.Id)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case sessions := <-ch:
			if len(sessions) == 0 {
				return
			}
		case <-deadline:
			t.Fatal("ended session never left the teacher list")
		}
	}
}

func TestStudentPickNewestJoinable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older := env.createSession(t, "teacher-1")
	newer := env.createSession(t, "teacher-2")
	require.NoError(t, env.membership.Join(ctx, older.Id, "s1", "Ayu"))
	require.NoError(t, env.membership.Join(ctx, newer.Id, "s1", "Ayu"))
	env.backdate(t, older.Id, map[string]interface{}{
		"startTime": time.Now().Add(-time.Hour),
	})

	ch := make(chan *entity.Session, 16)
	unsub, err := env.watch.SubscribeToStudentSessions(ctx, "s1", func(s *entity.Session) {
		ch <- s
	})
	require.NoError(t, err)
	defer unsub()

	picked := waitSession(t, ch)
	require.NotNil(t, picked)
	assert.Equal(t, newer.Id, picked.Id)
}

func TestStudentPickFiltersStaleSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.createSession(t, "teacher-1")
	require.NoError(t, env.membership.Join(ctx, session.Id, "s1", "Ayu"))

	// Quiet past the read-side window but not yet reaped: still active in
	// the store, but hidden from the student.
	env.backdate(t, session.Id, map[string]interface{}{
		"lastActivity": time.Now().Add(-11 * time.Minute),
	})

	ch := make(chan *entity.Session, 16)
	unsub, err := env.watch.SubscribeToStudentSessions(ctx, "s1", func(s *entity.Session) {
		ch <- s
	})
	require.NoError(t, err)
	defer unsub()

	assert.Nil(t, waitSession(t, ch))
}

func TestStudentPickNoSessions(t *testing.T) {
	env := newTestEnv(t)

	ch := make(chan *entity.Session, 16)
	unsub, err := env.watch.SubscribeToStudentSessions(context.Background(), "loner", func(s *entity.Session) {
		ch <- s
	})
	require.NoError(t, err)
	defer unsub()

	assert.Nil(t, waitSession(t, ch))
}

// flakyRepo fails listener setup a fixed number of times before delegating.
type flakyRepo struct {
	contract.SessionRepository
	failures int
	calls    int
}

func (r *flakyRepo) SubscribeOne(ctx context.Context, id string, fn func(*entity.Session)) (docstore.Unsubscribe, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, errors.New("listener unavailable")
	}
	return r.SessionRepository.SubscribeOne(ctx, id, fn)
}

func TestListenerSetupRetriesThenSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	flaky := &flakyRepo{SessionRepository: env.repo, failures: 2}
	watch := NewWatchService(flaky, env.reaper, testPolicy(), logger.NewNopLogger())

	ch := make(chan *entity.Session, 16)
	unsub, err := watch.SubscribeToSession(ctx, session.Id, func(s *entity.Session) {
		ch <- s
	})
	require.NoError(t, err)
	defer unsub()

	assert.Equal(t, 3, flaky.calls)
	require.NotNil(t, waitSession(t, ch))
}

func TestListenerSetupExhaustsAttempts(t *testing.T) {
	env := newTestEnv(t)

	flaky := &flakyRepo{SessionRepository: env.repo, failures: 100}
	watch := NewWatchService(flaky, env.reaper, testPolicy(), logger.NewNopLogger())

	_, err := watch.SubscribeToSession(context.Background(), "any", func(*entity.Session) {})
	require.Error(t, err)

	var setupErr *apperr.ListenerSetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, 3, setupErr.Attempts)
	assert.Equal(t, 3, flaky.calls)
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	unsub, err := env.watch.SubscribeToSession(ctx, session.Id, func(*entity.Session) {})
	require.NoError(t, err)

	unsub()
	unsub()
}
