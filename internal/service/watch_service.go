package service

import (
	"context"
	"sort"
	"time"

	"classlive-be/internal/apperr"
	"classlive-be/internal/config"
	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/contract"
	"classlive-be/pkg/docstore"
)

// IWatchService turns store-level change streams into typed session events
// for UI subscribers. Documents are already shape-normalized by the
// repository before they reach any callback.
type IWatchService interface {
	// SubscribeToSession delivers every observed state of one session, nil
	// when the document is deleted ("session ended, stop rendering").
	SubscribeToSession(ctx context.Context, sessionId string, fn func(*entity.Session)) (docstore.Unsubscribe, error)
	// SubscribeToTeacherSessions delivers the teacher's active sessions,
	// re-sorted by start time descending on every change.
	SubscribeToTeacherSessions(ctx context.Context, teacherId string, fn func([]*entity.Session)) (docstore.Unsubscribe, error)
	// SubscribeToStudentSessions delivers the most recently started session
	// the student belongs to, or nil when there is none, or when the
	// freshest match has gone quiet past the read-side staleness window.
	SubscribeToStudentSessions(ctx context.Context, studentId string, fn func(*entity.Session)) (docstore.Unsubscribe, error)
}

// SessionLiveness re-derives whether a session is live from the reap
// policies instead of trusting the stored status. IReaperService satisfies
// it.
type SessionLiveness interface {
	IsLive(session *entity.Session) bool
}

type watchService struct {
	repo     contract.SessionRepository
	liveness SessionLiveness
	policy   config.SessionPolicy
	logger   logger.ILogger
}

func NewWatchService(repo contract.SessionRepository, liveness SessionLiveness, policy config.SessionPolicy, log logger.ILogger) IWatchService {
	return &watchService{
		repo:     repo,
		liveness: liveness,
		policy:   policy,
		logger:   log,
	}
}

func (s *watchService) SubscribeToSession(ctx context.Context, sessionId string, fn func(*entity.Session)) (docstore.Unsubscribe, error) {
	return s.withRetry(ctx, "session "+sessionId, func() (docstore.Unsubscribe, error) {
		return s.repo.SubscribeOne(ctx, sessionId, func(session *entity.Session) {
			fn(s.maskStale(session))
		})
	})
}

// maskStale suppresses a session the reaper has not caught up with yet: the
// stored status still says active, but re-deriving the policies says dead.
// Subscribers get nil, the same signal as deletion. Paused and ended states
// pass through so the UI can render them.
func (s *watchService) maskStale(session *entity.Session) *entity.Session {
	if session == nil || session.Status != entity.SessionActive {
		return session
	}
	if !s.liveness.IsLive(session) {
		return nil
	}
	return session
}

func (s *watchService) SubscribeToTeacherSessions(ctx context.Context, teacherId string, fn func([]*entity.Session)) (docstore.Unsubscribe, error) {
	return s.withRetry(ctx, "teacher "+teacherId, func() (docstore.Unsubscribe, error) {
		return s.repo.SubscribeActiveByTeacher(ctx, teacherId, func(sessions []*entity.Session) {
			// The store gives no ordering for this query shape; sort
			// client-side, newest first.
			sort.Slice(sessions, func(i, j int) bool {
				return sessions[i].StartTime.After(sessions[j].StartTime)
			})
			fn(sessions)
		})
	})
}

func (s *watchService) SubscribeToStudentSessions(ctx context.Context, studentId string, fn func(*entity.Session)) (docstore.Unsubscribe, error) {
	return s.withRetry(ctx, "student "+studentId, func() (docstore.Unsubscribe, error) {
		return s.repo.SubscribeActiveByStudent(ctx, studentId, func(sessions []*entity.Session) {
			fn(s.pickJoinable(sessions))
		})
	})
}

// pickJoinable selects the most recently started match, then applies the
// read-side staleness filter: showing a dead "join now" prompt is worse
// than occasionally hiding a borderline-live session. This threshold is
// intentionally independent from the reaper's write-side policy.
func (s *watchService) pickJoinable(sessions []*entity.Session) *entity.Session {
	if len(sessions) == 0 {
		return nil
	}
	newest := sessions[0]
	for _, session := range sessions[1:] {
		if session.StartTime.After(newest.StartTime) {
			newest = session
		}
	}
	if time.Since(newest.LastActivity) > s.policy.StudentListStaleness {
		return nil
	}
	return newest
}

// withRetry attempts listener setup with exponential backoff. After the
// bounded attempts are exhausted the caller gets a ListenerSetupError and
// the UI degrades to no live updates rather than crashing.
func (s *watchService) withRetry(ctx context.Context, target string, setup func() (docstore.Unsubscribe, error)) (docstore.Unsubscribe, error) {
	backoff := s.policy.ListenerBaseBackoff
	maxAttempts := s.policy.ListenerMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		unsubscribe, err := setup()
		if err == nil {
			return unsubscribe, nil
		}
		lastErr = err

		s.logger.Warn("WatchService", "Listener setup failed, backing off", map[string]interface{}{
			"target":  target,
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return nil, &apperr.ListenerSetupError{Target: target, Attempts: attempt, Err: ctx.Err()}
		}
	}
	return nil, &apperr.ListenerSetupError{Target: target, Attempts: maxAttempts, Err: lastErr}
}
