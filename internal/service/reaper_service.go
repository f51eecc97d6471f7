package service

import (
	"context"
	"time"

	"classlive-be/internal/config"
	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/contract"
	"classlive-be/pkg/events"
)

// IReaperService enforces the two liveness policies without a central
// scheduler: it runs opportunistically wherever sessions are read or
// listed. A session can therefore stay nominally active in storage for up
// to the policy window after the last reader stops checking, an accepted
// staleness window, not a bug.
type IReaperService interface {
	// CheckAndReap evaluates both policies against one session and ends it
	// if either triggers. Returns whether a reap occurred so callers know
	// to re-fetch.
	CheckAndReap(ctx context.Context, sessionId string) (bool, error)
	// CleanupAll reaps every policy-violating active session owned by a
	// teacher. Per-session failures are logged and skipped; one bad session
	// must not abort cleanup of the rest.
	CleanupAll(ctx context.Context, teacherId string) (int, error)
	// IsLive re-derives liveness from the policies, ignoring the stored
	// status, which may be stale between reaper passes.
	IsLive(session *entity.Session) bool
}

type reaperService struct {
	repo             contract.SessionRepository
	sessionService   ISessionService
	publisherService IPublisherService
	policy           config.SessionPolicy
	logger           logger.ILogger
}

func NewReaperService(
	repo contract.SessionRepository,
	sessionService ISessionService,
	publisherService IPublisherService,
	policy config.SessionPolicy,
	log logger.ILogger,
) IReaperService {
	return &reaperService{
		repo:             repo,
		sessionService:   sessionService,
		publisherService: publisherService,
		policy:           policy,
		logger:           log,
	}
}

func (s *reaperService) CheckAndReap(ctx context.Context, sessionId string) (bool, error) {
	session, err := s.repo.Get(ctx, sessionId)
	if err != nil {
		return false, err
	}
	return s.reap(ctx, session)
}

func (s *reaperService) reap(ctx context.Context, session *entity.Session) (bool, error) {
	if session.Status != entity.SessionActive {
		return false, nil
	}
	reason := s.violation(session)
	if reason == "" {
		return false, nil
	}

	if _, err := s.sessionService.End(ctx, session.Id); err != nil {
		return false, err
	}

	s.logger.Info("ReaperService", "Reaped stale session", map[string]interface{}{
		"session_id": session.Id,
		"reason":     reason,
	})
	s.publishReaped(ctx, session.Id, reason)
	return true, nil
}

func (s *reaperService) CleanupAll(ctx context.Context, teacherId string) (int, error) {
	sessions, err := s.repo.FindActiveByTeacher(ctx, teacherId)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, session := range sessions {
		ok, err := s.reap(ctx, session)
		if err != nil {
			s.logger.Error("ReaperService", "Failed to reap session during cleanup", map[string]interface{}{
				"session_id": session.Id,
				"error":      err.Error(),
			})
			continue
		}
		if ok {
			reaped++
		}
	}
	return reaped, nil
}

func (s *reaperService) IsLive(session *entity.Session) bool {
	if session.Status != entity.SessionActive {
		return false
	}
	return s.violation(session) == ""
}

// violation names the first policy the session breaks, or "" when live.
// Policy A: inactivity (teacher closed the tab without ending). Policy B:
// max duration, regardless of activity, to bound resource usage and avoid
// showing ancient sessions as joinable.
func (s *reaperService) violation(session *entity.Session) string {
	now := time.Now()
	if now.Sub(session.LastActivity) > s.policy.InactivityTimeout {
		return "inactivity"
	}
	if now.Sub(session.StartTime) > s.policy.MaxDuration {
		return "max_duration"
	}
	return ""
}

func (s *reaperService) publishReaped(ctx context.Context, sessionId, reason string) {
	if s.publisherService == nil {
		return
	}
	// Reaping already emits SESSION_ENDED through End; this extra event
	// lets attendance dashboards distinguish forced termination from a
	// teacher click.
	event := events.NewSessionEvent(events.SessionReaped, sessionId, map[string]interface{}{
		"reason": reason,
	})
	if err := s.publisherService.Publish(ctx, event); err != nil {
		s.logger.Warn("ReaperService", "Failed to publish reap event", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
	}
}
