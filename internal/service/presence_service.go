package service

import (
	"context"
	"time"

	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/contract"
)

// IPresenceService is best-effort online/offline signaling, decoupled from
// session membership. Every write swallows errors: presence must never
// crash a user-facing flow.
type IPresenceService interface {
	Heartbeat(ctx context.Context, userId, role string)
	MarkOnline(ctx context.Context, userId string)
	MarkOffline(ctx context.Context, userId string)
	SetInSession(ctx context.Context, userId, sessionId string)
	Get(ctx context.Context, userId string) (*entity.Presence, error)
	GetMany(ctx context.Context, userIds []string) ([]*entity.Presence, error)
}

type presenceService struct {
	repo   contract.PresenceRepository
	logger logger.ILogger
}

func NewPresenceService(repo contract.PresenceRepository, log logger.ILogger) IPresenceService {
	return &presenceService{repo: repo, logger: log}
}

// Heartbeat upserts the record to online. Clients re-send on a fixed
// interval and on tab-visibility-regained, so "online" really means "seen
// within the last heartbeat interval". Records are never expired server
// side; readers interpret staleness themselves.
func (s *presenceService) Heartbeat(ctx context.Context, userId, role string) {
	s.write(ctx, &entity.Presence{
		UserId:   userId,
		Status:   entity.PresenceOnline,
		LastSeen: timePtr(time.Now()),
		Metadata: map[string]interface{}{"role": role},
	})
}

func (s *presenceService) MarkOnline(ctx context.Context, userId string) {
	s.write(ctx, &entity.Presence{
		UserId:   userId,
		Status:   entity.PresenceOnline,
		LastSeen: timePtr(time.Now()),
	})
}

// MarkOffline is invoked on tab close/unload. Best-effort only: if the page
// dies without firing unload, the record stays at online until a reader
// notices the missing heartbeats.
func (s *presenceService) MarkOffline(ctx context.Context, userId string) {
	s.write(ctx, &entity.Presence{
		UserId:   userId,
		Status:   entity.PresenceOffline,
		LastSeen: timePtr(time.Now()),
	})
}

func (s *presenceService) SetInSession(ctx context.Context, userId, sessionId string) {
	s.write(ctx, &entity.Presence{
		UserId:   userId,
		Status:   entity.PresenceInLiveSession,
		LastSeen: timePtr(time.Now()),
		Metadata: map[string]interface{}{"session_id": sessionId},
	})
}

func (s *presenceService) Get(ctx context.Context, userId string) (*entity.Presence, error) {
	return s.repo.Get(ctx, userId)
}

func (s *presenceService) GetMany(ctx context.Context, userIds []string) ([]*entity.Presence, error) {
	return s.repo.GetMany(ctx, userIds)
}

func (s *presenceService) write(ctx context.Context, presence *entity.Presence) {
	if err := s.repo.Upsert(ctx, presence); err != nil {
		s.logger.Warn("PresenceService", "Failed to write presence record", map[string]interface{}{
			"user_id": presence.UserId,
			"status":  presence.Status,
			"error":   err.Error(),
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
