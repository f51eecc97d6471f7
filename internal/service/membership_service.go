package service

import (
	"context"
	"time"

	"classlive-be/internal/apperr"
	"classlive-be/internal/dto"
	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/contract"
	"classlive-be/internal/repository/memory"
	"classlive-be/pkg/events"
)

// IMembershipService handles student-side writes: join/leave transitions
// and per-student progress. Membership mutations ride the store's atomic
// set primitives so concurrent students never clobber each other.
type IMembershipService interface {
	Join(ctx context.Context, sessionId string, studentId, studentName string) error
	Leave(ctx context.Context, sessionId string, studentId, studentName string) error
	UpdateProgress(ctx context.Context, sessionId string, req *dto.UpdateProgressRequest) error
}

type membershipService struct {
	repo             contract.SessionRepository
	cache            memory.SessionCache
	presenceService  IPresenceService
	publisherService IPublisherService
	logger           logger.ILogger
}

func NewMembershipService(
	repo contract.SessionRepository,
	cache memory.SessionCache,
	presenceService IPresenceService,
	publisherService IPublisherService,
	log logger.ILogger,
) IMembershipService {
	return &membershipService{
		repo:             repo,
		cache:            cache,
		presenceService:  presenceService,
		publisherService: publisherService,
		logger:           log,
	}
}

// Join is a two-step protocol: an atomic set-union of the {id, name} pair,
// then a read-modify-write of this student's progress key. The union is
// idempotent for identical pairs, which is what makes re-join safe.
func (s *membershipService) Join(ctx context.Context, sessionId string, studentId, studentName string) error {
	if studentId == "" || studentName == "" {
		return &apperr.ValidationError{Field: "student", Reason: "id and name are required"}
	}

	session, err := s.repo.Get(ctx, sessionId)
	if err != nil {
		return err
	}
	if session.IsEnded() {
		return &apperr.SessionEndedError{SessionId: sessionId}
	}

	ref := entity.StudentRef{Id: studentId, Name: studentName}
	if err := s.repo.AddConnectedStudent(ctx, sessionId, ref); err != nil {
		return err
	}

	now := time.Now()
	progress, ok := session.StudentProgress[studentId]
	if !ok {
		progress = &entity.StudentProgress{
			CurrentSlide:  0,
			JoinedAt:      now,
			SlidesEngaged: []int{},
			Status:        entity.ProgressInProgress,
		}
		session.StudentProgress[studentId] = progress
	}
	progress.LastActivity = now
	progress.LeftAt = nil

	err = s.repo.UpdateFields(ctx, sessionId, map[string]interface{}{
		"studentProgress": session.StudentProgress,
		"lastActivity":    now,
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(sessionId)

	s.presenceService.SetInSession(ctx, studentId, sessionId)

	s.publish(ctx, events.NewSessionEvent(events.StudentJoined, sessionId, map[string]interface{}{
		"student_id":   studentId,
		"student_name": studentName,
	}))
	return nil
}

// Leave checks actual membership first: the removal primitive matches the
// exact {id, name} pair, so a stale cached name would silently no-op. A
// leave for a non-member is treated as success.
func (s *membershipService) Leave(ctx context.Context, sessionId string, studentId, studentName string) error {
	session, err := s.repo.Get(ctx, sessionId)
	if err != nil {
		return err
	}
	if session.IsEnded() {
		return &apperr.SessionEndedError{SessionId: sessionId}
	}

	// The student is leaving regardless of what the session thinks.
	defer s.presenceService.MarkOnline(ctx, studentId)

	if !session.HasStudent(studentId) {
		s.logger.Debug("MembershipService", "Leave for a non-member, treating as already removed", map[string]interface{}{
			"session_id": sessionId,
			"student_id": studentId,
		})
		return nil
	}

	ref := entity.StudentRef{Id: studentId, Name: studentName}
	if err := s.repo.RemoveConnectedStudent(ctx, sessionId, ref); err != nil {
		return err
	}

	now := time.Now()
	if progress, ok := session.StudentProgress[studentId]; ok && progress != nil {
		progress.LastActivity = now
		progress.LeftAt = &now
		err = s.repo.UpdateFields(ctx, sessionId, map[string]interface{}{
			"studentProgress": session.StudentProgress,
			"lastActivity":    now,
		})
	} else {
		err = s.repo.UpdateFields(ctx, sessionId, map[string]interface{}{
			"lastActivity": now,
		})
	}
	if err != nil {
		return err
	}
	s.cache.Invalidate(sessionId)

	s.publish(ctx, events.NewSessionEvent(events.StudentLeft, sessionId, map[string]interface{}{
		"student_id": studentId,
	}))
	return nil
}

// UpdateProgress merges one student's progress entry. Races between two
// updates for the same student resolve last-write-wins; different students
// touch disjoint keys and never collide.
func (s *membershipService) UpdateProgress(ctx context.Context, sessionId string, req *dto.UpdateProgressRequest) error {
	session, err := s.repo.Get(ctx, sessionId)
	if err != nil {
		return err
	}
	if session.IsEnded() {
		return &apperr.SessionEndedError{SessionId: sessionId}
	}

	now := time.Now()
	progress, ok := session.StudentProgress[req.StudentId]
	if !ok || progress == nil {
		progress = &entity.StudentProgress{
			JoinedAt:      now,
			SlidesEngaged: []int{},
			Status:        entity.ProgressInProgress,
		}
		session.StudentProgress[req.StudentId] = progress
	}
	progress.CurrentSlide = req.Slide
	progress.LastActivity = now

	engaged := false
	for _, slide := range progress.SlidesEngaged {
		if slide == req.Slide {
			engaged = true
			break
		}
	}
	if !engaged {
		progress.SlidesEngaged = append(progress.SlidesEngaged, req.Slide)
	}

	for key, value := range req.Extra {
		if key == "status" {
			if status, isStr := value.(string); isStr {
				progress.Status = status
			}
			continue
		}
		if progress.Metadata == nil {
			progress.Metadata = map[string]interface{}{}
		}
		progress.Metadata[key] = value
	}

	err = s.repo.UpdateFields(ctx, sessionId, map[string]interface{}{
		"studentProgress": session.StudentProgress,
		"lastActivity":    now,
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(sessionId)

	s.publish(ctx, events.NewSessionEvent(events.ProgressUpdated, sessionId, map[string]interface{}{
		"student_id": req.StudentId,
		"slide":      req.Slide,
	}))
	return nil
}

func (s *membershipService) publish(ctx context.Context, event events.Event) {
	if s.publisherService == nil {
		return
	}
	if err := s.publisherService.Publish(ctx, event); err != nil {
		s.logger.Warn("MembershipService", "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}
