package service

import (
	"context"
	"strconv"
	"time"

	"classlive-be/internal/apperr"
	"classlive-be/internal/dto"
	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/pkg/mailer"
	"classlive-be/internal/repository/contract"
	"classlive-be/internal/repository/memory"
	"classlive-be/pkg/events"

	"github.com/google/uuid"
)

// ISessionService owns the session's cursor, lock, and terminal transition.
// Only the owning teacher drives these operations; student-side writes go
// through IMembershipService.
type ISessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest) (*entity.Session, error)
	Get(ctx context.Context, id string) (*entity.Session, error)
	AdvanceSlide(ctx context.Context, id string, index int) error
	UnlockSlide(ctx context.Context, id string, index int) error
	SetLock(ctx context.Context, id string, locked bool) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	End(ctx context.Context, id string) (*entity.Session, error)
	SetTeacherNote(ctx context.Context, id string, slide int, note string) error
	PostChatMessage(ctx context.Context, id string, req *dto.ChatMessageRequest) (*entity.ChatMessage, error)
	RaiseHand(ctx context.Context, id string, studentId string) error
	LowerHand(ctx context.Context, id string, studentId string) error
}

type sessionService struct {
	repo             contract.SessionRepository
	cache            memory.SessionCache
	publisherService IPublisherService
	emailService     mailer.IEmailService
	teacherEmails    TeacherEmailLookup
	logger           logger.ILogger
}

// TeacherEmailLookup resolves a teacher id to a mailbox for the end-of-session
// summary. Nil result means no mail is sent.
type TeacherEmailLookup func(teacherId string) string

func NewSessionService(
	repo contract.SessionRepository,
	cache memory.SessionCache,
	publisherService IPublisherService,
	emailService mailer.IEmailService,
	teacherEmails TeacherEmailLookup,
	log logger.ILogger,
) ISessionService {
	return &sessionService{
		repo:             repo,
		cache:            cache,
		publisherService: publisherService,
		emailService:     emailService,
		teacherEmails:    teacherEmails,
		logger:           log,
	}
}

func (s *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest) (*entity.Session, error) {
	if req.TeacherId == "" {
		return nil, &apperr.ValidationError{Field: "teacherId", Reason: "required"}
	}
	if req.ClassId == "" {
		return nil, &apperr.ValidationError{Field: "classId", Reason: "required"}
	}
	if req.LessonId == "" {
		return nil, &apperr.ValidationError{Field: "lessonId", Reason: "required"}
	}

	now := time.Now()
	// Every collection field starts empty, never absent: consumers past the
	// repository boundary assume shape.
	session := &entity.Session{
		TeacherId:         req.TeacherId,
		ClassId:           req.ClassId,
		LessonId:          req.LessonId,
		LessonName:        req.LessonName,
		CurrentSlide:      0,
		UnlockedSlides:    []int{0},
		IsLocked:          false,
		Status:            entity.SessionActive,
		StartTime:         now,
		LastActivity:      now,
		ConnectedStudents: []entity.StudentRef{},
		StudentIds:        []string{},
		StudentProgress:   map[string]*entity.StudentProgress{},
		TeacherNotes:      map[string]string{},
		ChatMessages:      []entity.ChatMessage{},
		RaisedHands:       []string{},
	}

	id, err := s.repo.Create(ctx, session)
	if err != nil {
		return nil, err
	}
	s.cache.Put(session)

	s.publish(ctx, events.NewSessionEvent(events.SessionCreated, id, map[string]interface{}{
		"teacher_id": req.TeacherId,
		"lesson_id":  req.LessonId,
	}))
	s.logger.Info("SessionService", "Session created", map[string]interface{}{
		"session_id": id,
		"teacher_id": req.TeacherId,
	})
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*entity.Session, error) {
	if session, ok := s.cache.Get(id); ok {
		return session, nil
	}
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Put(session)
	return session, nil
}

func (s *sessionService) AdvanceSlide(ctx context.Context, id string, index int) error {
	session, err := s.loadMutable(ctx, id)
	if err != nil {
		return err
	}
	if !session.HasUnlocked(index) {
		// Advancing does not unlock; the teacher UI unlocks first for
		// progressive disclosure.
		s.logger.Warn("SessionService", "Advancing to a slide that is not unlocked", map[string]interface{}{
			"session_id": id,
			"slide":      index,
		})
	}

	err = s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"currentSlide": index,
		"lastActivity": time.Now(),
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(events.SlideAdvanced, id, map[string]interface{}{
		"slide": index,
	}))
	return nil
}

func (s *sessionService) UnlockSlide(ctx context.Context, id string, index int) error {
	session, err := s.loadMutable(ctx, id)
	if err != nil {
		return err
	}

	// Read-modify-write union. Only the owning teacher writes this field,
	// so the read/write window is single-writer; a duplicate unlock is
	// idempotent either way.
	if !session.HasUnlocked(index) {
		session.UnlockedSlides = append(session.UnlockedSlides, index)
	}

	err = s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"unlockedSlides": session.UnlockedSlides,
		"lastActivity":   time.Now(),
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(events.SlideUnlocked, id, map[string]interface{}{
		"slide": index,
	}))
	return nil
}

func (s *sessionService) SetLock(ctx context.Context, id string, locked bool) error {
	if _, err := s.loadMutable(ctx, id); err != nil {
		return err
	}

	err := s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"isLocked":     locked,
		"lastActivity": time.Now(),
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(events.LockChanged, id, map[string]interface{}{
		"locked": locked,
	}))
	return nil
}

func (s *sessionService) Pause(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, entity.SessionActive, entity.SessionPaused, events.SessionPaused)
}

func (s *sessionService) Resume(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, entity.SessionPaused, entity.SessionActive, events.SessionResumed)
}

func (s *sessionService) setStatus(ctx context.Context, id, from, to, eventType string) error {
	session, err := s.loadMutable(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != from {
		return &apperr.ValidationError{Field: "status", Reason: "session is " + session.Status + ", expected " + from}
	}

	err = s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"status":       to,
		"lastActivity": time.Now(),
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(eventType, id, nil))
	return nil
}

// End transitions the session to its terminal state and derives the
// attendance analytics exactly once. A second End returns the already-ended
// snapshot without recomputing anything.
func (s *sessionService) End(ctx context.Context, id string) (*entity.Session, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsEnded() {
		return session, nil
	}

	now := time.Now()
	duration := int64(now.Sub(session.StartTime).Seconds())

	finalAttendance := make([]entity.AttendanceRecord, 0, len(session.ConnectedStudents))
	for _, ref := range session.ConnectedStudents {
		record := entity.AttendanceRecord{StudentId: ref.Id, StudentName: ref.Name}
		if progress, ok := session.StudentProgress[ref.Id]; ok {
			record.TimeSpentSeconds = int64(now.Sub(progress.JoinedAt).Seconds())
		}
		finalAttendance = append(finalAttendance, record)
	}

	completed := 0
	for _, progress := range session.StudentProgress {
		if progress != nil && progress.Status == entity.ProgressCompleted {
			completed++
		}
	}
	completionRate := 0.0
	if len(session.StudentProgress) > 0 {
		completionRate = float64(completed) / float64(len(session.StudentProgress))
	}

	err = s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"status":          entity.SessionEnded,
		"endTime":         now,
		"durationSeconds": duration,
		"lastActivity":    now,
		"finalAttendance": finalAttendance,
		"attendanceCount": len(finalAttendance),
		"completionRate":  completionRate,
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(id)

	ended, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewSessionEvent(events.SessionEnded, id, map[string]interface{}{
		"attendance_count": len(finalAttendance),
		"completion_rate":  completionRate,
	}))
	s.logger.Info("SessionService", "Session ended", map[string]interface{}{
		"session_id": id,
		"duration_s": duration,
		"attendance": len(finalAttendance),
	})

	s.sendSummary(ended)
	return ended, nil
}

// sendSummary mails the teacher a recap. Best-effort: a mail failure never
// surfaces to the caller that ended the session.
func (s *sessionService) sendSummary(session *entity.Session) {
	if s.emailService == nil || s.teacherEmails == nil {
		return
	}
	email := s.teacherEmails(session.TeacherId)
	if email == "" {
		return
	}
	if err := s.emailService.SendSessionSummary(email, session); err != nil {
		s.logger.Warn("SessionService", "Failed to send session summary email", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
	}
}

func (s *sessionService) SetTeacherNote(ctx context.Context, id string, slide int, note string) error {
	session, err := s.loadMutable(ctx, id)
	if err != nil {
		return err
	}

	// Notes are written only by the owning teacher, so whole-map
	// read-modify-write is single-writer.
	session.TeacherNotes[strconv.Itoa(slide)] = note

	err = s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"teacherNotes": session.TeacherNotes,
		"lastActivity": time.Now(),
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(events.TeacherNoteSet, id, map[string]interface{}{
		"slide": slide,
	}))
	return nil
}

func (s *sessionService) PostChatMessage(ctx context.Context, id string, req *dto.ChatMessageRequest) (*entity.ChatMessage, error) {
	if _, err := s.loadMutable(ctx, id); err != nil {
		return nil, err
	}

	msg := entity.ChatMessage{
		Id:         uuid.New().String(),
		SenderId:   req.SenderId,
		SenderName: req.SenderName,
		Text:       req.Text,
		SentAt:     time.Now(),
	}
	if err := s.repo.AppendChatMessage(ctx, id, msg); err != nil {
		return nil, err
	}
	if err := s.touch(ctx, id); err != nil {
		return nil, err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(events.ChatMessagePosted, id, map[string]interface{}{
		"message_id": msg.Id,
		"sender_id":  msg.SenderId,
	}))
	return &msg, nil
}

func (s *sessionService) RaiseHand(ctx context.Context, id string, studentId string) error {
	if _, err := s.loadMutable(ctx, id); err != nil {
		return err
	}
	if err := s.repo.AddRaisedHand(ctx, id, studentId); err != nil {
		return err
	}
	if err := s.touch(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(events.HandRaised, id, map[string]interface{}{
		"student_id": studentId,
	}))
	return nil
}

func (s *sessionService) LowerHand(ctx context.Context, id string, studentId string) error {
	if _, err := s.loadMutable(ctx, id); err != nil {
		return err
	}
	if err := s.repo.RemoveRaisedHand(ctx, id, studentId); err != nil {
		return err
	}
	if err := s.touch(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)

	s.publish(ctx, events.NewSessionEvent(events.HandLowered, id, map[string]interface{}{
		"student_id": studentId,
	}))
	return nil
}

// loadMutable fetches a session and rejects terminal ones. Every mutating
// path goes through it.
func (s *sessionService) loadMutable(ctx context.Context, id string) (*entity.Session, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.IsEnded() {
		return nil, &apperr.SessionEndedError{SessionId: id}
	}
	return session, nil
}

func (s *sessionService) touch(ctx context.Context, id string) error {
	return s.repo.UpdateFields(ctx, id, map[string]interface{}{
		"lastActivity": time.Now(),
	})
}

func (s *sessionService) publish(ctx context.Context, event events.Event) {
	if s.publisherService == nil {
		return
	}
	if err := s.publisherService.Publish(ctx, event); err != nil {
		s.logger.Warn("SessionService", "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}
