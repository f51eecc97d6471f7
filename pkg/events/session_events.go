package events

import "time"

const (
	SessionCreated    = "SESSION_CREATED"
	SessionEnded      = "SESSION_ENDED"
	SessionPaused     = "SESSION_PAUSED"
	SessionResumed    = "SESSION_RESUMED"
	SlideAdvanced     = "SLIDE_ADVANCED"
	SlideUnlocked     = "SLIDE_UNLOCKED"
	LockChanged       = "SESSION_LOCK_CHANGED"
	StudentJoined     = "STUDENT_JOINED"
	StudentLeft       = "STUDENT_LEFT"
	ProgressUpdated   = "STUDENT_PROGRESS_UPDATED"
	TeacherNoteSet    = "TEACHER_NOTE_SET"
	ChatMessagePosted = "CHAT_MESSAGE_POSTED"
	HandRaised        = "HAND_RAISED"
	HandLowered       = "HAND_LOWERED"
	SessionReaped     = "SESSION_REAPED"
)

// NewSessionEvent builds a session-scoped event. Every payload carries the
// session id so consumers (websocket notifier, analytics) can route without
// parsing the subject.
func NewSessionEvent(eventType, sessionId string, data map[string]interface{}) Event {
	payload := map[string]interface{}{
		"session_id": sessionId,
	}
	for k, v := range data {
		payload[k] = v
	}
	return BaseEvent{
		Type:       eventType,
		Data:       payload,
		OccurredAt: time.Now(),
	}
}
