package contract

import (
	"context"

	"classlive-be/internal/entity"
	"classlive-be/pkg/docstore"
)

// SessionRepository is the typed boundary between the sync engine and the
// document store. Shape normalization (membership always a collection,
// progress always a map) happens behind this interface, in exactly one
// place, so every consumer can rely on the entity invariants.
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) (string, error)
	Get(ctx context.Context, id string) (*entity.Session, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error

	// AddConnectedStudent unions the {id, name} pair into the membership
	// set; also records the student id on the session roster.
	AddConnectedStudent(ctx context.Context, id string, ref entity.StudentRef) error
	// RemoveConnectedStudent removes the exact {id, name} pair. Removing a
	// pair that is not present is a no-op.
	RemoveConnectedStudent(ctx context.Context, id string, ref entity.StudentRef) error

	AddRaisedHand(ctx context.Context, id string, studentId string) error
	RemoveRaisedHand(ctx context.Context, id string, studentId string) error
	AppendChatMessage(ctx context.Context, id string, msg entity.ChatMessage) error

	FindActiveByTeacher(ctx context.Context, teacherId string) ([]*entity.Session, error)
	FindActiveByStudent(ctx context.Context, studentId string) ([]*entity.Session, error)

	// SubscribeOne delivers every observed state of one session; nil means
	// the session document was deleted.
	SubscribeOne(ctx context.Context, id string, fn func(*entity.Session)) (docstore.Unsubscribe, error)
	SubscribeActiveByTeacher(ctx context.Context, teacherId string, fn func([]*entity.Session)) (docstore.Unsubscribe, error)
	SubscribeActiveByStudent(ctx context.Context, studentId string, fn func([]*entity.Session)) (docstore.Unsubscribe, error)
}
