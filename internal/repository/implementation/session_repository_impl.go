package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"classlive-be/internal/apperr"
	"classlive-be/internal/entity"
	"classlive-be/internal/repository/contract"
	"classlive-be/pkg/docstore"
)

const sessionCollection = "live_sessions"

type sessionRepository struct {
	store docstore.Store
}

func NewSessionRepository(store docstore.Store) contract.SessionRepository {
	return &sessionRepository{store: store}
}

func (r *sessionRepository) Create(ctx context.Context, session *entity.Session) (string, error) {
	doc, err := sessionToDoc(session)
	if err != nil {
		return "", err
	}
	delete(doc, "id") // identity lives in the document key, not the payload

	id, err := r.store.Create(ctx, sessionCollection, doc)
	if err != nil {
		return "", &apperr.TransientStoreError{Op: "create session", Err: err}
	}
	session.Id = id
	return id, nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*entity.Session, error) {
	doc, err := r.store.Get(ctx, sessionCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, &apperr.NotFoundError{Resource: "session", Id: id}
	}
	if err != nil {
		return nil, &apperr.TransientStoreError{Op: "get session", Err: err}
	}
	return sessionFromDoc(id, doc)
}

func (r *sessionRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	err := r.store.Update(ctx, sessionCollection, id, docstore.Document(fields))
	if errors.Is(err, docstore.ErrNotFound) {
		return &apperr.NotFoundError{Resource: "session", Id: id}
	}
	if err != nil {
		return &apperr.TransientStoreError{Op: "update session", Err: err}
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, sessionCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return &apperr.NotFoundError{Resource: "session", Id: id}
	}
	if err != nil {
		return &apperr.TransientStoreError{Op: "delete session", Err: err}
	}
	return nil
}

func (r *sessionRepository) AddConnectedStudent(ctx context.Context, id string, ref entity.StudentRef) error {
	if err := r.addToSet(ctx, id, "connectedStudents", ref); err != nil {
		return err
	}
	// The roster (plain id set) backs the student-side session query. It is
	// add-only: leave keeps the student on the roster for attendance.
	return r.addToSet(ctx, id, "studentIds", ref.Id)
}

func (r *sessionRepository) RemoveConnectedStudent(ctx context.Context, id string, ref entity.StudentRef) error {
	return r.removeFromSet(ctx, id, "connectedStudents", ref)
}

func (r *sessionRepository) AddRaisedHand(ctx context.Context, id string, studentId string) error {
	return r.addToSet(ctx, id, "raisedHands", studentId)
}

func (r *sessionRepository) RemoveRaisedHand(ctx context.Context, id string, studentId string) error {
	return r.removeFromSet(ctx, id, "raisedHands", studentId)
}

func (r *sessionRepository) AppendChatMessage(ctx context.Context, id string, msg entity.ChatMessage) error {
	// Chat messages carry unique ids, so set-union degenerates to append
	// while staying safe under concurrent posters.
	return r.addToSet(ctx, id, "chatMessages", msg)
}

func (r *sessionRepository) addToSet(ctx context.Context, id, field string, elem interface{}) error {
	err := r.store.AddToSet(ctx, sessionCollection, id, field, elem)
	if errors.Is(err, docstore.ErrNotFound) {
		return &apperr.NotFoundError{Resource: "session", Id: id}
	}
	if err != nil {
		return &apperr.TransientStoreError{Op: fmt.Sprintf("add to %s", field), Err: err}
	}
	return nil
}

func (r *sessionRepository) removeFromSet(ctx context.Context, id, field string, elem interface{}) error {
	err := r.store.RemoveFromSet(ctx, sessionCollection, id, field, elem)
	if errors.Is(err, docstore.ErrNotFound) {
		return &apperr.NotFoundError{Resource: "session", Id: id}
	}
	if err != nil {
		return &apperr.TransientStoreError{Op: fmt.Sprintf("remove from %s", field), Err: err}
	}
	return nil
}

func (r *sessionRepository) FindActiveByTeacher(ctx context.Context, teacherId string) ([]*entity.Session, error) {
	return r.findActive(ctx, docstore.Eq("teacherId", teacherId))
}

func (r *sessionRepository) FindActiveByStudent(ctx context.Context, studentId string) ([]*entity.Session, error) {
	return r.findActive(ctx, docstore.Contains("studentIds", studentId))
}

func (r *sessionRepository) findActive(ctx context.Context, pred docstore.Predicate) ([]*entity.Session, error) {
	preds := []docstore.Predicate{pred, docstore.Eq("status", entity.SessionActive)}

	docs, err := r.store.Query(ctx, sessionCollection, preds...)
	if err != nil {
		// One retry. The store gives no ordering guarantee for this query
		// shape anyway; callers sort client-side.
		docs, err = r.store.Query(ctx, sessionCollection, preds...)
		if err != nil {
			return nil, &apperr.TransientStoreError{Op: "query active sessions", Err: err}
		}
	}
	return sessionsFromDocs(docs)
}

func (r *sessionRepository) SubscribeOne(ctx context.Context, id string, fn func(*entity.Session)) (docstore.Unsubscribe, error) {
	return r.store.SubscribeDoc(ctx, sessionCollection, id, func(doc docstore.Document) {
		if doc == nil {
			fn(nil)
			return
		}
		session, err := sessionFromDoc(id, doc)
		if err != nil {
			return
		}
		fn(session)
	})
}

func (r *sessionRepository) SubscribeActiveByTeacher(ctx context.Context, teacherId string, fn func([]*entity.Session)) (docstore.Unsubscribe, error) {
	return r.subscribeActive(ctx, docstore.Eq("teacherId", teacherId), fn)
}

func (r *sessionRepository) SubscribeActiveByStudent(ctx context.Context, studentId string, fn func([]*entity.Session)) (docstore.Unsubscribe, error) {
	return r.subscribeActive(ctx, docstore.Contains("studentIds", studentId), fn)
}

func (r *sessionRepository) subscribeActive(ctx context.Context, pred docstore.Predicate, fn func([]*entity.Session)) (docstore.Unsubscribe, error) {
	preds := []docstore.Predicate{pred, docstore.Eq("status", entity.SessionActive)}
	return r.store.SubscribeQuery(ctx, sessionCollection, preds, func(docs []docstore.Document) {
		sessions, err := sessionsFromDocs(docs)
		if err != nil {
			return
		}
		fn(sessions)
	})
}

func sessionsFromDocs(docs []docstore.Document) ([]*entity.Session, error) {
	sessions := make([]*entity.Session, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc["_id"].(string)
		session, err := sessionFromDoc(id, doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func sessionToDoc(session *entity.Session) (docstore.Document, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// sessionFromDoc decodes a raw document and applies shape defaults. This is
// the only place missing fields are repaired: a session may temporarily lack
// a membership array or progress map mid-write, and every consumer past this
// boundary may assume both exist.
func sessionFromDoc(id string, doc docstore.Document) (*entity.Session, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var session entity.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	session.Id = id

	if session.ConnectedStudents == nil {
		session.ConnectedStudents = []entity.StudentRef{}
	}
	if session.StudentIds == nil {
		session.StudentIds = []string{}
	}
	if session.StudentProgress == nil {
		session.StudentProgress = map[string]*entity.StudentProgress{}
	}
	if session.UnlockedSlides == nil {
		session.UnlockedSlides = []int{}
	}
	if session.TeacherNotes == nil {
		session.TeacherNotes = map[string]string{}
	}
	if session.ChatMessages == nil {
		session.ChatMessages = []entity.ChatMessage{}
	}
	if session.RaisedHands == nil {
		session.RaisedHands = []string{}
	}
	return &session, nil
}
