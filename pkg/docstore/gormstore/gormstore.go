package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"classlive-be/pkg/database"
	"classlive-be/pkg/docstore"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRow is the relational shape of a document: one row per document,
// payload in a JSONB column. Atomicity of the set operations comes from a
// row-level lock inside a transaction rather than a native array primitive.
type DocumentRow struct {
	Collection string         `gorm:"primaryKey;size:64"`
	DocId      string         `gorm:"primaryKey;column:doc_id;size:64"`
	Data       datatypes.JSON `gorm:"not null"`
	UpdatedAt  time.Time
}

func (DocumentRow) TableName() string {
	return "documents"
}

// Store implements docstore.Store on Postgres via GORM.
//
// Change notification is process-local: writes that go through this Store
// notify this process's subscribers. Cross-instance propagation rides the
// NATS event bus instead; this is a documented limitation of the relational
// backend, not of the contract.
type Store struct {
	db *gorm.DB

	mu        sync.Mutex
	docSubs   map[string]*docSub
	querySubs map[string]*querySub
}

type docSub struct {
	collection string
	docId      string
	dispatch   *docstore.Dispatcher
}

type querySub struct {
	collection string
	preds      []docstore.Predicate
	dispatch   *docstore.Dispatcher
}

func Open(dsn string) (*Store, error) {
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&DocumentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:        db,
		docSubs:   make(map[string]*docSub),
		querySubs: make(map[string]*querySub),
	}
}

func (s *Store) Create(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	row := DocumentRow{Collection: collection, DocId: id, Data: datatypes.JSON(raw)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	s.notify(ctx, collection, id)
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var row DocumentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return decodeRow(row)
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	err := s.mutate(ctx, collection, id, func(doc docstore.Document) (docstore.Document, bool, error) {
		normalized, err := docstore.Normalize(map[string]interface{}(fields))
		if err != nil {
			return nil, false, err
		}
		for k, v := range normalized.(map[string]interface{}) {
			doc[k] = v
		}
		return doc, true, nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, collection, id)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&DocumentRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return docstore.ErrNotFound
	}
	s.notify(ctx, collection, id)
	return nil
}

func (s *Store) AddToSet(ctx context.Context, collection, id, field string, elem interface{}) error {
	normalized, err := docstore.Normalize(elem)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, collection, id, func(doc docstore.Document) (docstore.Document, bool, error) {
		arr, _ := doc[field].([]interface{})
		for _, existing := range arr {
			if docstore.ValueEqual(existing, normalized) {
				return doc, false, nil
			}
		}
		doc[field] = append(arr, normalized)
		return doc, true, nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, collection, id)
	return nil
}

func (s *Store) RemoveFromSet(ctx context.Context, collection, id, field string, elem interface{}) error {
	normalized, err := docstore.Normalize(elem)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, collection, id, func(doc docstore.Document) (docstore.Document, bool, error) {
		arr, _ := doc[field].([]interface{})
		kept := make([]interface{}, 0, len(arr))
		removed := false
		for _, existing := range arr {
			if !removed && docstore.ValueEqual(existing, normalized) {
				removed = true
				continue
			}
			kept = append(kept, existing)
		}
		if !removed {
			return doc, false, nil
		}
		doc[field] = kept
		return doc, true, nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, collection, id)
	return nil
}

// mutate loads the row under a row-level lock, applies fn, and writes the
// result back inside one transaction.
func (s *Store) mutate(ctx context.Context, collection, id string, fn func(docstore.Document) (docstore.Document, bool, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row DocumentRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND doc_id = ?", collection, id).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return docstore.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock document: %w", err)
		}

		doc, err := decodeRow(row)
		if err != nil {
			return err
		}
		doc, changed, err := fn(doc)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return tx.Model(&DocumentRow{}).
			Where("collection = ? AND doc_id = ?", collection, id).
			Update("data", datatypes.JSON(raw)).Error
	})
}

func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Predicate) ([]docstore.Document, error) {
	var rows []DocumentRow
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	var result []docstore.Document
	for _, row := range rows {
		doc, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		if docstore.Matches(doc, preds) {
			doc["_id"] = row.DocId
			result = append(result, doc)
		}
	}
	return result, nil
}

func (s *Store) SubscribeDoc(ctx context.Context, collection, id string, fn docstore.DocHandler) (docstore.Unsubscribe, error) {
	sub := &docSub{
		collection: collection,
		docId:      id,
		dispatch: docstore.NewDispatcher(func(v interface{}) {
			if v == nil {
				fn(nil)
				return
			}
			fn(v.(docstore.Document))
		}),
	}

	s.mu.Lock()
	subId := uuid.New().String()
	s.docSubs[subId] = sub
	s.mu.Unlock()

	if doc, err := s.Get(ctx, collection, id); err == nil {
		sub.dispatch.Push(doc)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.docSubs, subId)
			s.mu.Unlock()
			sub.dispatch.Stop()
		})
	}, nil
}

func (s *Store) SubscribeQuery(ctx context.Context, collection string, preds []docstore.Predicate, fn docstore.QueryHandler) (docstore.Unsubscribe, error) {
	sub := &querySub{
		collection: collection,
		preds:      preds,
		dispatch: docstore.NewDispatcher(func(v interface{}) {
			fn(v.([]docstore.Document))
		}),
	}

	s.mu.Lock()
	subId := uuid.New().String()
	s.querySubs[subId] = sub
	s.mu.Unlock()

	if docs, err := s.Query(ctx, collection, preds...); err == nil {
		sub.dispatch.Push(docs)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.querySubs, subId)
			s.mu.Unlock()
			sub.dispatch.Stop()
		})
	}, nil
}

func (s *Store) notify(ctx context.Context, collection, id string) {
	s.mu.Lock()
	var affectedDoc []*docSub
	var affectedQuery []*querySub
	for _, sub := range s.docSubs {
		if sub.collection == collection && sub.docId == id {
			affectedDoc = append(affectedDoc, sub)
		}
	}
	for _, sub := range s.querySubs {
		if sub.collection == collection {
			affectedQuery = append(affectedQuery, sub)
		}
	}
	s.mu.Unlock()

	if len(affectedDoc) > 0 {
		doc, err := s.Get(ctx, collection, id)
		deleted := errors.Is(err, docstore.ErrNotFound)
		for _, sub := range affectedDoc {
			if deleted {
				sub.dispatch.Push(nil)
			} else if err == nil {
				sub.dispatch.Push(doc)
			}
		}
	}

	for _, sub := range affectedQuery {
		if docs, err := s.Query(ctx, collection, sub.preds...); err == nil {
			sub.dispatch.Push(docs)
		}
	}
}

func decodeRow(row DocumentRow) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal(row.Data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", row.Collection, row.DocId, err)
	}
	return doc, nil
}
