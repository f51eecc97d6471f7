package memory

import (
	"context"
	"sync"

	"classlive-be/pkg/docstore"

	"github.com/google/uuid"
)

// Store is an in-process docstore.Store with push-based change
// notification. It backs every unit test and the local dev mode; the
// production deployment swaps in a real document database behind the same
// contract.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]docstore.Document
	docSubs     map[string]*docSub
	querySubs   map[string]*querySub
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

func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
		docSubs:     make(map[string]*docSub),
		querySubs:   make(map[string]*querySub),
	}
}

func (s *Store) Create(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	normalized, err := normalizeDoc(doc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	id := uuid.New().String()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]docstore.Document)
		s.collections[collection] = col
	}
	col[id] = normalized
	s.notifyLocked(collection, id)
	s.mu.Unlock()

	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	normalized, err := normalizeDoc(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	for k, v := range normalized {
		doc[k] = v
	}
	s.notifyLocked(collection, id)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.collections[collection], id)
	s.notifyLocked(collection, id)
	return nil
}

// AddToSet unions elem into the array field. Identical elements are
// deduplicated, which is what makes join idempotent at the store level.
func (s *Store) AddToSet(ctx context.Context, collection, id, field string, elem interface{}) error {
	normalized, err := docstore.Normalize(elem)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}

	arr, _ := doc[field].([]interface{})
	for _, existing := range arr {
		if docstore.ValueEqual(existing, normalized) {
			return nil
		}
	}
	doc[field] = append(arr, normalized)
	s.notifyLocked(collection, id)
	return nil
}

// RemoveFromSet removes the exact elem from the array field. Removing an
// element that is not present is a no-op, not an error.
func (s *Store) RemoveFromSet(ctx context.Context, collection, id, field string, elem interface{}) error {
	normalized, err := docstore.Normalize(elem)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}

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
		return nil
	}
	doc[field] = kept
	s.notifyLocked(collection, id)
	return nil
}

// Query returns an unordered set of matching documents.
func (s *Store) Query(ctx context.Context, collection string, preds ...docstore.Predicate) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(collection, preds), nil
}

func (s *Store) queryLocked(collection string, preds []docstore.Predicate) []docstore.Document {
	var result []docstore.Document
	for id, doc := range s.collections[collection] {
		if docstore.Matches(doc, preds) {
			out := copyDoc(doc)
			out["_id"] = id
			result = append(result, out)
		}
	}
	return result
}

// SubscribeDoc delivers every observed state of one document, in per-document
// mutation order. Deletion is delivered as a nil document.
func (s *Store) SubscribeDoc(ctx context.Context, collection, id string, fn docstore.DocHandler) (docstore.Unsubscribe, error) {
	s.mu.Lock()
	subId := uuid.New().String()
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
	s.docSubs[subId] = sub

	// Initial emission mirrors a real store's snapshot-on-subscribe.
	if doc, ok := s.collections[collection][id]; ok {
		sub.dispatch.Push(copyDoc(doc))
	}
	s.mu.Unlock()

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

// SubscribeQuery delivers the full matching result set on every change to
// any document in the collection.
func (s *Store) SubscribeQuery(ctx context.Context, collection string, preds []docstore.Predicate, fn docstore.QueryHandler) (docstore.Unsubscribe, error) {
	s.mu.Lock()
	subId := uuid.New().String()
	sub := &querySub{
		collection: collection,
		preds:      preds,
		dispatch: docstore.NewDispatcher(func(v interface{}) {
			fn(v.([]docstore.Document))
		}),
	}
	s.querySubs[subId] = sub
	sub.dispatch.Push(s.queryLocked(collection, preds))
	s.mu.Unlock()

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

// notifyLocked fans the new state of (collection, id) out to every affected
// subscriber. Caller holds s.mu, so enqueue order follows mutation order.
func (s *Store) notifyLocked(collection, id string) {
	doc, exists := s.collections[collection][id]

	for _, sub := range s.docSubs {
		if sub.collection != collection || sub.docId != id {
			continue
		}
		if !exists {
			sub.dispatch.Push(nil)
		} else {
			sub.dispatch.Push(copyDoc(doc))
		}
	}

	for _, sub := range s.querySubs {
		if sub.collection != collection {
			continue
		}
		sub.dispatch.Push(s.queryLocked(collection, sub.preds))
	}
}

func normalizeDoc(doc docstore.Document) (docstore.Document, error) {
	normalized, err := docstore.Normalize(map[string]interface{}(doc))
	if err != nil {
		return nil, err
	}
	return docstore.Document(normalized.(map[string]interface{})), nil
}

func copyDoc(doc docstore.Document) docstore.Document {
	out, err := normalizeDoc(doc)
	if err != nil {
		// Documents only ever hold JSON-normalized values, so a failed
		// round-trip means corrupted in-memory state.
		panic(err)
	}
	return out
}
