package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
)

// ErrNotFound is returned by Get/Update/Delete and the set operations when
// the target document does not exist in the collection.
var ErrNotFound = errors.New("docstore: document not found")

// Document is the generic shape persisted by a Store. Values are limited to
// what JSON can carry (strings, float64, bool, []interface{}, nested maps).
type Document map[string]interface{}

// Op is a predicate operator.
type Op string

const (
	OpEq       Op = "=="
	OpContains Op = "array-contains"
)

// Predicate filters a Query or a query subscription.
type Predicate struct {
	Field string
	Op    Op
	Value interface{}
}

func Eq(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

func Contains(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpContains, Value: value}
}

// Unsubscribe tears down a subscription. Implementations must make it
// idempotent: calling it twice, or after the connection is gone, is safe.
type Unsubscribe func()

// DocHandler receives every observed state of a single document.
// A nil Document means the document was deleted.
type DocHandler func(doc Document)

// QueryHandler receives the full (unordered) result set on every change to
// any matching document.
type QueryHandler func(docs []Document)

// Store is the abstract document database contract the sync engine is built
// on: atomic partial updates, atomic add/remove-from-set, and push-based
// change notification per document and per query.
type Store interface {
	Create(ctx context.Context, collection string, doc Document) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error

	// AddToSet unions elem into the array field, creating the field if
	// missing. Adding an element already present is a no-op.
	AddToSet(ctx context.Context, collection, id, field string, elem interface{}) error
	// RemoveFromSet removes the exact elem from the array field. Removing
	// an absent element is a no-op.
	RemoveFromSet(ctx context.Context, collection, id, field string, elem interface{}) error

	Query(ctx context.Context, collection string, preds ...Predicate) ([]Document, error)

	SubscribeDoc(ctx context.Context, collection, id string, fn DocHandler) (Unsubscribe, error)
	SubscribeQuery(ctx context.Context, collection string, preds []Predicate, fn QueryHandler) (Unsubscribe, error)
}

// Matches reports whether doc satisfies every predicate. Equality is
// JSON-canonical so that callers may pass ints where documents hold float64.
func Matches(doc Document, preds []Predicate) bool {
	for _, p := range preds {
		v, ok := doc[p.Field]
		switch p.Op {
		case OpEq:
			if !ok || !ValueEqual(v, p.Value) {
				return false
			}
		case OpContains:
			arr, isArr := v.([]interface{})
			if !ok || !isArr {
				return false
			}
			found := false
			for _, elem := range arr {
				if ValueEqual(elem, p.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ValueEqual compares two values by their canonical JSON encoding. This is
// how set-union and set-removal decide element identity, so a {id, name}
// pair only matches when both fields match exactly.
func ValueEqual(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

// Normalize round-trips v through JSON so nested values take the same
// generic shape a real document database would hand back.
func Normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
