package memory

import (
	"context"
	"testing"
	"time"

	"classlive-be/pkg/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDoc(t *testing.T, ch <-chan docstore.Document) docstore.Document {
	t.Helper()
	select {
	case doc := <-ch:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for document notification")
		return nil
	}
}

func waitQuery(t *testing.T, ch <-chan []docstore.Document) []docstore.Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query notification")
		return nil
	}
}

func TestCreateGetUpdateDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, "things", docstore.Document{"name": "a", "count": 1})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(ctx, "things", id)
	require.NoError(t, err)
	assert.Equal(t, "a", doc["name"])
	// Numbers round-trip through JSON as float64.
	assert.Equal(t, float64(1), doc["count"])

	err = store.Update(ctx, "things", id, docstore.Document{"count": 2})
	require.NoError(t, err)

	doc, err = store.Get(ctx, "things", id)
	require.NoError(t, err)
	assert.Equal(t, "a", doc["name"])
	assert.Equal(t, float64(2), doc["count"])

	require.NoError(t, store.Delete(ctx, "things", id))
	_, err = store.Get(ctx, "things", id)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestGetMissing(t *testing.T) {
	store := NewStore()

	_, err := store.Get(context.Background(), "things", "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	err = store.Update(context.Background(), "things", "nope", docstore.Document{"x": 1})
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	err = store.Delete(context.Background(), "things", "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestAddToSetDeduplicates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, "sessions", docstore.Document{"members": []interface{}{}})
	require.NoError(t, err)

	member := map[string]interface{}{"id": "s1", "name": "Ayu"}
	require.NoError(t, store.AddToSet(ctx, "sessions", id, "members", member))
	require.NoError(t, store.AddToSet(ctx, "sessions", id, "members", member))

	doc, err := store.Get(ctx, "sessions", id)
	require.NoError(t, err)
	assert.Len(t, doc["members"], 1)

	// Same id, different name is a different element.
	require.NoError(t, store.AddToSet(ctx, "sessions", id, "members", map[string]interface{}{"id": "s1", "name": "Ayu R."}))
	doc, err = store.Get(ctx, "sessions", id)
	require.NoError(t, err)
	assert.Len(t, doc["members"], 2)
}

func TestRemoveFromSetExactMatch(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, "sessions", docstore.Document{"members": []interface{}{}})
	require.NoError(t, err)

	member := map[string]interface{}{"id": "s1", "name": "Ayu"}
	require.NoError(t, store.AddToSet(ctx, "sessions", id, "members", member))

	// A pair that never matched anything removes nothing.
	require.NoError(t, store.RemoveFromSet(ctx, "sessions", id, "members", map[string]interface{}{"id": "s1", "name": "Other"}))
	doc, err := store.Get(ctx, "sessions", id)
	require.NoError(t, err)
	assert.Len(t, doc["members"], 1)

	require.NoError(t, store.RemoveFromSet(ctx, "sessions", id, "members", member))
	doc, err = store.Get(ctx, "sessions", id)
	require.NoError(t, err)
	assert.Len(t, doc["members"], 0)

	// Removing again is still a no-op.
	require.NoError(t, store.RemoveFromSet(ctx, "sessions", id, "members", member))
}

func TestQueryPredicates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "sessions", docstore.Document{"teacherId": "t1", "status": "active", "studentIds": []interface{}{"s1", "s2"}})
	require.NoError(t, err)
	_, err = store.Create(ctx, "sessions", docstore.Document{"teacherId": "t1", "status": "ended", "studentIds": []interface{}{"s1"}})
	require.NoError(t, err)
	_, err = store.Create(ctx, "sessions", docstore.Document{"teacherId": "t2", "status": "active", "studentIds": []interface{}{"s3"}})
	require.NoError(t, err)

	docs, err := store.Query(ctx, "sessions", docstore.Eq("teacherId", "t1"), docstore.Eq("status", "active"))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.NotEmpty(t, docs[0]["_id"])

	docs, err = store.Query(ctx, "sessions", docstore.Contains("studentIds", "s1"))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = store.Query(ctx, "sessions", docstore.Contains("studentIds", "s9"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSubscribeDocDeliversSnapshotAndUpdates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, "sessions", docstore.Document{"slide": 0})
	require.NoError(t, err)

	ch := make(chan docstore.Document, 16)
	unsub, err := store.SubscribeDoc(ctx, "sessions", id, func(doc docstore.Document) {
		ch <- doc
	})
	require.NoError(t, err)
	defer unsub()

	snapshot := waitDoc(t, ch)
	require.NotNil(t, snapshot)
	assert.Equal(t, float64(0), snapshot["slide"])

	require.NoError(t, store.Update(ctx, "sessions", id, docstore.Document{"slide": 1}))
	require.NoError(t, store.Update(ctx, "sessions", id, docstore.Document{"slide": 2}))

	first := waitDoc(t, ch)
	second := waitDoc(t, ch)
	assert.Equal(t, float64(1), first["slide"])
	assert.Equal(t, float64(2), second["slide"])
}

func TestSubscribeDocDeliversNilOnDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, "sessions", docstore.Document{"slide": 0})
	require.NoError(t, err)

	ch := make(chan docstore.Document, 16)
	unsub, err := store.SubscribeDoc(ctx, "sessions", id, func(doc docstore.Document) {
		ch <- doc
	})
	require.NoError(t, err)
	defer unsub()

	require.NotNil(t, waitDoc(t, ch)) // snapshot
	require.NoError(t, store.Delete(ctx, "sessions", id))
	assert.Nil(t, waitDoc(t, ch))
}

func TestSubscribeQueryTracksMembership(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	ch := make(chan []docstore.Document, 16)
	unsub, err := store.SubscribeQuery(ctx, "sessions", []docstore.Predicate{docstore.Eq("status", "active")}, func(docs []docstore.Document) {
		ch <- docs
	})
	require.NoError(t, err)
	defer unsub()

	assert.Empty(t, waitQuery(t, ch)) // initial empty result

	id, err := store.Create(ctx, "sessions", docstore.Document{"status": "active"})
	require.NoError(t, err)
	assert.Len(t, waitQuery(t, ch), 1)

	// Leaving the predicate removes the doc from the result set.
	require.NoError(t, store.Update(ctx, "sessions", id, docstore.Document{"status": "ended"}))
	assert.Empty(t, waitQuery(t, ch))
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	id, err := store.Create(ctx, "sessions", docstore.Document{"slide": 0})
	require.NoError(t, err)

	ch := make(chan docstore.Document, 16)
	unsub, err := store.SubscribeDoc(ctx, "sessions", id, func(doc docstore.Document) {
		ch <- doc
	})
	require.NoError(t, err)

	require.NotNil(t, waitDoc(t, ch)) // snapshot

	unsub()
	unsub() // second call must be safe

	require.NoError(t, store.Update(ctx, "sessions", id, docstore.Document{"slide": 5}))

	select {
	case doc := <-ch:
		t.Fatalf("received notification after unsubscribe: %v", doc)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriberIsolation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	a, err := store.Create(ctx, "sessions", docstore.Document{"slide": 0})
	require.NoError(t, err)
	b, err := store.Create(ctx, "sessions", docstore.Document{"slide": 0})
	require.NoError(t, err)

	chA := make(chan docstore.Document, 16)
	unsubA, err := store.SubscribeDoc(ctx, "sessions", a, func(doc docstore.Document) {
		chA <- doc
	})
	require.NoError(t, err)
	defer unsubA()

	require.NotNil(t, waitDoc(t, chA)) // snapshot

	// Mutating b must not reach a's subscriber.
	require.NoError(t, store.Update(ctx, "sessions", b, docstore.Document{"slide": 9}))
	require.NoError(t, store.Update(ctx, "sessions", a, docstore.Document{"slide": 1}))

	doc := waitDoc(t, chA)
	assert.Equal(t, float64(1), doc["slide"])
}
