package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"classlive-be/internal/pkg/logger"
	"classlive-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDelivery struct {
	mu       sync.Mutex
	payloads map[string][][]byte
	notify   chan struct{}
}

func newRecordingDelivery() *recordingDelivery {
	return &recordingDelivery{
		payloads: make(map[string][][]byte),
		notify:   make(chan struct{}, 64),
	}
}

func (d *recordingDelivery) BroadcastToSession(sessionId string, payload []byte) {
	d.mu.Lock()
	d.payloads[sessionId] = append(d.payloads[sessionId], payload)
	d.mu.Unlock()
	d.notify <- struct{}{}
}

func (d *recordingDelivery) last(sessionId string) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	all := d.payloads[sessionId]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func TestNotifierPushesSessionState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	delivery := newRecordingDelivery()
	notifier := NewNotifierService(pubSub, "session_events", "test-instance", nil, env.repo, delivery, logger.NewNopLogger())
	require.NoError(t, notifier.Start(ctx))

	publisher := NewPublisherService("session_events", "test-instance", pubSub, nil, logger.NewNopLogger())
	require.NoError(t, publisher.Publish(ctx, events.NewSessionEvent(events.SlideAdvanced, session.Id, map[string]interface{}{
		"slide": 1,
	})))

	select {
	case <-delivery.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier never delivered to the hub")
	}

	var pushed struct {
		Type  string                 `json:"type"`
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(delivery.last(session.Id), &pushed))
	assert.Equal(t, "session_update", pushed.Type)
	assert.Equal(t, events.SlideAdvanced, pushed.Event)
	assert.Equal(t, session.Id, pushed.Data["id"])
}

func TestNotifierAnnouncesClosedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t, "teacher-1")
	require.NoError(t, env.repo.Delete(ctx, session.Id))

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	delivery := newRecordingDelivery()
	notifier := NewNotifierService(pubSub, "session_events", "test-instance", nil, env.repo, delivery, logger.NewNopLogger())
	require.NoError(t, notifier.Start(ctx))

	publisher := NewPublisherService("session_events", "test-instance", pubSub, nil, logger.NewNopLogger())
	require.NoError(t, publisher.Publish(ctx, events.NewSessionEvent(events.SessionEnded, session.Id, nil)))

	select {
	case <-delivery.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier never delivered to the hub")
	}

	var pushed struct {
		Type      string `json:"type"`
		SessionId string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(delivery.last(session.Id), &pushed))
	assert.Equal(t, "session_closed", pushed.Type)
	assert.Equal(t, session.Id, pushed.SessionId)
}
