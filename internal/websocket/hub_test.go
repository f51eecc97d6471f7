package websocket

import (
	"testing"
	"time"

	"classlive-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	h := NewHub(nil, "test-instance", logger.NewNopLogger())
	go h.Run()
	return h
}

func roomSize(h *Hub, sessionId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionId])
}

func waitRoomSize(t *testing.T, h *Hub, sessionId string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if roomSize(h, sessionId) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %s size = %d, want %d", sessionId, roomSize(h, sessionId), want)
}

func TestBroadcastReachesEveryClientInRoom(t *testing.T) {
	h := newTestHub()

	a := &Client{Hub: h, SessionId: "s-1", UserId: "u-1", Send: make(chan []byte, 4)}
	b := &Client{Hub: h, SessionId: "s-1", UserId: "u-2", Send: make(chan []byte, 4)}
	other := &Client{Hub: h, SessionId: "s-2", UserId: "u-3", Send: make(chan []byte, 4)}
	h.register <- a
	h.register <- b
	h.register <- other
	waitRoomSize(t, h, "s-1", 2)
	waitRoomSize(t, h, "s-2", 1)

	h.BroadcastToSession("s-1", []byte("hello"))

	assert.Equal(t, []byte("hello"), <-a.Send)
	assert.Equal(t, []byte("hello"), <-b.Send)
	assert.Empty(t, other.Send)
}

// A client that never drains its buffer gets dropped, and the drop must not
// bring the hub down even when another unregister races in for it.
func TestSlowClientDroppedWithoutCrashingHub(t *testing.T) {
	h := newTestHub()

	slow := &Client{Hub: h, SessionId: "s-1", UserId: "u-slow", Send: make(chan []byte)}
	healthy := &Client{Hub: h, SessionId: "s-1", UserId: "u-ok", Send: make(chan []byte, 4)}
	h.register <- slow
	h.register <- healthy
	waitRoomSize(t, h, "s-1", 2)

	h.BroadcastToSession("s-1", []byte("state"))
	waitRoomSize(t, h, "s-1", 1)

	_, open := <-slow.Send
	assert.False(t, open, "dropped client's send channel should be closed")

	// The connection teardown path unregisters the same client again.
	h.unregister <- slow
	waitRoomSize(t, h, "s-1", 1)

	h.BroadcastToSession("s-1", []byte("again"))
	require.Equal(t, []byte("again"), <-healthy.Send)
}

func TestRoomRemovedWhenLastClientLeaves(t *testing.T) {
	h := newTestHub()

	c := &Client{Hub: h, SessionId: "s-1", UserId: "u-1", Send: make(chan []byte, 4)}
	h.register <- c
	waitRoomSize(t, h, "s-1", 1)

	h.unregister <- c
	waitRoomSize(t, h, "s-1", 0)

	_, open := <-c.Send
	assert.False(t, open)

	// Broadcasting into an empty room is a no-op.
	h.BroadcastToSession("s-1", []byte("late"))
}
