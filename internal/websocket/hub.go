package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"classlive-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const redisChannel = "classlive_ws_events"

// Hub keeps one room per live session and fans pushed state out to every
// browser connected to that room. Messages raised on other instances are
// relayed in through the redis channel.
type Hub struct {
	// Registered clients map: sessionId -> connections in that room
	clients map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// Identifies this instance so its own relayed messages are skipped
	instanceId string

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, instanceId string, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instanceId: instanceId,
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionId] = append(h.clients[client.SessionId], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client joined session room", map[string]interface{}{
				"session_id": client.SessionId,
				"user_id":    client.UserId,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionId]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.SessionId] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.SessionId]) == 0 {
					delete(h.clients, client.SessionId)
					h.logger.Info("Hub", "Session room emptied", map[string]interface{}{
						"session_id": client.SessionId,
					})
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToSession sends a payload to every client in the session's room,
// here and on other instances via redis.
func (h *Hub) BroadcastToSession(sessionId string, payload []byte) {
	h.deliverLocal(sessionId, payload)

	if h.rdb != nil {
		relay, _ := json.Marshal(map[string]interface{}{
			"origin":     h.instanceId,
			"session_id": sessionId,
			"message":    json.RawMessage(payload),
		})
		h.rdb.Publish(context.Background(), redisChannel, relay)
	}
}

func (h *Hub) deliverLocal(sessionId string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[sessionId]
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{
				"session_id": sessionId,
				"user_id":    client.UserId,
			})
			// Run owns closing Send; it only closes the channel for a
			// client still present in the room, so a slow client dropped
			// here and a self-unregister cannot both close it.
			h.unregister <- client
		}
	}
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var relay struct {
			Origin    string          `json:"origin"`
			SessionId string          `json:"session_id"`
			Message   json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil {
			h.logger.Error("Hub", "Failed to parse redis relay message", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if relay.Origin == h.instanceId {
			continue
		}

		h.mu.RLock()
		_, local := h.clients[relay.SessionId]
		h.mu.RUnlock()
		if local {
			h.deliverLocal(relay.SessionId, relay.Message)
		}
	}
}
