package handler

import (
	"context"
	"encoding/json"

	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/pkg/serverutils"
	"classlive-be/internal/service"
	internalWS "classlive-be/internal/websocket"
	"classlive-be/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// LiveHandler owns the websocket upgrade paths. It lives outside the
// controller layer because the upgrade hijacks the connection and never
// goes through the normal response pipeline.
type LiveHandler struct {
	hub              *internalWS.Hub
	watchService     service.IWatchService
	publisherService service.IPublisherService
	logger           logger.ILogger
}

func NewLiveHandler(hub *internalWS.Hub, watchService service.IWatchService, publisherService service.IPublisherService, log logger.ILogger) *LiveHandler {
	return &LiveHandler{
		hub:              hub,
		watchService:     watchService,
		publisherService: publisherService,
		logger:           log,
	}
}

// authenticateWs extracts and verifies the handshake token. Browsers cannot
// set headers on websocket handshakes, so the token arrives as a query
// parameter. Tooling may still use the header.
func (h *LiveHandler) authenticateWs(c *fiber.Ctx) (string, error) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return "", c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	claims, err := serverutils.ParseTokenClaims(tokenStr)
	if err != nil {
		h.logger.Warn("LiveHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return "", c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	userId, ok := claims["user_id"].(string)
	if !ok || userId == "" {
		return "", c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing user_id"})
	}
	return userId, nil
}

// ServeWs upgrades the connection and parks it in the session's room.
func (h *LiveHandler) ServeWs(c *fiber.Ctx) error {
	sessionId := c.Params("id")
	if sessionId == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing session id"})
	}

	userId, err := h.authenticateWs(c)
	if userId == "" {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("LiveHandler", "Starting WebSocket session", map[string]interface{}{
				"session_id": sessionId,
				"user_id":    userId,
			})
			internalWS.ServeWs(h.hub, conn, sessionId, userId)
			h.logger.Info("LiveHandler", "WebSocket session ended", map[string]interface{}{
				"session_id": sessionId,
				"user_id":    userId,
			})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// ServeTeacherWs streams a teacher's active session list over a websocket,
// re-pushed on every store change. This backs the dashboard without the
// browser polling the REST list.
func (h *LiveHandler) ServeTeacherWs(c *fiber.Ctx) error {
	teacherId := c.Params("teacherId")
	if teacherId == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing teacher id"})
	}

	userId, err := h.authenticateWs(c)
	if userId == "" {
		return err
	}
	if userId != teacherId {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Token does not match teacher id"})
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.streamTeacherSessions(conn, teacherId)
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *LiveHandler) streamTeacherSessions(conn *websocket.Conn, teacherId string) {
	frames := make(chan []byte, 16)
	unsubscribe, err := h.watchService.SubscribeToTeacherSessions(context.Background(), teacherId, func(sessions []*entity.Session) {
		frame, err := teacherSessionsFrame(sessions)
		if err != nil {
			return
		}
		select {
		case frames <- frame:
		default:
			// Every frame carries the full list, so a skipped update is
			// superseded by the next one.
		}
	})
	if err != nil {
		h.logger.Error("LiveHandler", "Failed to subscribe teacher dashboard", map[string]interface{}{
			"teacher_id": teacherId,
			"error":      err.Error(),
		})
		conn.Close()
		return
	}
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frames:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func teacherSessionsFrame(sessions []*entity.Session) ([]byte, error) {
	if sessions == nil {
		sessions = []*entity.Session{}
	}
	return json.Marshal(map[string]interface{}{
		"type": "teacher_sessions",
		"data": sessions,
	})
}

// DebugTriggerEvent publishes an arbitrary session event to exercise the
// fan-out path end to end without driving the REST API.
func (h *LiveHandler) DebugTriggerEvent(c *fiber.Ctx) error {
	type Request struct {
		Type      string                 `json:"type"`
		SessionId string                 `json:"sessionId"`
		Payload   map[string]interface{} `json:"payload"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.Type == "" {
		req.Type = "TEST_EVENT"
	}
	if req.SessionId == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sessionId is required"})
	}

	if err := h.publisherService.Publish(c.UserContext(), events.NewSessionEvent(req.Type, req.SessionId, req.Payload)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"status": "Event Published"})
}

// RegisterRoutes registers the websocket and debug routes.
func (h *LiveHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/session/v1/:id/ws", h.ServeWs)
	router.Get("/session/v1/teacher/:teacherId/ws", h.ServeTeacherWs)

	debug := router.Group("/debug")
	debug.Post("/trigger-event", h.DebugTriggerEvent)
}
