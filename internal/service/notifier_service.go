package service

import (
	"context"
	"encoding/json"

	"classlive-be/internal/apperr"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/contract"
	"classlive-be/pkg/events"
	pktNats "classlive-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// SessionDelivery defines how to push real-time updates to browsers.
// Implemented by the WebSocket Hub.
type SessionDelivery interface {
	BroadcastToSession(sessionId string, payload []byte)
}

// INotifierService consumes session events from the in-process bus (and
// from NATS for events raised on other instances) and pushes the fresh
// session state to every websocket client in that session's room.
type INotifierService interface {
	Start(ctx context.Context) error
}

type notifierService struct {
	pubSub   *gochannel.GoChannel
	topic    string
	origin   string
	natsSub  *pktNats.Subscriber
	repo     contract.SessionRepository
	delivery SessionDelivery
	logger   logger.ILogger
}

func NewNotifierService(
	pubSub *gochannel.GoChannel,
	topic, origin string,
	natsSub *pktNats.Subscriber,
	repo contract.SessionRepository,
	delivery SessionDelivery,
	log logger.ILogger,
) INotifierService {
	return &notifierService{
		pubSub:   pubSub,
		topic:    topic,
		origin:   origin,
		natsSub:  natsSub,
		repo:     repo,
		delivery: delivery,
		logger:   log,
	}
}

func (s *notifierService) Start(ctx context.Context) error {
	messages, err := s.pubSub.Subscribe(ctx, s.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()

	// Cross-instance events arrive via NATS. Our own events come back too;
	// the origin tag filters them out so clients are not notified twice.
	if s.natsSub != nil {
		err := s.natsSub.Subscribe("classlive.>", "ws-notifier-"+s.origin, func(ctx context.Context, event events.Event) error {
			payload := event.Payload()
			if origin, _ := payload["origin"].(string); origin == s.origin {
				return nil
			}
			sessionId, _ := payload["session_id"].(string)
			if sessionId == "" {
				return nil
			}
			s.pushSessionState(ctx, event.EventType(), sessionId)
			return nil
		})
		if err != nil {
			s.logger.Warn("NotifierService", "NATS subscription unavailable, cross-instance updates disabled", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	s.logger.Info("NotifierService", "Notifier started", map[string]interface{}{"topic": s.topic})
	return nil
}

func (s *notifierService) processMessage(ctx context.Context, msg *message.Message) {
	var envelope struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		s.logger.Error("NotifierService", "Failed to unmarshal event envelope", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	sessionId, _ := envelope.Payload["session_id"].(string)
	if sessionId != "" {
		s.pushSessionState(ctx, envelope.Type, sessionId)
	}
	msg.Ack()
}

func (s *notifierService) pushSessionState(ctx context.Context, eventType, sessionId string) {
	session, err := s.repo.Get(ctx, sessionId)
	if apperr.IsNotFound(err) {
		closed, _ := json.Marshal(map[string]interface{}{
			"type":       "session_closed",
			"session_id": sessionId,
		})
		s.delivery.BroadcastToSession(sessionId, closed)
		return
	}
	if err != nil {
		s.logger.Warn("NotifierService", "Failed to load session for push", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"type":  "session_update",
		"event": eventType,
		"data":  session,
	})
	if err != nil {
		return
	}
	s.delivery.BroadcastToSession(sessionId, payload)
}
