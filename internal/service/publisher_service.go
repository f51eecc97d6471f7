package service

import (
	"context"
	"encoding/json"
	"fmt"

	"classlive-be/internal/pkg/logger"
	"classlive-be/pkg/events"
	pktNats "classlive-be/pkg/nats" // Renamed to avoid collision

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// IPublisherService fans session events into the in-process bus (for this
// instance's websocket notifier) and onto NATS (for every other instance).
type IPublisherService interface {
	Publish(ctx context.Context, event events.Event) error
}

type publisherService struct {
	topic   string
	origin  string
	pubSub  *gochannel.GoChannel
	natsPub *pktNats.Publisher
	logger  logger.ILogger
}

func NewPublisherService(topic, origin string, pubSub *gochannel.GoChannel, natsPub *pktNats.Publisher, log logger.ILogger) IPublisherService {
	return &publisherService{
		topic:   topic,
		origin:  origin,
		pubSub:  pubSub,
		natsPub: natsPub,
		logger:  log,
	}
}

func (s *publisherService) Publish(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	payload["origin"] = s.origin

	envelope := map[string]interface{}{
		"type":    event.EventType(),
		"payload": payload,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := s.pubSub.Publish(s.topic, message.NewMessage(watermill.NewUUID(), raw)); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventType(), err)
	}

	// NATS is cross-instance delivery only; an unreachable broker must not
	// fail the user-facing operation.
	if s.natsPub != nil {
		if err := s.natsPub.Publish(ctx, event); err != nil {
			s.logger.Warn("PublisherService", "Failed to publish event to NATS", map[string]interface{}{
				"type":  event.EventType(),
				"error": err.Error(),
			})
		}
	}
	return nil
}
