package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/events"
)

// EventPublisher is the subset of the Redis client used to fan events out.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationService logs domain events and forwards them to a Redis channel when configured.
type NotificationService struct {
	bus       events.Bus
	logger    *zap.Logger
	publisher EventPublisher
	channel   string
}

// NewNotificationService creates the service. publisher may be nil.
func NewNotificationService(bus events.Bus, logger *zap.Logger, publisher EventPublisher, channel string) *NotificationService {
	return &NotificationService{
		bus:       bus,
		logger:    logger,
		publisher: publisher,
		channel:   channel,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.bus == nil {
		return
	}
	n.bus.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.bus.Subscribe(events.EventTicketStateChanged, n.handleTicketStateChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleTicketStateChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStateChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if n.publisher == nil || n.channel == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(ctx, n.channel, body).Err(); err != nil {
		n.logger.Warn("event fan-out failed",
			zap.String("channel", n.channel),
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}
