package worker

import (
	"context"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartMetricsWorker counts state changes published on the bus.
func StartMetricsWorker(bus events.Bus, metrics *observability.Metrics) {
	if bus == nil || metrics == nil {
		return
	}
	bus.Subscribe(events.EventTicketStateChanged, func(_ context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketStateChangedPayload)
		if !ok {
			return nil
		}
		category := "unknown"
		if id, err := domain.ParseTicketID(event.TicketID); err == nil {
			category = string(id.Category)
		}
		metrics.RecordTransition(category, string(payload.OldState), string(payload.NewState))
		return nil
	})
}
