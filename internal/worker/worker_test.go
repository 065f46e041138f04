package worker

import (
	"context"
	"testing"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
)

func TestMetricsWorkerCountsTransitions(t *testing.T) {
	bus := events.NewInMemoryBus()
	metrics := observability.NewMetrics()
	StartMetricsWorker(bus, metrics)

	err := bus.Publish(context.Background(), events.Event{
		Type:     events.EventTicketStateChanged,
		TicketID: "sponsor-0003",
		Payload: events.TicketStateChangedPayload{
			Action:   domain.ActionClose,
			OldState: domain.TicketStateOpen,
			NewState: domain.TicketStateClosed,
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = bus.Publish(context.Background(), events.Event{Type: events.EventTicketStateChanged, TicketID: "x", Payload: "junk"})

	snap := metrics.Snapshot()
	if got := snap.Transitions["sponsor|OPEN->CLOSED"]; got != 1 {
		t.Fatalf("transitions = %v", snap.Transitions)
	}
	if len(snap.Transitions) != 1 {
		t.Fatalf("unexpected transitions %v", snap.Transitions)
	}
}
