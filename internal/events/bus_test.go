package events

import (
	"context"
	"errors"
	"testing"
)

func TestBusDeliversToAllHandlers(t *testing.T) {
	bus := NewInMemoryBus()
	var calls []string
	bus.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	bus.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	bus.Subscribe(EventTicketStateChanged, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := bus.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "sponsor-0001"})
	if err == nil {
		t.Fatalf("expected handler error to be reported")
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("calls = %v", calls)
	}
}
