package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
)

type recordingPublisher struct {
	channel string
	bodies  [][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.bodies = append(p.bodies, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestNotificationServiceForwardsEvents(t *testing.T) {
	bus := events.NewInMemoryBus()
	pub := &recordingPublisher{}
	n := NewNotificationService(bus, zap.NewNop(), pub, "ticketbot:events")
	n.RegisterHandlers()

	err := bus.Publish(context.Background(), events.Event{
		ID:       "e1",
		Type:     events.EventTicketStateChanged,
		TicketID: "report-0003",
		Payload: events.TicketStateChangedPayload{
			Action:   domain.ActionClose,
			OldState: domain.TicketStateOpen,
			NewState: domain.TicketStateClosed,
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.channel != "ticketbot:events" || len(pub.bodies) != 1 {
		t.Fatalf("published %d bodies to %q", len(pub.bodies), pub.channel)
	}
	var decoded map[string]any
	if err := json.Unmarshal(pub.bodies[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["ticket_id"] != "report-0003" || decoded["type"] != "ticket_state_changed" {
		t.Fatalf("decoded = %v", decoded)
	}
}

func TestNotificationServiceWithoutPublisher(t *testing.T) {
	bus := events.NewInMemoryBus()
	NewNotificationService(bus, zap.NewNop(), nil, "").RegisterHandlers()
	if err := bus.Publish(context.Background(), events.Event{Type: events.EventTicketCreated}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
