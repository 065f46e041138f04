package events

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketStateChanged EventType = "ticket_state_changed"
)

// Event represents a domain event emitted by the lifecycle engine.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category domain.Category `json:"category"`
	Number   int64           `json:"number"`
	OwnerID  string          `json:"owner_id"`
}

// TicketStateChangedPayload payload.
type TicketStateChangedPayload struct {
	Action   domain.TicketAction `json:"action"`
	OldState domain.TicketState  `json:"old_state"`
	NewState domain.TicketState  `json:"new_state"`
}
