package interaction

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// EventKind distinguishes slash commands from component clicks.
type EventKind string

const (
	KindCommand   EventKind = "command"
	KindComponent EventKind = "component"
)

// RawEvent is an inbound interaction after the gateway stripped platform specifics.
type RawEvent struct {
	ID        string
	Kind      EventKind
	Name      string
	ActorID   string
	ChannelID string
	Options   map[string]string
	Instant   time.Time
}

// Outcome classifies how the dispatcher handled an event.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeAlreadyHandled Outcome = "already_handled"
	OutcomeMalformed      Outcome = "malformed"
	OutcomeError          Outcome = "error"
)

// Result is what the gateway needs to answer the interaction and run effects.
type Result struct {
	Outcome Outcome
	Control string
	// Code and Message are set for OutcomeError. Message is safe to show the user.
	Code    string
	Message string
	Ticket  *domain.Ticket
	Effects []domain.Effect
	Changed bool
}
