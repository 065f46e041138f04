package domain

import "time"

// TicketHistory is an immutable audit trail entry, one per observable state change.
type TicketHistory struct {
	ID          string
	TicketID    TicketID
	ActorID     string
	Action      TicketAction
	FromState   TicketState
	ToState     TicketState
	CreatedAt   time.Time
	// OperationID is the inbound interaction that caused the change, if known.
	OperationID string
}
