package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category partitions tickets by purpose.
type Category string

const (
	CategorySponsor Category = "sponsor"
	CategoryReport  Category = "report"
)

// Categories lists every supported category in display order.
var Categories = []Category{CategorySponsor, CategoryReport}

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen     TicketState = "OPEN"
	TicketStateClosed   TicketState = "CLOSED"
	TicketStateExported TicketState = "EXPORTED"
)

// IsActive reports whether the state counts against the one-ticket-per-owner rule.
func (s TicketState) IsActive() bool {
	return s == TicketStateOpen || s == TicketStateClosed
}

// IsTerminal reports whether no further action is accepted.
func (s TicketState) IsTerminal() bool {
	return s == TicketStateExported
}

// TicketAction is a user-triggered lifecycle action.
type TicketAction string

const (
	ActionClose  TicketAction = "CLOSE"
	ActionExport TicketAction = "EXPORT"
)

// TicketID identifies a ticket by category and sequence number.
type TicketID struct {
	Category Category
	Number   int64
}

// String renders the id the same way ticket channels are named, e.g. sponsor-0007.
func (id TicketID) String() string {
	return fmt.Sprintf("%s-%04d", id.Category, id.Number)
}

// ParseTicketID is the inverse of TicketID.String. Padding is optional.
func ParseTicketID(s string) (TicketID, error) {
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return TicketID{}, fmt.Errorf("invalid ticket id %q", s)
	}
	category, ok := ParseCategory(s[:idx])
	if !ok {
		return TicketID{}, fmt.Errorf("unknown ticket category %q", s[:idx])
	}
	number, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil || number <= 0 {
		return TicketID{}, fmt.Errorf("invalid ticket number %q", s[idx+1:])
	}
	return TicketID{Category: category, Number: number}, nil
}

// Ticket is the aggregate tracked by the registry.
type Ticket struct {
	ID          TicketID
	OwnerID     string
	ChannelID   string
	State       TicketState
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
	ExportedAt  *time.Time
	// OperationID is the inbound interaction that created the ticket, if known.
	OperationID string
}

// Clone returns a snapshot that shares no pointers with t.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.ClosedAt != nil {
		closed := *t.ClosedAt
		cp.ClosedAt = &closed
	}
	if t.ExportedAt != nil {
		exported := *t.ExportedAt
		cp.ExportedAt = &exported
	}
	return &cp
}
