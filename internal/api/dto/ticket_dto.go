package dto

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Category string `json:"category"`
	OwnerID  string `json:"owner_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID         string             `json:"id"`
	Category   domain.Category    `json:"category"`
	Number     int64              `json:"number"`
	OwnerID    string             `json:"owner_id"`
	ChannelID  string             `json:"channel_id,omitempty"`
	State      domain.TicketState `json:"state"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	ClosedAt   *time.Time         `json:"closed_at,omitempty"`
	ExportedAt *time.Time         `json:"exported_at,omitempty"`
}

// EffectSummary describes a platform effect requested by an operation.
type EffectSummary struct {
	Kind     domain.EffectKind      `json:"kind"`
	Name     string                 `json:"name,omitempty"`
	GroupID  string                 `json:"group_id,omitempty"`
	TargetID string                 `json:"target_id,omitempty"`
	Template domain.MessageTemplate `json:"template,omitempty"`
}

// TicketOperationResponse is returned by create, close and export.
type TicketOperationResponse struct {
	Ticket  TicketSummary   `json:"ticket"`
	Changed bool            `json:"changed"`
	Effects []EffectSummary `json:"effects"`
	// EffectsApplied is false when no Discord session was available to run the effects.
	EffectsApplied bool `json:"effects_applied"`
}

// HistoryEntry is one recorded state change.
type HistoryEntry struct {
	ID        string              `json:"id"`
	ActorID   string              `json:"actor_id"`
	Action    domain.TicketAction `json:"action"`
	FromState domain.TicketState  `json:"from_state"`
	ToState   domain.TicketState  `json:"to_state"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewTicketSummary maps a ticket snapshot.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:         t.ID.String(),
		Category:   t.ID.Category,
		Number:     t.ID.Number,
		OwnerID:    t.OwnerID,
		ChannelID:  t.ChannelID,
		State:      t.State,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		ClosedAt:   t.ClosedAt,
		ExportedAt: t.ExportedAt,
	}
}

// NewEffectSummaries maps effects.
func NewEffectSummaries(effects []domain.Effect) []EffectSummary {
	out := make([]EffectSummary, 0, len(effects))
	for _, e := range effects {
		out = append(out, EffectSummary{Kind: e.Kind, Name: e.Name, GroupID: e.GroupID, TargetID: e.TargetID, Template: e.Template})
	}
	return out
}
