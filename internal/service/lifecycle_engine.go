package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// Result is the outcome of a lifecycle operation: the ticket snapshot after the operation
// and the platform effects the caller must execute once.
type Result struct {
	Ticket  *domain.Ticket
	Effects []domain.Effect
	Changed bool
}

// LifecycleEngine drives tickets through create, close and export. It performs no chat
// platform I/O itself.
type LifecycleEngine struct {
	counters  *CounterStore
	registry  *TicketRegistry
	roles     auth.RoleLookup
	bus       events.Bus
	tickets   config.TicketsConfig
	archiveID string
	exportID  string
	logger    *zap.Logger
	now       func() time.Time
}

// EngineDependencies bundles engine collaborators.
type EngineDependencies struct {
	Counters *CounterStore
	Registry *TicketRegistry
	Roles    auth.RoleLookup
	Bus      events.Bus
	Tickets  config.TicketsConfig
	// ArchiveGroupID is where exported ticket channels are moved.
	ArchiveGroupID string
	// TranscriptDestinationID receives exported transcripts. Empty means the ticket channel itself.
	TranscriptDestinationID string
	Logger                  *zap.Logger
	Now                     func() time.Time
}

// NewLifecycleEngine constructs the engine.
func NewLifecycleEngine(deps EngineDependencies) *LifecycleEngine {
	e := &LifecycleEngine{
		counters:  deps.Counters,
		registry:  deps.Registry,
		roles:     deps.Roles,
		bus:       deps.Bus,
		tickets:   deps.Tickets,
		archiveID: deps.ArchiveGroupID,
		exportID:  deps.TranscriptDestinationID,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// CreateTicket reserves a number and registers an open ticket for owner.
func (e *LifecycleEngine) CreateTicket(ctx context.Context, category domain.Category, ownerID string) (*Result, error) {
	if _, ok := domain.ParseCategory(string(category)); !ok {
		return nil, apperrors.NewMalformed("unknown ticket category", map[string]any{"category": category})
	}
	group := e.tickets.Group(category)
	if group == "" {
		return nil, apperrors.NewValidationError("ticket category is not configured", map[string]any{"category": category})
	}
	if err := e.authorize(ctx, ownerID, e.tickets.RequiredCapability(category)); err != nil {
		return nil, apperrors.WithDetails(err, map[string]any{"category": category})
	}

	active, err := e.registry.ActiveFor(ctx, category, ownerID)
	if err != nil {
		return nil, apperrors.WithDetails(err, map[string]any{"category": category})
	}
	if active != nil {
		if op := OperationID(ctx); op != "" && active.OperationID == op {
			e.logger.Info("ticket already registered by this operation",
				zap.String("ticket", active.ID.String()),
				zap.String("operation", op))
			return e.created(ctx, active, group), nil
		}
		return nil, apperrors.NewDuplicateActiveTicket(map[string]any{"category": category, "active_ticket": active.ID.String()})
	}

	number, err := e.counters.ReserveNext(ctx, category)
	if err != nil {
		return nil, apperrors.WithDetails(err, map[string]any{"category": category})
	}
	ticket, err := e.registry.Register(ctx, category, ownerID, number)
	if err != nil {
		e.logger.Warn("ticket number consumed by failed registration",
			zap.String("category", string(category)),
			zap.Int64("number", number),
			zap.Error(err))
		return nil, apperrors.WithDetails(err, map[string]any{"category": category, "number": number})
	}
	return e.created(ctx, ticket, group), nil
}

func (e *LifecycleEngine) created(ctx context.Context, ticket *domain.Ticket, group string) *Result {
	e.publish(ctx, events.EventTicketCreated, ticket, ticket.OwnerID, events.TicketCreatedPayload{
		Category: ticket.ID.Category,
		Number:   ticket.ID.Number,
		OwnerID:  ticket.OwnerID,
	})
	return &Result{
		Ticket:  ticket,
		Changed: true,
		Effects: []domain.Effect{
			{Kind: domain.EffectCreateChannel, Ticket: ticket.ID, Name: ChannelName(ticket), GroupID: group, OwnerID: ticket.OwnerID},
			{Kind: domain.EffectPostMessage, Ticket: ticket.ID, Template: domain.TemplateTicketOpened},
		},
	}
}

// CloseTicket closes the ticket. Closing an already closed ticket is a no-op.
func (e *LifecycleEngine) CloseTicket(ctx context.Context, id domain.TicketID, actorID string) (*Result, error) {
	return e.transition(ctx, id, domain.ActionClose, actorID)
}

// ExportTicket exports the ticket, closing it first when it is still open.
func (e *LifecycleEngine) ExportTicket(ctx context.Context, id domain.TicketID, actorID string) (*Result, error) {
	return e.transition(ctx, id, domain.ActionExport, actorID)
}

func (e *LifecycleEngine) transition(ctx context.Context, id domain.TicketID, action domain.TicketAction, actorID string) (*Result, error) {
	details := map[string]any{"ticket": id.String(), "action": action}
	current, err := e.registry.Get(ctx, id)
	if err != nil {
		return nil, apperrors.WithDetails(err, details)
	}
	if current.OwnerID != actorID {
		if err := e.authorize(ctx, actorID, domain.CapabilityAdmin); err != nil {
			return nil, apperrors.WithDetails(err, details)
		}
	}

	ticket, changed, err := e.registry.Transition(ctx, id, action, actorID)
	if err != nil {
		return nil, apperrors.WithDetails(err, details)
	}
	result := &Result{Ticket: ticket, Changed: changed}
	if !changed {
		return result, nil
	}
	before := previousState(ticket)
	result.Effects = e.transitionEffects(ticket, before)

	e.publish(ctx, events.EventTicketStateChanged, ticket, actorID, events.TicketStateChangedPayload{
		Action:   action,
		OldState: before,
		NewState: ticket.State,
	})
	return result, nil
}

func (e *LifecycleEngine) transitionEffects(ticket *domain.Ticket, from domain.TicketState) []domain.Effect {
	var effects []domain.Effect
	if from == domain.TicketStateOpen {
		effects = append(effects, domain.Effect{Kind: domain.EffectRenameChannel, Ticket: ticket.ID, Name: ChannelName(ticket)})
	}
	switch ticket.State {
	case domain.TicketStateClosed:
		effects = append(effects, domain.Effect{Kind: domain.EffectPostMessage, Ticket: ticket.ID, Template: domain.TemplateTicketClosed})
	case domain.TicketStateExported:
		effects = append(effects,
			domain.Effect{Kind: domain.EffectExportTranscript, Ticket: ticket.ID, TargetID: e.exportID},
			domain.Effect{Kind: domain.EffectPostMessage, Ticket: ticket.ID, Template: domain.TemplateTicketExported},
			domain.Effect{Kind: domain.EffectArchiveChannel, Ticket: ticket.ID, GroupID: e.archiveID},
		)
	}
	return effects
}

// BindChannel records the channel the gateway provisioned for the ticket.
func (e *LifecycleEngine) BindChannel(ctx context.Context, id domain.TicketID, channelID string) error {
	if channelID == "" {
		return apperrors.NewValidationError("channel is required", map[string]any{"ticket": id.String()})
	}
	return e.registry.AttachChannel(ctx, id, channelID)
}

// Ticket returns a ticket snapshot.
func (e *LifecycleEngine) Ticket(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	return e.registry.Get(ctx, id)
}

// TicketByChannel returns the ticket provisioned into channelID.
func (e *LifecycleEngine) TicketByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	return e.registry.FindByChannel(ctx, channelID)
}

// History lists the ticket's recorded state changes.
func (e *LifecycleEngine) History(ctx context.Context, id domain.TicketID) ([]domain.TicketHistory, error) {
	if _, err := e.registry.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.registry.History(ctx, id)
}

func (e *LifecycleEngine) authorize(ctx context.Context, actorID string, capability domain.Capability) error {
	if capability == domain.CapabilityNone {
		return nil
	}
	if e.roles == nil {
		return apperrors.NewUnauthorized("no role lookup configured")
	}
	ok, err := e.roles.HasCapability(ctx, actorID, capability)
	if err != nil {
		return apperrors.NewStoreUnavailable("role lookup", err)
	}
	if !ok {
		return apperrors.WithDetails(apperrors.NewUnauthorized("missing capability"), map[string]any{"capability": capability})
	}
	return nil
}

func (e *LifecycleEngine) publish(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, actorID string, payload any) {
	if e.bus == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID.String(),
		ActorID:   actorID,
		Timestamp: e.now().UTC(),
		Payload:   payload,
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// previousState derives the state a changed ticket came from. Only a close from OPEN
// sets ClosedAt, so an exported ticket without it was exported straight from OPEN.
func previousState(t *domain.Ticket) domain.TicketState {
	if t.State == domain.TicketStateExported && t.ClosedAt != nil {
		return domain.TicketStateClosed
	}
	return domain.TicketStateOpen
}

// ChannelName is the platform channel name for a ticket in its current state.
func ChannelName(t *domain.Ticket) string {
	if t.State == domain.TicketStateOpen {
		return t.ID.String()
	}
	return "closed-" + t.ID.String()
}
