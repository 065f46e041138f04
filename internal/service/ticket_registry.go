package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

const registryStoreName = "ticket registry"

// transitions is the ticket state machine. Actions missing from a state's row are invalid.
var transitions = map[domain.TicketState]map[domain.TicketAction]domain.TicketState{
	domain.TicketStateOpen: {
		domain.ActionClose:  domain.TicketStateClosed,
		domain.ActionExport: domain.TicketStateExported,
	},
	domain.TicketStateClosed: {
		domain.ActionClose:  domain.TicketStateClosed,
		domain.ActionExport: domain.TicketStateExported,
	},
}

// NextState reports the state reached by applying action, and whether that is a change.
func NextState(state domain.TicketState, action domain.TicketAction) (domain.TicketState, bool, bool) {
	next, ok := transitions[state][action]
	if !ok {
		return state, false, false
	}
	return next, next != state, true
}

// TicketRegistry is the authoritative record of tickets and their states.
type TicketRegistry struct {
	tickets repository.TicketRepository
	history repository.TicketHistoryRepository
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	ticketLocks *keyedMutex
	ownerLocks  *keyedMutex
}

// RegistryDependencies bundles registry collaborators.
type RegistryDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Timeout     time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewTicketRegistry constructs the registry.
func NewTicketRegistry(deps RegistryDependencies) *TicketRegistry {
	r := &TicketRegistry{
		tickets:     deps.TicketRepo,
		history:     deps.HistoryRepo,
		timeout:     deps.Timeout,
		logger:      deps.Logger,
		now:         deps.Now,
		ticketLocks: newKeyedMutex(),
		ownerLocks:  newKeyedMutex(),
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Register records a new open ticket under a reserved number.
func (r *TicketRegistry) Register(ctx context.Context, category domain.Category, ownerID string, number int64) (*domain.Ticket, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.NewValidationError("owner is required", nil)
	}
	if number <= 0 {
		return nil, apperrors.NewValidationError("ticket number must be positive", map[string]any{"number": number})
	}
	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	unlock, err := r.ownerLocks.Lock(callCtx, string(category)+"/"+ownerID)
	if err != nil {
		return nil, storeFailure(callCtx, registryStoreName, err)
	}
	defer unlock()

	existing, err := r.tickets.FindActive(callCtx, category, ownerID)
	switch {
	case err == nil:
		return nil, apperrors.NewDuplicateActiveTicket(map[string]any{"category": category, "active_ticket": existing.ID.String()})
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeFailure(callCtx, registryStoreName, err)
	}

	now := r.now().UTC()
	ticket := &domain.Ticket{
		ID:          domain.TicketID{Category: category, Number: number},
		OwnerID:     ownerID,
		State:       domain.TicketStateOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		OperationID: OperationID(ctx),
	}
	if err := r.tickets.Create(callCtx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return nil, apperrors.NewDuplicateActiveTicket(map[string]any{"category": category})
		}
		return nil, storeFailure(callCtx, registryStoreName, err)
	}
	return ticket.Clone(), nil
}

// Get returns a snapshot of the ticket.
func (r *TicketRegistry) Get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()
	return r.get(callCtx, id)
}

func (r *TicketRegistry) get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	ticket, err := r.tickets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket": id.String()})
		}
		return nil, storeFailure(ctx, registryStoreName, err)
	}
	return ticket, nil
}

// FindByChannel returns the ticket provisioned into channelID.
func (r *TicketRegistry) FindByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()
	ticket, err := r.tickets.GetByChannel(callCtx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"channel": channelID})
		}
		return nil, storeFailure(callCtx, registryStoreName, err)
	}
	return ticket, nil
}

// ActiveFor returns the owner's open or closed ticket in category, or nil when there is none.
func (r *TicketRegistry) ActiveFor(ctx context.Context, category domain.Category, ownerID string) (*domain.Ticket, error) {
	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()
	ticket, err := r.tickets.FindActive(callCtx, category, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, storeFailure(callCtx, registryStoreName, err)
	}
	return ticket, nil
}

// Transition applies action to the ticket. Closing a closed ticket succeeds with
// changed=false; any action on an exported ticket is INVALID_TRANSITION.
func (r *TicketRegistry) Transition(ctx context.Context, id domain.TicketID, action domain.TicketAction, actorID string) (*domain.Ticket, bool, error) {
	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	unlock, err := r.ticketLocks.Lock(callCtx, id.String())
	if err != nil {
		return nil, false, storeFailure(callCtx, registryStoreName, err)
	}
	defer unlock()

	// A compare-and-set miss means another process moved the ticket; re-read once and
	// evaluate the action against the new state.
	for attempt := 0; ; attempt++ {
		current, err := r.get(callCtx, id)
		if err != nil {
			return nil, false, err
		}
		next, changed, ok := NextState(current.State, action)
		if !ok || !changed {
			applied, err := r.appliedBy(callCtx, current, action)
			if err != nil {
				return nil, false, err
			}
			if applied {
				r.logger.Info("transition already committed by this operation",
					zap.String("ticket", id.String()),
					zap.String("action", string(action)),
					zap.String("operation", OperationID(ctx)))
				return current, true, nil
			}
		}
		if !ok {
			return nil, false, apperrors.NewInvalidTransition(map[string]any{
				"ticket": id.String(),
				"state":  current.State,
				"action": action,
			})
		}
		if !changed {
			return current, false, nil
		}

		now := r.now().UTC()
		updated := current.Clone()
		updated.State = next
		updated.UpdatedAt = now
		switch next {
		case domain.TicketStateClosed:
			updated.ClosedAt = &now
		case domain.TicketStateExported:
			updated.ExportedAt = &now
		}
		entry := &domain.TicketHistory{
			TicketID:    id,
			ActorID:     actorID,
			Action:      action,
			FromState:   current.State,
			ToState:     next,
			CreatedAt:   now,
			OperationID: OperationID(ctx),
		}

		err = r.tickets.UpdateState(callCtx, updated, current.State, entry)
		switch {
		case err == nil:
			r.logger.Info("ticket transitioned",
				zap.String("ticket", id.String()),
				zap.String("action", string(action)),
				zap.String("from", string(current.State)),
				zap.String("to", string(next)),
				zap.String("actor", actorID))
			return updated, true, nil
		case errors.Is(err, repository.ErrStateConflict) && attempt == 0:
			continue
		case errors.Is(err, repository.ErrStateConflict):
			return nil, false, apperrors.NewInvalidTransition(map[string]any{"ticket": id.String(), "action": action})
		case errors.Is(err, repository.ErrNotFound):
			return nil, false, apperrors.NewNotFound("ticket", map[string]any{"ticket": id.String()})
		default:
			return nil, false, storeFailure(callCtx, registryStoreName, err)
		}
	}
}

// AttachChannel records the channel provisioned for the ticket.
func (r *TicketRegistry) AttachChannel(ctx context.Context, id domain.TicketID, channelID string) error {
	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()

	unlock, err := r.ticketLocks.Lock(callCtx, id.String())
	if err != nil {
		return storeFailure(callCtx, registryStoreName, err)
	}
	defer unlock()
	if err := r.tickets.SetChannel(callCtx, id, channelID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket": id.String()})
		}
		return storeFailure(callCtx, registryStoreName, err)
	}
	return nil
}

// appliedBy reports whether the ticket's latest change is action committed under the
// operation in ctx. That happens when an earlier attempt of the same call committed
// but its acknowledgement was lost.
func (r *TicketRegistry) appliedBy(ctx context.Context, current *domain.Ticket, action domain.TicketAction) (bool, error) {
	op := OperationID(ctx)
	if op == "" || r.history == nil {
		return false, nil
	}
	entries, err := r.history.ListByTicket(ctx, current.ID)
	if err != nil {
		return false, storeFailure(ctx, registryStoreName, err)
	}
	if len(entries) == 0 {
		return false, nil
	}
	last := entries[len(entries)-1]
	return last.OperationID == op && last.Action == action && last.ToState == current.State, nil
}

// History lists recorded state changes, oldest first.
func (r *TicketRegistry) History(ctx context.Context, id domain.TicketID) ([]domain.TicketHistory, error) {
	callCtx, cancel := withStoreTimeout(ctx, r.timeout)
	defer cancel()
	entries, err := r.history.ListByTicket(callCtx, id)
	if err != nil {
		return nil, storeFailure(callCtx, registryStoreName, err)
	}
	return entries, nil
}
