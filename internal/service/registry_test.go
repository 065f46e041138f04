package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// ackLossRepo commits writes and then reports a deadline, like a commit whose
// acknowledgement never arrived.
type ackLossRepo struct {
	*repository.MemoryStore
	loseCreate bool
	loseUpdate bool
}

func (r *ackLossRepo) Create(ctx context.Context, t *domain.Ticket) error {
	if err := r.MemoryStore.Create(ctx, t); err != nil {
		return err
	}
	if r.loseCreate {
		r.loseCreate = false
		return context.DeadlineExceeded
	}
	return nil
}

func (r *ackLossRepo) UpdateState(ctx context.Context, t *domain.Ticket, from domain.TicketState, entry *domain.TicketHistory) error {
	if err := r.MemoryStore.UpdateState(ctx, t, from, entry); err != nil {
		return err
	}
	if r.loseUpdate {
		r.loseUpdate = false
		return context.DeadlineExceeded
	}
	return nil
}

func newAckLossEngine(repo *ackLossRepo) *LifecycleEngine {
	return NewLifecycleEngine(EngineDependencies{
		Counters: NewCounterStore(repo.MemoryStore, time.Second, nil),
		Registry: NewTicketRegistry(RegistryDependencies{TicketRepo: repo, HistoryRepo: repo.MemoryStore, Timeout: time.Second}),
		Tickets:  defaultTickets(),
	})
}

func TestRetriedCreateReplaysCommittedTicket(t *testing.T) {
	repo := &ackLossRepo{MemoryStore: repository.NewMemoryStore(), loseCreate: true}
	engine := newAckLossEngine(repo)
	ctx := WithOperationID(context.Background(), "op-create")

	_, err := engine.CreateTicket(ctx, domain.CategoryReport, "U1")
	if !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Fatalf("first attempt err = %v, want timeout", err)
	}

	res, err := engine.CreateTicket(ctx, domain.CategoryReport, "U1")
	if err != nil {
		t.Fatalf("retried create: %v", err)
	}
	if !res.Changed || res.Ticket.ID.Number != 1 {
		t.Fatalf("retried create = %+v", res.Ticket)
	}
	if !sameKinds(effectKinds(res.Effects), domain.EffectCreateChannel, domain.EffectPostMessage) {
		t.Fatalf("effects = %v", effectKinds(res.Effects))
	}

	other := WithOperationID(context.Background(), "op-other")
	if _, err := engine.CreateTicket(other, domain.CategoryReport, "U1"); !apperrors.IsCode(err, apperrors.CodeDuplicateActiveTicket) {
		t.Fatalf("different operation err = %v, want duplicate", err)
	}
}

func TestRetriedCloseReplaysCommittedTransition(t *testing.T) {
	repo := &ackLossRepo{MemoryStore: repository.NewMemoryStore()}
	engine := newAckLossEngine(repo)
	created, err := engine.CreateTicket(context.Background(), domain.CategoryReport, "U1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.Ticket.ID

	repo.loseUpdate = true
	ctx := WithOperationID(context.Background(), "op-close")
	if _, err := engine.CloseTicket(ctx, id, "U1"); !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Fatalf("first attempt err = %v, want timeout", err)
	}

	res, err := engine.CloseTicket(ctx, id, "U1")
	if err != nil {
		t.Fatalf("retried close: %v", err)
	}
	if !res.Changed || res.Ticket.State != domain.TicketStateClosed {
		t.Fatalf("retried close = %+v changed=%v", res.Ticket, res.Changed)
	}
	if !sameKinds(effectKinds(res.Effects), domain.EffectRenameChannel, domain.EffectPostMessage) {
		t.Fatalf("effects = %v", effectKinds(res.Effects))
	}

	again, err := engine.CloseTicket(WithOperationID(context.Background(), "op-later"), id, "U1")
	if err != nil || again.Changed || len(again.Effects) != 0 {
		t.Fatalf("later close = %+v, %v", again, err)
	}

	history, err := engine.History(context.Background(), id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].OperationID != "op-close" {
		t.Fatalf("history = %+v", history)
	}
}

func TestRetriedExportReplaysAfterTerminalState(t *testing.T) {
	repo := &ackLossRepo{MemoryStore: repository.NewMemoryStore()}
	engine := newAckLossEngine(repo)
	created, err := engine.CreateTicket(context.Background(), domain.CategoryReport, "U1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	repo.loseUpdate = true
	ctx := WithOperationID(context.Background(), "op-export")
	if _, err := engine.ExportTicket(ctx, created.Ticket.ID, "U1"); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	res, err := engine.ExportTicket(ctx, created.Ticket.ID, "U1")
	if err != nil {
		t.Fatalf("retried export: %v", err)
	}
	if !res.Changed || !sameKinds(effectKinds(res.Effects),
		domain.EffectRenameChannel, domain.EffectExportTranscript, domain.EffectPostMessage, domain.EffectArchiveChannel) {
		t.Fatalf("effects = %v changed=%v", effectKinds(res.Effects), res.Changed)
	}

	_, err = engine.ExportTicket(WithOperationID(context.Background(), "op-later"), created.Ticket.ID, "U1")
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("later export err = %v, want invalid transition", err)
	}
}

func TestKeyedMutexGivesUpWithContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiting lock err = %v", err)
	}
	if k.size() != 1 {
		t.Fatalf("size = %d, want 1", k.size())
	}

	unlock()
	if k.size() != 0 {
		t.Fatalf("size = %d after unlock", k.size())
	}
	unlock, err = k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock()
}

func TestTransitionTimesOutWaitingForTicketLock(t *testing.T) {
	store := repository.NewMemoryStore()
	registry := NewTicketRegistry(RegistryDependencies{TicketRepo: store, HistoryRepo: store, Timeout: 20 * time.Millisecond})
	ticket, err := registry.Register(context.Background(), domain.CategoryReport, "U1", 1)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	unlock, err := registry.ticketLocks.Lock(context.Background(), ticket.ID.String())
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	start := time.Now()
	_, _, err = registry.Transition(context.Background(), ticket.ID, domain.ActionClose, "U1")
	if !apperrors.IsCode(err, apperrors.CodeTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("transition waited %v", elapsed)
	}
}
