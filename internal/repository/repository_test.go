package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

type store interface {
	CounterRepository
	TicketRepository
	TicketHistoryRepository
}

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := MigrateLocal(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewLocalStore(db)
}

func stores(t *testing.T) map[string]store {
	return map[string]store{
		"memory": NewMemoryStore(),
		"local":  newLocalStore(t),
	}
}

func openTicket(category domain.Category, number int64, owner string) *domain.Ticket {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Ticket{
		ID:        domain.TicketID{Category: category, Number: number},
		OwnerID:   owner,
		State:     domain.TicketStateOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestReserveSequence(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Ensure(ctx, domain.Categories); err != nil {
				t.Fatalf("ensure: %v", err)
			}
			for want := int64(1); want <= 3; want++ {
				got, err := s.Reserve(ctx, domain.CategorySponsor)
				if err != nil {
					t.Fatalf("reserve: %v", err)
				}
				if got != want {
					t.Fatalf("reserve = %d, want %d", got, want)
				}
			}
			got, err := s.Reserve(ctx, domain.CategoryReport)
			if err != nil || got != 1 {
				t.Fatalf("report counter = %d, %v; want 1", got, err)
			}
			if err := s.Ensure(ctx, domain.Categories); err != nil {
				t.Fatalf("ensure again: %v", err)
			}
			got, _ = s.Reserve(ctx, domain.CategorySponsor)
			if got != 4 {
				t.Fatalf("ensure must not reset counters, got %d", got)
			}
		})
	}
}

func TestReserveConcurrentIsGapFree(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const n = 25
			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				got []int64
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := s.Reserve(context.Background(), domain.CategoryReport)
					if err != nil {
						t.Errorf("reserve: %v", err)
						return
					}
					mu.Lock()
					got = append(got, v)
					mu.Unlock()
				}()
			}
			wg.Wait()
			sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
			if len(got) != n {
				t.Fatalf("got %d values", len(got))
			}
			for i, v := range got {
				if v != int64(i+1) {
					t.Fatalf("values not contiguous: %v", got)
				}
			}
		})
	}
}

func TestCreateRejectsSecondActiveTicket(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Create(ctx, openTicket(domain.CategorySponsor, 1, "u1")); err != nil {
				t.Fatalf("create: %v", err)
			}
			err := s.Create(ctx, openTicket(domain.CategorySponsor, 2, "u1"))
			if !errors.Is(err, ErrDuplicateActive) {
				t.Fatalf("err = %v, want ErrDuplicateActive", err)
			}
			if err := s.Create(ctx, openTicket(domain.CategoryReport, 1, "u1")); err != nil {
				t.Fatalf("other category should be allowed: %v", err)
			}
		})
	}
}

func TestUpdateStateCompareAndSet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tk := openTicket(domain.CategorySponsor, 1, "u1")
			if err := s.Create(ctx, tk); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := s.SetChannel(ctx, tk.ID, "chan-1"); err != nil {
				t.Fatalf("set channel: %v", err)
			}

			closed := tk.Clone()
			closedAt := tk.CreatedAt.Add(time.Minute)
			closed.State = domain.TicketStateClosed
			closed.ClosedAt = &closedAt
			closed.UpdatedAt = closedAt
			entry := &domain.TicketHistory{TicketID: tk.ID, ActorID: "u1", Action: domain.ActionClose,
				FromState: domain.TicketStateOpen, ToState: domain.TicketStateClosed, CreatedAt: closedAt}
			if err := s.UpdateState(ctx, closed, domain.TicketStateOpen, entry); err != nil {
				t.Fatalf("update: %v", err)
			}
			if err := s.UpdateState(ctx, closed, domain.TicketStateOpen, nil); !errors.Is(err, ErrStateConflict) {
				t.Fatalf("stale update err = %v, want ErrStateConflict", err)
			}
			missing := openTicket(domain.CategorySponsor, 99, "u9")
			if err := s.UpdateState(ctx, missing, domain.TicketStateOpen, nil); !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing update err = %v, want ErrNotFound", err)
			}

			got, err := s.GetByChannel(ctx, "chan-1")
			if err != nil {
				t.Fatalf("get by channel: %v", err)
			}
			if got.State != domain.TicketStateClosed || got.ClosedAt == nil {
				t.Fatalf("stored ticket = %+v", got)
			}
			active, err := s.FindActive(ctx, domain.CategorySponsor, "u1")
			if err != nil || active.ID != tk.ID {
				t.Fatalf("closed ticket should still be active: %+v, %v", active, err)
			}
			history, err := s.ListByTicket(ctx, tk.ID)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(history) != 1 || history[0].ToState != domain.TicketStateClosed || history[0].ID == "" {
				t.Fatalf("history = %+v", history)
			}
		})
	}
}

func TestExportedTicketFreesOwnerSlot(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tk := openTicket(domain.CategoryReport, 1, "u2")
			if err := s.Create(ctx, tk); err != nil {
				t.Fatalf("create: %v", err)
			}
			exported := tk.Clone()
			at := tk.CreatedAt.Add(time.Hour)
			exported.State = domain.TicketStateExported
			exported.ExportedAt = &at
			if err := s.UpdateState(ctx, exported, domain.TicketStateOpen, nil); err != nil {
				t.Fatalf("update: %v", err)
			}
			if _, err := s.FindActive(ctx, domain.CategoryReport, "u2"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("find active err = %v, want ErrNotFound", err)
			}
			if err := s.Create(ctx, openTicket(domain.CategoryReport, 2, "u2")); err != nil {
				t.Fatalf("new ticket after export: %v", err)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.Get(ctx, domain.TicketID{Category: domain.CategorySponsor, Number: 7}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v", err)
			}
			if _, err := s.GetByChannel(ctx, ""); !errors.Is(err, ErrNotFound) {
				t.Fatalf("empty channel err = %v", err)
			}
			if err := s.SetChannel(ctx, domain.TicketID{Category: domain.CategorySponsor, Number: 7}, "c"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("set channel err = %v", err)
			}
		})
	}
}
