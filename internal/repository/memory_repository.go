package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// MemoryStore implements the counter, ticket and history repositories in process memory.
// State lasts for the life of the process only.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[domain.Category]int64
	tickets  map[domain.TicketID]*domain.Ticket
	history  map[domain.TicketID][]domain.TicketHistory
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[domain.Category]int64),
		tickets:  make(map[domain.TicketID]*domain.Ticket),
		history:  make(map[domain.TicketID][]domain.TicketHistory),
	}
}

func (s *MemoryStore) Reserve(ctx context.Context, category domain.Category) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[category]++
	return s.counters[category], nil
}

func (s *MemoryStore) Ensure(_ context.Context, categories []domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range categories {
		if _, ok := s.counters[c]; !ok {
			s.counters[c] = 0
		}
	}
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tickets {
		if existing.ID.Category == ticket.ID.Category && existing.OwnerID == ticket.OwnerID && existing.State.IsActive() {
			return ErrDuplicateActive
		}
	}
	s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.TicketID) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) GetByChannel(_ context.Context, channelID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if channelID != "" && t.ChannelID == channelID {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindActive(_ context.Context, category domain.Category, ownerID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.ID.Category == category && t.OwnerID == ownerID && t.State.IsActive() {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateState(ctx context.Context, ticket *domain.Ticket, from domain.TicketState, entry *domain.TicketHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	if current.State != from {
		return ErrStateConflict
	}
	updated := ticket.Clone()
	updated.ChannelID = current.ChannelID
	s.tickets[ticket.ID] = updated
	if entry != nil {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		s.history[ticket.ID] = append(s.history[ticket.ID], *entry)
	}
	return nil
}

func (s *MemoryStore) SetChannel(_ context.Context, id domain.TicketID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return ErrNotFound
	}
	t.ChannelID = channelID
	return nil
}

func (s *MemoryStore) ListByTicket(_ context.Context, id domain.TicketID) ([]domain.TicketHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TicketHistory, len(s.history[id]))
	copy(out, s.history[id])
	return out, nil
}
