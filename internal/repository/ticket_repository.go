package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

const activeOwnerIndex = "tickets_one_active_per_owner"

// TicketRepository encapsulates ticket persistence. Tickets are never deleted.
type TicketRepository interface {
	// Create inserts a new ticket, failing with ErrDuplicateActive when the owner
	// already has an active ticket in the category.
	Create(ctx context.Context, ticket *domain.Ticket) error
	Get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error)
	GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	FindActive(ctx context.Context, category domain.Category, ownerID string) (*domain.Ticket, error)
	// UpdateState persists ticket's new state only if the stored state still equals from,
	// and appends entry to the history in the same unit of work.
	UpdateState(ctx context.Context, ticket *domain.Ticket, from domain.TicketState, entry *domain.TicketHistory) error
	SetChannel(ctx context.Context, id domain.TicketID, channelID string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `category, number, owner_id, channel_id, state, created_at, updated_at, closed_at, exported_at, operation_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (category, number, owner_id, channel_id, state, created_at, updated_at, operation_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID.Category,
		ticket.ID.Number,
		ticket.OwnerID,
		ticket.ChannelID,
		ticket.State,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.OperationID,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeOwnerIndex {
		return ErrDuplicateActive
	}
	return err
}

func (r *ticketRepository) Get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE category=$1 AND number=$2`
	return r.fetchSingle(ctx, query, id.Category, id.Number)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE channel_id=$1 AND channel_id <> ''`
	return r.fetchSingle(ctx, query, channelID)
}

func (r *ticketRepository) FindActive(ctx context.Context, category domain.Category, ownerID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE category=$1 AND owner_id=$2 AND state <> 'EXPORTED'`
	return r.fetchSingle(ctx, query, category, ownerID)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var category, state string
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&category,
		&ticket.ID.Number,
		&ticket.OwnerID,
		&ticket.ChannelID,
		&state,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.ExportedAt,
		&ticket.OperationID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ticket.ID.Category = domain.Category(category)
	ticket.State = domain.TicketState(state)
	return &ticket, nil
}

func (r *ticketRepository) UpdateState(ctx context.Context, ticket *domain.Ticket, from domain.TicketState, entry *domain.TicketHistory) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const update = `
        UPDATE tickets SET state=$1, updated_at=$2, closed_at=$3, exported_at=$4
        WHERE category=$5 AND number=$6 AND state=$7`
	cmd, err := tx.Exec(ctx, update,
		ticket.State,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.ExportedAt,
		ticket.ID.Category,
		ticket.ID.Number,
		from,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.classifyMiss(ctx, tx, ticket.ID)
	}

	if entry != nil {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		const insert = `
            INSERT INTO ticket_history (id, category, number, actor_id, action, from_state, to_state, created_at, operation_id)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
		if _, err := tx.Exec(ctx, insert,
			entry.ID,
			entry.TicketID.Category,
			entry.TicketID.Number,
			entry.ActorID,
			entry.Action,
			entry.FromState,
			entry.ToState,
			entry.CreatedAt,
			entry.OperationID,
		); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) classifyMiss(ctx context.Context, tx pgx.Tx, id domain.TicketID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE category=$1 AND number=$2)`, id.Category, id.Number).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}

func (r *ticketRepository) SetChannel(ctx context.Context, id domain.TicketID, channelID string) error {
	const query = `UPDATE tickets SET channel_id=$1, updated_at=NOW() WHERE category=$2 AND number=$3`
	cmd, err := r.pool.Exec(ctx, query, channelID, id.Category, id.Number)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
