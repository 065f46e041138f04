package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// TicketHistoryRepository reads the audit trail written by TicketRepository.UpdateState.
type TicketHistoryRepository interface {
	ListByTicket(ctx context.Context, id domain.TicketID) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, id domain.TicketID) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, actor_id, action, from_state, to_state, created_at, operation_id
        FROM ticket_history WHERE category=$1 AND number=$2 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, id.Category, id.Number)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		history := domain.TicketHistory{TicketID: id}
		var action, from, to string
		if err := rows.Scan(
			&history.ID,
			&history.ActorID,
			&action,
			&from,
			&to,
			&history.CreatedAt,
			&history.OperationID,
		); err != nil {
			return nil, err
		}
		history.Action = domain.TicketAction(action)
		history.FromState = domain.TicketState(from)
		history.ToState = domain.TicketState(to)
		result = append(result, history)
	}
	return result, rows.Err()
}
