package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// CounterRepository hands out per-category sequence numbers with one atomic backend operation.
type CounterRepository interface {
	// Reserve increments and returns the category counter. A category with no record starts at 1.
	Reserve(ctx context.Context, category domain.Category) (int64, error)
	// Ensure creates missing counter records without touching existing values.
	Ensure(ctx context.Context, categories []domain.Category) error
}

type postgresCounterRepository struct {
	pool *pgxpool.Pool
}

// NewCounterRepository builds the Postgres counter repository.
func NewCounterRepository(pool *pgxpool.Pool) CounterRepository {
	return &postgresCounterRepository{pool: pool}
}

func (r *postgresCounterRepository) Reserve(ctx context.Context, category domain.Category) (int64, error) {
	const query = `
        INSERT INTO ticket_counters (category, value) VALUES ($1, 1)
        ON CONFLICT (category) DO UPDATE SET value = ticket_counters.value + 1, updated_at = NOW()
        RETURNING value`
	var value int64
	if err := r.pool.QueryRow(ctx, query, category).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

func (r *postgresCounterRepository) Ensure(ctx context.Context, categories []domain.Category) error {
	const query = `INSERT INTO ticket_counters (category, value) VALUES ($1, 0) ON CONFLICT (category) DO NOTHING`
	for _, c := range categories {
		if _, err := r.pool.Exec(ctx, query, c); err != nil {
			return fmt.Errorf("ensure counter %s: %w", c, err)
		}
	}
	return nil
}

type redisCounterRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisCounterRepository builds a counter backed by INCR. Durability follows the
// server's persistence settings (AOF with fsync is expected in production).
func NewRedisCounterRepository(client *redis.Client, prefix string) CounterRepository {
	return &redisCounterRepository{client: client, prefix: prefix}
}

func (r *redisCounterRepository) key(category domain.Category) string {
	if r.prefix == "" {
		return "counter:" + string(category)
	}
	return r.prefix + ":counter:" + string(category)
}

func (r *redisCounterRepository) Reserve(ctx context.Context, category domain.Category) (int64, error) {
	return r.client.Incr(ctx, r.key(category)).Result()
}

func (r *redisCounterRepository) Ensure(ctx context.Context, categories []domain.Category) error {
	for _, c := range categories {
		if err := r.client.SetNX(ctx, r.key(c), 0, 0).Err(); err != nil {
			return fmt.Errorf("ensure counter %s: %w", c, err)
		}
	}
	return nil
}
