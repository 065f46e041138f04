package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

const counterStoreName = "counter store"

// CounterStore hands out durable per-category ticket numbers.
type CounterStore struct {
	repo    repository.CounterRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewCounterStore wraps a counter repository. Every call is bounded by timeout.
func NewCounterStore(repo repository.CounterRepository, timeout time.Duration, logger *zap.Logger) *CounterStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterStore{repo: repo, timeout: timeout, logger: logger}
}

// Init makes sure every category has a counter record. Existing values are kept.
func (s *CounterStore) Init(ctx context.Context, categories []domain.Category) error {
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Ensure(callCtx, categories); err != nil {
		return storeFailure(callCtx, counterStoreName, err)
	}
	s.logger.Info("ticket counters ready", zap.Int("categories", len(categories)))
	return nil
}

// ReserveNext returns the next number for category. Numbers are never handed out twice,
// and a number is consumed even if the caller fails to use it.
func (s *CounterStore) ReserveNext(ctx context.Context, category domain.Category) (int64, error) {
	if _, ok := domain.ParseCategory(string(category)); !ok {
		return 0, apperrors.NewMalformed("unknown ticket category", map[string]any{"category": category})
	}
	callCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.repo.Reserve(callCtx, category)
	if err != nil {
		s.logger.Warn("counter reservation failed", zap.String("category", string(category)), zap.Error(err))
		return 0, storeFailure(callCtx, counterStoreName, err)
	}
	return n, nil
}
