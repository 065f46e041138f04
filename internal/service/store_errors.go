package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// withStoreTimeout bounds a single store call.
func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeFailure classifies a backend error, reporting TIMEOUT when the call's own
// deadline expired even if the driver returned a different error.
func storeFailure(ctx context.Context, store string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return apperrors.NewStoreUnavailable(store, err)
}
