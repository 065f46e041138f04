package retry

import (
	"context"
	"time"
)

// Policy bounds an exponential backoff loop.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy is used when a zero Policy is supplied.
var DefaultPolicy = Policy{Attempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// Do runs fn until it succeeds, retryable reports false, attempts run out or ctx ends.
// The last error is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		p = DefaultPolicy
	}
	delay := p.InitialDelay
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.Attempts || !retryable(err) {
			return err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
