package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StartupStep is one piece of work that must finish before the bot serves interactions.
type StartupStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// Lifecycle tracks whether the process finished its one-time startup. The gateway
// reports every READY event; only the first successful one runs the startup steps.
type Lifecycle struct {
	// startMu serializes OnReady; mu guards the fields below and is never held
	// while a step runs.
	startMu     sync.Mutex
	mu          sync.Mutex
	steps       []StartupStep
	logger      *zap.Logger
	initialized bool
	readyCount  int
	startedAt   time.Time
	now         func() time.Time
}

// NewLifecycle constructs an uninitialized lifecycle.
func NewLifecycle(logger *zap.Logger, steps ...StartupStep) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{steps: steps, logger: logger, now: time.Now}
}

// OnReady handles a gateway READY event. A failed startup leaves the lifecycle
// uninitialized so the next READY retries it.
func (l *Lifecycle) OnReady(ctx context.Context) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	l.mu.Lock()
	l.readyCount++
	initialized, readyCount := l.initialized, l.readyCount
	l.mu.Unlock()

	if initialized {
		l.logger.Info("Reconnected to Discord.", zap.Int("ready_events", readyCount))
		return nil
	}
	for _, step := range l.steps {
		if err := step.Run(ctx); err != nil {
			l.logger.Error("startup step failed", zap.String("step", step.Name), zap.Error(err))
			return fmt.Errorf("startup step %s: %w", step.Name, err)
		}
		l.logger.Info("startup step complete", zap.String("step", step.Name))
	}

	l.mu.Lock()
	l.initialized = true
	l.startedAt = l.now()
	l.mu.Unlock()
	l.logger.Info("bot startup complete")
	return nil
}

// Initialized reports whether startup completed.
func (l *Lifecycle) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initialized
}

// Status is a point-in-time view used by the health endpoint.
type Status struct {
	Initialized bool      `json:"initialized"`
	ReadyEvents int       `json:"ready_events"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// Status returns the current lifecycle status.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{Initialized: l.initialized, ReadyEvents: l.readyCount, StartedAt: l.startedAt}
}
