package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/service"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
	"github.com/spec-kit/ticket-bot/pkg/util/retry"
)

// Readiness reports whether the process finished startup.
type Readiness interface {
	Initialized() bool
}

// Dispatcher routes inbound events to controls. It drops replays inside the
// deduplication window, retries transient store failures and turns errors into user text.
type Dispatcher struct {
	controls map[string]Control
	dedup    Deduper
	window   time.Duration
	policy   retry.Policy
	roles    auth.RoleLookup
	ready    Readiness
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// DispatcherDependencies bundles dispatcher collaborators.
type DispatcherDependencies struct {
	Deduper Deduper
	Window  time.Duration
	Retry   retry.Policy
	Roles   auth.RoleLookup
	Ready   Readiness
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewDispatcher constructs a dispatcher with no controls.
func NewDispatcher(deps DispatcherDependencies) *Dispatcher {
	d := &Dispatcher{
		controls: make(map[string]Control),
		dedup:    deps.Deduper,
		window:   deps.Window,
		policy:   deps.Retry,
		roles:    deps.Roles,
		ready:    deps.Ready,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if d.dedup == nil {
		d.dedup = NewMemoryDeduper()
	}
	if d.window <= 0 {
		d.window = 2 * time.Second
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Register adds controls. Registering the same id twice panics.
func (d *Dispatcher) Register(controls ...Control) {
	for _, c := range controls {
		if c.ID == "" || c.Target == nil || c.Handler == nil {
			panic(fmt.Sprintf("interaction: incomplete control %q", c.ID))
		}
		if _, exists := d.controls[c.ID]; exists {
			panic(fmt.Sprintf("interaction: control %q registered twice", c.ID))
		}
		d.controls[c.ID] = c
	}
}

// Dispatch handles one inbound event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev RawEvent) Result {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Instant.IsZero() {
		ev.Instant = d.now()
	}
	logger := d.logger.With(
		zap.String("interaction_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("name", ev.Name),
		zap.String("actor", ev.ActorID),
	)

	if d.ready != nil && !d.ready.Initialized() {
		logger.Warn("interaction received before startup completed")
		return d.finish("", errorResult(apperrors.CodeStoreUnavailable))
	}
	if (ev.Kind != KindCommand && ev.Kind != KindComponent) || ev.Name == "" || ev.ActorID == "" {
		logger.Warn("dropping malformed interaction")
		return d.finish("", Result{Outcome: OutcomeMalformed})
	}
	id, arg := controlKey(ev)
	control, ok := d.controls[id]
	if !ok {
		logger.Warn("dropping interaction for unknown control")
		return d.finish("", Result{Outcome: OutcomeMalformed})
	}
	logger = logger.With(zap.String("control", control.ID))
	inv := Invocation{Event: ev, Arg: arg}

	if control.Capability != domain.CapabilityNone {
		if err := d.checkCapability(ctx, ev.ActorID, control.Capability); err != nil {
			return d.finish(control.ID, d.failure(logger, err))
		}
	}

	var target Target
	err := retry.Do(ctx, d.policy, apperrors.IsTransient, func(ctx context.Context) error {
		var err error
		target, err = control.Target(ctx, inv)
		return err
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeMalformed) {
			logger.Warn("dropping interaction with bad target", zap.Error(err))
			return d.finish(control.ID, Result{Outcome: OutcomeMalformed, Control: control.ID})
		}
		return d.finish(control.ID, d.failure(logger, err))
	}

	current, previous := d.keys(target, ev.Instant)
	claimed, err := d.dedup.Claim(ctx, current, previous, 2*d.window)
	if err != nil {
		// proceed: the registry state machine still rejects double transitions
		logger.Warn("idempotency store unavailable", zap.Error(err))
	} else if !claimed {
		logger.Info("duplicate interaction ignored", zap.String("key", current))
		return d.finish(control.ID, Result{Outcome: OutcomeAlreadyHandled, Control: control.ID})
	}

	var res *service.Result
	opCtx := service.WithOperationID(ctx, ev.ID)
	err = retry.Do(opCtx, d.policy, apperrors.IsTransient, func(ctx context.Context) error {
		var err error
		res, err = control.Handler(ctx, inv, target)
		if apperrors.IsTransient(err) {
			logger.Warn("transient failure, retrying", zap.Error(err))
		}
		return err
	})
	if err != nil {
		if claimed {
			if rerr := d.dedup.Release(ctx, current); rerr != nil {
				logger.Warn("unable to release idempotency key", zap.String("key", current), zap.Error(rerr))
			}
		}
		out := d.failure(logger, err)
		out.Control = control.ID
		return d.finish(control.ID, out)
	}

	logger.Info("interaction handled", zap.String("ticket", res.Ticket.ID.String()), zap.Bool("changed", res.Changed))
	return d.finish(control.ID, Result{
		Outcome: OutcomeOK,
		Control: control.ID,
		Ticket:  res.Ticket,
		Effects: res.Effects,
		Changed: res.Changed,
	})
}

// keys returns the idempotency keys for the instant's bucket and the one before it.
func (d *Dispatcher) keys(target Target, instant time.Time) (string, string) {
	bucket := instant.UnixNano() / int64(d.window)
	format := func(b int64) string {
		return fmt.Sprintf("%s|%s|%d", target.Subject, target.Action, b)
	}
	return format(bucket), format(bucket - 1)
}

func (d *Dispatcher) checkCapability(ctx context.Context, actorID string, capability domain.Capability) error {
	if d.roles == nil {
		return apperrors.NewUnauthorized("no role lookup configured")
	}
	ok, err := d.roles.HasCapability(ctx, actorID, capability)
	if err != nil {
		return apperrors.NewStoreUnavailable("role lookup", err)
	}
	if !ok {
		return apperrors.NewUnauthorized("missing capability")
	}
	return nil
}

func (d *Dispatcher) failure(logger *zap.Logger, err error) Result {
	code := apperrors.CodeOf(err)
	if code == "" {
		code = apperrors.CodeInternal
	}
	fields := []zap.Field{zap.String("code", code), zap.Error(err)}
	if de := apperrors.ToDomainError(err); de != nil && len(de.Details) > 0 {
		fields = append(fields, zap.Any("details", de.Details))
	}
	switch code {
	case apperrors.CodeStoreUnavailable, apperrors.CodeTimeout, apperrors.CodeInternal:
		logger.Error("interaction failed", fields...)
	default:
		logger.Info("interaction rejected", fields...)
	}
	return errorResult(code)
}

func (d *Dispatcher) finish(control string, res Result) Result {
	if control == "" {
		control = "unknown"
	}
	d.metrics.RecordDispatch(control, string(res.Outcome))
	return res
}

func errorResult(code string) Result {
	return Result{Outcome: OutcomeError, Code: code, Message: UserMessage(code)}
}
