package interaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
	"github.com/spec-kit/ticket-bot/pkg/util/retry"
)

type readyFlag bool

func (r readyFlag) Initialized() bool { return bool(r) }

type adminRoles map[string]bool

func (a adminRoles) HasCapability(_ context.Context, actorID string, capability domain.Capability) (bool, error) {
	return capability == domain.CapabilityAdmin && a[actorID], nil
}

var epoch = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, engine Engine) (*Dispatcher, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	d := NewDispatcher(DispatcherDependencies{
		Deduper: NewMemoryDeduper(),
		Window:  2 * time.Second,
		Retry:   retry.Policy{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Roles:   adminRoles{"admin": true},
		Ready:   readyFlag(true),
		Metrics: metrics,
	})
	d.Register(TicketControls(engine)...)
	return d, metrics
}

func newEngine() *service.LifecycleEngine {
	store := repository.NewMemoryStore()
	return service.NewLifecycleEngine(service.EngineDependencies{
		Counters: service.NewCounterStore(store, time.Second, nil),
		Registry: service.NewTicketRegistry(service.RegistryDependencies{TicketRepo: store, HistoryRepo: store, Timeout: time.Second}),
		Roles:    adminRoles{"admin": true},
		Tickets:  config.TicketsConfig{SponsorCategoryID: "g1", ReportCategoryID: "g2"},
	})
}

func command(name, actor string, at time.Time) RawEvent {
	return RawEvent{Kind: KindCommand, Name: name, ActorID: actor, Instant: at}
}

func click(customID, actor string, at time.Time) RawEvent {
	return RawEvent{Kind: KindComponent, Name: customID, ActorID: actor, Instant: at}
}

func TestDispatchCreateAndClose(t *testing.T) {
	d, metrics := newTestDispatcher(t, newEngine())
	ctx := context.Background()

	res := d.Dispatch(ctx, command(CommandSponsor, "U1", epoch))
	if res.Outcome != OutcomeOK || res.Ticket == nil || res.Ticket.ID.Number != 1 {
		t.Fatalf("create result = %+v", res)
	}
	id := res.Ticket.ID

	res = d.Dispatch(ctx, click(ComponentID(domain.ActionClose, id), "U1", epoch.Add(10*time.Second)))
	if res.Outcome != OutcomeOK || !res.Changed || res.Ticket.State != domain.TicketStateClosed {
		t.Fatalf("close result = %+v", res)
	}

	res = d.Dispatch(ctx, click(ComponentID(domain.ActionExport, id), "admin", epoch.Add(20*time.Second)))
	if res.Outcome != OutcomeOK || res.Ticket.State != domain.TicketStateExported {
		t.Fatalf("export result = %+v", res)
	}

	snap := metrics.Snapshot()
	if snap.Dispatch["ticket:close|ok"] != 1 {
		t.Fatalf("dispatch metrics = %v", snap.Dispatch)
	}
}

func TestDispatchDropsRapidDuplicates(t *testing.T) {
	engine := newEngine()
	d, _ := newTestDispatcher(t, engine)
	ctx := context.Background()
	created := d.Dispatch(ctx, command(CommandReport, "U1", epoch))
	customID := ComponentID(domain.ActionClose, created.Ticket.ID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	at := epoch.Add(time.Minute)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := d.Dispatch(ctx, click(customID, "U1", at.Add(time.Duration(i)*100*time.Millisecond)))
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	if outcomes[OutcomeOK] != 1 || outcomes[OutcomeAlreadyHandled] != 4 {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestDispatchCatchesDuplicateAcrossBucketEdge(t *testing.T) {
	d, _ := newTestDispatcher(t, newEngine())
	ctx := context.Background()
	created := d.Dispatch(ctx, command(CommandReport, "U1", epoch))
	customID := ComponentID(domain.ActionClose, created.Ticket.ID)

	edge := epoch.Add(time.Minute).Truncate(2 * time.Second)
	first := d.Dispatch(ctx, click(customID, "U1", edge.Add(-10*time.Millisecond)))
	second := d.Dispatch(ctx, click(customID, "U1", edge.Add(10*time.Millisecond)))
	if first.Outcome != OutcomeOK || second.Outcome != OutcomeAlreadyHandled {
		t.Fatalf("outcomes = %s, %s", first.Outcome, second.Outcome)
	}
}

func TestDispatchTranslatesErrors(t *testing.T) {
	d, _ := newTestDispatcher(t, newEngine())
	ctx := context.Background()
	created := d.Dispatch(ctx, command(CommandSponsor, "U1", epoch))

	dup := d.Dispatch(ctx, command(CommandSponsor, "U1", epoch.Add(time.Minute)))
	if dup.Outcome != OutcomeError || dup.Code != apperrors.CodeDuplicateActiveTicket || dup.Message != msgDuplicate {
		t.Fatalf("duplicate = %+v", dup)
	}

	denied := d.Dispatch(ctx, click(ComponentID(domain.ActionClose, created.Ticket.ID), "U2", epoch.Add(time.Minute)))
	if denied.Code != apperrors.CodeUnauthorized || denied.Message != msgForbidden {
		t.Fatalf("denied = %+v", denied)
	}

	missing := d.Dispatch(ctx, click("ticket:close:report-0042", "U1", epoch.Add(time.Minute)))
	if missing.Code != apperrors.CodeNotFound || missing.Message != msgNotFound {
		t.Fatalf("missing = %+v", missing)
	}

	d.Dispatch(ctx, click(ComponentID(domain.ActionExport, created.Ticket.ID), "U1", epoch.Add(2*time.Minute)))
	invalid := d.Dispatch(ctx, click(ComponentID(domain.ActionClose, created.Ticket.ID), "U1", epoch.Add(3*time.Minute)))
	if invalid.Code != apperrors.CodeInvalidTransition || invalid.Message != msgInvalid {
		t.Fatalf("invalid = %+v", invalid)
	}
}

func TestDispatchMalformed(t *testing.T) {
	d, _ := newTestDispatcher(t, newEngine())
	ctx := context.Background()
	tests := []RawEvent{
		{Kind: KindCommand, Name: "", ActorID: "U1"},
		{Kind: "modal", Name: "sponsor", ActorID: "U1"},
		{Kind: KindCommand, Name: "sponsor", ActorID: ""},
		{Kind: KindCommand, Name: "unknown", ActorID: "U1"},
		{Kind: KindComponent, Name: "ticket:close:not-a-ticket", ActorID: "U1"},
		{Kind: KindComponent, Name: "ticket:close", ActorID: "U1"},
		{Kind: KindComponent, Name: "ticket:reopen:sponsor-0001", ActorID: "U1"},
	}
	for _, ev := range tests {
		if res := d.Dispatch(ctx, ev); res.Outcome != OutcomeMalformed {
			t.Fatalf("Dispatch(%+v) = %+v, want malformed", ev, res)
		}
	}
}

func TestDispatchCommandInsideTicketChannel(t *testing.T) {
	engine := newEngine()
	d, _ := newTestDispatcher(t, engine)
	ctx := context.Background()
	created := d.Dispatch(ctx, command(CommandReport, "U1", epoch))
	if err := engine.BindChannel(ctx, created.Ticket.ID, "chan-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	ev := command(CommandClose, "U1", epoch.Add(time.Minute))
	ev.ChannelID = "chan-1"
	res := d.Dispatch(ctx, ev)
	if res.Outcome != OutcomeOK || res.Ticket.State != domain.TicketStateClosed {
		t.Fatalf("close result = %+v", res)
	}

	ev = command(CommandExport, "U1", epoch.Add(2*time.Minute))
	ev.Options = map[string]string{OptionTicket: created.Ticket.ID.String()}
	res = d.Dispatch(ctx, ev)
	if res.Outcome != OutcomeOK || res.Ticket.State != domain.TicketStateExported {
		t.Fatalf("export result = %+v", res)
	}
}

func TestDispatchBeforeStartup(t *testing.T) {
	d := NewDispatcher(DispatcherDependencies{Ready: readyFlag(false)})
	d.Register(TicketControls(newEngine())...)
	res := d.Dispatch(context.Background(), command(CommandSponsor, "U1", epoch))
	if res.Outcome != OutcomeError || res.Message != msgUnavailable {
		t.Fatalf("result = %+v", res)
	}
}

type flakyEngine struct {
	Engine
	failures int
	calls    int
}

func (f *flakyEngine) CreateTicket(ctx context.Context, category domain.Category, ownerID string) (*service.Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, apperrors.NewStoreUnavailable("counter store", context.Canceled)
	}
	return f.Engine.CreateTicket(ctx, category, ownerID)
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	flaky := &flakyEngine{Engine: newEngine(), failures: 2}
	d, _ := newTestDispatcher(t, flaky)
	res := d.Dispatch(context.Background(), command(CommandReport, "U1", epoch))
	if res.Outcome != OutcomeOK || flaky.calls != 3 {
		t.Fatalf("result = %+v after %d calls", res, flaky.calls)
	}

	exhausted := &flakyEngine{Engine: newEngine(), failures: 10}
	d, _ = newTestDispatcher(t, exhausted)
	res = d.Dispatch(context.Background(), command(CommandReport, "U1", epoch))
	if res.Code != apperrors.CodeStoreUnavailable || res.Message != msgUnavailable || exhausted.calls != 3 {
		t.Fatalf("result = %+v after %d calls", res, exhausted.calls)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	d := NewDispatcher(DispatcherDependencies{})
	controls := TicketControls(newEngine())
	d.Register(controls...)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	d.Register(controls[0])
}

func TestMemoryDeduperExpires(t *testing.T) {
	d := NewMemoryDeduper()
	now := epoch
	d.now = func() time.Time { return now }
	ctx := context.Background()
	if ok, _ := d.Claim(ctx, "a", "", time.Second); !ok {
		t.Fatalf("first claim should succeed")
	}
	if ok, _ := d.Claim(ctx, "a", "", time.Second); ok {
		t.Fatalf("second claim should fail")
	}
	if ok, _ := d.Claim(ctx, "b", "a", time.Second); ok {
		t.Fatalf("claim should fail while previous key is live")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := d.Claim(ctx, "a", "", time.Second); !ok {
		t.Fatalf("claim after expiry should succeed")
	}
}

func TestFailedActionCanBeRetriedInsideWindow(t *testing.T) {
	flaky := &flakyEngine{Engine: newEngine(), failures: 3}
	d, _ := newTestDispatcher(t, flaky)
	ctx := context.Background()

	res := d.Dispatch(ctx, command(CommandReport, "U1", epoch))
	if res.Code != apperrors.CodeStoreUnavailable {
		t.Fatalf("first result = %+v", res)
	}
	res = d.Dispatch(ctx, command(CommandReport, "U1", epoch.Add(time.Second)))
	if res.Outcome != OutcomeOK || flaky.calls != 4 {
		t.Fatalf("second result = %+v after %d calls", res, flaky.calls)
	}
}

// ackLossStore commits the next state update and then reports a deadline.
type ackLossStore struct {
	*repository.MemoryStore
	mu         sync.Mutex
	loseUpdate bool
}

func (s *ackLossStore) UpdateState(ctx context.Context, t *domain.Ticket, from domain.TicketState, entry *domain.TicketHistory) error {
	if err := s.MemoryStore.UpdateState(ctx, t, from, entry); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loseUpdate {
		s.loseUpdate = false
		return context.DeadlineExceeded
	}
	return nil
}

func TestRetriedTransitionKeepsEffects(t *testing.T) {
	store := &ackLossStore{MemoryStore: repository.NewMemoryStore()}
	engine := service.NewLifecycleEngine(service.EngineDependencies{
		Counters: service.NewCounterStore(store.MemoryStore, time.Second, nil),
		Registry: service.NewTicketRegistry(service.RegistryDependencies{TicketRepo: store, HistoryRepo: store.MemoryStore, Timeout: time.Second}),
		Roles:    adminRoles{"admin": true},
		Tickets:  config.TicketsConfig{SponsorCategoryID: "g1", ReportCategoryID: "g2"},
	})
	d, _ := newTestDispatcher(t, engine)
	ctx := context.Background()

	created := d.Dispatch(ctx, command(CommandReport, "U1", epoch))
	if created.Outcome != OutcomeOK {
		t.Fatalf("create = %+v", created)
	}

	store.loseUpdate = true
	ev := click(ComponentID(domain.ActionClose, created.Ticket.ID), "U1", epoch.Add(time.Minute))
	ev.ID = "interaction-close"
	res := d.Dispatch(ctx, ev)
	if res.Outcome != OutcomeOK || !res.Changed || res.Ticket.State != domain.TicketStateClosed {
		t.Fatalf("close = %+v", res)
	}
	if len(res.Effects) != 2 || res.Effects[0].Kind != domain.EffectRenameChannel || res.Effects[1].Kind != domain.EffectPostMessage {
		t.Fatalf("effects = %+v", res.Effects)
	}
}
