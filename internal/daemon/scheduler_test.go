package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/sync"
	"github.com/vbgl/encryptic/internal/sync/synctest"
)

const testProfile = "default"

type harness struct {
	sched   *Scheduler
	adapter *synctest.Adapter
	stores  map[record.Collection]*synctest.Store
	events  chan sync.Event
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupScheduler builds a scheduler over in-memory stores with short
// delays: settle 5ms, interval 20ms..220ms. syncer may be nil to use a real
// collection syncer.
func setupScheduler(t *testing.T, syncer Syncer, mutate func(*Config)) *harness {
	t.Helper()

	provider, stores := synctest.Stores()
	adapter := synctest.NewAdapter()
	if syncer == nil {
		syncer = sync.New(provider, adapter, &sync.Config{Logger: quietLogger()})
	}

	events := make(chan sync.Event, 100)
	config := &Config{
		SettleDelay: 5 * time.Millisecond,
		IntervalMin: 20 * time.Millisecond,
		IntervalMax: 220 * time.Millisecond,
		Emitter: sync.EmitterFunc(func(e sync.Event) {
			select {
			case events <- e:
			default:
			}
		}),
		Logger: quietLogger(),
	}
	if mutate != nil {
		mutate(config)
	}

	sched := New(adapter, syncer, StaticProfile(testProfile), config)
	t.Cleanup(sched.Close)

	return &harness{sched: sched, adapter: adapter, stores: stores, events: events}
}

// nextEvent waits for the next event of type T.
func nextEvent[T sync.Event](t *testing.T, h *harness, timeout time.Duration) T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-h.events:
			if v, ok := e.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// expectQuiet fails if any event arrives within d.
func expectQuiet(t *testing.T, h *harness, d time.Duration) {
	t.Helper()
	select {
	case e := <-h.events:
		t.Fatalf("unexpected event %T", e)
	case <-time.After(d):
	}
}

// gateSyncer blocks every collection until release is closed.
type gateSyncer struct {
	entered chan record.Collection
	release chan struct{}
}

func newGateSyncer() *gateSyncer {
	return &gateSyncer{entered: make(chan record.Collection, 16), release: make(chan struct{})}
}

func (g *gateSyncer) Sync(ctx context.Context, c record.Collection, profileID string) (sync.CollectionResult, error) {
	g.entered <- c
	<-g.release
	return sync.CollectionResult{Collection: c}, nil
}

// orderSyncer records the collection order and detects overlapping calls.
type orderSyncer struct {
	mu      gosync.Mutex
	order   []record.Collection
	active  atomic.Int32
	overlap atomic.Bool
}

func (o *orderSyncer) Sync(ctx context.Context, c record.Collection, profileID string) (sync.CollectionResult, error) {
	if o.active.Add(1) > 1 {
		o.overlap.Store(true)
	}
	defer o.active.Add(-1)

	time.Sleep(2 * time.Millisecond)
	o.mu.Lock()
	o.order = append(o.order, c)
	o.mu.Unlock()
	return sync.CollectionResult{Collection: c}, nil
}

func TestScheduler_PassReschedulesWithIdleInterval(t *testing.T) {
	h := setupScheduler(t, nil, nil)

	if h.sched.State() != StateIdle {
		t.Fatalf("initial state = %s", h.sched.State())
	}
	h.sched.Start()

	started := nextEvent[sync.PassStarted](t, h, time.Second)
	if started.ProfileID != testProfile {
		t.Errorf("profile = %q", started.ProfileID)
	}

	stopped := nextEvent[sync.PassStopped](t, h, time.Second)
	if stopped.Status != sync.StatusSuccess || stopped.Err != nil {
		t.Fatalf("unexpected pass result: %+v", stopped)
	}
	if len(stopped.Collections) != len(record.Ordered()) {
		t.Errorf("expected every collection synced, got %d", len(stopped.Collections))
	}
	// 20ms + 0.2 * 200ms
	if stopped.NextInterval != 60*time.Millisecond {
		t.Errorf("NextInterval = %v, want 60ms", stopped.NextInterval)
	}

	// The watchdog fires again without another Start
	nextEvent[sync.PassStarted](t, h, time.Second)
}

func TestScheduler_RemoteChangeKeepsIntervalShort(t *testing.T) {
	h := setupScheduler(t, nil, func(c *Config) { c.IntervalMin = time.Second; c.IntervalMax = 2 * time.Second })
	h.adapter.Put(testProfile, record.Notes, record.New("B", 200, nil))

	h.sched.Start()
	stopped := nextEvent[sync.PassStopped](t, h, time.Second)

	if stopped.RemoteChanges() != 1 {
		t.Fatalf("remote changes = %d, want 1", stopped.RemoteChanges())
	}
	if stopped.NextInterval != time.Second {
		t.Errorf("NextInterval = %v, want clamped 1s", stopped.NextInterval)
	}
	if _, ok := h.stores[record.Notes].Get("B"); !ok {
		t.Error("remote record not applied")
	}

	h.sched.StopWatch()
	h.sched.Wait()
	if !h.sched.Stat().HadRemoteChange {
		t.Error("expected HadRemoteChange after a pass with remote writes")
	}
}

func TestScheduler_CollectionsRunSequentially(t *testing.T) {
	syncer := &orderSyncer{}
	h := setupScheduler(t, syncer, func(c *Config) { c.IntervalMin = time.Second; c.IntervalMax = 2 * time.Second })

	h.sched.Start()
	nextEvent[sync.PassStopped](t, h, time.Second)

	syncer.mu.Lock()
	order := append([]record.Collection(nil), syncer.order...)
	syncer.mu.Unlock()

	want := record.Ordered()
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
	if syncer.overlap.Load() {
		t.Error("collections overlapped")
	}
}

func TestScheduler_FailureAbortsPassAndReschedules(t *testing.T) {
	h := setupScheduler(t, nil, nil)
	h.adapter.FindErr[record.Tags] = errors.New("503 service unavailable")

	h.sched.Start()
	stopped := nextEvent[sync.PassStopped](t, h, time.Second)

	if stopped.Status != sync.StatusError || !sync.IsKind(stopped.Err, sync.KindFetch) {
		t.Fatalf("expected fetch failure, got %+v", stopped)
	}
	if n := len(stopped.Collections); n != 3 {
		t.Errorf("expected notes, notebooks and tags attempted, got %d", n)
	}
	for _, q := range h.adapter.Finds() {
		if q.Type == record.Files {
			t.Error("files must not be synced after tags failed")
		}
	}

	// A failed pass counts as idle
	if stopped.NextInterval != 60*time.Millisecond {
		t.Errorf("NextInterval = %v, want 60ms", stopped.NextInterval)
	}

	// The next watchdog tick is the retry
	nextEvent[sync.PassStarted](t, h, time.Second)
}

func TestScheduler_WriteFailureSkipsPush(t *testing.T) {
	h := setupScheduler(t, nil, nil)
	ctx := context.Background()

	h.adapter.Put(testProfile, record.Notes, record.New("B", 200, nil))
	_ = h.stores[record.Notes].SaveModelObject(ctx, record.New("A", 100, nil), testProfile)
	h.stores[record.Notes].SaveErr["B"] = errors.New("disk full")

	h.sched.Start()
	stopped := nextEvent[sync.PassStopped](t, h, time.Second)

	if stopped.Status != sync.StatusError || !sync.IsKind(stopped.Err, sync.KindWrite) {
		t.Fatalf("expected write failure, got %+v", stopped)
	}
	if len(h.adapter.Saves()) != 0 {
		t.Error("local-to-remote step ran after the remote-to-local join failed")
	}
	if stopped.NextInterval == 0 {
		t.Error("watchdog must reschedule after a failed pass")
	}
}

func TestScheduler_AuthenticationFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(a *synctest.Adapter)
	}{
		{name: "not authorized", setup: func(a *synctest.Adapter) { a.SetAuthorized(false) }},
		{name: "check fails", setup: func(a *synctest.Adapter) { a.AuthErr = errors.New("token endpoint down") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupScheduler(t, nil, nil)
			tt.setup(h.adapter)

			h.sched.Start()
			expectQuiet(t, h, 100*time.Millisecond)

			if len(h.adapter.Finds()) != 0 {
				t.Error("no collection may be synced without authentication")
			}
			if h.sched.State() != StateIdle {
				t.Errorf("state = %s, want idle (no reschedule)", h.sched.State())
			}
		})
	}
}

func TestScheduler_ProfileFailure(t *testing.T) {
	h := setupScheduler(t, nil, nil)
	h.sched.profiles = func(context.Context) (string, error) { return "", errors.New("no active profile") }

	_, err := h.sched.RunOnce(context.Background())
	if !sync.IsKind(err, sync.KindAuth) {
		t.Errorf("expected auth failure, got %v", err)
	}
}

func TestScheduler_DisconnectWhilePending(t *testing.T) {
	h := setupScheduler(t, nil, func(c *Config) { c.SettleDelay = 50 * time.Millisecond })

	h.sched.Start()
	if h.sched.State() != StatePending {
		t.Fatalf("state after Start = %s", h.sched.State())
	}

	if err := h.sched.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() failed: %v", err)
	}
	if !h.adapter.Disconnected() {
		t.Error("adapter disconnect capability not invoked")
	}
	if h.sched.State() != StateIdle {
		t.Errorf("state after Disconnect = %s", h.sched.State())
	}

	expectQuiet(t, h, 120*time.Millisecond)

	// Start brings the engine back
	h.adapter.SetAuthorized(true)
	h.sched.Start()
	nextEvent[sync.PassStopped](t, h, time.Second)
}

func TestScheduler_DisconnectDuringPass(t *testing.T) {
	gate := newGateSyncer()
	h := setupScheduler(t, gate, nil)

	h.sched.Start()
	nextEvent[sync.PassStarted](t, h, time.Second)
	<-gate.entered

	if h.sched.State() != StateRunning {
		t.Fatalf("state = %s, want running", h.sched.State())
	}
	if err := h.sched.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect() failed: %v", err)
	}
	close(gate.release)

	// The running pass completes
	stopped := nextEvent[sync.PassStopped](t, h, time.Second)
	if stopped.Status != sync.StatusSuccess {
		t.Errorf("pass status = %s", stopped.Status)
	}
	if stopped.NextInterval != 0 {
		t.Errorf("NextInterval = %v, want 0 after disconnect", stopped.NextInterval)
	}

	h.sched.Wait()
	if h.sched.State() != StateIdle {
		t.Errorf("state = %s, want idle", h.sched.State())
	}
	expectQuiet(t, h, 100*time.Millisecond)

	if stat := h.sched.Stat(); stat.Interval != 60*time.Millisecond {
		t.Errorf("SyncStat must be kept, interval = %v", stat.Interval)
	}
}

func TestScheduler_DisconnectWithoutCapability(t *testing.T) {
	provider, _ := synctest.Stores()
	inner := synctest.NewAdapter()
	plain := synctest.WithoutDisconnect(inner)
	syncer := sync.New(provider, plain, &sync.Config{Logger: quietLogger()})

	sched := New(plain, syncer, StaticProfile(testProfile), &Config{Logger: quietLogger()})
	defer sched.Close()

	if err := sched.Disconnect(context.Background()); err != nil {
		t.Errorf("Disconnect() = %v, want nil", err)
	}
	if inner.Disconnected() {
		t.Error("disconnect must not reach an adapter without the capability")
	}
}

func TestScheduler_StopWatch(t *testing.T) {
	h := setupScheduler(t, nil, func(c *Config) { c.SettleDelay = 50 * time.Millisecond })

	h.sched.StopWatch() // no-op when idle
	h.sched.Start()
	h.sched.StopWatch()

	if h.sched.State() != StateIdle {
		t.Errorf("state = %s, want idle", h.sched.State())
	}
	expectQuiet(t, h, 120*time.Millisecond)
}

func TestScheduler_StartReplacesPendingTimer(t *testing.T) {
	h := setupScheduler(t, nil, func(c *Config) {
		c.SettleDelay = 40 * time.Millisecond
		c.IntervalMin = 5 * time.Second
		c.IntervalMax = 10 * time.Second
	})

	for i := 0; i < 5; i++ {
		h.sched.Start()
		time.Sleep(5 * time.Millisecond)
	}

	nextEvent[sync.PassStarted](t, h, time.Second)
	nextEvent[sync.PassStopped](t, h, time.Second)

	// Exactly one pass: the replaced timers never fire
	expectQuiet(t, h, 100*time.Millisecond)
}

func TestScheduler_OverlapQueue(t *testing.T) {
	gate := newGateSyncer()
	h := setupScheduler(t, gate, func(c *Config) {
		c.IntervalMin = 5 * time.Second
		c.IntervalMax = 10 * time.Second
	})

	h.sched.Start()
	nextEvent[sync.PassStarted](t, h, time.Second)
	<-gate.entered

	h.sched.Start() // during the pass
	close(gate.release)
	nextEvent[sync.PassStopped](t, h, time.Second)

	// The queued request runs after the settle delay, well before the watchdog
	nextEvent[sync.PassStarted](t, h, time.Second)
}

func TestScheduler_OverlapSkip(t *testing.T) {
	gate := newGateSyncer()
	h := setupScheduler(t, gate, func(c *Config) {
		c.Overlap = OverlapSkip
		c.IntervalMin = 5 * time.Second
		c.IntervalMax = 10 * time.Second
	})

	h.sched.Start()
	nextEvent[sync.PassStarted](t, h, time.Second)
	<-gate.entered

	h.sched.Start() // ignored
	close(gate.release)
	stopped := nextEvent[sync.PassStopped](t, h, time.Second)

	expectQuiet(t, h, 150*time.Millisecond)
	if h.sched.State() != StatePending {
		t.Errorf("state = %s, want pending on the watchdog", h.sched.State())
	}
	if stopped.NextInterval != 6*time.Second {
		t.Errorf("NextInterval = %v, want 6s", stopped.NextInterval)
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	h := setupScheduler(t, nil, nil)
	h.adapter.Put(testProfile, record.Tags, record.New("t1", 5, nil))

	stopped, err := h.sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() failed: %v", err)
	}
	if stopped.RemoteChanges() != 1 || stopped.NextInterval != 0 {
		t.Errorf("unexpected pass: %+v", stopped)
	}
	if h.sched.State() != StateIdle {
		t.Errorf("RunOnce must not arm the watchdog, state = %s", h.sched.State())
	}
}

func TestScheduler_RunOnceWhileRunning(t *testing.T) {
	gate := newGateSyncer()
	h := setupScheduler(t, gate, nil)

	h.sched.Start()
	<-gate.entered

	if _, err := h.sched.RunOnce(context.Background()); !errors.Is(err, ErrPassInProgress) {
		t.Errorf("RunOnce() = %v, want ErrPassInProgress", err)
	}
	close(gate.release)
	nextEvent[sync.PassStopped](t, h, time.Second)
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle: "idle", StatePending: "pending", StateRunning: "running", State(9): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
