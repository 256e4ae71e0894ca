package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/sync"
)

// ErrPassInProgress is returned by RunOnce when a pass is already running.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Overlap decides what Start does while a pass is running.
type Overlap int

const (
	// OverlapQueue arms one follow-up pass, with the settle delay, once the
	// running pass ends.
	OverlapQueue Overlap = iota
	// OverlapSkip ignores the request.
	OverlapSkip
)

// ParseOverlap converts a configuration value ("queue" or "skip").
func ParseOverlap(name string) (Overlap, error) {
	switch name {
	case "", "queue":
		return OverlapQueue, nil
	case "skip":
		return OverlapSkip, nil
	default:
		return OverlapQueue, fmt.Errorf("unknown overlap policy %q", name)
	}
}

// State is the scheduler state.
type State int

const (
	// StateIdle means no timer is armed and no pass is running.
	StateIdle State = iota
	// StatePending means the watchdog timer is armed.
	StatePending
	// StateRunning means a pass is in flight.
	StateRunning
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Syncer reconciles one collection. *sync.CollectionSyncer implements it.
type Syncer interface {
	Sync(ctx context.Context, c record.Collection, profileID string) (sync.CollectionResult, error)
}

// ProfileResolver returns the active profile. It is called once per trigger
// and the result is reused for every collection of the pass.
type ProfileResolver func(ctx context.Context) (string, error)

// StaticProfile always resolves to id.
func StaticProfile(id string) ProfileResolver {
	return func(context.Context) (string, error) {
		return id, nil
	}
}

// Config holds configuration for the scheduler.
type Config struct {
	// SettleDelay is the wait between Start and the pass it triggers.
	SettleDelay time.Duration

	// IntervalMin and IntervalMax bound the adaptive watchdog interval.
	IntervalMin time.Duration
	IntervalMax time.Duration

	// Collections are synced in this order, one at a time.
	Collections []record.Collection

	// Overlap applies to Start calls made while a pass runs.
	Overlap Overlap

	// Emitter receives PassStarted and PassStopped.
	Emitter sync.Emitter

	// Logger for scheduler activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SettleDelay: 500 * time.Millisecond,
		IntervalMin: 2 * time.Second,
		IntervalMax: 15 * time.Second,
		Collections: record.Ordered(),
		Overlap:     OverlapQueue,
		Emitter:     sync.NopEmitter{},
		Logger:      log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Scheduler owns the watchdog timer and runs passes over the collections.
//
// State machine:
//
//	Idle --Start--> Pending --timer--> Running --pass ends--> Pending
//	                   any state --Disconnect--> Idle
//
// Only one pass runs at a time. Passes are never cancelled half way by
// StopWatch or Disconnect; they only prevent the next one.
type Scheduler struct {
	adapter  cloud.Adapter
	syncer   Syncer
	profiles ProfileResolver
	config   *Config

	mu        gosync.Mutex
	idle      *gosync.Cond
	timer     *time.Timer
	gen       uint64
	state     State
	stat      SyncStat
	connected bool
	queued    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. A nil config uses DefaultConfig(); zero fields
// fall back to their defaults.
func New(adapter cloud.Adapter, syncer Syncer, profiles ProfileResolver, config *Config) *Scheduler {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = defaults.SettleDelay
	}
	if config.IntervalMin <= 0 {
		config.IntervalMin = defaults.IntervalMin
	}
	if config.IntervalMax <= 0 {
		config.IntervalMax = defaults.IntervalMax
	}
	if len(config.Collections) == 0 {
		config.Collections = defaults.Collections
	}
	if config.Emitter == nil {
		config.Emitter = defaults.Emitter
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		adapter:   adapter,
		syncer:    syncer,
		profiles:  profiles,
		config:    config,
		stat:      NewSyncStat(config.IntervalMin, config.IntervalMax),
		connected: true,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.idle = gosync.NewCond(&s.mu)
	return s
}

// Start cancels any pending watchdog and arms a pass after the settle
// delay. While a pass runs the Overlap policy applies.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	if s.state == StateRunning {
		if s.config.Overlap == OverlapQueue {
			s.queued = true
		}
		return
	}
	s.arm(s.config.SettleDelay)
}

// StopWatch cancels the pending watchdog timer and any queued follow-up.
// A running pass is not affected.
func (s *Scheduler) StopWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
}

// Disconnect stops the watchdog, prevents a running pass from rescheduling
// and drops the backend session when the adapter supports it. SyncStat is
// kept. Start reconnects the scheduler.
func (s *Scheduler) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.stopTimer()
	s.mu.Unlock()

	if err := cloud.Disconnect(ctx, s.adapter); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	s.config.Logger.Println("Disconnected")
	return nil
}

// RunOnce runs one pass synchronously without touching the watchdog.
func (s *Scheduler) RunOnce(ctx context.Context) (sync.PassStopped, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return sync.PassStopped{}, ErrPassInProgress
	}
	s.state = StateRunning
	s.mu.Unlock()

	stopped, err := s.execute(ctx, false)

	s.mu.Lock()
	s.state = StateIdle
	if s.timer != nil {
		s.state = StatePending
	}
	if s.queued && s.connected {
		s.arm(s.config.SettleDelay)
	}
	s.queued = false
	s.idle.Broadcast()
	s.mu.Unlock()

	return stopped, err
}

// Wait blocks until no pass is running.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state == StateRunning {
		s.idle.Wait()
	}
}

// Close stops the watchdog, cancels a running pass and waits for it.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.connected = false
	s.stopTimer()
	s.mu.Unlock()

	s.cancel()
	s.Wait()
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stat returns a copy of the scheduling state.
func (s *Scheduler) Stat() SyncStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stat
}

// arm replaces the watchdog timer. Callers hold mu.
func (s *Scheduler) arm(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.state = StatePending
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
}

// stopTimer cancels the watchdog. Callers hold mu.
func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.queued = false
	if s.state == StatePending {
		s.state = StateIdle
	}
}

// fire runs a pass for the timer armed with generation gen. Timers that
// were replaced or stopped after they started firing are ignored.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.connected {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.state == StateRunning {
		// RunOnce holds the pass slot; run right after it.
		s.queued = true
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.mu.Unlock()

	stopped, err := s.execute(s.ctx, true)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.idle.Broadcast()

	s.state = StateIdle
	if sync.IsKind(err, sync.KindAuth) && !s.queued {
		// No retry is scheduled after an authentication failure.
		return
	}
	if !s.connected {
		s.queued = false
		return
	}

	delay := stopped.NextInterval
	if s.queued {
		delay = s.config.SettleDelay
		s.queued = false
	}
	s.arm(delay)
}

// execute resolves the profile, checks authentication and runs one pass.
// Pass failures are reported through PassStopped as well as the returned
// error. watchdog is false for passes that never reschedule.
func (s *Scheduler) execute(ctx context.Context, watchdog bool) (sync.PassStopped, error) {
	profileID, err := s.profiles(ctx)
	if err != nil {
		err = &sync.Error{Kind: sync.KindAuth, Err: fmt.Errorf("failed to resolve profile: %w", err)}
		s.config.Logger.Printf("AuthenticationFailure: %v", err)
		return sync.PassStopped{}, err
	}

	ok, err := s.adapter.CheckAuth(ctx)
	if err == nil && !ok {
		err = sync.ErrNotAuthenticated
	}
	if err != nil {
		err = &sync.Error{Kind: sync.KindAuth, Err: err}
		s.config.Logger.Printf("AuthenticationFailure: %v", err)
		return sync.PassStopped{}, err
	}

	return s.pass(ctx, profileID, watchdog)
}

// pass walks the collections strictly in order and stops at the first
// failure. A failed pass counts as having seen no remote change.
func (s *Scheduler) pass(ctx context.Context, profileID string, watchdog bool) (sync.PassStopped, error) {
	started := time.Now()

	s.mu.Lock()
	s.stat.HadRemoteChange = false
	s.mu.Unlock()

	s.config.Emitter.Emit(sync.PassStarted{At: started, ProfileID: profileID})

	stopped := sync.PassStopped{
		StartedAt: started,
		ProfileID: profileID,
		Status:    sync.StatusSuccess,
	}

	var passErr error
	for _, c := range s.config.Collections {
		result, err := s.syncer.Sync(ctx, c, profileID)
		stopped.Collections = append(stopped.Collections, result)
		if err != nil {
			passErr = err
			break
		}
	}
	stopped.Duration = time.Since(started)

	hadRemoteChange := false
	if passErr != nil {
		stopped.Status = sync.StatusError
		stopped.Err = passErr
	} else {
		hadRemoteChange = stopped.RemoteChanges() > 0
	}

	s.mu.Lock()
	next := s.stat.advance(hadRemoteChange)
	if watchdog && s.connected {
		stopped.NextInterval = next
	}
	s.mu.Unlock()

	s.config.Emitter.Emit(stopped)
	return stopped, passErr
}
