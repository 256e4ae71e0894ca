package sync

import (
	"log"
	gosync "sync"
	"time"

	"github.com/vbgl/encryptic/internal/record"
)

// Event is the interface implemented by all lifecycle events.
type Event interface {
	isEvent()
}

// Emitter receives lifecycle events. Emit is called synchronously and, for
// RemoteApplied, from several write goroutines at once; implementations
// must be safe for concurrent use and should not block.
type Emitter interface {
	Emit(event Event)
}

// Status is the outcome of a pass.
type Status string

const (
	// StatusSuccess means every collection was reconciled.
	StatusSuccess Status = "success"
	// StatusError means the pass stopped at the first failing collection.
	StatusError Status = "error"
)

// PassStarted is emitted when a pass begins.
type PassStarted struct {
	At        time.Time
	ProfileID string
}

func (PassStarted) isEvent() {}

// PassStopped is emitted when a pass ends, successfully or not.
type PassStopped struct {
	StartedAt   time.Time
	Duration    time.Duration
	ProfileID   string
	Status      Status
	Err         error
	Collections []CollectionResult

	// NextInterval is the watchdog delay armed after this pass. Zero when
	// the scheduler does not reschedule (single runs, disconnects).
	NextInterval time.Duration
}

func (PassStopped) isEvent() {}

// RemoteChanges returns the number of remote-to-local writes in the pass.
func (p PassStopped) RemoteChanges() int {
	n := 0
	for _, c := range p.Collections {
		n += c.RemoteToLocal
	}
	return n
}

// LocalChanges returns the number of local-to-remote writes in the pass.
func (p PassStopped) LocalChanges() int {
	n := 0
	for _, c := range p.Collections {
		n += c.LocalToRemote
	}
	return n
}

// RemoteApplied is emitted for every remote record written locally.
type RemoteApplied struct {
	Collection record.Collection
	Record     record.Record
}

func (RemoteApplied) isEvent() {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(event Event) {
	f(event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Event) {}

// MultiEmitter fans events out to several emitters in order.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}

// LogEmitter writes a line per event to a logger.
type LogEmitter struct {
	Logger *log.Logger
}

// Emit implements Emitter.
func (l LogEmitter) Emit(event Event) {
	if l.Logger == nil {
		return
	}
	switch e := event.(type) {
	case PassStarted:
		l.Logger.Printf("Pass started (profile=%s)", e.ProfileID)
	case PassStopped:
		if e.Status == StatusSuccess {
			l.Logger.Printf("Pass finished in %v: remote=%d local=%d next=%v",
				e.Duration.Round(time.Millisecond), e.RemoteChanges(), e.LocalChanges(), e.NextInterval)
		} else {
			l.Logger.Printf("Pass failed after %v: %v (next=%v)",
				e.Duration.Round(time.Millisecond), e.Err, e.NextInterval)
		}
	case RemoteApplied:
		l.Logger.Printf("Applied remote %s/%s (updated=%d)", e.Collection, e.Record.ID, e.Record.Updated)
	}
}

// Recorder keeps every event it receives. It is used by tests and by the
// one-shot sync command to summarise a run.
type Recorder struct {
	mu     gosync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Applied returns the recorded RemoteApplied events.
func (r *Recorder) Applied() []RemoteApplied {
	var out []RemoteApplied
	for _, e := range r.Events() {
		if a, ok := e.(RemoteApplied); ok {
			out = append(out, a)
		}
	}
	return out
}

// Stopped returns the recorded PassStopped events.
func (r *Recorder) Stopped() []PassStopped {
	var out []PassStopped
	for _, e := range r.Events() {
		if s, ok := e.(PassStopped); ok {
			out = append(out, s)
		}
	}
	return out
}
