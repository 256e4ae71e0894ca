// Package loadtest measures sync passes over large, divergent datasets.
//
// A Fixture pairs a SQLite local store with a Dropbox-like backend on an
// in-memory filesystem, both populated so that a known share of records is
// local-only, remote-only, newer on either side or already in sync. Passes
// are then timed while concurrent readers query the local store.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	gosync "sync"
	"time"

	"github.com/spf13/afero"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/cloud/dropbox"
	"github.com/vbgl/encryptic/internal/daemon"
	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/store"
	"github.com/vbgl/encryptic/internal/sync"
)

const (
	fixtureRoot = "/encryptic"
	profileID   = "loadtest"
)

// Options shapes the generated data. The four shares must sum to at most 1;
// the remainder is in sync on both sides.
type Options struct {
	// Records per collection
	Records int

	LocalOnly   float64
	RemoteOnly  float64
	RemoteNewer float64
	LocalNewer  float64

	// Seed makes the distribution reproducible.
	Seed int64
}

// DefaultOptions returns a mixed workload of 1000 records per collection.
func DefaultOptions() Options {
	return Options{
		Records:     1000,
		LocalOnly:   0.1,
		RemoteOnly:  0.1,
		RemoteNewer: 0.2,
		LocalNewer:  0.2,
		Seed:        42,
	}
}

// Fixture is a populated local store and backend.
type Fixture struct {
	DB      *store.DB
	Adapter *dropbox.Adapter
	Options Options

	expected map[record.Collection]sync.CollectionResult
}

// LatencyStats captures the distribution of measured durations.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Operations int
	Errors     int
}

// NewFixture creates the local database at dbPath and populates both sides.
func NewFixture(ctx context.Context, dbPath string, opts Options) (*Fixture, error) {
	if opts.Records <= 0 {
		return nil, fmt.Errorf("records must be positive")
	}
	if opts.LocalOnly+opts.RemoteOnly+opts.RemoteNewer+opts.LocalNewer > 1 {
		return nil, fmt.Errorf("record shares exceed 1")
	}

	database, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchemaContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(fixtureRoot, 0755); err != nil {
		_ = database.Close()
		return nil, err
	}
	adapter := dropbox.NewWithFs(fs, fixtureRoot)
	adapter.SetLogger(log.New(io.Discard, "", 0))

	f := &Fixture{
		DB:       database,
		Adapter:  adapter,
		Options:  opts,
		expected: make(map[record.Collection]sync.CollectionResult),
	}
	if err := f.populate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	return f, nil
}

// populate writes each record to one or both sides according to a seeded
// draw and tallies the writes a pass is expected to make.
func (f *Fixture) populate(ctx context.Context) error {
	rng := rand.New(rand.NewSource(f.Options.Seed))
	base := time.Now().Add(-30 * 24 * time.Hour).UnixMilli()

	for _, c := range record.Ordered() {
		local := f.DB.Collection(c)
		want := sync.CollectionResult{Collection: c}

		for i := 0; i < f.Options.Records; i++ {
			id := fmt.Sprintf("%s-%05d", c, i)
			updated := base + int64(i)*60_000
			fields := map[string]any{"title": fmt.Sprintf("%s %d", c, i), "batch": i / 100}

			var l, r *record.Record
			switch draw := rng.Float64(); {
			case draw < f.Options.LocalOnly:
				l = ptr(record.New(id, updated, fields))
				want.LocalToRemote++
			case draw < f.Options.LocalOnly+f.Options.RemoteOnly:
				r = ptr(record.New(id, updated, fields))
				want.RemoteToLocal++
			case draw < f.Options.LocalOnly+f.Options.RemoteOnly+f.Options.RemoteNewer:
				l = ptr(record.New(id, updated, fields))
				r = ptr(record.New(id, updated+1000, fields))
				want.RemoteToLocal++
			case draw < f.Options.LocalOnly+f.Options.RemoteOnly+f.Options.RemoteNewer+f.Options.LocalNewer:
				l = ptr(record.New(id, updated+1000, fields))
				r = ptr(record.New(id, updated, fields))
				want.LocalToRemote++
			default:
				l = ptr(record.New(id, updated, fields))
				r = ptr(record.New(id, updated, fields))
			}

			if l != nil {
				if err := local.SaveModelObject(ctx, *l, profileID); err != nil {
					return fmt.Errorf("failed to insert local %s: %w", id, err)
				}
			}
			if r != nil {
				if err := f.Adapter.SaveModel(ctx, cloud.SaveArgs{Type: c, Record: *r, ProfileID: profileID}); err != nil {
					return fmt.Errorf("failed to insert remote %s: %w", id, err)
				}
			}
		}
		f.expected[c] = want
	}
	return nil
}

func ptr(r record.Record) *record.Record { return &r }

// Close closes the local database.
func (f *Fixture) Close() error {
	if f.DB != nil {
		return f.DB.Close()
	}
	return nil
}

// Expected returns the writes the first pass must make per collection.
func (f *Fixture) Expected() map[record.Collection]sync.CollectionResult {
	out := make(map[record.Collection]sync.CollectionResult, len(f.expected))
	for c, r := range f.expected {
		out[c] = r
	}
	return out
}

// RunPass runs one pass through a scheduler with the given write concurrency.
func (f *Fixture) RunPass(ctx context.Context, writeConcurrency int) (sync.PassStopped, error) {
	quiet := log.New(io.Discard, "", 0)
	syncer := sync.New(f.DB, f.Adapter, &sync.Config{WriteConcurrency: writeConcurrency, Logger: quiet})
	sched := daemon.New(f.Adapter, syncer, daemon.StaticProfile(profileID), &daemon.Config{Logger: quiet})
	defer sched.Close()
	return sched.RunOnce(ctx)
}

// RunConcurrentReads runs readers that list the notes collection until ctx
// is done or each has made perReader queries, whichever comes first. Every
// record returned must be valid.
func (f *Fixture) RunConcurrentReads(ctx context.Context, readers, perReader int) (*LatencyStats, error) {
	var (
		wg        gosync.WaitGroup
		mu        gosync.Mutex
		durations []time.Duration
		errCount  int
		firstErr  error
	)

	notes := f.DB.Collection(record.Notes)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()

			local := make([]time.Duration, 0, perReader)
			defer func() {
				mu.Lock()
				durations = append(durations, local...)
				mu.Unlock()
			}()

			for j := 0; j < perReader && ctx.Err() == nil; j++ {
				start := time.Now()
				recs, err := notes.Find(ctx)
				local = append(local, time.Since(start))

				if err != nil && ctx.Err() == nil {
					mu.Lock()
					errCount++
					if firstErr == nil {
						firstErr = fmt.Errorf("reader %d query %d failed: %w", reader, j, err)
					}
					mu.Unlock()
					return
				}
				for _, r := range recs {
					if err := r.Validate(); err != nil {
						mu.Lock()
						errCount++
						if firstErr == nil {
							firstErr = fmt.Errorf("reader %d saw invalid record: %w", reader, err)
						}
						mu.Unlock()
						return
					}
				}
			}
		}(i)
	}
	wg.Wait()

	stats := computeLatencyStats(durations)
	stats.Errors = errCount
	if len(durations) == 0 {
		return stats, fmt.Errorf("no queries completed")
	}
	return stats, firstErr
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(sorted)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(sorted),
	}
}

// Print writes the statistics in a fixed layout.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "  Operations:   %d\n", s.Operations)
	fmt.Fprintf(w, "  Errors:       %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:          %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median): %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:         %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:          %v\n", s.P95)
	fmt.Fprintf(w, "  P99:          %v\n", s.P99)
	fmt.Fprintf(w, "  Max:          %v\n", s.Max)
}
