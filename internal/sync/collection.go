package sync

import (
	"context"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/record"
)

// Config holds configuration for the collection syncer.
type Config struct {
	// WriteConcurrency bounds the number of record writes in flight for one
	// direction of one collection.
	WriteConcurrency int

	// Emitter receives a RemoteApplied event per remote record written
	// locally. May be called from several goroutines at once.
	Emitter Emitter

	// Logger for syncer activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WriteConcurrency: 8,
		Emitter:          NopEmitter{},
		Logger:           log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// CollectionResult summarises the reconciliation of one collection.
type CollectionResult struct {
	Collection    record.Collection `json:"collection"`
	RemoteToLocal int               `json:"remote_to_local"`
	LocalToRemote int               `json:"local_to_remote"`
	Duration      time.Duration     `json:"duration"`
}

// CollectionSyncer reconciles one collection at a time between the local
// stores and a cloud adapter. It keeps no state between calls.
type CollectionSyncer struct {
	stores  StoreProvider
	adapter cloud.Adapter
	config  *Config
}

// New creates a collection syncer. A nil config uses DefaultConfig().
func New(stores StoreProvider, adapter cloud.Adapter, config *Config) *CollectionSyncer {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Emitter == nil {
		config.Emitter = defaults.Emitter
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.WriteConcurrency == 0 {
		config.WriteConcurrency = defaults.WriteConcurrency
	}

	return &CollectionSyncer{
		stores:  stores,
		adapter: adapter,
		config:  config,
	}
}

// Adapter returns the cloud adapter the syncer writes to.
func (s *CollectionSyncer) Adapter() cloud.Adapter {
	return s.adapter
}

// Sync performs one bidirectional reconciliation of collection c:
//
//  1. list local records
//  2. list remote records for the profile
//  3. write every remote winner locally and wait for all writes
//  4. write every local winner remotely and wait for all writes
//
// Step 4 only starts once step 3 has settled and compares against the local
// view as updated by step 3. Any failure aborts the collection.
func (s *CollectionSyncer) Sync(ctx context.Context, c record.Collection, profileID string) (CollectionResult, error) {
	start := time.Now()
	result := CollectionResult{Collection: c}

	store, err := s.stores.Store(c)
	if err != nil {
		return result, &Error{Kind: KindFetch, Collection: c, Err: err}
	}

	local, err := store.Find(ctx)
	if err != nil {
		return result, &Error{Kind: KindFetch, Collection: c, Err: err}
	}

	remote, err := s.adapter.Find(ctx, cloud.Query{Type: c, ProfileID: profileID})
	if err != nil {
		return result, &Error{Kind: KindFetch, Collection: c, Err: err}
	}

	localIdx := record.Index(local)
	remoteIdx := record.Index(remote)

	toLocal := PlanRemoteToLocal(remote, localIdx)
	written, err := s.join(ctx, c, ToLocal, toLocal, func(ctx context.Context, r record.Record) error {
		if err := store.SaveModelObject(ctx, r, profileID); err != nil {
			return err
		}
		s.config.Emitter.Emit(RemoteApplied{Collection: c, Record: r})
		return nil
	})
	result.RemoteToLocal = written
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	for _, r := range toLocal {
		localIdx[r.ID] = r
	}

	toRemote := PlanLocalToRemote(values(localIdx), remoteIdx)
	written, err = s.join(ctx, c, ToRemote, toRemote, func(ctx context.Context, r record.Record) error {
		return s.adapter.SaveModel(ctx, cloud.SaveArgs{Type: c, Record: r, ProfileID: profileID})
	})
	result.LocalToRemote = written
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	s.config.Logger.Printf("Synced %s: remote->local=%d local->remote=%d (%d local, %d remote)",
		c, result.RemoteToLocal, result.LocalToRemote, len(localIdx), len(remoteIdx))
	return result, nil
}

// join issues every write concurrently and waits for all of them. The first
// failure cancels the group: writes that have not started yet are skipped,
// writes already issued are not rolled back.
func (s *CollectionSyncer) join(ctx context.Context, c record.Collection, dir Direction, records []record.Record, write func(context.Context, record.Record) error) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.WriteConcurrency)

	var written atomic.Int64
	for _, r := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := write(gctx, r); err != nil {
				return &Error{Kind: KindWrite, Collection: c, Direction: dir, RecordID: r.ID, Err: err}
			}
			written.Add(1)
			return nil
		})
	}

	err := g.Wait()
	return int(written.Load()), err
}

func values(idx map[string]record.Record) []record.Record {
	out := make([]record.Record, 0, len(idx))
	for _, r := range idx {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
