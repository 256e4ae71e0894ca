package sync_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/sync"
	"github.com/vbgl/encryptic/internal/sync/synctest"
)

const profile = "p1"

// setupSyncer creates a syncer over in-memory stores and adapter.
func setupSyncer(t *testing.T) (*sync.CollectionSyncer, map[record.Collection]*synctest.Store, *synctest.Adapter, *sync.Recorder) {
	t.Helper()

	provider, stores := synctest.Stores()
	adapter := synctest.NewAdapter()
	recorder := &sync.Recorder{}

	syncer := sync.New(provider, adapter, &sync.Config{
		WriteConcurrency: 4,
		Emitter:          recorder,
		Logger:           log.New(io.Discard, "", 0),
	})
	return syncer, stores, adapter, recorder
}

func TestSync_LocalOnlyRecordIsPushed(t *testing.T) {
	syncer, stores, adapter, recorder := setupSyncer(t)
	_ = stores[record.Notes].SaveModelObject(context.Background(), record.New("A", 100, map[string]any{"title": "a"}), profile)
	baseline := len(stores[record.Notes].Saves())

	result, err := syncer.Sync(context.Background(), record.Notes, profile)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if result.LocalToRemote != 1 || result.RemoteToLocal != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	saves := adapter.Saves()
	if len(saves) != 1 || saves[0].Record.ID != "A" || saves[0].Type != record.Notes || saves[0].ProfileID != profile {
		t.Errorf("expected one remote write of A, got %+v", saves)
	}
	if got := len(stores[record.Notes].Saves()) - baseline; got != 0 {
		t.Errorf("expected no local writes, got %d", got)
	}
	if len(recorder.Applied()) != 0 {
		t.Error("no RemoteApplied event expected")
	}
}

func TestSync_RemoteOnlyRecordIsApplied(t *testing.T) {
	syncer, stores, adapter, recorder := setupSyncer(t)
	adapter.Put(profile, record.Notes, record.New("B", 200, map[string]any{"title": "b"}))

	result, err := syncer.Sync(context.Background(), record.Notes, profile)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if result.RemoteToLocal != 1 || result.LocalToRemote != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	got, ok := stores[record.Notes].Get("B")
	if !ok || got.Updated != 200 || got.Fields["title"] != "b" {
		t.Errorf("expected B applied locally, got %+v (ok=%v)", got, ok)
	}
	if len(adapter.Saves()) != 0 {
		t.Errorf("expected no remote writes, got %+v", adapter.Saves())
	}

	applied := recorder.Applied()
	if len(applied) != 1 || applied[0].Record.ID != "B" || applied[0].Collection != record.Notes {
		t.Errorf("expected one RemoteApplied for B, got %+v", applied)
	}
}

func TestSync_LastWriteWins(t *testing.T) {
	syncer, stores, adapter, _ := setupSyncer(t)
	ctx := context.Background()
	local := stores[record.Tags]

	_ = local.SaveModelObject(ctx, record.New("older-local", 100, map[string]any{"v": "local"}), profile)
	_ = local.SaveModelObject(ctx, record.New("newer-local", 300, map[string]any{"v": "local"}), profile)
	_ = local.SaveModelObject(ctx, record.New("tie", 50, map[string]any{"v": "local"}), profile)
	baseline := len(local.Saves())

	adapter.Put(profile, record.Tags, record.New("older-local", 200, map[string]any{"v": "remote"}))
	adapter.Put(profile, record.Tags, record.New("newer-local", 200, map[string]any{"v": "remote"}))
	adapter.Put(profile, record.Tags, record.New("tie", 50, map[string]any{"v": "remote"}))

	result, err := syncer.Sync(ctx, record.Tags, profile)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.RemoteToLocal != 1 || result.LocalToRemote != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	localSaves := local.Saves()[baseline:]
	if len(localSaves) != 1 || localSaves[0].ID != "older-local" || localSaves[0].Fields["v"] != "remote" {
		t.Errorf("expected older-local overwritten by remote payload, got %+v", localSaves)
	}

	remoteSaves := adapter.Saves()
	if len(remoteSaves) != 1 || remoteSaves[0].Record.ID != "newer-local" || remoteSaves[0].Record.Fields["v"] != "local" {
		t.Errorf("expected newer-local pushed with local payload, got %+v", remoteSaves)
	}

	if tie, _ := local.Get("tie"); tie.Fields["v"] != "local" {
		t.Error("tie must not overwrite local")
	}
	if tie, _ := adapter.Get(profile, record.Tags, "tie"); tie.Fields["v"] != "remote" {
		t.Error("tie must not overwrite remote")
	}
}

func TestSync_Idempotent(t *testing.T) {
	syncer, stores, adapter, _ := setupSyncer(t)
	ctx := context.Background()
	_ = stores[record.Notes].SaveModelObject(ctx, record.New("L", 10, nil), profile)
	adapter.Put(profile, record.Notes, record.New("R", 20, nil))

	if _, err := syncer.Sync(ctx, record.Notes, profile); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := syncer.Sync(ctx, record.Notes, profile)
		if err != nil {
			t.Fatalf("Sync %d failed: %v", i, err)
		}
		if result.RemoteToLocal != 0 || result.LocalToRemote != 0 {
			t.Errorf("run %d: expected no writes on reconciled collection, got %+v", i, result)
		}
	}
}

func TestSync_AppliedRemoteIsNotEchoed(t *testing.T) {
	syncer, _, adapter, _ := setupSyncer(t)
	adapter.Put(profile, record.Files, record.New("f", 5, nil))

	if _, err := syncer.Sync(context.Background(), record.Files, profile); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(adapter.Saves()) != 0 {
		t.Errorf("applied remote record was pushed back: %+v", adapter.Saves())
	}
}

func TestSync_FetchFailures(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		syncer, stores, _, _ := setupSyncer(t)
		stores[record.Notes].FindErr = errors.New("disk gone")

		_, err := syncer.Sync(context.Background(), record.Notes, profile)
		if !sync.IsKind(err, sync.KindFetch) {
			t.Errorf("expected fetch failure, got %v", err)
		}
	})

	t.Run("remote", func(t *testing.T) {
		syncer, _, adapter, _ := setupSyncer(t)
		adapter.FindErr[record.Notes] = errors.New("503")

		_, err := syncer.Sync(context.Background(), record.Notes, profile)
		if !sync.IsKind(err, sync.KindFetch) {
			t.Errorf("expected fetch failure, got %v", err)
		}
	})

	t.Run("missing store", func(t *testing.T) {
		adapter := synctest.NewAdapter()
		syncer := sync.New(sync.Stores{}, adapter, &sync.Config{Logger: log.New(io.Discard, "", 0)})

		_, err := syncer.Sync(context.Background(), record.Notes, profile)
		if !sync.IsKind(err, sync.KindFetch) {
			t.Errorf("expected fetch failure, got %v", err)
		}
	})
}

func TestSync_LocalWriteFailureSkipsPush(t *testing.T) {
	syncer, stores, adapter, _ := setupSyncer(t)
	ctx := context.Background()
	writeErr := errors.New("constraint failed")

	adapter.Put(profile, record.Notes, record.New("bad", 10, nil))
	_ = stores[record.Notes].SaveModelObject(ctx, record.New("mine", 10, nil), profile)
	stores[record.Notes].SaveErr["bad"] = writeErr

	_, err := syncer.Sync(ctx, record.Notes, profile)

	var serr *sync.Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *sync.Error, got %v", err)
	}
	if serr.Kind != sync.KindWrite || serr.RecordID != "bad" || serr.Direction != sync.ToLocal {
		t.Errorf("unexpected error details: %+v", serr)
	}
	if !errors.Is(err, writeErr) {
		t.Error("expected the store error to be wrapped")
	}
	if len(adapter.Saves()) != 0 {
		t.Error("local-to-remote step must not run after a remote-to-local failure")
	}
}

func TestSync_RemoteWriteFailure(t *testing.T) {
	syncer, stores, adapter, _ := setupSyncer(t)
	ctx := context.Background()
	_ = stores[record.Notebooks].SaveModelObject(ctx, record.New("nb", 1, nil), profile)
	adapter.SaveErr["nb"] = errors.New("quota exceeded")

	_, err := syncer.Sync(ctx, record.Notebooks, profile)

	var serr *sync.Error
	if !errors.As(err, &serr) || serr.Kind != sync.KindWrite || serr.Direction != sync.ToRemote {
		t.Errorf("expected remote write failure, got %v", err)
	}
}

func TestSync_ManyConcurrentWrites(t *testing.T) {
	syncer, stores, adapter, recorder := setupSyncer(t)
	for i := 0; i < 50; i++ {
		adapter.Put(profile, record.Notes, record.New(string(rune('a'+i%26))+string(rune('A'+i/26)), int64(i+1), nil))
	}

	result, err := syncer.Sync(context.Background(), record.Notes, profile)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.RemoteToLocal != 50 {
		t.Errorf("expected 50 remote writes, got %d", result.RemoteToLocal)
	}
	if len(stores[record.Notes].Saves()) != 50 || len(recorder.Applied()) != 50 {
		t.Errorf("expected 50 saves and events, got %d and %d", len(stores[record.Notes].Saves()), len(recorder.Applied()))
	}
}

func TestSync_ProfileScoping(t *testing.T) {
	syncer, stores, adapter, _ := setupSyncer(t)
	adapter.Put("other", record.Notes, record.New("x", 1, nil))

	if _, err := syncer.Sync(context.Background(), record.Notes, profile); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if _, ok := stores[record.Notes].Get("x"); ok {
		t.Error("records of another profile must not be applied")
	}
	finds := adapter.Finds()
	if len(finds) != 1 || finds[0].ProfileID != profile || finds[0].Type != record.Notes {
		t.Errorf("unexpected remote query: %+v", finds)
	}
}
