// Package sync reconciles local record collections with a cloud backend
// using last-write-wins.
//
// # Conflict resolution
//
// Every record carries an "updated" timestamp. For one id:
//
//   - remote wins when there is no local version or local.updated < remote.updated
//   - local wins when there is no remote version or remote.updated < local.updated
//   - equal timestamps are already reconciled and never produce a write
//
// Strict inequality makes reconciliation idempotent: running it twice over
// a reconciled pair issues no writes.
//
// # Collection syncer
//
// CollectionSyncer.Sync handles one collection:
//
//	Local store ──Find──┐              ┌──Find── Cloud adapter
//	                    ▼              ▼
//	              remote → local writes (joined)
//	                    ▼
//	              local → remote writes (joined)
//
// Writes in one direction run concurrently and are joined with an errgroup;
// the first failure aborts the rest of that direction and the collection.
// Collections themselves are never reconciled concurrently: the scheduler in
// internal/daemon walks them one by one.
//
// # Events
//
// RemoteApplied is emitted for every remote record written locally. The
// scheduler emits PassStarted and PassStopped around each pass. Emitters
// (logging, pass history, dashboard) are plugged in through Config.
//
// Example:
//
//	syncer := sync.New(database.Stores(), adapter, nil)
//	result, err := syncer.Sync(ctx, record.Notes, "default")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d remote changes applied\n", result.RemoteToLocal)
package sync
