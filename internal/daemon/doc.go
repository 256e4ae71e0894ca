// Package daemon runs sync passes on an adaptive watchdog.
//
// # Architecture
//
//   - Scheduler: owns the watchdog timer and SyncStat, runs one pass at a time
//   - SyncStat: adaptive interval between IntervalMin and IntervalMax
//   - ChangeWatcher: fsnotify watcher that calls Scheduler.Start when record
//     files of a synced folder change
//
// # Passes
//
// A pass resolves the active profile, checks authentication on the cloud
// adapter and then syncs every collection strictly one after another. The
// first failing collection aborts the pass. Success or failure, the
// watchdog is armed again with SyncStat.Next():
//
//	range = IntervalMax - IntervalMin
//	remote change seen:  interval - 0.4*range
//	otherwise:           interval + 0.2*range
//	clamped to [IntervalMin, IntervalMax]
//
// With the defaults (2s..15s) an idle engine polls at 2s, 4.6s, 7.2s, ...
// up to 15s, and drops back to 2s as soon as remote changes show up.
// Authentication failures are logged and do not reschedule.
//
// # Usage
//
//	syncer := sync.New(db, adapter, nil)
//	sched := daemon.New(adapter, syncer, daemon.StaticProfile("default"), nil)
//	defer sched.Close()
//
//	sched.Start()             // first pass after the settle delay
//	...
//	sched.Disconnect(ctx)     // no further passes until Start
package daemon
