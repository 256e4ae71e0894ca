package daemon

import "time"

// SyncStat is the scheduling state of one Scheduler. Interval drifts across
// passes between IntervalMin and IntervalMax.
type SyncStat struct {
	Interval    time.Duration `json:"interval"`
	IntervalMin time.Duration `json:"interval_min"`
	IntervalMax time.Duration `json:"interval_max"`

	// HadRemoteChange is set when the last pass wrote at least one remote
	// record locally. It is reset when a pass starts.
	HadRemoteChange bool `json:"had_remote_change"`
}

// NewSyncStat returns a stat positioned at the lower bound.
func NewSyncStat(min, max time.Duration) SyncStat {
	if max < min {
		max = min
	}
	return SyncStat{Interval: min, IntervalMin: min, IntervalMax: max}
}

// Next computes the watchdog delay that follows the last pass.
//
// With range = IntervalMax - IntervalMin the interval shrinks by 0.4*range
// after activity and grows by 0.2*range otherwise, clamped to the bounds.
func (s SyncStat) Next() time.Duration {
	span := s.IntervalMax - s.IntervalMin

	var next time.Duration
	if s.HadRemoteChange {
		next = s.Interval - span*4/10
	} else {
		next = s.Interval + span*2/10
	}

	if next < s.IntervalMin {
		next = s.IntervalMin
	}
	if next > s.IntervalMax {
		next = s.IntervalMax
	}
	return next
}

// advance records the outcome of a pass and moves Interval to Next().
func (s *SyncStat) advance(hadRemoteChange bool) time.Duration {
	s.HadRemoteChange = hadRemoteChange
	s.Interval = s.Next()
	return s.Interval
}
