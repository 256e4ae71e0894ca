package sync

import (
	"sort"

	"github.com/vbgl/encryptic/internal/record"
)

// Decision is the outcome of comparing the two versions of one record.
type Decision int

const (
	// DecisionNone means both sides are already reconciled.
	DecisionNone Decision = iota
	// DecisionRemote means the remote version overwrites the local one.
	DecisionRemote
	// DecisionLocal means the local version overwrites the remote one.
	DecisionLocal
)

// String returns a human-readable representation of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionRemote:
		return "remote"
	case DecisionLocal:
		return "local"
	default:
		return "unknown"
	}
}

// RemoteWins reports whether remote must be written locally: there is no
// local version, or the local version is strictly older.
func RemoteWins(local *record.Record, remote record.Record) bool {
	return local == nil || local.Updated < remote.Updated
}

// LocalWins reports whether local must be written remotely: there is no
// remote version, or the remote version is strictly older.
func LocalWins(local record.Record, remote *record.Record) bool {
	return remote == nil || remote.Updated < local.Updated
}

// Resolve compares both versions of one id. At least one side must be non-nil.
// Equal timestamps never produce a write.
func Resolve(local, remote *record.Record) Decision {
	switch {
	case remote != nil && RemoteWins(local, *remote):
		return DecisionRemote
	case local != nil && LocalWins(*local, remote):
		return DecisionLocal
	default:
		return DecisionNone
	}
}

// PlanRemoteToLocal returns the remote records that win over local,
// ordered by id.
func PlanRemoteToLocal(remote []record.Record, local map[string]record.Record) []record.Record {
	var out []record.Record
	for _, r := range record.Index(remote) {
		var l *record.Record
		if existing, ok := local[r.ID]; ok {
			l = &existing
		}
		if RemoteWins(l, r) {
			out = append(out, r)
		}
	}
	sortByID(out)
	return out
}

// PlanLocalToRemote returns the local records that win over remote,
// ordered by id.
func PlanLocalToRemote(local []record.Record, remote map[string]record.Record) []record.Record {
	var out []record.Record
	for _, l := range record.Index(local) {
		var r *record.Record
		if existing, ok := remote[l.ID]; ok {
			r = &existing
		}
		if LocalWins(l, r) {
			out = append(out, l)
		}
	}
	sortByID(out)
	return out
}

func sortByID(records []record.Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
