package sync

import (
	"testing"

	"github.com/vbgl/encryptic/internal/record"
)

func rec(id string, updated int64) *record.Record {
	r := record.New(id, updated, nil)
	return &r
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		local  *record.Record
		remote *record.Record
		want   Decision
	}{
		{name: "remote newer", local: rec("a", 100), remote: rec("a", 200), want: DecisionRemote},
		{name: "local newer", local: rec("a", 300), remote: rec("a", 200), want: DecisionLocal},
		{name: "tie", local: rec("a", 200), remote: rec("a", 200), want: DecisionNone},
		{name: "only remote", local: nil, remote: rec("a", 1), want: DecisionRemote},
		{name: "only local", local: rec("a", 1), remote: nil, want: DecisionLocal},
		{name: "only remote at zero", local: nil, remote: rec("a", 0), want: DecisionRemote},
		{name: "neither", local: nil, remote: nil, want: DecisionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.local, tt.remote); got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWinnersAreExclusive(t *testing.T) {
	// For every pair at most one direction writes
	for l := int64(0); l < 5; l++ {
		for r := int64(0); r < 5; r++ {
			local, remote := rec("x", l), rec("x", r)
			remoteWins := RemoteWins(local, *remote)
			localWins := LocalWins(*local, remote)

			if remoteWins && localWins {
				t.Fatalf("both sides win for local=%d remote=%d", l, r)
			}
			if remoteWins != (l < r) {
				t.Errorf("RemoteWins(local=%d, remote=%d) = %v", l, r, remoteWins)
			}
			if localWins != (r < l) {
				t.Errorf("LocalWins(local=%d, remote=%d) = %v", l, r, localWins)
			}
		}
	}
}

func TestPlans(t *testing.T) {
	local := []record.Record{
		record.New("a", 100, nil), // local only
		record.New("b", 100, nil), // remote newer
		record.New("c", 300, nil), // local newer
		record.New("d", 50, nil),  // tie
	}
	remote := []record.Record{
		record.New("b", 200, nil),
		record.New("c", 200, nil),
		record.New("d", 50, nil),
		record.New("e", 10, nil), // remote only
	}

	toLocal := PlanRemoteToLocal(remote, record.Index(local))
	if ids := idsOf(toLocal); ids != "b,e" {
		t.Errorf("remote-to-local plan = %s, want b,e", ids)
	}

	toRemote := PlanLocalToRemote(local, record.Index(remote))
	if ids := idsOf(toRemote); ids != "a,c" {
		t.Errorf("local-to-remote plan = %s, want a,c", ids)
	}
}

func TestPlansIdempotentOnReconciledSets(t *testing.T) {
	same := []record.Record{record.New("a", 1, nil), record.New("b", 2, nil)}

	for i := 0; i < 2; i++ {
		if got := PlanRemoteToLocal(same, record.Index(same)); len(got) != 0 {
			t.Errorf("run %d: expected no remote-to-local writes, got %v", i, idsOf(got))
		}
		if got := PlanLocalToRemote(same, record.Index(same)); len(got) != 0 {
			t.Errorf("run %d: expected no local-to-remote writes, got %v", i, idsOf(got))
		}
	}
}

func TestDecisionString(t *testing.T) {
	if DecisionRemote.String() != "remote" || DecisionLocal.String() != "local" || DecisionNone.String() != "none" {
		t.Error("unexpected decision names")
	}
	if Decision(42).String() != "unknown" {
		t.Error("expected unknown for out-of-range decision")
	}
}

func idsOf(records []record.Record) string {
	s := ""
	for i, r := range records {
		if i > 0 {
			s += ","
		}
		s += r.ID
	}
	return s
}
