package sync

import (
	"errors"
	"fmt"

	"github.com/vbgl/encryptic/internal/record"
)

// Kind classifies pass failures.
type Kind int

const (
	// KindAuth means the backend refused the session; no pass was run.
	KindAuth Kind = iota + 1
	// KindFetch means a local or remote listing failed.
	KindFetch
	// KindWrite means a record write failed.
	KindWrite
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "authentication failure"
	case KindFetch:
		return "fetch failure"
	case KindWrite:
		return "write failure"
	default:
		return "unknown failure"
	}
}

// Direction identifies which side a write targeted.
type Direction string

const (
	// ToLocal is a remote record written to the local store.
	ToLocal Direction = "remote-to-local"
	// ToRemote is a local record written to the cloud backend.
	ToRemote Direction = "local-to-remote"
)

// ErrNotAuthenticated is wrapped by KindAuth errors when CheckAuth reported
// false without an error of its own.
var ErrNotAuthenticated = errors.New("cloud backend is not authenticated")

// Error describes why a collection or a pass failed.
//
// Use errors.As to inspect it:
//
//	var serr *sync.Error
//	if errors.As(err, &serr) && serr.Kind == sync.KindWrite {
//	    log.Printf("write of %s failed", serr.RecordID)
//	}
type Error struct {
	Kind       Kind
	Collection record.Collection
	Direction  Direction
	RecordID   string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.RecordID != "":
		return fmt.Sprintf("%s: %s %s/%s: %v", e.Kind, e.Direction, e.Collection, e.RecordID, e.Err)
	case e.Collection != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Collection, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Kind == kind
}
