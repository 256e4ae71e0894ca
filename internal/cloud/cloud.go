// Package cloud defines the capability interface implemented by remote
// storage backends and the registry used to select one by name.
//
// Backends live in sub-packages and register themselves from init():
//
//	import (
//	    "github.com/vbgl/encryptic/internal/cloud"
//	    _ "github.com/vbgl/encryptic/internal/cloud/dropbox"
//	    _ "github.com/vbgl/encryptic/internal/cloud/remotestorage"
//	)
//
//	adapter, err := cloud.New(cloud.BackendDropbox, cloud.Settings{"root": "/home/me/Dropbox/Apps/encryptic"})
package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/vbgl/encryptic/internal/record"
)

// Backend names a cloud backend variant.
type Backend string

const (
	// BackendRemoteStorage is the remote-storage (HTTP/JSON) backend.
	BackendRemoteStorage Backend = "remote-storage"
	// BackendDropbox is the Dropbox-like synced folder backend.
	BackendDropbox Backend = "dropbox-like"
)

// String returns the backend name.
func (b Backend) String() string {
	return string(b)
}

// ParseBackend converts a configuration value to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "remote-storage", "remotestorage":
		return BackendRemoteStorage, nil
	case "dropbox-like", "dropbox":
		return BackendDropbox, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Query selects the remote records of one collection for one profile.
type Query struct {
	Type      record.Collection
	ProfileID string
}

// SaveArgs carries one record to be written remotely.
type SaveArgs struct {
	Type      record.Collection
	Record    record.Record
	ProfileID string
}

// Adapter is the capability interface every cloud backend implements.
//
// Implementations must be safe for concurrent use: the syncer issues writes
// for one collection in parallel.
type Adapter interface {
	// CheckAuth reports whether the backend is ready to serve requests.
	CheckAuth(ctx context.Context) (bool, error)

	// Find lists every remote record of the queried collection.
	Find(ctx context.Context, q Query) ([]record.Record, error)

	// SaveModel writes one record, replacing any remote version.
	SaveModel(ctx context.Context, args SaveArgs) error
}

// Disconnecter is implemented by backends that hold a session which can be
// dropped. It is optional; callers check for it with a type assertion.
type Disconnecter interface {
	Disconnect(ctx context.Context) error
}

// Disconnect calls a.Disconnect when a supports it and returns nil otherwise.
func Disconnect(ctx context.Context, a Adapter) error {
	d, ok := a.(Disconnecter)
	if !ok {
		return nil
	}
	return d.Disconnect(ctx)
}
