package sync

import (
	"context"
	"fmt"

	"github.com/vbgl/encryptic/internal/record"
)

// LocalStore gives the syncer access to the local records of one collection.
//
// Implementations must be safe for concurrent SaveModelObject calls: the
// syncer upserts the remote winners of a collection in parallel.
type LocalStore interface {
	// Find returns every local record of the collection.
	Find(ctx context.Context) ([]record.Record, error)

	// SaveModelObject inserts or replaces one record.
	SaveModelObject(ctx context.Context, rec record.Record, profileID string) error
}

// StoreProvider resolves the local store of a collection.
type StoreProvider interface {
	Store(c record.Collection) (LocalStore, error)
}

// Stores is a StoreProvider backed by a fixed map.
type Stores map[record.Collection]LocalStore

// Store implements StoreProvider.
func (s Stores) Store(c record.Collection) (LocalStore, error) {
	store, ok := s[c]
	if !ok {
		return nil, fmt.Errorf("no local store for collection %s", c)
	}
	return store, nil
}
