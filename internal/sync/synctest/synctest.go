// Package synctest provides in-memory local stores and cloud adapters for
// exercising the syncer and the scheduler in tests.
package synctest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vbgl/encryptic/internal/cloud"
	"github.com/vbgl/encryptic/internal/record"
	encsync "github.com/vbgl/encryptic/internal/sync"
)

// Store is an in-memory LocalStore.
type Store struct {
	mu      sync.Mutex
	records map[string]record.Record
	saves   []record.Record

	// FindErr is returned by Find when set.
	FindErr error
	// SaveErr maps record ids to the error SaveModelObject returns for them.
	SaveErr map[string]error
}

// NewStore creates a store holding the given records.
func NewStore(records ...record.Record) *Store {
	s := &Store{records: make(map[string]record.Record), SaveErr: make(map[string]error)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

// Find implements sync.LocalStore.
func (s *Store) Find(ctx context.Context) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	return sortedValues(s.records), nil
}

// SaveModelObject implements sync.LocalStore.
func (s *Store) SaveModelObject(ctx context.Context, rec record.Record, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.SaveErr[rec.ID]; err != nil {
		return err
	}
	s.records[rec.ID] = rec
	s.saves = append(s.saves, rec)
	return nil
}

// Get returns the stored version of id.
func (s *Store) Get(id string) (record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// Saves returns every record written through SaveModelObject.
func (s *Store) Saves() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Record, len(s.saves))
	copy(out, s.saves)
	return out
}

// Stores builds a StoreProvider with an empty store for every collection,
// returning the provider and the stores by collection.
func Stores() (encsync.Stores, map[record.Collection]*Store) {
	provider := encsync.Stores{}
	stores := map[record.Collection]*Store{}
	for _, c := range record.Ordered() {
		s := NewStore()
		provider[c] = s
		stores[c] = s
	}
	return provider, stores
}

// Adapter is an in-memory cloud.Adapter.
type Adapter struct {
	mu           sync.Mutex
	records      map[string]record.Record // key: profile/collection/id
	saves        []cloud.SaveArgs
	finds        []cloud.Query
	authorized   bool
	disconnected bool

	// AuthErr is returned by CheckAuth when set.
	AuthErr error
	// FindErr maps collections to the error Find returns for them.
	FindErr map[record.Collection]error
	// SaveErr maps record ids to the error SaveModel returns for them.
	SaveErr map[string]error
	// OnFind runs at the start of every Find, outside the lock.
	OnFind func(q cloud.Query)
}

// NewAdapter creates an authorized adapter with no records.
func NewAdapter() *Adapter {
	return &Adapter{
		records:    make(map[string]record.Record),
		authorized: true,
		FindErr:    make(map[record.Collection]error),
		SaveErr:    make(map[string]error),
	}
}

// Put stores a remote record without recording a save.
func (a *Adapter) Put(profileID string, c record.Collection, r record.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[key(profileID, c, r.ID)] = r
}

// Get returns the remote version of id.
func (a *Adapter) Get(profileID string, c record.Collection, id string) (record.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.records[key(profileID, c, id)]
	return r, ok
}

// SetAuthorized changes what CheckAuth reports.
func (a *Adapter) SetAuthorized(ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.authorized = ok
}

// CheckAuth implements cloud.Adapter.
func (a *Adapter) CheckAuth(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.AuthErr != nil {
		return false, a.AuthErr
	}
	return a.authorized, nil
}

// Find implements cloud.Adapter.
func (a *Adapter) Find(ctx context.Context, q cloud.Query) ([]record.Record, error) {
	if a.OnFind != nil {
		a.OnFind(q)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.finds = append(a.finds, q)
	if err := a.FindErr[q.Type]; err != nil {
		return nil, err
	}

	prefix := key(q.ProfileID, q.Type, "")
	matched := map[string]record.Record{}
	for k, r := range a.records {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			matched[r.ID] = r
		}
	}
	return sortedValues(matched), nil
}

// SaveModel implements cloud.Adapter.
func (a *Adapter) SaveModel(ctx context.Context, args cloud.SaveArgs) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.SaveErr[args.Record.ID]; err != nil {
		return err
	}
	a.records[key(args.ProfileID, args.Type, args.Record.ID)] = args.Record
	a.saves = append(a.saves, args)
	return nil
}

// Disconnect implements cloud.Disconnecter.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnected = true
	a.authorized = false
	return nil
}

// Disconnected reports whether Disconnect was called.
func (a *Adapter) Disconnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disconnected
}

// Saves returns every successful SaveModel call.
func (a *Adapter) Saves() []cloud.SaveArgs {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]cloud.SaveArgs, len(a.saves))
	copy(out, a.saves)
	return out
}

// Finds returns every Find query in call order.
func (a *Adapter) Finds() []cloud.Query {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]cloud.Query, len(a.finds))
	copy(out, a.finds)
	return out
}

// PlainAdapter hides the Disconnect capability of an Adapter.
type PlainAdapter struct {
	inner *Adapter
}

// WithoutDisconnect wraps a so it no longer implements cloud.Disconnecter.
func WithoutDisconnect(a *Adapter) *PlainAdapter {
	return &PlainAdapter{inner: a}
}

// CheckAuth implements cloud.Adapter.
func (p *PlainAdapter) CheckAuth(ctx context.Context) (bool, error) { return p.inner.CheckAuth(ctx) }

// Find implements cloud.Adapter.
func (p *PlainAdapter) Find(ctx context.Context, q cloud.Query) ([]record.Record, error) {
	return p.inner.Find(ctx, q)
}

// SaveModel implements cloud.Adapter.
func (p *PlainAdapter) SaveModel(ctx context.Context, args cloud.SaveArgs) error {
	return p.inner.SaveModel(ctx, args)
}

func key(profileID string, c record.Collection, id string) string {
	return fmt.Sprintf("%s/%s/%s", profileID, c, id)
}

func sortedValues(m map[string]record.Record) []record.Record {
	out := make([]record.Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
