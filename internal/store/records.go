package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vbgl/encryptic/internal/record"
	"github.com/vbgl/encryptic/internal/sync"
)

// ErrNotFound is returned by Get when the record doesn't exist.
var ErrNotFound = errors.New("record not found")

// CollectionStore is the local store of one collection. It implements
// sync.LocalStore.
type CollectionStore struct {
	db         *DB
	collection record.Collection
}

// Collection returns the store of collection c.
func (db *DB) Collection(c record.Collection) *CollectionStore {
	return &CollectionStore{db: db, collection: c}
}

// Store implements sync.StoreProvider.
func (db *DB) Store(c record.Collection) (sync.LocalStore, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return db.Collection(c), nil
}

// Find returns every record of the collection ordered by id.
func (s *CollectionStore) Find(ctx context.Context) ([]record.Record, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT payload FROM records WHERE collection = ? ORDER BY id`, string(s.collection))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.collection, err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.collection, err)
		}
		rec, err := record.Parse([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s row: %w", s.collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", s.collection, err)
	}
	return out, nil
}

// Get returns one record by id.
func (s *CollectionStore) Get(ctx context.Context, id string) (record.Record, error) {
	var payload string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE collection = ? AND id = ?`, string(s.collection), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, fmt.Errorf("%s/%s: %w", s.collection, id, ErrNotFound)
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("failed to get %s/%s: %w", s.collection, id, err)
	}
	return record.Parse([]byte(payload))
}

// SaveModelObject inserts or replaces a record.
func (s *CollectionStore) SaveModelObject(ctx context.Context, rec record.Record, profileID string) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", s.collection, rec.ID, err)
	}

	query := `
	INSERT INTO records (collection, id, profile_id, updated, payload)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		profile_id = excluded.profile_id,
		updated = excluded.updated,
		payload = excluded.payload
	`
	if _, err := s.db.conn.ExecContext(ctx, query,
		string(s.collection), rec.ID, profileID, rec.Updated, string(payload)); err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", s.collection, rec.ID, err)
	}
	return nil
}

// Count returns the number of records in the collection.
func (s *CollectionStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, string(s.collection)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.collection, err)
	}
	return count, nil
}

// CountByCollection returns the record count of every known collection,
// including empty ones.
func (db *DB) CountByCollection(ctx context.Context) (map[record.Collection]int, error) {
	counts := make(map[record.Collection]int)
	for _, c := range record.Ordered() {
		counts[c] = 0
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT collection, COUNT(*) FROM records GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[record.Collection(c)] = n
	}
	return counts, rows.Err()
}
