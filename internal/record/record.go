// Package record provides the data structures shared by local stores and
// cloud backends: synchronized records and the collections they belong to.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Reserved JSON keys. Every other key of a record document is payload.
const (
	keyID      = "id"
	keyUpdated = "updated"
)

// Record is one unit of synchronized data (a note, notebook, tag or file entry).
//
// The JSON form is a single flat object: "id", "updated" and every payload
// field side by side, which is the shape both cloud backends store.
type Record struct {
	// ID is unique within one collection.
	ID string

	// Updated is the last modification time in epoch milliseconds.
	// Last-write-wins resolution compares this value only.
	Updated int64

	// Fields holds the collection-specific payload.
	Fields map[string]any
}

// New creates a record with the given id and update time.
func New(id string, updated int64, fields map[string]any) Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return Record{ID: id, Updated: updated, Fields: fields}
}

// Validate checks that the record can be stored on either side.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.Updated < 0 {
		return fmt.Errorf("updated must not be negative (got %d)", r.Updated)
	}
	return nil
}

// UpdatedTime returns Updated as a time.Time.
func (r Record) UpdatedTime() time.Time {
	return time.UnixMilli(r.Updated)
}

// Touch sets Updated to the current time.
func (r *Record) Touch() {
	r.Updated = time.Now().UnixMilli()
}

// Clone returns a copy whose field map can be mutated independently.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Updated: r.Updated, Fields: fields}
}

// Filename returns the canonical file name for this record: {id}.json
func (r Record) Filename() string {
	return fmt.Sprintf("%s.json", r.ID)
}

// MarshalJSON encodes the record as one flat object.
func (r Record) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc[keyID] = r.ID
	doc[keyUpdated] = r.Updated
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a flat record object.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("record must be a JSON object")
	}

	id, ok := doc[keyID].(string)
	if !ok {
		return fmt.Errorf("record id must be a string")
	}

	var updated int64
	switch v := doc[keyUpdated].(type) {
	case nil:
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return fmt.Errorf("invalid updated value %q: %w", v, err)
			}
			n = int64(f)
		}
		updated = n
	default:
		return fmt.Errorf("record updated must be a number")
	}

	delete(doc, keyID)
	delete(doc, keyUpdated)
	for k, v := range doc {
		doc[k] = plainNumbers(v)
	}

	r.ID = id
	r.Updated = updated
	r.Fields = doc
	return nil
}

// plainNumbers converts json.Number values back to int64 or float64 so
// payloads compare naturally after a round trip.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, inner := range t {
			t[k] = plainNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = plainNumbers(inner)
		}
		return t
	default:
		return v
	}
}

// Parse decodes and validates a record document.
func Parse(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to parse record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Record{}, fmt.Errorf("invalid record: %w", err)
	}
	return r, nil
}

// Index maps records by id. When the same id appears twice the newer
// version is kept.
func Index(records []Record) map[string]Record {
	idx := make(map[string]Record, len(records))
	for _, r := range records {
		if prev, ok := idx[r.ID]; ok && prev.Updated >= r.Updated {
			continue
		}
		idx[r.ID] = r
	}
	return idx
}
