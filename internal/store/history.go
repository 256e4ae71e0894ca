package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vbgl/encryptic/internal/sync"
)

// PassRecord is one row of the pass history.
type PassRecord struct {
	ID            int64         `json:"id"`
	ProfileID     string        `json:"profile_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Status        sync.Status   `json:"status"`
	Error         string        `json:"error,omitempty"`
	RemoteChanges int           `json:"remote_changes"`
	LocalChanges  int           `json:"local_changes"`
	NextInterval  time.Duration `json:"next_interval"`
}

// PassFromEvent converts a PassStopped event to a history row.
func PassFromEvent(e sync.PassStopped) PassRecord {
	p := PassRecord{
		ProfileID:     e.ProfileID,
		StartedAt:     e.StartedAt,
		FinishedAt:    e.StartedAt.Add(e.Duration),
		Status:        e.Status,
		RemoteChanges: e.RemoteChanges(),
		LocalChanges:  e.LocalChanges(),
		NextInterval:  e.NextInterval,
	}
	if e.Err != nil {
		p.Error = e.Err.Error()
	}
	return p
}

// RecordPass appends a pass to the history and returns its id.
func (db *DB) RecordPass(ctx context.Context, p PassRecord) (int64, error) {
	query := `
	INSERT INTO sync_passes (
		profile_id, started_at, finished_at, status, error,
		remote_changes, local_changes, next_interval_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		p.ProfileID,
		p.StartedAt.UTC().Format(time.RFC3339Nano),
		p.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(p.Status),
		nullString(p.Error),
		p.RemoteChanges,
		p.LocalChanges,
		p.NextInterval.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record pass: %w", err)
	}
	return res.LastInsertId()
}

// LastPass returns the most recent pass. ok is false when no pass was
// recorded yet.
func (db *DB) LastPass(ctx context.Context) (p PassRecord, ok bool, err error) {
	passes, err := db.RecentPasses(ctx, 1)
	if err != nil || len(passes) == 0 {
		return PassRecord{}, false, err
	}
	return passes[0], true, nil
}

// RecentPasses returns up to limit passes, newest first.
func (db *DB) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	return db.scanPasses(ctx, limit, func(PassRecord) bool { return true })
}

// PassesSince returns up to limit passes started at or after since, newest
// first. Rows are appended in start order, so the scan stops at the first
// older pass.
func (db *DB) PassesSince(ctx context.Context, since time.Time, limit int) ([]PassRecord, error) {
	return db.scanPasses(ctx, limit, func(p PassRecord) bool { return !p.StartedAt.Before(since) })
}

// scanPasses walks the history newest first while keep returns true.
func (db *DB) scanPasses(ctx context.Context, limit int, keep func(PassRecord) bool) ([]PassRecord, error) {
	query := `
	SELECT id, profile_id, started_at, finished_at, status, error,
	       remote_changes, local_changes, next_interval_ms
	FROM sync_passes
	ORDER BY id DESC
	LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var passes []PassRecord
	for rows.Next() {
		var (
			p                 PassRecord
			started, finished string
			status            string
			errText           sql.NullString
			nextMs            int64
		)
		if err := rows.Scan(&p.ID, &p.ProfileID, &started, &finished, &status, &errText,
			&p.RemoteChanges, &p.LocalChanges, &nextMs); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		if p.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("invalid started_at %q: %w", started, err)
		}
		if p.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("invalid finished_at %q: %w", finished, err)
		}
		p.Status = sync.Status(status)
		p.Error = errText.String
		p.NextInterval = time.Duration(nextMs) * time.Millisecond

		if !keep(p) {
			break
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate passes: %w", err)
	}
	return passes, nil
}

// HistoryEmitter persists every PassStopped event it receives. Other events
// are ignored.
type HistoryEmitter struct {
	db     *DB
	logger *log.Logger
}

// NewHistoryEmitter creates an emitter writing to db. A nil logger logs to
// stderr.
func NewHistoryEmitter(db *DB, logger *log.Logger) *HistoryEmitter {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &HistoryEmitter{db: db, logger: logger}
}

// Emit implements sync.Emitter.
func (h *HistoryEmitter) Emit(event sync.Event) {
	e, ok := event.(sync.PassStopped)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.db.RecordPass(ctx, PassFromEvent(e)); err != nil {
		h.logger.Printf("Failed to record pass: %v", err)
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
