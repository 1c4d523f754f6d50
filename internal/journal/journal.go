// Package journal keeps a SQLite history of completed strikes and
// verifications. It records outcomes only; live session state never
// leaves the striker.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dotmatrix/internal/alphabet"
)

// StrikeRecord is one finished strike sequence.
type StrikeRecord struct {
	ID           int64                  `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	RequestID    string                 `json:"request_id,omitempty"`
	Path         string                 `json:"path"`
	Requested    int                    `json:"requested"`
	Strikes      int                    `json:"strikes"`
	State        string                 `json:"state"`
	Contaminated bool                   `json:"contaminated"`
	Contaminants []alphabet.Contaminant `json:"contaminants,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// VerificationRecord is one substrate verification.
type VerificationRecord struct {
	ID           int64                  `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Path         string                 `json:"path"`
	Size         int64                  `json:"size"`
	Clean        bool                   `json:"clean"`
	Digest       string                 `json:"digest"`
	Contaminants []alphabet.Contaminant `json:"contaminants,omitempty"`
}

// Store is the SQLite journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal at path and applies pending
// migrations. busyTimeoutMs <= 0 keeps the driver default.
func Open(path string, busyTimeoutMs int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL"
	if busyTimeoutMs > 0 {
		dsn += fmt.Sprintf("&_busy_timeout=%d", busyTimeoutMs)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordStrike inserts r and returns its ID. A zero Timestamp is set to now.
func (s *Store) RecordStrike(ctx context.Context, r *StrikeRecord) (int64, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	blob, err := encodeContaminants(r.Contaminants)
	if err != nil {
		return 0, fmt.Errorf("encode contaminants: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO strikes (timestamp_ns, request_id, path, requested, strikes, state, contaminated, contaminants, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UnixNano(), r.RequestID, r.Path, r.Requested, r.Strikes, r.State,
		boolInt(r.Contaminated), blob, r.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("insert strike: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// RecordVerification inserts r and returns its ID.
func (s *Store) RecordVerification(ctx context.Context, r *VerificationRecord) (int64, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	blob, err := encodeContaminants(r.Contaminants)
	if err != nil {
		return 0, fmt.Errorf("encode contaminants: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO verifications (timestamp_ns, path, size, clean, digest, contaminants)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UnixNano(), r.Path, r.Size, boolInt(r.Clean), r.Digest, blob,
	)
	if err != nil {
		return 0, fmt.Errorf("insert verification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// Strikes returns up to limit strikes, newest first. limit <= 0 means all.
func (s *Store) Strikes(ctx context.Context, limit int) ([]StrikeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_ns, COALESCE(request_id, ''), path, requested, strikes, state, contaminated, contaminants, COALESCE(error, '')
		FROM strikes ORDER BY timestamp_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query strikes: %w", err)
	}
	defer rows.Close()

	var out []StrikeRecord
	for rows.Next() {
		var (
			r            StrikeRecord
			ts           int64
			contaminated int
			blob         []byte
		)
		if err := rows.Scan(&r.ID, &ts, &r.RequestID, &r.Path, &r.Requested, &r.Strikes, &r.State, &contaminated, &blob, &r.Error); err != nil {
			return nil, fmt.Errorf("scan strike: %w", err)
		}
		r.Timestamp = time.Unix(0, ts)
		r.Contaminated = contaminated != 0
		if r.Contaminants, err = decodeContaminants(blob); err != nil {
			return nil, fmt.Errorf("decode contaminants for strike %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastVerification returns the newest verification of path, or nil if the
// path was never verified.
func (s *Store) LastVerification(ctx context.Context, path string) (*VerificationRecord, error) {
	var (
		r     VerificationRecord
		ts    int64
		clean int
		blob  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp_ns, path, size, clean, digest, contaminants
		FROM verifications WHERE path = ? ORDER BY timestamp_ns DESC, id DESC LIMIT 1`, path,
	).Scan(&r.ID, &ts, &r.Path, &r.Size, &clean, &r.Digest, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get verification: %w", err)
	}

	r.Timestamp = time.Unix(0, ts)
	r.Clean = clean != 0
	if r.Contaminants, err = decodeContaminants(blob); err != nil {
		return nil, fmt.Errorf("decode contaminants for verification %d: %w", r.ID, err)
	}
	return &r, nil
}
