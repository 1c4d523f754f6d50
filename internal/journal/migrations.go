package journal

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "strikes table",
		Up: `
CREATE TABLE IF NOT EXISTS strikes (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns    INTEGER NOT NULL,
    request_id      TEXT,
    path            TEXT NOT NULL,
    requested       INTEGER NOT NULL,
    strikes         INTEGER NOT NULL,
    state           TEXT NOT NULL,
    contaminated    INTEGER NOT NULL,
    contaminants    BLOB,
    error           TEXT
);

CREATE INDEX IF NOT EXISTS idx_strikes_timestamp ON strikes(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_strikes_path ON strikes(path, timestamp_ns);
`,
	},
	{
		Version:     2,
		Description: "verifications table",
		Up: `
CREATE TABLE IF NOT EXISTS verifications (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns    INTEGER NOT NULL,
    path            TEXT NOT NULL,
    size            INTEGER NOT NULL,
    clean           INTEGER NOT NULL,
    digest          TEXT NOT NULL,
    contaminants    BLOB
);

CREATE INDEX IF NOT EXISTS idx_verifications_path ON verifications(path, timestamp_ns);
`,
	},
}

// SchemaVersion is the newest schema version this package writes.
var SchemaVersion = migrations[len(migrations)-1].Version

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}
