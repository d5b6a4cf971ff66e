package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the current version of the SQLite schema.
const SchemaVersion = 1

// migrations[i] brings a database from version i to version i+1.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TEXT NOT NULL,
    threads INTEGER NOT NULL,
    processes INTEGER NOT NULL,
    resolution_ms REAL NOT NULL,
    min_delay_ms REAL NOT NULL,
    max_delay_ms REAL NOT NULL,
    num_connections INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);

CREATE TABLE IF NOT EXISTS connections (
    snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    source INTEGER NOT NULL,
    target INTEGER NOT NULL,
    target_thread INTEGER NOT NULL,
    synapse_id INTEGER NOT NULL,
    synapse_model TEXT NOT NULL,
    port INTEGER NOT NULL,
    weight REAL NOT NULL,
    delay REAL NOT NULL,
    receptor INTEGER NOT NULL,
    synapse_label INTEGER NOT NULL,
    PRIMARY KEY (snapshot_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_connections_source ON connections(snapshot_id, source);
CREATE INDEX IF NOT EXISTS idx_connections_target ON connections(snapshot_id, target);
`,
}

const versionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`

// InitSchema brings db up to SchemaVersion. Existing databases are checked
// with ValidateIntegrity first; a database written by a newer version is
// refused.
func InitSchema(ctx context.Context, db *sql.DB) error {
	current, err := getSchemaVersion(ctx, db)
	if err != nil {
		if _, err := db.ExecContext(ctx, versionTable); err != nil {
			return fmt.Errorf("failed to create schema_version: %w", err)
		}
		current = 0
	} else if current > 0 {
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}

	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d",
			current, SchemaVersion)
	}
	for v := current; v < SchemaVersion; v++ {
		if err := migrate(ctx, db, v); err != nil {
			return fmt.Errorf("failed to migrate schema to version %d: %w", v+1, err)
		}
	}
	return nil
}

// getSchemaVersion returns the highest applied version, 0 for an empty
// version table, or an error when the table does not exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

// migrate applies migrations[from] and records version from+1 in one
// transaction.
func migrate(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, from+1); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// ValidateIntegrity runs SQLite's integrity and foreign key checks and
// verifies that every snapshot header counts exactly the connection rows
// stored for it.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	problems, err := pragmaRows(ctx, db, `PRAGMA integrity_check`, 1)
	if err != nil {
		return err
	}
	if len(problems) != 1 || problems[0] != "ok" {
		return fmt.Errorf("integrity_check failed: %s", strings.Join(problems, "; "))
	}

	fk, err := pragmaRows(ctx, db, `PRAGMA foreign_key_check`, 4)
	if err != nil {
		return err
	}
	if len(fk) > 0 {
		return fmt.Errorf("foreign_key_check failed: %s", strings.Join(fk, "; "))
	}

	counts, err := pragmaRows(ctx, db, `
		SELECT s.id, s.num_connections, COUNT(c.seq)
		FROM snapshots s LEFT JOIN connections c ON c.snapshot_id = s.id
		GROUP BY s.id
		HAVING s.num_connections != COUNT(c.seq)`, 3)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		return fmt.Errorf("snapshot connection counts disagree with stored rows (id header rows): %s",
			strings.Join(counts, "; "))
	}
	return nil
}

// pragmaRows runs query and returns each row's columns joined by spaces.
func pragmaRows(ctx context.Context, db *sql.DB, query string, cols int) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", strings.TrimSpace(query), err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		vals := make([]sql.NullString, cols)
		dest := make([]any, cols)
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s result: %w", strings.TrimSpace(query), err)
		}
		parts := make([]string, cols)
		for i, v := range vals {
			parts[i] = v.String
		}
		out = append(out, strings.Join(parts, " "))
	}
	return out, rows.Err()
}

// ResetSchema drops all tables and recreates the schema. Tests only.
func ResetSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range []string{"connections", "snapshots", "schema_version"} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return InitSchema(ctx, db)
}
