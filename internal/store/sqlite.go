package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// timeLayout is fixed width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteSnapshotStore implements SnapshotStore on a SQLite database.
type SQLiteSnapshotStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteSnapshotStore opens or creates the database at dbPath, creating
// its parent directory as needed.
func NewSQLiteSnapshotStore(dbPath string) (*SQLiteSnapshotStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSnapshotStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteSnapshotStore) Path() string {
	return s.dbPath
}

// SaveSnapshot writes the header and all connections in one transaction.
func (s *SQLiteSnapshotStore) SaveSnapshot(ctx context.Context, snap *Snapshot) (string, error) {
	if err := prepareForSave(snap, time.Now(), uuid.NewString); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, name, created_at, threads, processes,
			resolution_ms, min_delay_ms, max_delay_ms, num_connections)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Name, snap.CreatedAt.Format(timeLayout), snap.Threads, snap.Processes,
		snap.ResolutionMS, snap.MinDelayMS, snap.MaxDelayMS, snap.NumConnections)
	if err != nil {
		return "", fmt.Errorf("failed to insert snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO connections (snapshot_id, seq, source, target, target_thread,
			synapse_id, synapse_model, port, weight, delay, receptor, synapse_label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare connection insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range snap.Connections {
		if _, err := stmt.ExecContext(ctx, snap.ID, i, int64(d.Source), int64(d.Target), d.Thread,
			int(d.SynID), d.SynapseModel, d.Port, d.Weight, d.Delay, d.Receptor, d.Label); err != nil {
			return "", fmt.Errorf("failed to insert connection %d of snapshot %s: %w", i, snap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot %s: %w", snap.ID, err)
	}
	return snap.ID, nil
}

// GetSnapshot loads a snapshot with all its connections.
func (s *SQLiteSnapshotStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.getInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	conns, err := s.queryConnections(ctx, id, ConnectionQuery{}, -1)
	if err != nil {
		return nil, err
	}
	return &Snapshot{SnapshotInfo: *info, Connections: conns}, nil
}

func (s *SQLiteSnapshotStore) getInfo(ctx context.Context, id string) (*SnapshotInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, threads, processes,
			resolution_ms, min_delay_ms, max_delay_ms, num_connections
		FROM snapshots WHERE id = ?`, id)
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	return info, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (*SnapshotInfo, error) {
	var info SnapshotInfo
	var created string
	if err := row.Scan(&info.ID, &info.Name, &created, &info.Threads, &info.Processes,
		&info.ResolutionMS, &info.MinDelayMS, &info.MaxDelayMS, &info.NumConnections); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	info.CreatedAt = t
	return &info, nil
}

// ListSnapshots returns all snapshot headers, newest first.
func (s *SQLiteSnapshotStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, threads, processes,
			resolution_ms, min_delay_ms, max_delay_ms, num_connections
		FROM snapshots ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		infos = append(infos, *info)
	}
	return infos, rows.Err()
}

// QueryConnections filters the connections of one snapshot in SQL.
func (s *SQLiteSnapshotStore) QueryConnections(ctx context.Context, id string, q ConnectionQuery) ([]connector.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getInfo(ctx, id); err != nil {
		return nil, err
	}
	return s.queryConnections(ctx, id, q, q.limit())
}

// queryConnections runs the query; a negative limit returns every match.
func (s *SQLiteSnapshotStore) queryConnections(ctx context.Context, id string, q ConnectionQuery, limit int) ([]connector.Descriptor, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT source, target, target_thread, synapse_id, synapse_model,
			port, weight, delay, receptor, synapse_label
		FROM connections WHERE snapshot_id = ?`)
	args := []any{id}
	if q.Source != 0 {
		sb.WriteString(" AND source = ?")
		args = append(args, int64(q.Source))
	}
	if q.Target != 0 {
		sb.WriteString(" AND target = ?")
		args = append(args, int64(q.Target))
	}
	if q.SynapseModel != "" {
		sb.WriteString(" AND synapse_model = ?")
		args = append(args, q.SynapseModel)
	}
	sb.WriteString(" ORDER BY seq")
	if limit >= 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections of %s: %w", id, err)
	}
	defer rows.Close()

	var out []connector.Descriptor
	for rows.Next() {
		var d connector.Descriptor
		var src, tgt int64
		var syn int
		if err := rows.Scan(&src, &tgt, &d.Thread, &syn, &d.SynapseModel,
			&d.Port, &d.Weight, &d.Delay, &d.Receptor, &d.Label); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		d.Source, d.Target, d.SynID = node.GID(src), node.GID(tgt), synapse.SynID(syn)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes a snapshot and, by cascade, its connections.
func (s *SQLiteSnapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return nil
}

// DB exposes the underlying database for integrity checks.
func (s *SQLiteSnapshotStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteSnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
