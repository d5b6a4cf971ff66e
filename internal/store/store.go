// Package store defines the SnapshotStore interface for persisting and
// querying connectome snapshots.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/constants"
	"github.com/nvandessel/connectome/internal/node"
)

// ErrSnapshotNotFound is returned when no snapshot has the requested id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo is the header of a snapshot: everything but its connections.
type SnapshotInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	Threads        int       `json:"threads"`
	Processes      int       `json:"processes"`
	ResolutionMS   float64   `json:"resolution"`
	MinDelayMS     float64   `json:"min_delay"`
	MaxDelayMS     float64   `json:"max_delay"`
	NumConnections int64     `json:"num_connections"`
}

// Snapshot is the full connectivity of a network at one point in time.
type Snapshot struct {
	SnapshotInfo
	Connections []connector.Descriptor `json:"connections"`
}

// ConnectionQuery selects connections of a snapshot. Zero fields match
// anything; Limit <= 0 means constants.DefaultListLimit.
type ConnectionQuery struct {
	Source       node.GID
	Target       node.GID
	SynapseModel string
	Limit        int
}

func (q ConnectionQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return constants.DefaultListLimit
	case q.Limit > constants.MaxListLimit:
		return constants.MaxListLimit
	}
	return q.Limit
}

func (q ConnectionQuery) match(d connector.Descriptor) bool {
	if q.Source != 0 && d.Source != q.Source {
		return false
	}
	if q.Target != 0 && d.Target != q.Target {
		return false
	}
	return q.SynapseModel == "" || d.SynapseModel == q.SynapseModel
}

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	// SaveSnapshot stores s. An empty ID is filled in with a new uuid and a
	// zero CreatedAt with the current time. The stored id is returned.
	SaveSnapshot(ctx context.Context, s *Snapshot) (string, error)

	// GetSnapshot returns the snapshot with the given id, or an error
	// wrapping ErrSnapshotNotFound.
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)

	// ListSnapshots returns all snapshot headers, newest first.
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)

	// QueryConnections returns the connections of snapshot id matching q,
	// in stored order.
	QueryConnections(ctx context.Context, id string, q ConnectionQuery) ([]connector.Descriptor, error)

	DeleteSnapshot(ctx context.Context, id string) error
	Close() error
}

// NewSnapshotStore opens a store of the given backend. path is only used by
// the SQLite backend.
func NewSnapshotStore(backend constants.Backend, path string) (SnapshotStore, error) {
	switch backend {
	case constants.BackendMemory:
		return NewInMemorySnapshotStore(), nil
	case constants.BackendSQLite:
		return NewSQLiteSnapshotStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", backend)
	}
}

// prepareForSave validates s and fills in its id and creation time.
func prepareForSave(s *Snapshot, now time.Time, newID func() string) error {
	if s == nil {
		return fmt.Errorf("snapshot is required")
	}
	if s.Name == "" {
		return fmt.Errorf("snapshot name is required")
	}
	if s.NumConnections != int64(len(s.Connections)) {
		return fmt.Errorf("snapshot %q claims %d connections but holds %d",
			s.Name, s.NumConnections, len(s.Connections))
	}
	if s.ID == "" {
		s.ID = newID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return nil
}
