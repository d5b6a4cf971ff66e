package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/connectome/internal/connector"
)

// InMemorySnapshotStore implements SnapshotStore for testing and for runs
// that do not need to outlive the process.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewInMemorySnapshotStore creates a new in-memory store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{
		snapshots: make(map[string]*Snapshot),
	}
}

// SaveSnapshot stores a copy of s.
func (s *InMemorySnapshotStore) SaveSnapshot(ctx context.Context, snap *Snapshot) (string, error) {
	if err := prepareForSave(snap, time.Now(), uuid.NewString); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snapshots[snap.ID]; exists {
		return "", fmt.Errorf("snapshot already exists: %s", snap.ID)
	}
	c := *snap
	c.Connections = slices.Clone(snap.Connections)
	s.snapshots[snap.ID] = &c
	return snap.ID, nil
}

// GetSnapshot retrieves a copy of a snapshot by id.
func (s *InMemorySnapshotStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	c := *snap
	c.Connections = slices.Clone(snap.Connections)
	return &c, nil
}

// ListSnapshots returns the headers of all snapshots, newest first.
func (s *InMemorySnapshotStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SnapshotInfo, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		infos = append(infos, snap.SnapshotInfo)
	}
	sortInfos(infos)
	return infos, nil
}

// QueryConnections filters the connections of one snapshot.
func (s *InMemorySnapshotStore) QueryConnections(ctx context.Context, id string, q ConnectionQuery) ([]connector.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	limit := q.limit()
	var out []connector.Descriptor
	for _, d := range snap.Connections {
		if len(out) == limit {
			break
		}
		if q.match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// DeleteSnapshot removes a snapshot.
func (s *InMemorySnapshotStore) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	delete(s.snapshots, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemorySnapshotStore) Close() error {
	return nil
}

// sortInfos orders newest first, ties broken by id.
func sortInfos(infos []SnapshotInfo) {
	slices.SortFunc(infos, func(a, b SnapshotInfo) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
