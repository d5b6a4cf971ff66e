package store

import (
	"testing"
	"time"

	"github.com/nvandessel/connectome/internal/connector"
)

func testSnapshot(name string, created time.Time) *Snapshot {
	conns := []connector.Descriptor{
		{Source: 1, Target: 2, Thread: 0, SynID: 0, SynapseModel: "static_synapse", Port: 0, Weight: 1.5, Delay: 1.0, Label: -1},
		{Source: 1, Target: 3, Thread: 1, SynID: 0, SynapseModel: "static_synapse", Port: 0, Weight: 2.0, Delay: 2.0, Label: -1},
		{Source: 2, Target: 3, Thread: 1, SynID: 2, SynapseModel: "stdp_synapse", Port: 0, Weight: 0.5, Delay: 1.5, Receptor: 1, Label: 7},
	}
	return &Snapshot{
		SnapshotInfo: SnapshotInfo{
			Name:           name,
			CreatedAt:      created,
			Threads:        2,
			Processes:      1,
			ResolutionMS:   0.1,
			MinDelayMS:     1.0,
			MaxDelayMS:     2.0,
			NumConnections: int64(len(conns)),
		},
		Connections: conns,
	}
}

// storeFactories lists every backend so behaviour tests run against all.
func storeFactories(t *testing.T) map[string]func() SnapshotStore {
	t.Helper()
	return map[string]func() SnapshotStore{
		"memory": func() SnapshotStore { return NewInMemorySnapshotStore() },
		"sqlite": func() SnapshotStore {
			s, err := NewSQLiteSnapshotStore(t.TempDir() + "/snapshots.db")
			if err != nil {
				t.Fatalf("NewSQLiteSnapshotStore() error = %v", err)
			}
			return s
		},
	}
}
