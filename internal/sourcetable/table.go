// Package sourcetable records the source of every neuron-to-neuron
// connection, parallel to the thread-local connection store.
package sourcetable

import (
	"fmt"
	"sync/atomic"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Table holds, per thread and synapse type, the source ids in lcid order.
// Each thread appends only to its own slot.
type Table struct {
	threads [][][]node.GID
	cleared atomic.Bool
}

// New returns an empty table for threads threads.
func New(threads int) *Table {
	return &Table{threads: make([][][]node.GID, threads)}
}

// NumThreads returns the number of thread slots.
func (t *Table) NumThreads() int { return len(t.threads) }

// Add appends src as the source of the next lcid of syn on tid.
func (t *Table) Add(tid int, syn synapse.SynID, src node.GID) error {
	if t.cleared.Load() {
		return fmt.Errorf("%w: source table already cleared", connerr.ErrInvalidState)
	}
	byType := t.threads[tid]
	for int(syn) >= len(byType) {
		byType = append(byType, nil)
	}
	byType[syn] = append(byType[syn], src)
	t.threads[tid] = byType
	return nil
}

// Sources returns the sources of syn on tid in lcid order. The slice aliases
// table storage.
func (t *Table) Sources(tid int, syn synapse.SynID) []node.GID {
	byType := t.threads[tid]
	if int(syn) >= len(byType) {
		return nil
	}
	return byType[syn]
}

// Source returns the source of (tid, syn, lcid).
func (t *Table) Source(tid int, syn synapse.SynID, lcid int) (node.GID, error) {
	if t.cleared.Load() {
		return 0, fmt.Errorf("%w: source table already cleared", connerr.ErrInvalidState)
	}
	src := t.Sources(tid, syn)
	if lcid < 0 || lcid >= len(src) {
		return 0, fmt.Errorf("%w: no source for thread %d, synapse type %d, port %d", connerr.ErrUnknownConnection, tid, syn, lcid)
	}
	return src[lcid], nil
}

// Len returns the number of sources recorded for syn on tid.
func (t *Table) Len(tid int, syn synapse.SynID) int { return len(t.Sources(tid, syn)) }

// Clear releases all storage. Later lookups and additions fail.
func (t *Table) Clear() {
	for i := range t.threads {
		t.threads[i] = nil
	}
	t.cleared.Store(true)
}

// Cleared reports whether Clear has run.
func (t *Table) Cleared() bool { return t.cleared.Load() }
