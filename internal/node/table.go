package node

import (
	"fmt"
	"sync"

	"github.com/nvandessel/connectome/internal/connerr"
)

// Layout is the process/thread decomposition of the simulation.
type Layout struct {
	Processes int
	Rank      int
	Threads   int
}

// Validate checks that the layout is usable.
func (l Layout) Validate() error {
	if l.Processes < 1 {
		return fmt.Errorf("%w: processes must be >= 1, got %d", connerr.ErrConfig, l.Processes)
	}
	if l.Threads < 1 {
		return fmt.Errorf("%w: threads must be >= 1, got %d", connerr.ErrConfig, l.Threads)
	}
	if l.Rank < 0 || l.Rank >= l.Processes {
		return fmt.Errorf("%w: rank %d out of range [0, %d)", connerr.ErrConfig, l.Rank, l.Processes)
	}
	return nil
}

// VPs returns the number of virtual processes.
func (l Layout) VPs() int { return l.Processes * l.Threads }

// VP assigns gid to a virtual process round-robin.
func (l Layout) VP(gid GID) int { return int(uint64(gid) % uint64(l.VPs())) }

// RankOf returns the process hosting virtual process vp.
func (l Layout) RankOf(vp int) int { return vp % l.Processes }

// ThreadOf returns the thread running virtual process vp on its process.
func (l Layout) ThreadOf(vp int) int { return vp / l.Processes }

// Spec describes a population member to create.
type Spec struct {
	Model     string `yaml:"model" json:"model"`
	Shape     Shape  `yaml:"-" json:"shape"`
	Receptors int    `yaml:"receptors" json:"receptors"`
	Secondary bool   `yaml:"secondary" json:"secondary"`
	Generator bool   `yaml:"generator" json:"generator"`
}

type record struct {
	spec          Spec
	localDeviceID int
}

// Table is an in-memory node registry implementing Resolver.
type Table struct {
	mu      sync.RWMutex
	layout  Layout
	nodes   []record // index gid-1
	devices int
}

// NewTable returns an empty table for layout.
func NewTable(layout Layout) (*Table, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Table{layout: layout}, nil
}

// Layout returns the table's process/thread decomposition.
func (t *Table) Layout() Layout { return t.layout }

// NumThreads implements Resolver.
func (t *Table) NumThreads() int { return t.layout.Threads }

// Create appends n nodes built from spec and returns their ids in order.
func (t *Table) Create(spec Spec, n int) ([]GID, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: cannot create %d nodes", connerr.ErrConfig, n)
	}
	if spec.Shape == 0 {
		spec.Shape = ShapeNeuron
	}
	if spec.Shape > ShapeGlobalReceiver {
		return nil, fmt.Errorf("%w: invalid shape %v", connerr.ErrConfig, spec.Shape)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]GID, n)
	for i := range n {
		rec := record{spec: spec, localDeviceID: -1}
		if !spec.Shape.HasProxies() {
			rec.localDeviceID = t.devices
			t.devices++
		}
		t.nodes = append(t.nodes, rec)
		ids[i] = GID(len(t.nodes))
	}
	return ids, nil
}

// Len returns the number of nodes created so far.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Spec returns the creation spec of gid.
func (t *Table) Spec(gid GID) (Spec, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if gid == 0 || int(gid) > len(t.nodes) {
		return Spec{}, false
	}
	return t.nodes[gid-1].spec, true
}

// IsLocal implements Resolver. Devices and global receivers exist on every
// process; neurons only on the rank their virtual process maps to.
func (t *Table) IsLocal(gid GID) bool {
	spec, ok := t.Spec(gid)
	if !ok {
		return false
	}
	if !spec.Shape.HasProxies() {
		return true
	}
	return t.layout.RankOf(t.layout.VP(gid)) == t.layout.Rank
}

// SuggestThread implements Resolver.
func (t *Table) SuggestThread(gid GID) int {
	return t.layout.ThreadOf(t.layout.VP(gid))
}

// Node implements Resolver.
func (t *Table) Node(gid GID, tid int) (Node, error) {
	if tid < 0 || tid >= t.layout.Threads {
		return Node{}, fmt.Errorf("%w: thread %d out of range [0, %d)", connerr.ErrInvalidState, tid, t.layout.Threads)
	}

	t.mu.RLock()
	if gid == 0 || int(gid) > len(t.nodes) {
		t.mu.RUnlock()
		return Node{}, fmt.Errorf("%w: %d", connerr.ErrUnknownNode, gid)
	}
	rec := t.nodes[gid-1]
	t.mu.RUnlock()

	vp := t.layout.VP(gid)
	n := Node{
		GID:           gid,
		Model:         rec.spec.Model,
		Shape:         rec.spec.Shape,
		VP:            vp,
		LocalDeviceID: rec.localDeviceID,
		Receptors:     rec.spec.Receptors,
		Secondary:     rec.spec.Secondary,
		Generator:     rec.spec.Generator,
	}
	if !rec.spec.Shape.HasProxies() {
		n.Thread = tid
		return n, nil
	}
	n.Thread = t.layout.ThreadOf(vp)
	n.Proxy = t.layout.RankOf(vp) != t.layout.Rank
	return n, nil
}

// LocalNeurons returns the ids of neurons hosted by thread tid of this
// process, in ascending order.
func (t *Table) LocalNeurons(tid int) []GID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []GID
	for i, rec := range t.nodes {
		gid := GID(i + 1)
		if !rec.spec.Shape.HasProxies() {
			continue
		}
		vp := t.layout.VP(gid)
		if t.layout.RankOf(vp) == t.layout.Rank && t.layout.ThreadOf(vp) == tid {
			out = append(out, gid)
		}
	}
	return out
}
