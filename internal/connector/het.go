// Package connector implements the thread-local heterogeneous connection
// store: one homogeneous connector per synapse type, each tagged with the
// kind of events its records emit.
package connector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// EntryKind tags which event kinds are reachable through an entry.
type EntryKind uint8

const (
	Primary EntryKind = 1 << iota
	Secondary

	Both = Primary | Secondary
)

// KindOf returns the entry kind records of m produce.
func KindOf(m synapse.Model) EntryKind {
	if m.Traits().Primary {
		return Primary
	}
	return Secondary
}

// Has reports whether k includes any kind in o.
func (k EntryKind) Has(o EntryKind) bool { return k&o != 0 }

func (k EntryKind) String() string {
	var parts []string
	if k&Primary != 0 {
		parts = append(parts, "primary")
	}
	if k&Secondary != 0 {
		parts = append(parts, "secondary")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Entry is the homogeneous connector of one synapse type.
type Entry struct {
	SynID synapse.SynID
	Kind  EntryKind
	Conns synapse.Connector
}

// Handle addresses a stored record.
type Handle struct {
	SynID synapse.SynID
	LCID  int
}

// HetConnector stores records of any number of synapse types. It is owned by
// one thread and is not safe for concurrent use.
type HetConnector struct {
	entries []Entry
	kind    EntryKind
}

// New returns an empty store.
func New() *HetConnector { return &HetConnector{} }

// Kind returns the union of the kinds of all entries.
func (h *HetConnector) Kind() EntryKind { return h.kind }

// NumEntries returns the number of synapse types present.
func (h *HetConnector) NumEntries() int { return len(h.entries) }

func (h *HetConnector) find(syn synapse.SynID) int {
	for i := range h.entries {
		if h.entries[i].SynID == syn {
			return i
		}
	}
	return -1
}

// Find returns the connector holding records of syn.
func (h *HetConnector) Find(syn synapse.SynID) (synapse.Connector, bool) {
	if i := h.find(syn); i >= 0 {
		return h.entries[i].Conns, true
	}
	return nil, false
}

// NumConnections returns the number of records of syn.
func (h *HetConnector) NumConnections(syn synapse.SynID) int {
	if c, ok := h.Find(syn); ok {
		return c.Len()
	}
	return 0
}

// Total returns the number of records of all types.
func (h *HetConnector) Total() int {
	n := 0
	for _, e := range h.entries {
		n += e.Conns.Len()
	}
	return n
}

// Add validates rec for the pair and appends it to the entry of m, creating
// the entry on first use. Nothing is stored if validation fails.
func (h *HetConnector) Add(m synapse.Model, src, tgt node.Node, rec synapse.Connection, receptor int) (Handle, error) {
	if err := rec.Check(src, tgt, receptor, m.Common()); err != nil {
		return Handle{}, err
	}
	core := rec.Core()
	core.Target = tgt.GID
	core.Receptor = receptor

	i := h.find(m.ID())
	if i < 0 {
		kind := KindOf(m)
		h.entries = append(h.entries, Entry{SynID: m.ID(), Kind: kind, Conns: m.NewConnector()})
		h.kind |= kind
		i = len(h.entries) - 1
	}
	lcid := h.entries[i].Conns.Push(rec)
	return Handle{SynID: m.ID(), LCID: lcid}, nil
}

// At returns the record addressed by (syn, lcid).
func (h *HetConnector) At(syn synapse.SynID, lcid int) (synapse.Connection, error) {
	c, ok := h.Find(syn)
	if !ok || lcid < 0 || lcid >= c.Len() {
		return nil, fmt.Errorf("%w: synapse type %d, port %d", connerr.ErrUnknownConnection, syn, lcid)
	}
	return c.At(lcid), nil
}

// Status writes the status of record (m, lcid) into d.
func (h *HetConnector) Status(m synapse.Model, lcid int, d *dict.Map) error {
	rec, err := h.At(m.ID(), lcid)
	if err != nil {
		return err
	}
	rec.Status(d, m.Common())
	return nil
}

// SetStatus updates record (m, lcid) from d.
func (h *HetConnector) SetStatus(m synapse.Model, lcid int, d *dict.Map, dv synapse.DelayValidator) error {
	rec, err := h.At(m.ID(), lcid)
	if err != nil {
		return err
	}
	return rec.SetStatus(d, synapse.RecordScope(m, dv))
}

// Visit calls fn for every entry whose tag includes kind. Returning false
// stops the walk.
func (h *HetConnector) Visit(kind EntryKind, fn func(e *Entry) bool) {
	if !h.kind.Has(kind) {
		return
	}
	for i := range h.entries {
		if h.entries[i].Kind.Has(kind) && !fn(&h.entries[i]) {
			return
		}
	}
}

// SortConnections orders each entry by ascending source id. sources(syn)
// returns the source ids parallel to that entry; it is permuted in place
// together with the records, keeping equal sources in insertion order.
func (h *HetConnector) SortConnections(sources func(synapse.SynID) []node.GID) {
	for _, e := range h.entries {
		src := sources(e.SynID)
		if len(src) != e.Conns.Len() {
			panic(fmt.Sprintf("connector: %d sources for %d records of type %d", len(src), e.Conns.Len(), e.SynID))
		}
		if sort.SliceIsSorted(src, func(i, j int) bool { return src[i] < src[j] }) {
			continue
		}
		perm := make([]int, len(src))
		for i := range perm {
			perm[i] = i
		}
		sort.SliceStable(perm, func(i, j int) bool { return src[perm[i]] < src[perm[j]] })

		e.Conns.Permute(perm)
		sorted := make([]node.GID, len(src))
		for i, j := range perm {
			sorted[i] = src[j]
		}
		copy(src, sorted)
	}
}

// TriggerUpdateWeight applies a volume transmitter update to every
// modulated record whose type is driven by vt.
func (h *HetConnector) TriggerUpdateWeight(vt node.GID, spikes []synapse.SpikeCounter, tTrig float64, model func(synapse.SynID) (synapse.Model, error)) {
	h.Visit(Primary, func(e *Entry) bool {
		m, err := model(e.SynID)
		if err != nil {
			return true
		}
		dc, ok := m.Common().(*synapse.DopamineCommon)
		if !ok {
			return true
		}
		if got, ok := dc.VolumeTransmitter(); !ok || got != vt {
			return true
		}
		for lcid := range e.Conns.Len() {
			if rec, ok := e.Conns.At(lcid).(synapse.Modulated); ok {
				rec.TriggerUpdateWeight(spikes, tTrig, dc)
			}
		}
		return true
	})
}
