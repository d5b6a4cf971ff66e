package connector

import (
	"cmp"
	"slices"

	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Descriptor identifies one stored connection and carries its principal
// parameters.
type Descriptor struct {
	Source       node.GID      `json:"source" yaml:"source"`
	Target       node.GID      `json:"target" yaml:"target"`
	Thread       int           `json:"target_thread" yaml:"target_thread"`
	SynID        synapse.SynID `json:"synapse_id" yaml:"synapse_id"`
	SynapseModel string        `json:"synapse_model" yaml:"synapse_model"`
	Port         int           `json:"port" yaml:"port"`
	Weight       float64       `json:"weight" yaml:"weight"`
	Delay        float64       `json:"delay" yaml:"delay"`
	Receptor     int           `json:"receptor" yaml:"receptor"`
	Label        int64         `json:"synapse_label" yaml:"synapse_label"`
}

// Filter selects connections. Zero node ids and synapse.Unlabeled match
// anything.
type Filter struct {
	Source node.GID
	Target node.GID
	Label  int64
}

// Any matches every connection.
var Any = Filter{Label: synapse.Unlabeled}

// Match reports whether the connection from src described by rec passes f.
func (f Filter) Match(src node.GID, rec synapse.Connection) bool {
	core := rec.Core()
	if f.Source != 0 && f.Source != src {
		return false
	}
	if f.Target != 0 && f.Target != core.Target {
		return false
	}
	return f.Label == synapse.Unlabeled || f.Label == core.Label
}

// Describe builds the descriptor of record lcid of m.
func Describe(src node.GID, tid int, m synapse.Model, lcid int, rec synapse.Connection) Descriptor {
	core := rec.Core()
	return Descriptor{
		Source:       src,
		Target:       core.Target,
		Thread:       tid,
		SynID:        m.ID(),
		SynapseModel: m.Name(),
		Port:         lcid,
		Weight:       rec.EffectiveWeight(m.Common()),
		Delay:        core.DelayMS,
		Receptor:     core.Receptor,
		Label:        core.Label,
	}
}

// Collect appends the descriptors of the records of m that pass f. source
// maps an lcid to the source id of that record.
func (h *HetConnector) Collect(out []Descriptor, m synapse.Model, tid int, f Filter, source func(lcid int) node.GID) []Descriptor {
	c, ok := h.Find(m.ID())
	if !ok {
		return out
	}
	for lcid := range c.Len() {
		rec := c.At(lcid)
		src := source(lcid)
		if f.Match(src, rec) {
			out = append(out, Describe(src, tid, m, lcid, rec))
		}
	}
	return out
}

// SortDescriptors orders ds by source, target, synapse id, thread and port.
func SortDescriptors(ds []Descriptor) {
	slices.SortFunc(ds, func(a, b Descriptor) int {
		return cmp.Or(
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Target, b.Target),
			cmp.Compare(a.SynID, b.SynID),
			cmp.Compare(a.Thread, b.Thread),
			cmp.Compare(a.Port, b.Port),
		)
	})
}
