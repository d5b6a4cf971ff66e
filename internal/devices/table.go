// Package devices stores connections that have a device at either end,
// separately from the neuron-to-neuron store.
package devices

import (
	"fmt"
	"sort"

	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

type fromDevice struct {
	source node.GID
	conns  *connector.HetConnector
}

type thread struct {
	// to holds connections from neurons into devices and global receivers,
	// keyed by source id.
	to map[node.GID]*connector.HetConnector
	// from holds every connection whose source is a device, keyed by local
	// device id.
	from map[int]*fromDevice
}

// Table holds device connections per thread. Each thread touches only its
// own slot.
type Table struct {
	threads []thread
}

// New returns an empty table for threads threads.
func New(threads int) *Table {
	t := &Table{threads: make([]thread, threads)}
	for i := range t.threads {
		t.threads[i] = thread{
			to:   make(map[node.GID]*connector.HetConnector),
			from: make(map[int]*fromDevice),
		}
	}
	return t
}

// NumThreads returns the number of thread slots.
func (t *Table) NumThreads() int { return len(t.threads) }

// AddToDevice stores a connection from neuron src into device or global
// receiver tgt on tid.
func (t *Table) AddToDevice(tid int, m synapse.Model, src, tgt node.Node, rec synapse.Connection, receptor int) (connector.Handle, error) {
	th := &t.threads[tid]
	h, ok := th.to[src.GID]
	if !ok {
		h = connector.New()
	}
	hd, err := h.Add(m, src, tgt, rec, receptor)
	if err != nil {
		return hd, err
	}
	th.to[src.GID] = h
	return hd, nil
}

// AddFromDevice stores a connection from device src to tgt on tid.
func (t *Table) AddFromDevice(tid int, m synapse.Model, src, tgt node.Node, rec synapse.Connection, receptor int) (connector.Handle, error) {
	if src.LocalDeviceID < 0 {
		return connector.Handle{}, fmt.Errorf("%w: node %d has no local device id", connerr.ErrIllegalConnection, src.GID)
	}
	th := &t.threads[tid]
	fd, ok := th.from[src.LocalDeviceID]
	if !ok {
		fd = &fromDevice{source: src.GID, conns: connector.New()}
	}
	hd, err := fd.conns.Add(m, src, tgt, rec, receptor)
	if err != nil {
		return hd, err
	}
	th.from[src.LocalDeviceID] = fd
	return hd, nil
}

// ToDevice returns the connections from source into devices on tid.
func (t *Table) ToDevice(tid int, source node.GID) (*connector.HetConnector, bool) {
	h, ok := t.threads[tid].to[source]
	return h, ok
}

// FromDevice returns the connections out of the device with local id ldid
// on tid.
func (t *Table) FromDevice(tid, ldid int) (*connector.HetConnector, bool) {
	fd, ok := t.threads[tid].from[ldid]
	if !ok {
		return nil, false
	}
	return fd.conns, true
}

// Lookup returns the connector holding the device connections from source
// on tid.
func (t *Table) Lookup(tid int, source node.Node) (*connector.HetConnector, error) {
	if source.Shape == node.ShapeDevice {
		if h, ok := t.FromDevice(tid, source.LocalDeviceID); ok {
			return h, nil
		}
	} else if h, ok := t.ToDevice(tid, source.GID); ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: no device connections from node %d on thread %d", connerr.ErrUnknownConnection, source.GID, tid)
}

// Status writes the status of connection (source, m, port) on tid into d.
func (t *Table) Status(tid int, source node.Node, m synapse.Model, port int, d *dict.Map) error {
	h, err := t.Lookup(tid, source)
	if err != nil {
		return err
	}
	if err := h.Status(m, port, d); err != nil {
		return err
	}
	d.Set(synapse.KeySource, uint64(source.GID))
	return nil
}

// SetStatus updates connection (source, m, port) on tid from d.
func (t *Table) SetStatus(tid int, source node.Node, m synapse.Model, port int, d *dict.Map, dv synapse.DelayValidator) error {
	h, err := t.Lookup(tid, source)
	if err != nil {
		return err
	}
	return h.SetStatus(m, port, d, dv)
}

// NumConnections returns the number of device connections of syn on tid.
func (t *Table) NumConnections(tid int, syn synapse.SynID) int {
	n := 0
	th := &t.threads[tid]
	for _, h := range th.to {
		n += h.NumConnections(syn)
	}
	for _, fd := range th.from {
		n += fd.conns.NumConnections(syn)
	}
	return n
}

// Collect appends the descriptors of device connections of m on tid that
// pass f, ordered by source.
func (t *Table) Collect(out []connector.Descriptor, tid int, m synapse.Model, f connector.Filter) []connector.Descriptor {
	th := &t.threads[tid]

	sources := make([]node.GID, 0, len(th.to))
	for src := range th.to {
		if f.Source == 0 || f.Source == src {
			sources = append(sources, src)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, src := range sources {
		out = th.to[src].Collect(out, m, tid, f, func(int) node.GID { return src })
	}

	ldids := make([]int, 0, len(th.from))
	for ldid, fd := range th.from {
		if f.Source == 0 || f.Source == fd.source {
			ldids = append(ldids, ldid)
		}
	}
	sort.Ints(ldids)
	for _, ldid := range ldids {
		fd := th.from[ldid]
		out = fd.conns.Collect(out, m, tid, f, func(int) node.GID { return fd.source })
	}
	return out
}

// Visit calls fn for every device connector on tid.
func (t *Table) Visit(tid int, fn func(source node.GID, h *connector.HetConnector)) {
	th := &t.threads[tid]
	for src, h := range th.to {
		fn(src, h)
	}
	for _, fd := range th.from {
		fn(fd.source, fd.conns)
	}
}
