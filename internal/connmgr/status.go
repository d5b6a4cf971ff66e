package connmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Keys added to a connection status next to the record's own fields.
const (
	KeyTargetThread = "target_thread"
	KeyPort         = "port"
	KeySynapseID    = "synapse_id"
)

// identityKeys name a connection rather than parameterize it. They are
// ignored by SetSynapseStatus so a status read back can be written again.
var identityKeys = []string{
	synapse.KeySource, synapse.KeyTarget, synapse.KeySynapseModel,
	KeyTargetThread, KeyPort, KeySynapseID, synapse.KeyReceptor,
}

// located is a connection found by (source, target, thread, type, port).
type located struct {
	sh    *shard
	model synapse.Model
	conns *connector.HetConnector
	rec   synapse.Connection
}

func (m *Manager) locate(source, target node.GID, tid int, syn synapse.SynID, port int) (located, error) {
	var l located
	if tid < 0 || tid >= len(m.shards) {
		return l, fmt.Errorf("%w: thread %d out of range [0, %d)", connerr.ErrUnknownConnection, tid, len(m.shards))
	}
	model, err := m.synapses.Get(syn)
	if err != nil {
		return l, err
	}
	src, err := m.nodes.Node(source, tid)
	if err != nil {
		return l, err
	}
	tgt, err := m.nodes.Node(target, tid)
	if err != nil {
		return l, err
	}
	l.sh = m.shards[tid]
	l.model = model

	switch Classify(src, tgt) {
	case RouteNeuronNeuron:
		l.conns = l.sh.store
		if !m.sources.Cleared() {
			got, err := m.sources.Source(tid, syn, port)
			if err != nil {
				return l, err
			}
			if got != source {
				return l, fmt.Errorf("%w: port %d of synapse type %s on thread %d has source %d, not %d",
					connerr.ErrUnknownConnection, port, model.Name(), tid, got, source)
			}
		}
	default:
		if l.conns, err = m.devices.Lookup(tid, src); err != nil {
			return l, err
		}
	}

	if l.rec, err = l.conns.At(syn, port); err != nil {
		return l, err
	}
	if got := l.rec.Core().Target; got != target {
		return l, fmt.Errorf("%w: port %d of synapse type %s on thread %d targets %d, not %d",
			connerr.ErrUnknownConnection, port, model.Name(), tid, got, target)
	}
	return l, nil
}

// SynapseStatus returns the parameters of one connection, addressed by
// its source, target, the thread holding it, its synapse type and port.
func (m *Manager) SynapseStatus(source, target node.GID, tid int, syn synapse.SynID, port int) (*dict.Map, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	l, err := m.locate(source, target, tid, syn, port)
	if err != nil {
		return nil, err
	}
	d := dict.New()
	l.rec.Status(d, l.model.Common())
	d.Set(synapse.KeySource, uint64(source))
	d.Set(synapse.KeySynapseModel, l.model.Name())
	d.Set(KeySynapseID, int(syn))
	d.Set(KeyTargetThread, tid)
	d.Set(KeyPort, port)
	return d, nil
}

// SetSynapseStatus updates the mutable parameters of one connection. Keys
// that identify the connection are ignored; any other key the record does
// not know is an error.
func (m *Manager) SetSynapseStatus(source, target node.GID, tid int, syn synapse.SynID, port int, d *dict.Map) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	l, err := m.locate(source, target, tid, syn, port)
	if err != nil {
		return err
	}

	params := d.Clone()
	for _, key := range identityKeys {
		params.Delete(key)
	}
	err = checkParamKeys(l.model, params)
	if err == nil {
		err = l.rec.SetStatus(params, synapse.RecordScope(l.model, l.sh.delays))
	}
	if errors.Is(err, connerr.ErrBadProperty) || errors.Is(err, connerr.ErrBadDelay) || errors.Is(err, connerr.ErrTypeMismatch) {
		return fmt.Errorf("setting status of '%s' connecting from GID %d to GID %d via port %d: %w",
			l.model.Name(), source, target, port, err)
	}
	return err
}

// Filter selects connections for Connections. Empty lists and an empty
// model name match everything; Label matches everything when it is
// synapse.Unlabeled.
type Filter struct {
	Sources      []node.GID
	Targets      []node.GID
	SynapseModel string
	Label        int64
}

// All matches every connection.
var All = Filter{Label: synapse.Unlabeled}

type gidSet []node.GID

func newGIDSet(gids []node.GID) gidSet {
	if len(gids) == 0 {
		return nil
	}
	s := append(gidSet(nil), gids...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s
}

// has reports membership; the empty set contains everything.
func (s gidSet) has(gid node.GID) bool {
	if s == nil {
		return true
	}
	i := sort.Search(len(s), func(i int) bool { return s[i] >= gid })
	return i < len(s) && s[i] == gid
}

// Connections enumerates the connections stored on this process that pass
// f, ordered by source, target, synapse type, thread and port.
func (m *Manager) Connections(ctx context.Context, f Filter) ([]connector.Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	if m.sources.Cleared() {
		return nil, fmt.Errorf("%w: connections cannot be listed after the source table was cleared; set %s",
			connerr.ErrInvalidState, KeyKeepSourceTable)
	}

	models := m.synapses.Models()
	if f.SynapseModel != "" {
		model, err := m.synapses.Lookup(f.SynapseModel)
		if err != nil {
			return nil, err
		}
		models = []synapse.Model{model}
	}
	sources, targets := newGIDSet(f.Sources), newGIDSet(f.Targets)
	match := connector.Filter{Label: f.Label}
	if len(f.Sources) == 1 {
		match.Source = f.Sources[0]
	}
	if len(f.Targets) == 1 {
		match.Target = f.Targets[0]
	}

	var (
		mu  sync.Mutex
		out []connector.Descriptor
	)
	err := m.parallel(ctx, func(ctx context.Context, sh *shard) error {
		var buf []connector.Descriptor
		for _, model := range models {
			if err := ctx.Err(); err != nil {
				return err
			}
			srcs := m.sources.Sources(sh.tid, model.ID())
			buf = sh.store.Collect(buf, model, sh.tid, match, func(lcid int) node.GID { return srcs[lcid] })
			buf = m.devices.Collect(buf, sh.tid, model, match)
		}
		kept := buf[:0]
		for _, c := range buf {
			if sources.has(c.Source) && targets.has(c.Target) {
				kept = append(kept, c)
			}
		}
		mu.Lock()
		out = append(out, kept...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	connector.SortDescriptors(out)
	return out, nil
}
