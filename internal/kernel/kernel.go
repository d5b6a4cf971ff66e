// Package kernel assembles the connection core from a configuration: one
// node table and connection manager per simulated process, joined by a
// collective group for the delay reduction.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/connectome/internal/collective"
	"github.com/nvandessel/connectome/internal/config"
	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/connmgr"
	"github.com/nvandessel/connectome/internal/delay"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/logging"
	"github.com/nvandessel/connectome/internal/metrics"
	"github.com/nvandessel/connectome/internal/network"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/simtime"
	"github.com/nvandessel/connectome/internal/store"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Status keys added by the kernel.
const (
	KeyNumProcesses = "num_processes"
	KeyNumThreads   = "local_num_threads"
	KeyResolution   = "resolution"
	KeyPrepared     = "prepared"
	KeyNetwork      = "network"
)

// Member is the state of one process.
type Member struct {
	Rank  int
	Nodes *node.Table
	Conns *connmgr.Manager
}

// Options configures New. A nil Logger discards output.
type Options struct {
	Config    *config.ConnectomeConfig
	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
}

// Kernel drives all members in lockstep.
type Kernel struct {
	cfg     *config.ConnectomeConfig
	logger  *slog.Logger
	res     simtime.Resolution
	members []*Member

	net  *network.Network
	pops network.Populations
}

// New builds a kernel with empty node tables.
func New(opts Options) (*Kernel, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", connerr.ErrConfig, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	res, err := simtime.NewResolution(cfg.Kernel.ResolutionMS)
	if err != nil {
		return nil, err
	}

	procs := cfg.Kernel.Processes
	comms := []collective.Communicator{collective.Local{}}
	if procs > 1 {
		g, err := collective.NewGroup(procs)
		if err != nil {
			return nil, err
		}
		comms = make([]collective.Communicator, procs)
		for r := range procs {
			comms[r] = g.Member(r)
		}
	}

	k := &Kernel{cfg: cfg, logger: logger, res: res}
	for rank, comm := range comms {
		tbl, err := node.NewTable(node.Layout{Processes: procs, Rank: rank, Threads: cfg.Kernel.Threads})
		if err != nil {
			return nil, err
		}
		mgr, err := connmgr.New(connmgr.Options{
			Nodes:           tbl,
			Comm:            comm,
			Resolution:      res,
			Seed:            cfg.Kernel.Seed,
			KeepSourceTable: cfg.Kernel.KeepSourceTable,
			Logger:          logger.With("rank", rank),
			Decisions:       opts.Decisions,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Kernel.HasDelayWindow() {
			d := dict.New()
			d.Set(delay.KeyMinDelay, cfg.Kernel.MinDelayMS)
			d.Set(delay.KeyMaxDelay, cfg.Kernel.MaxDelayMS)
			if err := mgr.SetStatus(d); err != nil {
				return nil, fmt.Errorf("applying configured delay window: %w", err)
			}
		}
		k.members = append(k.members, &Member{Rank: rank, Nodes: tbl, Conns: mgr})
	}

	logger.Debug("kernel created",
		"processes", procs,
		"threads", cfg.Kernel.Threads,
		"resolution", cfg.Kernel.ResolutionMS,
		"seed", cfg.Kernel.Seed)
	return k, nil
}

// Members returns the per-process state, ordered by rank.
func (k *Kernel) Members() []*Member { return k.members }

// NumProcesses returns the number of simulated processes.
func (k *Kernel) NumProcesses() int { return len(k.members) }

// Resolution returns the time grid.
func (k *Kernel) Resolution() simtime.Resolution { return k.res }

// Network returns the loaded network, or nil before Load.
func (k *Kernel) Network() *network.Network { return k.net }

// Populations returns the populations of the loaded network, if any.
func (k *Kernel) Populations() network.Populations { return k.pops }

// each runs fn for every member concurrently. Collective operations need
// this: a reduction only completes once every member has joined.
func (k *Kernel) each(ctx context.Context, fn func(ctx context.Context, m *Member) error) error {
	if len(k.members) == 1 {
		return fn(ctx, k.members[0])
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range k.members {
		g.Go(func() error {
			if err := fn(ctx, m); err != nil {
				return fmt.Errorf("rank %d: %w", m.Rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Load creates the nodes of n on every member and connects them.
func (k *Kernel) Load(ctx context.Context, n *network.Network) (network.Populations, error) {
	if k.net != nil {
		return nil, fmt.Errorf("%w: network %q is already loaded", connerr.ErrInvalidState, k.net.Name)
	}
	start := time.Now()

	pops := make([]network.Populations, len(k.members))
	for i, m := range k.members {
		p, err := n.CreateNodes(m.Nodes)
		if err != nil {
			return nil, err
		}
		pops[i] = p
	}
	err := k.each(ctx, func(ctx context.Context, m *Member) error {
		return n.Connect(ctx, m.Conns, pops[m.Rank])
	})
	if err != nil {
		return nil, err
	}

	k.net, k.pops = n, pops[0]
	total := k.NumConnections()
	metrics.SetConnections(total)
	k.logger.Info("network loaded",
		"network", n.Name,
		"populations", len(n.Populations),
		"projections", len(n.Projections),
		"connections", total,
		"elapsed", time.Since(start))
	return k.pops, nil
}

// Prepare prepares every member; the delay extrema are reduced across them.
func (k *Kernel) Prepare(ctx context.Context) error {
	return k.each(ctx, func(ctx context.Context, m *Member) error {
		return m.Conns.Prepare(ctx)
	})
}

// UpdateDelayExtrema reduces the delay extrema across all members.
func (k *Kernel) UpdateDelayExtrema(ctx context.Context) error {
	return k.each(ctx, func(ctx context.Context, m *Member) error {
		return m.Conns.UpdateDelayExtrema(ctx)
	})
}

// NumConnections sums the connection counts of all members.
func (k *Kernel) NumConnections() int64 {
	var n int64
	for _, m := range k.members {
		n += m.Conns.NumConnections()
	}
	return n
}

// Connections lists the matching connections of every member.
func (k *Kernel) Connections(ctx context.Context, f connmgr.Filter) ([]connector.Descriptor, error) {
	var out []connector.Descriptor
	for _, m := range k.members {
		got, err := m.Conns.Connections(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	if len(k.members) > 1 {
		connector.SortDescriptors(out)
	}
	return out, nil
}

// Status reports the delay window and totals of the whole kernel.
func (k *Kernel) Status() *dict.Map {
	d := k.members[0].Conns.Status()
	d.Set(connmgr.KeyNumConnections, k.NumConnections())
	d.Set(KeyNumProcesses, len(k.members))
	d.Set(KeyNumThreads, k.cfg.Kernel.Threads)
	d.Set(KeyResolution, k.res.StepMS())
	d.Set(KeyPrepared, k.members[0].Conns.Prepared())
	if k.net != nil {
		d.Set(KeyNetwork, k.net.Name)
	}
	return d
}

// ConnectPair connects one pair on every member; each member creates the
// connection only where it owns the target.
func (k *Kernel) ConnectPair(ctx context.Context, source, target node.GID, synapseModel string, params *dict.Map, delayMS, weight float64) error {
	for _, m := range k.members {
		var p *dict.Map
		if params != nil {
			p = params.Clone()
		}
		if err := m.Conns.ConnectPair(ctx, source, target, synapseModel, p, delayMS, weight); err != nil {
			return err
		}
	}
	return nil
}

// SynapseStatus returns the status of the first member holding the
// connection.
func (k *Kernel) SynapseStatus(source, target node.GID, tid int, syn synapse.SynID, port int) (*dict.Map, error) {
	var lastErr error
	for _, m := range k.members {
		d, err := m.Conns.SynapseStatus(source, target, tid, syn, port)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, connerr.ErrUnknownConnection) && !errors.Is(err, connerr.ErrUnknownNode) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// SetSynapseStatus updates the connection on the first member holding it.
func (k *Kernel) SetSynapseStatus(source, target node.GID, tid int, syn synapse.SynID, port int, d *dict.Map) error {
	var lastErr error
	for _, m := range k.members {
		err := m.Conns.SetSynapseStatus(source, target, tid, syn, port, d.Clone())
		if err == nil {
			return nil
		}
		if !errors.Is(err, connerr.ErrUnknownConnection) && !errors.Is(err, connerr.ErrUnknownNode) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// ModelInfo summarizes one synapse type.
type ModelInfo struct {
	Name           string         `json:"name"`
	ID             synapse.SynID  `json:"synapse_id"`
	HasDelay       bool           `json:"has_delay"`
	Primary        bool           `json:"primary"`
	NumConnections int64          `json:"num_connections"`
	Defaults       map[string]any `json:"defaults"`
}

// SynapseModels lists the registered synapse types with their defaults and
// kernel-wide connection counts.
func (k *Kernel) SynapseModels() ([]ModelInfo, error) {
	first := k.members[0].Conns
	var out []ModelInfo
	for _, name := range first.Synapses().Names() {
		d, err := first.SynapseDefaults(name)
		if err != nil {
			return nil, err
		}
		model, err := first.Synapses().Lookup(name)
		if err != nil {
			return nil, err
		}
		var n int64
		for _, m := range k.members {
			n += m.Conns.NumConnectionsOf(model.ID())
		}
		out = append(out, ModelInfo{
			Name:           name,
			ID:             model.ID(),
			HasDelay:       model.Traits().HasDelay,
			Primary:        model.Traits().Primary,
			NumConnections: n,
			Defaults:       d.Raw(),
		})
	}
	return out, nil
}

// HasDelay reports whether the named synapse type carries a delay. Unknown
// names count as delayed.
func (k *Kernel) HasDelay(model string) bool {
	m, err := k.members[0].Conns.Synapses().Lookup(model)
	if err != nil {
		return true
	}
	return m.Traits().HasDelay
}

// Snapshot captures every connection together with the kernel layout and
// the reduced delay window. The source table must still be available.
func (k *Kernel) Snapshot(ctx context.Context, name string) (*store.Snapshot, error) {
	if err := k.UpdateDelayExtrema(ctx); err != nil {
		return nil, err
	}
	conns, err := k.Connections(ctx, connmgr.All)
	if err != nil {
		return nil, err
	}
	first := k.members[0].Conns
	return &store.Snapshot{
		SnapshotInfo: store.SnapshotInfo{
			Name:           name,
			Threads:        k.cfg.Kernel.Threads,
			Processes:      len(k.members),
			ResolutionMS:   k.res.StepMS(),
			MinDelayMS:     k.res.MS(first.MinDelay()),
			MaxDelayMS:     k.res.MS(first.MaxDelay()),
			NumConnections: int64(len(conns)),
		},
		Connections: conns,
	}, nil
}
