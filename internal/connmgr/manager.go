// Package connmgr is the connection manager: it owns the per-thread
// connection stores, runs builders across worker threads, answers
// connection queries and keeps the global delay window.
package connmgr

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/connectome/internal/builder"
	"github.com/nvandessel/connectome/internal/collective"
	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/delay"
	"github.com/nvandessel/connectome/internal/devices"
	"github.com/nvandessel/connectome/internal/logging"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/ratelimit"
	"github.com/nvandessel/connectome/internal/simtime"
	"github.com/nvandessel/connectome/internal/sourcetable"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Status keys.
const (
	KeyNumConnections  = "num_connections"
	KeyKeepSourceTable = "keep_source_table"
)

// Options configures a Manager. Zero fields get defaults; the zero
// Resolution is simtime.Default.
type Options struct {
	Nodes      node.Resolver
	Synapses   *synapse.Registry
	Rules      *builder.Registry
	Comm       collective.Communicator
	Resolution simtime.Resolution
	Seed       uint64
	// KeepSourceTable keeps the source index after Prepare.
	KeepSourceTable bool

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
	// Warnings throttles per-pair skip warnings. Nil means one warning per
	// reason per second with a burst of 10.
	Warnings *ratelimit.Limiter
}

// shard is the state owned by one worker thread.
type shard struct {
	tid    int
	store  *connector.HetConnector
	delays *delay.Checker
	counts []int64 // by synapse type id
	rng    *rand.Rand
}

func (sh *shard) count(syn synapse.SynID) {
	for int(syn) >= len(sh.counts) {
		sh.counts = append(sh.counts, 0)
	}
	sh.counts[syn]++
}

// Manager is the connection manager. Its methods are safe for concurrent
// use; connect calls and mutations are serialized.
type Manager struct {
	mu sync.RWMutex

	nodes    node.Resolver
	synapses *synapse.Registry
	rules    *builder.Registry
	comm     collective.Communicator
	res      simtime.Resolution
	seed     uint64

	logger    *slog.Logger
	decisions *logging.DecisionLogger
	warnings  *ratelimit.Limiter

	initialized bool
	shards      []*shard
	sources     *sourcetable.Table
	devices     *devices.Table

	minDelay, maxDelay     simtime.Steps
	builderMin, builderMax simtime.Steps
	keepSourceTable        bool
	sorted                 bool
	prepared               bool
	calls                  uint64
}

// New returns an initialized manager.
func New(opts Options) (*Manager, error) {
	if opts.Nodes == nil {
		return nil, fmt.Errorf("%w: connection manager needs a node resolver", connerr.ErrConfig)
	}
	if opts.Nodes.NumThreads() < 1 {
		return nil, fmt.Errorf("%w: need at least one thread", connerr.ErrConfig)
	}
	if opts.Synapses == nil {
		opts.Synapses = synapse.Builtin()
	}
	if opts.Rules == nil {
		opts.Rules = builder.Builtin()
	}
	if opts.Comm == nil {
		opts.Comm = collective.Local{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Warnings == nil {
		opts.Warnings = ratelimit.NewLimiter(1, 10)
	}

	m := &Manager{
		nodes:           opts.Nodes,
		synapses:        opts.Synapses,
		rules:           opts.Rules,
		comm:            opts.Comm,
		res:             opts.Resolution,
		seed:            opts.Seed,
		logger:          opts.Logger,
		decisions:       opts.Decisions,
		warnings:        opts.Warnings,
		keepSourceTable: opts.KeepSourceTable,
	}
	m.Initialize()
	return m, nil
}

// Initialize allocates one shard per thread and resets all stores and the
// delay window. Calling it on an initialized manager starts over.
func (m *Manager) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initializeLocked()
}

func (m *Manager) initializeLocked() {
	threads := m.nodes.NumThreads()
	procs := m.comm.NumProcesses()
	rank := m.comm.Rank()

	m.shards = make([]*shard, threads)
	for tid := range threads {
		vp := uint64(tid*procs + rank)
		m.shards[tid] = &shard{
			tid:    tid,
			store:  connector.New(),
			delays: delay.New(m.res),
			rng:    rand.New(rand.NewPCG(m.seed, vp+1)),
		}
	}
	m.sources = sourcetable.New(threads)
	m.devices = devices.New(threads)
	m.minDelay, m.maxDelay = 1, 1
	m.builderMin, m.builderMax = simtime.PosInf, simtime.NegInf
	m.sorted = true
	m.prepared = false
	m.calls = 0
	m.warnings.Reset()
	m.initialized = true
}

// Finalize releases all connections. The manager must be initialized again
// before further use.
func (m *Manager) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shards = nil
	m.sources = nil
	m.devices = nil
	m.initialized = false
}

// Initialized reports whether the manager holds live stores.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

func (m *Manager) checkInitialized() error {
	if !m.initialized {
		return fmt.Errorf("%w: connection manager is not initialized", connerr.ErrInvalidState)
	}
	return nil
}

// NumThreads returns the number of worker threads.
func (m *Manager) NumThreads() int { return m.nodes.NumThreads() }

// Resolution returns the simulation step.
func (m *Manager) Resolution() simtime.Resolution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.res
}

// Synapses returns the synapse type registry.
func (m *Manager) Synapses() *synapse.Registry { return m.synapses }

// Rules returns the connectivity rule registry.
func (m *Manager) Rules() *builder.Registry { return m.rules }

// Nodes returns the node resolver.
func (m *Manager) Nodes() node.Resolver { return m.nodes }

// parallel runs fn once per shard, each on its own goroutine.
func (m *Manager) parallel(ctx context.Context, fn func(ctx context.Context, sh *shard) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sh := range m.shards {
		g.Go(func() error { return fn(ctx, sh) })
	}
	return g.Wait()
}

// NumConnections returns the number of connections stored on this process.
func (m *Manager) NumConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.numConnectionsLocked()
}

func (m *Manager) numConnectionsLocked() int64 {
	var n int64
	for _, sh := range m.shards {
		for _, c := range sh.counts {
			n += c
		}
	}
	return n
}

// NumConnectionsOf returns the number of connections of synapse type syn.
func (m *Manager) NumConnectionsOf(syn synapse.SynID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.numConnectionsOfLocked(syn)
}

func (m *Manager) numConnectionsOfLocked(syn synapse.SynID) int64 {
	var n int64
	for _, sh := range m.shards {
		if int(syn) < len(sh.counts) {
			n += sh.counts[syn]
		}
	}
	return n
}

// Disconnect is not supported: connections are permanent once created.
func (m *Manager) Disconnect(source, target node.GID, syn synapse.SynID) error {
	return fmt.Errorf("%w: disconnecting %d -> %d (synapse type %d)", connerr.ErrNotImplemented, source, target, syn)
}
