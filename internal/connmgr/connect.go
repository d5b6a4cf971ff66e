package connmgr

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/nvandessel/connectome/internal/builder"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/metrics"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Connect connects sources to targets following the rule named in conn.
// Every entry of conn and syn must be understood by the rule; leftovers are
// reported as ErrConfig before any connection is made.
func (m *Manager) Connect(ctx context.Context, sources, targets []node.GID, conn, syn *dict.Map) error {
	if conn == nil {
		conn = dict.New()
	}
	if syn == nil {
		syn = dict.New()
	}
	conn.ClearAccessFlags()
	syn.ClearAccessFlags()

	rule, ok, err := conn.String(builder.KeyRule)
	if err != nil {
		return err
	}
	if !ok {
		return connerr.ErrMissingRuleKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}

	b, err := m.connBuilderLocked(rule, sources, targets, conn, syn)
	if err != nil {
		return err
	}
	if err := conn.AllAccessed("Connect", "connectivity spec"); err != nil {
		return err
	}
	if err := syn.AllAccessed("Connect", "synapse spec"); err != nil {
		return err
	}
	return m.runBuilderLocked(ctx, b)
}

// ConnBuilder constructs the builder for rule without running it.
func (m *Manager) ConnBuilder(rule string, sources, targets []node.GID, conn, syn *dict.Map) (builder.Builder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connBuilderLocked(rule, sources, targets, conn, syn)
}

func (m *Manager) connBuilderLocked(rule string, sources, targets []node.GID, conn, syn *dict.Map) (builder.Builder, error) {
	factory, err := m.rules.Lookup(rule)
	if err != nil {
		return nil, err
	}
	if err := m.checkNodes(sources); err != nil {
		return nil, err
	}
	if err := m.checkNodes(targets); err != nil {
		return nil, err
	}
	return factory(builder.Spec{
		Sources:  sources,
		Targets:  targets,
		Conn:     conn,
		Syn:      syn,
		Synapses: m.synapses,
	})
}

func (m *Manager) checkNodes(gids []node.GID) error {
	for _, gid := range gids {
		if _, err := m.nodes.Node(gid, 0); err != nil {
			return err
		}
	}
	return nil
}

// Run executes a builder made by ConnBuilder.
func (m *Manager) Run(ctx context.Context, b builder.Builder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	return m.runBuilderLocked(ctx, b)
}

func (m *Manager) runBuilderLocked(ctx context.Context, b builder.Builder) error {
	call := m.calls
	m.calls++
	start := time.Now()

	var created, skipped atomic.Int64
	err := m.parallel(ctx, func(ctx context.Context, sh *shard) error {
		return b.Connect(ctx, m.newWorker(sh, b.Rule(), call, &created, &skipped))
	})
	elapsed := time.Since(start)

	if err == nil {
		if d, ok := b.Delay(); ok {
			steps := m.res.Steps(d)
			m.builderMin = min(m.builderMin, steps)
			m.builderMax = max(m.builderMax, steps)
		}
	}
	m.afterCreateLocked(b.Synapse(), created.Load())

	metrics.ObserveConnect(b.Rule(), elapsed)
	m.decisions.LogConnect(b.Rule(), b.Synapse().Name(), created.Load(), skipped.Load(), elapsed, err)
	m.logger.Debug("connect",
		"rule", b.Rule(),
		"synapse_model", b.Synapse().Name(),
		"created", created.Load(),
		"skipped", skipped.Load(),
		"elapsed", elapsed,
		"error", err)
	return err
}

func (m *Manager) afterCreateLocked(model synapse.Model, created int64) {
	if created == 0 {
		return
	}
	m.sorted = false
	metrics.ConnectionCreated(model.Name(), int(created))
	metrics.SetConnections(m.numConnectionsLocked())
}

// ConnectPair connects a single pair. NaN delay or weight selects the
// synapse type's default; params holds further per-connection values.
// Unlike builder runs, per-pair errors are returned.
func (m *Manager) ConnectPair(ctx context.Context, source, target node.GID, synapseModel string, params *dict.Map, delayMS, weight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	model, err := m.synapses.Lookup(synapseModel)
	if err != nil {
		return err
	}
	if err := checkParamKeys(model, params); err != nil {
		return err
	}
	if err := m.checkNodes([]node.GID{source, target}); err != nil {
		return err
	}
	pair := builder.Pair{Source: source, Target: target, Synapse: model, Params: params, Weight: weight, Delay: delayMS}
	created, _, err := m.runPairs(ctx, "connect", 1, func(int) builder.Pair { return pair }, false)
	m.afterCreateLocked(model, created)
	return err
}

// DivergentConnect connects source to every target. weights and delays are
// either empty (defaults), of length one (shared), or one per target.
// Pairs rejected with a per-pair error are skipped with a warning.
func (m *Manager) DivergentConnect(ctx context.Context, source node.GID, targets []node.GID, weights, delays []float64, synapseModel string) error {
	pick, err := fanValues(len(targets), weights, delays)
	if err != nil {
		return err
	}
	return m.connectFan(ctx, "divergent", len(targets), synapseModel, func(model synapse.Model, i int) builder.Pair {
		w, d := pick(i)
		return builder.Pair{Source: source, Target: targets[i], Synapse: model, Weight: w, Delay: d}
	}, append([]node.GID{source}, targets...))
}

// ConvergentConnect connects every source to target, with the same
// conventions for weights and delays as DivergentConnect.
func (m *Manager) ConvergentConnect(ctx context.Context, sources []node.GID, target node.GID, weights, delays []float64, synapseModel string) error {
	pick, err := fanValues(len(sources), weights, delays)
	if err != nil {
		return err
	}
	return m.connectFan(ctx, "convergent", len(sources), synapseModel, func(model synapse.Model, i int) builder.Pair {
		w, d := pick(i)
		return builder.Pair{Source: sources[i], Target: target, Synapse: model, Weight: w, Delay: d}
	}, append([]node.GID{target}, sources...))
}

func (m *Manager) connectFan(ctx context.Context, rule string, n int, synapseModel string, pair func(synapse.Model, int) builder.Pair, involved []node.GID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	model, err := m.synapses.Lookup(synapseModel)
	if err != nil {
		return err
	}
	if err := m.checkNodes(involved); err != nil {
		return err
	}
	created, skipped, err := m.runPairs(ctx, rule, n, func(i int) builder.Pair { return pair(model, i) }, true)
	m.afterCreateLocked(model, created)
	m.decisions.LogConnect(rule, model.Name(), created, skipped, 0, err)
	return err
}

// fanValues validates weight and delay lists against n pairs and returns
// the accessor for pair i.
func fanValues(n int, weights, delays []float64) (func(i int) (float64, float64), error) {
	for _, list := range []struct {
		name string
		vals []float64
	}{{"weights", weights}, {"delays", delays}} {
		if l := len(list.vals); l != 0 && l != 1 && l != n {
			return nil, fmt.Errorf("%w: %d %s for %d connections", connerr.ErrDimensionMismatch, l, list.name, n)
		}
	}
	at := func(vals []float64, i int) float64 {
		switch len(vals) {
		case 0:
			return math.NaN()
		case 1:
			return vals[0]
		default:
			return vals[i]
		}
	}
	return func(i int) (float64, float64) { return at(weights, i), at(delays, i) }, nil
}
