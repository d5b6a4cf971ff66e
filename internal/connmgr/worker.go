package connmgr

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/nvandessel/connectome/internal/builder"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/metrics"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// worker binds one shard to one connect call. It implements builder.Worker
// and is the only place connections are created.
type worker struct {
	m       *Manager
	sh      *shard
	rule    string
	call    uint64
	created *atomic.Int64
	skipped *atomic.Int64
}

var _ builder.Worker = (*worker)(nil)

func (m *Manager) newWorker(sh *shard, rule string, call uint64, created, skipped *atomic.Int64) *worker {
	return &worker{m: m, sh: sh, rule: rule, call: call, created: created, skipped: skipped}
}

func (w *worker) Thread() int { return w.sh.tid }

func (w *worker) Owns(tgt node.GID) bool {
	n, err := w.m.nodes.Node(tgt, w.sh.tid)
	if err != nil {
		return false
	}
	return !n.Proxy && n.Thread == w.sh.tid
}

func (w *worker) Rand() *rand.Rand { return w.sh.rng }

func (w *worker) GlobalRand() *rand.Rand {
	return rand.New(rand.NewPCG(w.m.seed, w.call|1<<63))
}

func (w *worker) Skip(p builder.Pair, err error) {
	w.skipped.Add(1)
	reason := connerr.Reason(err)
	metrics.PairSkipped(reason)
	w.m.decisions.LogSkip(w.rule, p.Synapse.Name(), uint64(p.Source), uint64(p.Target), w.sh.tid, reason, err)
	if ok, dropped := w.m.warnings.Admit(reason); ok {
		w.m.logger.Warn("skipping connection",
			"rule", w.rule,
			"source", uint64(p.Source),
			"target", uint64(p.Target),
			"thread", w.sh.tid,
			"reason", reason,
			"suppressed", dropped,
			"error", err)
	}
}

// Connect resolves both ends of p, decides whether this thread creates
// the connection and stores it.
func (w *worker) Connect(p builder.Pair) error {
	tid := w.sh.tid
	src, err := w.m.nodes.Node(p.Source, tid)
	if err != nil {
		return err
	}
	tgt, err := w.m.nodes.Node(p.Target, tid)
	if err != nil {
		return err
	}
	route := Classify(src, tgt)
	if route == RouteGlobalReceiver && src.Shape != node.ShapeNeuron {
		return fmt.Errorf("%w: global receiver %d only accepts neuron sources, got %v %d",
			connerr.ErrIllegalConnection, tgt.GID, src.Shape, src.GID)
	}
	if !createsOn(route, src, tgt, tid, w.m.nodes.SuggestThread) {
		return nil
	}
	if route == RouteNeuronNeuron && w.m.sources.Cleared() {
		return fmt.Errorf("%w: cannot add connections after the source table was cleared", connerr.ErrInvalidState)
	}

	rec, receptor, err := w.record(p, src, tgt)
	if err != nil {
		return err
	}

	m := p.Synapse
	switch route {
	case RouteNeuronNeuron:
		if _, err := w.sh.store.Add(m, src, tgt, rec, receptor); err != nil {
			return err
		}
		if err := w.m.sources.Add(tid, m.ID(), src.GID); err != nil {
			return err
		}
	case RouteNeuronDevice, RouteGlobalReceiver:
		if _, err := w.m.devices.AddToDevice(tid, m, src, tgt, rec, receptor); err != nil {
			return err
		}
	case RouteDeviceNeuron, RouteDeviceDevice:
		if _, err := w.m.devices.AddFromDevice(tid, m, src, tgt, rec, receptor); err != nil {
			return err
		}
	}
	w.sh.count(m.ID())
	w.created.Add(1)
	return nil
}

// record builds the record for p: defaults, then per-connection
// parameters, then explicit weight and delay. The pair is checked against
// the synapse type before any delay reaches the checker, so a rejected
// pair leaves the delay extrema untouched.
func (w *worker) record(p builder.Pair, src, tgt node.Node) (synapse.Connection, int, error) {
	m := p.Synapse
	checker := w.sh.delays
	hasDelay := m.Traits().HasDelay
	explicitDelay := !math.IsNaN(p.Delay)

	receptor := m.Receptor()
	r, ok, err := p.Params.Int(synapse.KeyReceptorType)
	if err != nil {
		return nil, 0, err
	}
	if ok {
		receptor = int(r)
	}

	rec := m.NewRecord()
	if err := rec.Check(src, tgt, receptor, m.Common()); err != nil {
		return nil, 0, err
	}

	switch {
	case explicitDelay:
		if !hasDelay {
			return nil, 0, fmt.Errorf("%w: synapse type %q has no delay", connerr.ErrBadProperty, m.Name())
		}
		if p.Params.Known(synapse.KeyDelay) {
			p.Params.MarkAccessed(synapse.KeyDelay)
			return nil, 0, fmt.Errorf("%w: delay given both explicitly and in the parameters", connerr.ErrBadProperty)
		}
		if err := checker.AssertValid(p.Delay); err != nil {
			return nil, 0, err
		}
	case !p.Params.Known(synapse.KeyDelay):
		if err := checker.AssertDefaultDelay(int(m.ID()), m.Generation(), m.Name(), m.DefaultDelayMS(), hasDelay); err != nil {
			return nil, 0, err
		}
	}

	if !p.Params.Empty() {
		if err := rec.SetStatus(p.Params, synapse.RecordScope(m, checker)); err != nil {
			return nil, 0, err
		}
	}
	if !math.IsNaN(p.Weight) {
		if err := rec.SetWeight(p.Weight); err != nil {
			return nil, 0, err
		}
	}
	if explicitDelay {
		rec.Core().DelayMS = checker.Resolution().Round(p.Delay)
	}
	return rec, receptor, nil
}

// runPairs hands n pairs to every worker. Targets are filtered by
// ownership; per-pair errors are skipped when skip is set.
func (m *Manager) runPairs(ctx context.Context, rule string, n int, pair func(i int) builder.Pair, skip bool) (created, skipped int64, err error) {
	call := m.calls
	m.calls++
	var c, s atomic.Int64
	err = m.parallel(ctx, func(ctx context.Context, sh *shard) error {
		w := m.newWorker(sh, rule, call, &c, &s)
		for i := range n {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			p := pair(i)
			if !w.Owns(p.Target) {
				continue
			}
			if !p.Params.Empty() {
				p.Params = p.Params.Clone()
			}
			if err := w.Connect(p); err != nil {
				if skip && connerr.IsPairError(err) {
					w.Skip(p, err)
					continue
				}
				return err
			}
		}
		return nil
	})
	return c.Load(), s.Load(), err
}

// checkParamKeys rejects per-connection parameters that m's records do not
// know.
func checkParamKeys(m synapse.Model, params *dict.Map) error {
	if params.Empty() {
		return nil
	}
	defaults := dict.New()
	m.Status(defaults)
	common := dict.New()
	m.Common().Status(common)
	for _, key := range params.Keys() {
		if key == synapse.KeyReceptorType {
			continue
		}
		if common.Known(key) {
			return fmt.Errorf("%w: %q is common to all %s connections; set it with SetDefaults",
				connerr.ErrBadProperty, key, m.Name())
		}
		if !defaults.Known(key) || key == synapse.KeySynapseModel || key == synapse.KeyHasDelay || key == synapse.KeyPrimary {
			return fmt.Errorf("%w: unknown parameter %q for synapse type %s", connerr.ErrConfig, key, m.Name())
		}
	}
	return nil
}
