package builder

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Synapse spec keys handled explicitly rather than forwarded to records.
var reservedSynKeys = map[string]bool{
	synapse.KeySynapseModel: true,
	synapse.KeyWeight:       true,
	synapse.KeyDelay:        true,
	synapse.KeyReceptorType: true,
	synapse.KeyReceptor:     true,
	synapse.KeyHasDelay:     true,
	synapse.KeyPrimary:      true,
}

// base holds what every rule parses: population, autapse and multapse
// switches, synapse type and per-connection parameters.
type base struct {
	rule      string
	sources   []node.GID
	targets   []node.GID
	autapses  bool
	multapses bool
	model     synapse.Model
	params    *dict.Map
	weight    float64
	delay     float64
}

func newBase(rule string, s Spec) (*base, error) {
	if s.Synapses == nil {
		return nil, fmt.Errorf("%w: builder needs a synapse registry", connerr.ErrConfig)
	}
	b := &base{
		rule:      rule,
		sources:   s.Sources,
		targets:   s.Targets,
		autapses:  true,
		multapses: true,
		params:    dict.New(),
		weight:    math.NaN(),
		delay:     math.NaN(),
	}
	if _, err := s.Conn.UpdateBool(KeyAutapses, &b.autapses); err != nil {
		return nil, err
	}
	if _, err := s.Conn.UpdateBool(KeyMultapses, &b.multapses); err != nil {
		return nil, err
	}

	name := synapse.StaticSynapse
	if _, err := s.Syn.UpdateString(synapse.KeySynapseModel, &name); err != nil {
		return nil, err
	}
	m, err := s.Synapses.Lookup(name)
	if err != nil {
		return nil, err
	}
	b.model = m

	if _, err := s.Syn.UpdateFloat(synapse.KeyWeight, &b.weight); err != nil {
		return nil, err
	}
	if s.Syn.Known(synapse.KeyDelay) {
		if !m.Traits().HasDelay {
			s.Syn.MarkAccessed(synapse.KeyDelay)
			return nil, fmt.Errorf("%w: synapse type %q has no delay", connerr.ErrBadProperty, name)
		}
		if _, err := s.Syn.UpdateFloat(synapse.KeyDelay, &b.delay); err != nil {
			return nil, err
		}
	}
	receptor, ok, err := s.Syn.Int(synapse.KeyReceptorType)
	if err != nil {
		return nil, err
	}
	if ok {
		b.params.Set(synapse.KeyReceptorType, int(receptor))
	}

	// Forward keys the record defaults know. Common properties stay unread
	// and are rejected by the caller.
	defaults := dict.New()
	m.Status(defaults)
	common := dict.New()
	m.Common().Status(common)
	for _, key := range s.Syn.Keys() {
		if reservedSynKeys[key] || common.Known(key) || !defaults.Known(key) {
			continue
		}
		v, _ := s.Syn.Lookup(key)
		b.params.Set(key, v)
	}
	return b, nil
}

func (b *base) Rule() string           { return b.rule }
func (b *base) Synapse() synapse.Model { return b.model }

func (b *base) Delay() (float64, bool) {
	return b.delay, !math.IsNaN(b.delay)
}

// workerParams returns the per-connection parameters for one worker.
func (b *base) workerParams() *dict.Map {
	if b.params.Empty() {
		return nil
	}
	return b.params.Clone()
}

// connect hands one pair to w. Per-pair errors are recorded and swallowed.
func (b *base) connect(w Worker, params *dict.Map, src, tgt node.GID) error {
	if !b.autapses && src == tgt {
		return nil
	}
	p := Pair{
		Source:  src,
		Target:  tgt,
		Synapse: b.model,
		Params:  params,
		Weight:  b.weight,
		Delay:   b.delay,
	}
	if err := w.Connect(p); err != nil {
		if connerr.IsPairError(err) {
			w.Skip(p, err)
			return nil
		}
		return err
	}
	return nil
}

// checkEvery is how many iterations pass between cancellation checks.
const checkEvery = 1024

func cancelled(ctx context.Context, i int) error {
	if i%checkEvery != 0 {
		return nil
	}
	return ctx.Err()
}

func requiredInt(conn *dict.Map, rule, key string) (int, error) {
	v, ok, err := conn.Int(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: rule %s requires %q", connerr.ErrBadProperty, rule, key)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must be non-negative, got %d", connerr.ErrBadProperty, key, v)
	}
	return int(v), nil
}

// available returns how many members of pool may be paired with self.
func (b *base) available(pool []node.GID, self node.GID) int {
	if b.autapses {
		return len(pool)
	}
	n := 0
	for _, g := range pool {
		if g != self {
			n++
		}
	}
	return n
}
