// Package builder turns a connectivity rule plus source and target
// populations into individual connect calls. Builders never touch storage;
// they drive a Worker, which owns one thread's share of the network.
package builder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Keys of the connectivity spec.
const (
	KeyRule      = "rule"
	KeyAutapses  = "autapses"
	KeyMultapses = "multapses"
	KeyIndegree  = "indegree"
	KeyOutdegree = "outdegree"
	KeyN         = "N"
	KeyP         = "p"
)

// Names of the built-in rules.
const (
	OneToOne          = "one_to_one"
	AllToAll          = "all_to_all"
	FixedIndegree     = "fixed_indegree"
	FixedOutdegree    = "fixed_outdegree"
	FixedTotalNumber  = "fixed_total_number"
	PairwiseBernoulli = "pairwise_bernoulli"
)

// Pair is one requested connection. NaN weight or delay selects the
// synapse type's default.
type Pair struct {
	Source  node.GID
	Target  node.GID
	Synapse synapse.Model
	// Params holds per-connection status entries. It is owned by the worker
	// the pair is handed to.
	Params  *dict.Map
	Weight  float64
	Delay   float64
}

// Worker is one thread's connection sink.
type Worker interface {
	Thread() int
	// Owns reports whether connections into tgt are made on this worker.
	Owns(tgt node.GID) bool
	Connect(p Pair) error
	// Skip records a pair rejected with a per-pair error.
	Skip(p Pair, err error)
	// Rand is the worker's private stream.
	Rand() *rand.Rand
	// GlobalRand returns a stream that yields the same sequence on every
	// worker of every process for the current connect call.
	GlobalRand() *rand.Rand
}

// Builder creates the connections of one connect call.
type Builder interface {
	Rule() string
	Synapse() synapse.Model
	// Delay returns the explicit delay the builder applies, if any.
	Delay() (float64, bool)
	// Connect creates the connections w is responsible for. It runs once
	// per worker, concurrently.
	Connect(ctx context.Context, w Worker) error
}

// Spec is the input of a Factory.
type Spec struct {
	Sources  []node.GID
	Targets  []node.GID
	Conn     *dict.Map
	Syn      *dict.Map
	Synapses *synapse.Registry
}

// Factory constructs a builder. It must read every entry of Conn and Syn it
// understands; the caller rejects leftovers.
type Factory func(s Spec) (Builder, error)

// Registry maps rule names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtin returns a registry holding the stock rules.
func Builtin() *Registry {
	r := NewRegistry()
	for name, f := range map[string]Factory{
		OneToOne:          newOneToOne,
		AllToAll:          newAllToAll,
		FixedIndegree:     newFixedIndegree,
		FixedOutdegree:    newFixedOutdegree,
		FixedTotalNumber:  newFixedTotalNumber,
		PairwiseBernoulli: newPairwiseBernoulli,
	} {
		if err := r.Register(name, f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds f under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("%w: rule needs a name and a factory", connerr.ErrConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: connectivity rule %q already registered", connerr.ErrConfig, name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", connerr.ErrUnknownRule, name)
	}
	return f, nil
}

// Names returns the registered rule names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
