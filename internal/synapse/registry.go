package synapse

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
)

// Names of the built-in synapse types.
const (
	StaticSynapse       = "static_synapse"
	StaticSynapseHomW   = "static_synapse_hom_w"
	STDPSynapse         = "stdp_synapse"
	STDPDopamineSynapse = "stdp_dopamine_synapse"
	GapJunctionSynapse  = "gap_junction"
)

// Registry maps synapse type names to ids. Types are registered during
// setup and read concurrently afterwards.
type Registry struct {
	mu     sync.RWMutex
	models []Model
	byName map[string]SynID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]SynID)}
}

// Builtin returns a registry holding the stock synapse types.
func Builtin() *Registry {
	r := NewRegistry()
	for _, m := range builtinModels() {
		if _, err := r.Register(m.Name(), m); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinModels() []Model {
	primary := Traits{HasDelay: true, Primary: true}
	base := Base{Weight: 1.0, DelayMS: 1.0, Label: Unlabeled}
	return []Model{
		NewPrototype[Static](StaticSynapse, primary, Static{Base: base}, nil),
		NewPrototype[StaticHomW](StaticSynapseHomW, primary, StaticHomW{Base: base}, &HomWeight{Weight: 1.0}),
		NewPrototype[STDP](STDPSynapse, primary, DefaultSTDP(), nil),
		NewPrototype[STDPDopamine](STDPDopamineSynapse, primary, STDPDopamine{Base: base}, DefaultDopamineCommon()),
		NewPrototype[GapJunction](GapJunctionSynapse, Traits{HasDelay: false, Primary: false}, GapJunction{Base: base}, nil),
	}
}

// Register adds prototype under name and returns its id.
func (r *Registry) Register(name string, prototype Model) (SynID, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: synapse type name must not be empty", connerr.ErrConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return 0, fmt.Errorf("%w: synapse type %q already exists", connerr.ErrConfig, name)
	}
	id := SynID(len(r.models))
	r.models = append(r.models, prototype.bind(name, id))
	r.byName[name] = id
	return id, nil
}

// CopyModel registers a copy of base under name with params applied to the
// copy's defaults.
func (r *Registry) CopyModel(base, name string, params *dict.Map, g DelayGuard) (SynID, error) {
	src, err := r.Lookup(base)
	if err != nil {
		return 0, err
	}
	r.mu.RLock()
	_, exists := r.byName[name]
	r.mu.RUnlock()
	if exists {
		return 0, fmt.Errorf("%w: synapse type %q already exists", connerr.ErrConfig, name)
	}

	cp := src.bind(name, -1)
	if !params.Empty() {
		if err := cp.SetStatus(params, g); err != nil {
			return 0, fmt.Errorf("copy %s to %s: %w", base, name, err)
		}
	}
	return r.Register(name, cp)
}

// SetDefaults updates the defaults of the named type in place.
func (r *Registry) SetDefaults(name string, params *dict.Map, g DelayGuard) error {
	m, err := r.Lookup(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return m.SetStatus(params, g)
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", connerr.ErrUnknownSynapseType, name)
	}
	return r.models[id], nil
}

// Get returns the type with id.
func (r *Registry) Get(id SynID) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || int(id) >= len(r.models) {
		return nil, fmt.Errorf("%w: id %d", connerr.ErrUnknownSynapseType, id)
	}
	return r.models[id], nil
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the registered types ordered by id.
func (r *Registry) Models() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Model(nil), r.models...)
}
