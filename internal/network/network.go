// Package network loads YAML network descriptions: populations of nodes,
// derived synapse types, synapse defaults and projections between
// populations.
package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/connectome/internal/builder"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

// Network is a parsed network description.
type Network struct {
	Name          string                    `yaml:"name"`
	Populations   []Population              `yaml:"populations"`
	SynapseModels []SynapseModel            `yaml:"synapse_models,omitempty"`
	Defaults      map[string]map[string]any `yaml:"defaults,omitempty"`
	Projections   []Projection              `yaml:"projections,omitempty"`
}

// Population is a block of identical nodes.
type Population struct {
	Name      string `yaml:"name"`
	Model     string `yaml:"model"`
	N         int    `yaml:"n"`
	Shape     string `yaml:"shape,omitempty"` // neuron, device or global_receiver
	Receptors int    `yaml:"receptors,omitempty"`
	Secondary bool   `yaml:"secondary,omitempty"`
	Generator bool   `yaml:"generator,omitempty"`
}

// SynapseModel derives a named synapse type from a registered one.
type SynapseModel struct {
	Name   string         `yaml:"name"`
	Base   string         `yaml:"base"`
	Params map[string]any `yaml:"params,omitempty"`
}

// Projection connects two populations with one rule.
type Projection struct {
	Source   string         `yaml:"source"`
	Target   string         `yaml:"target"`
	ConnSpec map[string]any `yaml:"conn_spec"`
	SynSpec  map[string]any `yaml:"syn_spec,omitempty"`
}

// Connector is the part of the connection manager a network is built on.
type Connector interface {
	CopyModel(base, name string, params *dict.Map) (synapse.SynID, error)
	SetDefaults(name string, params *dict.Map) error
	Connect(ctx context.Context, sources, targets []node.GID, conn, syn *dict.Map) error
}

// Parse decodes a network description. Unknown fields are errors.
func Parse(data []byte) (*Network, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var n Network
	if err := dec.Decode(&n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty network description", connerr.ErrConfig)
		}
		return nil, fmt.Errorf("%w: parsing network: %v", connerr.ErrConfig, err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Load reads and parses the network description at path.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network file: %w", err)
	}
	n, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// Validate checks the structure of the description. Rule and synapse
// parameters are checked when the network is built.
func (n *Network) Validate() error {
	if len(n.Populations) == 0 {
		return fmt.Errorf("%w: network has no populations", connerr.ErrConfig)
	}
	pops := make(map[string]bool, len(n.Populations))
	for i, p := range n.Populations {
		if p.Name == "" {
			return fmt.Errorf("%w: population %d has no name", connerr.ErrConfig, i)
		}
		if pops[p.Name] {
			return fmt.Errorf("%w: duplicate population %q", connerr.ErrConfig, p.Name)
		}
		pops[p.Name] = true
		if p.N < 1 {
			return fmt.Errorf("%w: population %q: n must be at least 1, got %d", connerr.ErrConfig, p.Name, p.N)
		}
		if _, err := node.ParseShape(p.Shape); err != nil {
			return fmt.Errorf("%w: population %q: %v", connerr.ErrConfig, p.Name, err)
		}
		if p.Receptors < 0 {
			return fmt.Errorf("%w: population %q: negative receptor count", connerr.ErrConfig, p.Name)
		}
	}

	models := make(map[string]bool)
	for i, m := range n.SynapseModels {
		if m.Name == "" || m.Base == "" {
			return fmt.Errorf("%w: synapse model %d needs name and base", connerr.ErrConfig, i)
		}
		if models[m.Name] {
			return fmt.Errorf("%w: duplicate synapse model %q", connerr.ErrConfig, m.Name)
		}
		models[m.Name] = true
	}

	for i, p := range n.Projections {
		if !pops[p.Source] {
			return fmt.Errorf("%w: projection %d: unknown source population %q", connerr.ErrConfig, i, p.Source)
		}
		if !pops[p.Target] {
			return fmt.Errorf("%w: projection %d: unknown target population %q", connerr.ErrConfig, i, p.Target)
		}
		if _, ok := p.ConnSpec[builder.KeyRule]; !ok {
			return fmt.Errorf("projection %d (%s -> %s): %w", i, p.Source, p.Target, connerr.ErrMissingRuleKey)
		}
	}
	return nil
}

// Populations maps population names to their node ids.
type Populations map[string][]node.GID

// CreateNodes creates every population on t, in declaration order.
func (n *Network) CreateNodes(t *node.Table) (Populations, error) {
	pops := make(Populations, len(n.Populations))
	for _, p := range n.Populations {
		shape, err := node.ParseShape(p.Shape)
		if err != nil {
			return nil, fmt.Errorf("%w: population %q: %v", connerr.ErrConfig, p.Name, err)
		}
		ids, err := t.Create(node.Spec{
			Model:     p.Model,
			Shape:     shape,
			Receptors: p.Receptors,
			Secondary: p.Secondary,
			Generator: p.Generator,
		}, p.N)
		if err != nil {
			return nil, fmt.Errorf("creating population %q: %w", p.Name, err)
		}
		pops[p.Name] = ids
	}
	return pops, nil
}

// Connect registers the derived synapse types, applies the defaults and
// runs every projection in declaration order.
func (n *Network) Connect(ctx context.Context, c Connector, pops Populations) error {
	for _, m := range n.SynapseModels {
		if _, err := c.CopyModel(m.Base, m.Name, dict.From(m.Params)); err != nil {
			return fmt.Errorf("copying synapse model %q from %q: %w", m.Name, m.Base, err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(n.Defaults)) {
		if err := c.SetDefaults(name, dict.From(n.Defaults[name])); err != nil {
			return fmt.Errorf("setting defaults of %q: %w", name, err)
		}
	}
	for i, p := range n.Projections {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, ok := pops[p.Source]
		if !ok {
			return fmt.Errorf("%w: projection %d: population %q was not created", connerr.ErrConfig, i, p.Source)
		}
		tgt, ok := pops[p.Target]
		if !ok {
			return fmt.Errorf("%w: projection %d: population %q was not created", connerr.ErrConfig, i, p.Target)
		}
		if err := c.Connect(ctx, src, tgt, dict.From(p.ConnSpec), dict.From(p.SynSpec)); err != nil {
			return fmt.Errorf("projection %d (%s -> %s): %w", i, p.Source, p.Target, err)
		}
	}
	return nil
}

// Build creates the nodes on t and connects them through c.
func (n *Network) Build(ctx context.Context, t *node.Table, c Connector) (Populations, error) {
	pops, err := n.CreateNodes(t)
	if err != nil {
		return nil, err
	}
	if err := n.Connect(ctx, c, pops); err != nil {
		return nil, err
	}
	return pops, nil
}
