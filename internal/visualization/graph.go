// Package visualization renders population-level connectivity graphs in
// various output formats.
package visualization

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/network"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/sanitize"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// Unassigned names the pseudo-population of nodes outside every population.
const Unassigned = "(unassigned)"

// nodeColors maps node shapes to DOT colors.
var nodeColors = map[string]string{
	node.ShapeNeuron.String():         "steelblue",
	node.ShapeDevice.String():         "goldenrod",
	node.ShapeGlobalReceiver.String(): "mediumseagreen",
}

// Population is one graph node.
type Population struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Shape string `json:"shape"`
	Size  int    `json:"size"`
}

// Edge aggregates all connections of one synapse type between two
// populations.
type Edge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SynapseModel string  `json:"synapse_model"`
	Count        int64   `json:"count"`
	MeanWeight   float64 `json:"mean_weight"`
	MinDelay     float64 `json:"min_delay"`
	MaxDelay     float64 `json:"max_delay"`
}

// Graph is the population-level view of a connectome.
type Graph struct {
	Name      string       `json:"name"`
	Nodes     []Population `json:"nodes"`
	Edges     []Edge       `json:"edges"`
	NodeCount int          `json:"node_count"`
	EdgeCount int          `json:"edge_count"`
}

type edgeKey struct {
	source, target, model string
}

// Build aggregates conns into per-population edges. Nodes keep the
// declaration order of n; edges are sorted by source, target and synapse
// type.
func Build(n *network.Network, pops network.Populations, conns []connector.Descriptor) *Graph {
	g := &Graph{Name: n.Name}
	order := make(map[string]int, len(n.Populations)+1)
	owner := make(map[node.GID]string)
	for i, p := range n.Populations {
		shape := p.Shape
		if parsed, err := node.ParseShape(p.Shape); err == nil {
			shape = parsed.String()
		}
		g.Nodes = append(g.Nodes, Population{Name: p.Name, Model: p.Model, Shape: shape, Size: len(pops[p.Name])})
		order[p.Name] = i
		for _, id := range pops[p.Name] {
			owner[id] = p.Name
		}
	}

	weights := make(map[edgeKey]float64)
	edges := make(map[edgeKey]*Edge)
	var unassigned bool
	popOf := func(id node.GID) string {
		if name, ok := owner[id]; ok {
			return name
		}
		unassigned = true
		return Unassigned
	}
	for _, c := range conns {
		key := edgeKey{popOf(c.Source), popOf(c.Target), c.SynapseModel}
		e, ok := edges[key]
		if !ok {
			e = &Edge{Source: key.source, Target: key.target, SynapseModel: key.model, MinDelay: math.Inf(1), MaxDelay: math.Inf(-1)}
			edges[key] = e
		}
		e.Count++
		weights[key] += c.Weight
		e.MinDelay = min(e.MinDelay, c.Delay)
		e.MaxDelay = max(e.MaxDelay, c.Delay)
	}
	if unassigned {
		g.Nodes = append(g.Nodes, Population{Name: Unassigned})
		order[Unassigned] = len(n.Populations)
	}

	for key, e := range edges {
		e.MeanWeight = weights[key] / float64(e.Count)
		g.Edges = append(g.Edges, *e)
	}
	slices.SortFunc(g.Edges, func(a, b Edge) int {
		return cmp.Or(
			cmp.Compare(order[a.Source], order[b.Source]),
			cmp.Compare(order[a.Target], order[b.Target]),
			strings.Compare(a.SynapseModel, b.SynapseModel),
		)
	})
	g.NodeCount, g.EdgeCount = len(g.Nodes), len(g.Edges)
	return g
}

// edgeStyle draws inhibitory projections dashed.
func edgeStyle(meanWeight float64) string {
	switch {
	case meanWeight < 0:
		return "dashed"
	case meanWeight == 0:
		return "dotted"
	default:
		return "solid"
	}
}

// RenderDOT produces a Graphviz DOT representation of g.
func RenderDOT(g *Graph) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", graphName(g.Name))
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, p := range g.Nodes {
		color := nodeColors[p.Shape]
		if color == "" {
			color = "lightgray"
		}
		label := sanitize.Text(p.Name)
		if p.Size > 0 {
			label = fmt.Sprintf("%s\n%s x%d", label, sanitize.Text(p.Model), p.Size)
		}
		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q, tooltip=%q];\n", p.Name, label, color, p.Shape)
	}
	b.WriteString("\n")

	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %q -> %q [label=%q, style=%s, tooltip=\"weight=%.3g delay=%g..%g\"];\n",
			e.Source, e.Target, fmt.Sprintf("%s (%d)", e.SynapseModel, e.Count), edgeStyle(e.MeanWeight),
			e.MeanWeight, e.MinDelay, e.MaxDelay)
	}

	b.WriteString("}\n")
	return b.String()
}

func graphName(name string) string {
	if s := sanitize.Slug(name); s != "" {
		return s
	}
	return "connectome"
}
