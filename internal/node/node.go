// Package node describes the nodes that connections run between. Node
// dynamics live elsewhere; the connection core only needs identity,
// locality and a few capability flags.
package node

import (
	"fmt"
	"strings"
)

// GID is a simulation-wide unique node identifier. Zero is never assigned.
type GID uint64

// Shape is the structural kind of a node. Exactly one applies per node.
type Shape uint8

const (
	// ShapeNeuron nodes live on one thread of one process and are
	// represented by proxies everywhere else.
	ShapeNeuron Shape = iota + 1
	// ShapeDevice nodes have one local instance per thread and no proxies.
	ShapeDevice
	// ShapeGlobalReceiver nodes accept input from every thread.
	ShapeGlobalReceiver
)

func (s Shape) String() string {
	switch s {
	case ShapeNeuron:
		return "neuron"
	case ShapeDevice:
		return "device"
	case ShapeGlobalReceiver:
		return "global_receiver"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

// HasProxies reports whether remote threads see this node through proxies.
func (s Shape) HasProxies() bool { return s == ShapeNeuron }

// ParseShape maps a shape name back to its value.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(name) {
	case "neuron", "":
		return ShapeNeuron, nil
	case "device":
		return ShapeDevice, nil
	case "global_receiver":
		return ShapeGlobalReceiver, nil
	default:
		return 0, fmt.Errorf("unknown node shape %q", name)
	}
}

// Node is a resolved reference to a node as seen from one thread.
type Node struct {
	GID   GID
	Model string
	Shape Shape

	// Thread is the owning thread for neurons (proxies included) and the
	// requesting thread for per-thread instances of devices.
	Thread int
	VP     int
	Proxy  bool

	// LocalDeviceID indexes devices within a process; -1 for neurons.
	LocalDeviceID int

	// Receptors is the number of receptor ports. Zero still accepts port 0.
	Receptors int

	// Secondary reports whether the node exchanges secondary events.
	Secondary bool

	// Generator nodes emit events but accept no incoming connections.
	Generator bool
}

// Resolver gives the connection core access to node locality.
type Resolver interface {
	// Node resolves gid as seen from thread tid.
	Node(gid GID, tid int) (Node, error)
	// IsLocal reports whether this process hosts gid.
	IsLocal(gid GID) bool
	// SuggestThread returns the thread the standard assignment picks for gid.
	SuggestThread(gid GID) int
	NumThreads() int
}
