package connmgr

import (
	"fmt"

	"github.com/nvandessel/connectome/internal/node"
)

// Route says where a connection between two node shapes is stored and on
// which thread it is created.
type Route uint8

const (
	// RouteNeuronNeuron is created on the target's thread and stored in the
	// thread store, with its source recorded in the source index.
	RouteNeuronNeuron Route = iota + 1
	// RouteNeuronDevice is created on the source's thread, in the
	// to-device table.
	RouteNeuronDevice
	// RouteDeviceNeuron is created on the target's thread, in the
	// from-device table.
	RouteDeviceNeuron
	// RouteDeviceDevice is created on the target's suggested thread only.
	RouteDeviceDevice
	// RouteGlobalReceiver is created once on every thread.
	RouteGlobalReceiver
)

func (r Route) String() string {
	switch r {
	case RouteNeuronNeuron:
		return "neuron->neuron"
	case RouteNeuronDevice:
		return "neuron->device"
	case RouteDeviceNeuron:
		return "device->neuron"
	case RouteDeviceDevice:
		return "device->device"
	case RouteGlobalReceiver:
		return "global_receiver"
	default:
		return fmt.Sprintf("route(%d)", uint8(r))
	}
}

// Classify returns the route of a connection from src to tgt. Global
// receiver targets take precedence over the source shape.
func Classify(src, tgt node.Node) Route {
	if tgt.Shape == node.ShapeGlobalReceiver {
		return RouteGlobalReceiver
	}
	srcNeuron := src.Shape == node.ShapeNeuron
	tgtNeuron := tgt.Shape == node.ShapeNeuron
	srcDevice := src.Shape == node.ShapeDevice || src.Shape == node.ShapeGlobalReceiver
	tgtDevice := tgt.Shape == node.ShapeDevice

	switch {
	case srcNeuron && tgtNeuron:
		return RouteNeuronNeuron
	case srcNeuron && tgtDevice:
		return RouteNeuronDevice
	case srcDevice && tgtNeuron:
		return RouteDeviceNeuron
	case srcDevice && tgtDevice:
		return RouteDeviceDevice
	}
	panic(fmt.Sprintf("connmgr: cannot route %v -> %v", src.Shape, tgt.Shape))
}

// createsOn reports whether a connection on route r is created by thread
// tid. src and tgt must be resolved for tid.
func createsOn(r Route, src, tgt node.Node, tid int, suggest func(node.GID) int) bool {
	switch r {
	case RouteNeuronNeuron, RouteDeviceNeuron:
		return !tgt.Proxy && tgt.Thread == tid
	case RouteNeuronDevice:
		return !src.Proxy && src.Thread == tid
	case RouteDeviceDevice:
		return suggest(tgt.GID) == tid
	case RouteGlobalReceiver:
		return true
	}
	return false
}
