package devices

import (
	"errors"
	"testing"

	"github.com/nvandessel/connectome/internal/connector"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/synapse"
)

func neuron(gid node.GID) node.Node {
	return node.Node{GID: gid, Shape: node.ShapeNeuron, LocalDeviceID: -1}
}

func device(gid node.GID, ldid int) node.Node {
	return node.Node{GID: gid, Shape: node.ShapeDevice, LocalDeviceID: ldid}
}

func TestTable_ToAndFromDevice(t *testing.T) {
	r := synapse.Builtin()
	static, err := r.Lookup(synapse.StaticSynapse)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	tbl := New(2)

	if _, err := tbl.AddToDevice(1, static, neuron(3), device(10, 0), static.NewRecord(), 0); err != nil {
		t.Fatalf("AddToDevice() error = %v", err)
	}
	if _, err := tbl.AddToDevice(1, static, neuron(3), device(10, 0), static.NewRecord(), 0); err != nil {
		t.Fatalf("AddToDevice() error = %v", err)
	}
	hd, err := tbl.AddFromDevice(1, static, device(11, 1), neuron(4), static.NewRecord(), 0)
	if err != nil {
		t.Fatalf("AddFromDevice() error = %v", err)
	}
	if hd.LCID != 0 {
		t.Errorf("AddFromDevice() port = %d, want 0", hd.LCID)
	}

	if got := tbl.NumConnections(1, static.ID()); got != 3 {
		t.Errorf("NumConnections() = %d, want 3", got)
	}
	if got := tbl.NumConnections(0, static.ID()); got != 0 {
		t.Errorf("NumConnections() on other thread = %d, want 0", got)
	}

	d := dict.New()
	if err := tbl.Status(1, neuron(3), static, 1, d); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if tgt, _, _ := d.Int(synapse.KeyTarget); tgt != 10 {
		t.Errorf("target = %d, want 10", tgt)
	}
	if src, _, _ := d.Int(synapse.KeySource); src != 3 {
		t.Errorf("source = %d, want 3", src)
	}
	if err := tbl.Status(0, neuron(3), static, 0, dict.New()); !errors.Is(err, connerr.ErrUnknownConnection) {
		t.Errorf("Status() error = %v, want ErrUnknownConnection", err)
	}

	upd := dict.From(map[string]any{synapse.KeyWeight: 5.0})
	if err := tbl.SetStatus(1, device(11, 1), static, 0, upd, nil); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	got := tbl.Collect(nil, 1, static, connector.Any)
	if len(got) != 3 {
		t.Fatalf("Collect() returned %d, want 3", len(got))
	}
	if got[2].Source != 11 || got[2].Target != 4 || got[2].Weight != 5.0 {
		t.Errorf("Collect()[2] = %+v", got[2])
	}
	bySource := tbl.Collect(nil, 1, static, connector.Filter{Source: 11, Label: synapse.Unlabeled})
	if len(bySource) != 1 {
		t.Errorf("Collect(source 11) returned %d, want 1", len(bySource))
	}
}

func TestTable_AddFromDeviceRequiresDeviceID(t *testing.T) {
	r := synapse.Builtin()
	static, _ := r.Lookup(synapse.StaticSynapse)
	tbl := New(1)
	_, err := tbl.AddFromDevice(0, static, neuron(1), neuron(2), static.NewRecord(), 0)
	if !errors.Is(err, connerr.ErrIllegalConnection) {
		t.Errorf("AddFromDevice() error = %v, want ErrIllegalConnection", err)
	}
}

func TestTable_RejectedAddLeavesNoEntry(t *testing.T) {
	r := synapse.Builtin()
	static, _ := r.Lookup(synapse.StaticSynapse)
	tbl := New(1)
	_, err := tbl.AddToDevice(0, static, neuron(1), device(2, 0), static.NewRecord(), 5)
	if !errors.Is(err, connerr.ErrUnknownReceptorType) {
		t.Fatalf("AddToDevice() error = %v, want ErrUnknownReceptorType", err)
	}
	if _, ok := tbl.ToDevice(0, 1); ok {
		t.Error("ToDevice() found an entry after a rejected add")
	}
}
