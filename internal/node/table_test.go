package node

import (
	"errors"
	"testing"

	"github.com/nvandessel/connectome/internal/connerr"
)

func TestLayout_ThreadAssignment(t *testing.T) {
	l := Layout{Processes: 2, Rank: 0, Threads: 3}
	tests := []struct {
		gid        GID
		vp, rank   int
		wantThread int
	}{
		{1, 1, 1, 0},
		{2, 2, 0, 1},
		{5, 5, 1, 2},
		{6, 0, 0, 0},
		{7, 1, 1, 0},
	}
	for _, tt := range tests {
		vp := l.VP(tt.gid)
		if vp != tt.vp {
			t.Errorf("VP(%d) = %d, want %d", tt.gid, vp, tt.vp)
		}
		if got := l.RankOf(vp); got != tt.rank {
			t.Errorf("RankOf(%d) = %d, want %d", vp, got, tt.rank)
		}
		if got := l.ThreadOf(vp); got != tt.wantThread {
			t.Errorf("ThreadOf(%d) = %d, want %d", vp, got, tt.wantThread)
		}
	}
}

func TestLayout_Validate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		wantErr bool
	}{
		{"single", Layout{Processes: 1, Threads: 1}, false},
		{"no threads", Layout{Processes: 1}, true},
		{"rank out of range", Layout{Processes: 2, Rank: 2, Threads: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTable_NodeResolution(t *testing.T) {
	tbl, err := NewTable(Layout{Processes: 2, Rank: 0, Threads: 2})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	neurons, err := tbl.Create(Spec{Model: "iaf_psc_alpha"}, 4)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	devs, err := tbl.Create(Spec{Model: "spike_detector", Shape: ShapeDevice}, 2)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// gid 2 -> vp 2 -> rank 0, thread 1: local
	n, err := tbl.Node(neurons[1], 0)
	if err != nil {
		t.Fatalf("Node() error = %v", err)
	}
	if n.Proxy || n.Thread != 1 {
		t.Errorf("Node(2) = %+v, want local on thread 1", n)
	}

	// gid 1 -> vp 1 -> rank 1: proxy here
	n, _ = tbl.Node(neurons[0], 0)
	if !n.Proxy {
		t.Errorf("Node(1) should be a proxy on rank 0")
	}
	if tbl.IsLocal(neurons[0]) {
		t.Errorf("IsLocal(1) = true, want false")
	}

	// devices exist on every thread with a stable local id
	for tid := range 2 {
		d, err := tbl.Node(devs[1], tid)
		if err != nil {
			t.Fatalf("Node(device) error = %v", err)
		}
		if d.Proxy || d.Thread != tid || d.LocalDeviceID != 1 {
			t.Errorf("Node(device, %d) = %+v", tid, d)
		}
	}
	if !tbl.IsLocal(devs[0]) {
		t.Errorf("devices should be local on every process")
	}
}

func TestTable_UnknownNode(t *testing.T) {
	tbl, _ := NewTable(Layout{Processes: 1, Threads: 1})
	if _, err := tbl.Node(1, 0); !errors.Is(err, connerr.ErrUnknownNode) {
		t.Errorf("Node(1) error = %v, want ErrUnknownNode", err)
	}
	if _, err := tbl.Node(0, 0); !errors.Is(err, connerr.ErrUnknownNode) {
		t.Errorf("Node(0) error = %v, want ErrUnknownNode", err)
	}
	if _, err := tbl.Node(1, 5); !errors.Is(err, connerr.ErrInvalidState) {
		t.Errorf("Node(1, 5) error = %v, want ErrInvalidState", err)
	}
}

func TestTable_LocalNeurons(t *testing.T) {
	tbl, _ := NewTable(Layout{Processes: 1, Threads: 2})
	if _, err := tbl.Create(Spec{Model: "n"}, 5); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got := tbl.LocalNeurons(0)
	want := []GID{2, 4}
	if len(got) != len(want) {
		t.Fatalf("LocalNeurons(0) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LocalNeurons(0)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
