package synapse

import (
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
)

// guard is a DelayGuard accepting delays in [min, max].
type guard struct {
	min, max float64
	frozen   int
	checked  []float64
}

func (g *guard) AssertValid(ms float64) error {
	g.checked = append(g.checked, ms)
	if ms < g.min || ms > g.max {
		return &connerr.BadDelayError{DelayMS: ms, MinMS: g.min, MaxMS: g.max}
	}
	return nil
}
func (g *guard) Freeze()   { g.frozen++ }
func (g *guard) Unfreeze() { g.frozen-- }

func neuron(gid node.GID) node.Node {
	return node.Node{GID: gid, Model: "iaf", Shape: node.ShapeNeuron, LocalDeviceID: -1}
}

func TestBuiltin_Models(t *testing.T) {
	r := Builtin()
	tests := []struct {
		name     string
		hasDelay bool
		primary  bool
	}{
		{StaticSynapse, true, true},
		{StaticSynapseHomW, true, true},
		{STDPSynapse, true, true},
		{STDPDopamineSynapse, true, true},
		{GapJunctionSynapse, false, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if m.ID() != SynID(i) {
				t.Errorf("ID() = %d, want %d", m.ID(), i)
			}
			if m.Traits().HasDelay != tt.hasDelay || m.Traits().Primary != tt.primary {
				t.Errorf("Traits() = %+v", m.Traits())
			}
			rec := m.NewRecord()
			if rec.Core().Label != Unlabeled {
				t.Errorf("default label = %d, want unlabeled", rec.Core().Label)
			}
		})
	}

	if _, err := r.Lookup("no_such_synapse"); !errors.Is(err, connerr.ErrUnknownSynapseType) {
		t.Errorf("Lookup(unknown) error = %v", err)
	}
	if _, err := r.Get(99); !errors.Is(err, connerr.ErrUnknownSynapseType) {
		t.Errorf("Get(99) error = %v", err)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := Builtin()
	m, _ := r.Lookup(StaticSynapse)
	if _, err := r.Register(StaticSynapse, m); !errors.Is(err, connerr.ErrConfig) {
		t.Errorf("Register(duplicate) error = %v, want ErrConfig", err)
	}
}

func TestRegistry_CopyModel(t *testing.T) {
	r := Builtin()
	g := &guard{min: 0.1, max: 10}

	id, err := r.CopyModel(StaticSynapse, "excitatory", dict.From(map[string]any{
		KeyWeight: 2.5,
		KeyDelay:  1.5,
	}), g)
	if err != nil {
		t.Fatalf("CopyModel() error = %v", err)
	}
	if id != 5 {
		t.Errorf("CopyModel() id = %d, want 5", id)
	}
	if g.frozen != 0 {
		t.Errorf("guard left frozen (%d)", g.frozen)
	}

	copied, _ := r.Get(id)
	rec := copied.NewRecord().Core()
	if rec.Weight != 2.5 || rec.DelayMS != 1.5 {
		t.Errorf("copied defaults = (%v, %v), want (2.5, 1.5)", rec.Weight, rec.DelayMS)
	}

	orig, _ := r.Lookup(StaticSynapse)
	if w := orig.NewRecord().Core().Weight; w != 1.0 {
		t.Errorf("base model weight changed to %v", w)
	}

	if _, err := r.CopyModel(StaticSynapse, "too_slow", dict.From(map[string]any{KeyDelay: 50.0}), g); !errors.Is(err, connerr.ErrBadDelay) {
		t.Errorf("CopyModel(bad delay) error = %v, want ErrBadDelay", err)
	}
	if _, err := r.Lookup("too_slow"); err == nil {
		t.Error("failed copy must not be registered")
	}
}

func TestModel_SetStatusIsAtomic(t *testing.T) {
	r := Builtin()
	m, _ := r.Lookup(STDPSynapse)
	gen := m.Generation()

	// weight and Wmax of different sign are rejected; nothing may change
	err := m.SetStatus(dict.From(map[string]any{KeyWeight: -1.0, KeyLambda: 0.5}), nil)
	if !errors.Is(err, connerr.ErrBadProperty) {
		t.Fatalf("SetStatus() error = %v, want ErrBadProperty", err)
	}
	rec := m.NewRecord().(*STDP)
	if rec.Lambda != 0.01 || rec.Weight != 1.0 {
		t.Errorf("defaults changed after failed update: %+v", rec)
	}
	if m.Generation() != gen {
		t.Errorf("generation advanced after failed update")
	}

	if err := m.SetStatus(dict.From(map[string]any{KeyLambda: 0.5, KeyReceptorType: 2}), nil); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if m.Generation() != gen+1 || m.Receptor() != 2 {
		t.Errorf("generation = %d, receptor = %d", m.Generation(), m.Receptor())
	}
}

func TestModel_Status(t *testing.T) {
	m, _ := Builtin().Lookup(STDPDopamineSynapse)
	d := dict.New()
	m.Status(d)
	for _, key := range []string{KeyWeight, KeyDelay, KeyVT, KeyTauC, KeySynapseModel, KeyReceptorType} {
		if !d.Known(key) {
			t.Errorf("Status() missing %q", key)
		}
	}
	name, _, _ := d.String(KeySynapseModel)
	if name != STDPDopamineSynapse {
		t.Errorf("synapse_model = %q", name)
	}
}

func TestStaticHomW_RejectsIndividualWeight(t *testing.T) {
	r := Builtin()
	m, _ := r.Lookup(StaticSynapseHomW)

	rec := m.NewRecord()
	if err := rec.SetWeight(3); !errors.Is(err, connerr.ErrBadProperty) {
		t.Errorf("SetWeight() error = %v, want ErrBadProperty", err)
	}
	err := rec.SetStatus(dict.From(map[string]any{KeyWeight: 3.0}), RecordScope(m, nil))
	if !errors.Is(err, connerr.ErrBadProperty) {
		t.Errorf("SetStatus(weight) error = %v, want ErrBadProperty", err)
	}

	// the common weight is changed through the defaults
	if err := r.SetDefaults(StaticSynapseHomW, dict.From(map[string]any{KeyWeight: 4.0}), nil); err != nil {
		t.Fatalf("SetDefaults() error = %v", err)
	}
	if w := rec.EffectiveWeight(m.Common()); w != 4.0 {
		t.Errorf("EffectiveWeight() = %v, want 4", w)
	}
}

func TestBase_SetStatus(t *testing.T) {
	g := &guard{min: 0.1, max: 10}
	tests := []struct {
		name     string
		values   map[string]any
		hasDelay bool
		want     error
	}{
		{"weight and delay", map[string]any{KeyWeight: 2.0, KeyDelay: 3.0}, true, nil},
		{"delay out of window", map[string]any{KeyDelay: 30.0}, true, connerr.ErrBadDelay},
		{"delay on delay-free type", map[string]any{KeyDelay: 3.0}, false, connerr.ErrBadProperty},
		{"negative label", map[string]any{KeyLabel: -3}, true, connerr.ErrBadProperty},
		{"weight type", map[string]any{KeyWeight: "heavy"}, true, connerr.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Static{Base: Base{Weight: 1, DelayMS: 1, Label: Unlabeled}}
			err := rec.SetStatus(dict.From(tt.values), Scope{Delays: g, HasDelay: tt.hasDelay})
			if !errors.Is(err, tt.want) && !(tt.want == nil && err == nil) {
				t.Fatalf("SetStatus() error = %v, want %v", err, tt.want)
			}
			if tt.want != nil && (rec.Weight != 1 || rec.DelayMS != 1) {
				t.Errorf("rejected update changed record: %+v", rec.Base)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	r := Builtin()
	src := neuron(1)
	gapNeuron := neuron(3)
	gapNeuron.Secondary = true
	generator := node.Node{GID: 4, Model: "poisson_generator", Shape: node.ShapeDevice, Generator: true}
	recorder := node.Node{GID: 5, Model: "spike_detector", Shape: node.ShapeDevice}
	multi := neuron(6)
	multi.Receptors = 3

	tests := []struct {
		name     string
		model    string
		src, tgt node.Node
		receptor int
		want     error
	}{
		{"static ok", StaticSynapse, src, neuron(2), 0, nil},
		{"static bad receptor", StaticSynapse, src, neuron(2), 1, connerr.ErrUnknownReceptorType},
		{"static multi receptor", StaticSynapse, src, multi, 2, nil},
		{"static into generator", StaticSynapse, src, generator, 0, connerr.ErrIllegalConnection},
		{"static into recorder", StaticSynapse, src, recorder, 0, nil},
		{"stdp into device", STDPSynapse, src, recorder, 0, connerr.ErrIllegalConnection},
		{"dopamine without vt", STDPDopamineSynapse, src, neuron(2), 0, connerr.ErrIllegalConnection},
		{"gap junction plain target", GapJunctionSynapse, gapNeuron, neuron(2), 0, connerr.ErrIllegalConnection},
		{"gap junction plain source", GapJunctionSynapse, src, gapNeuron, 0, connerr.ErrIllegalConnection},
		{"gap junction ok", GapJunctionSynapse, gapNeuron, gapNeuron, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Lookup(tt.model)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			err = m.NewRecord().Check(tt.src, tt.tgt, tt.receptor, m.Common())
			if tt.want == nil {
				if err != nil {
					t.Errorf("Check() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Check() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHomogeneous_PushAtPermute(t *testing.T) {
	m, _ := Builtin().Lookup(StaticSynapse)
	conn := m.NewConnector()
	for i := range 3 {
		rec := m.NewRecord()
		rec.Core().Target = node.GID(10 + i)
		if lcid := conn.Push(rec); lcid != i {
			t.Fatalf("Push() = %d, want %d", lcid, i)
		}
	}
	conn.At(1).Core().Weight = 7
	conn.Permute([]int{2, 0, 1})

	want := []node.GID{12, 10, 11}
	for i, gid := range want {
		if got := conn.At(i).Core().Target; got != gid {
			t.Errorf("At(%d).Target = %d, want %d", i, got, gid)
		}
	}
	if conn.At(2).Core().Weight != 7 {
		t.Errorf("in-place mutation lost after Permute")
	}
}

func TestHomogeneous_PushWrongTypePanics(t *testing.T) {
	r := Builtin()
	static, _ := r.Lookup(StaticSynapse)
	stdp, _ := r.Lookup(STDPSynapse)
	conn := static.NewConnector()
	defer func() {
		if recover() == nil {
			t.Error("expected panic when pushing a foreign record")
		}
	}()
	conn.Push(stdp.NewRecord())
}

func TestSTDPDopamine_TriggerUpdateWeight(t *testing.T) {
	cp := DefaultDopamineCommon()
	cp.VT = 9

	rec := &STDPDopamine{Base: Base{Weight: 1.0, DelayMS: 1.0}, C: 1.0}
	spikes := []SpikeCounter{{TimeMS: 0, Multiplicity: 0}, {TimeMS: 5, Multiplicity: 1}}
	rec.TriggerUpdateWeight(spikes, 10, cp)

	if !(rec.Weight > 1.0) {
		t.Errorf("weight = %v, want potentiation above 1", rec.Weight)
	}
	if rec.Weight > cp.WMax {
		t.Errorf("weight = %v exceeds Wmax", rec.Weight)
	}
	if rec.LastUpdateMS != 10 {
		t.Errorf("LastUpdateMS = %v, want 10", rec.LastUpdateMS)
	}
	if !(rec.C < 1.0) || rec.C <= 0 {
		t.Errorf("eligibility trace = %v, want decay in (0, 1)", rec.C)
	}
	if math.IsNaN(rec.N) || rec.N <= 0 {
		t.Errorf("dopamine trace = %v, want positive", rec.N)
	}
}

func TestSTDPDopamine_NoEligibilityKeepsWeight(t *testing.T) {
	cp := DefaultDopamineCommon()
	rec := &STDPDopamine{Base: Base{Weight: 3.0}}
	rec.TriggerUpdateWeight([]SpikeCounter{{TimeMS: 0}, {TimeMS: 2, Multiplicity: 4}}, 4, cp)
	if rec.Weight != 3.0 {
		t.Errorf("weight = %v, want 3 without eligibility", rec.Weight)
	}
}
