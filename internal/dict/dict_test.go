package dict

import (
	"errors"
	"strings"
	"testing"

	"github.com/nvandessel/connectome/internal/connerr"
)

func TestMap_AccessTracking(t *testing.T) {
	m := From(map[string]any{
		"rule":   "one_to_one",
		"weight": 2.5,
		"typo":   1,
	})

	if _, ok := m.Lookup("rule"); !ok {
		t.Fatal("expected rule to be present")
	}
	if _, _, err := m.Float("weight"); err != nil {
		t.Fatalf("Float(weight) error = %v", err)
	}

	got := m.Unaccessed()
	if len(got) != 1 || got[0] != "typo" {
		t.Errorf("Unaccessed() = %v, want [typo]", got)
	}

	err := m.AllAccessed("Connect", "conn_spec")
	if !errors.Is(err, connerr.ErrConfig) {
		t.Fatalf("AllAccessed() error = %v, want ErrConfig", err)
	}
	if !strings.Contains(err.Error(), "typo") {
		t.Errorf("error should list unread key, got %q", err.Error())
	}

	m.ClearAccessFlags()
	if n := len(m.Unaccessed()); n != 3 {
		t.Errorf("after ClearAccessFlags, Unaccessed() has %d keys, want 3", n)
	}
}

func TestMap_KnownDoesNotMarkAccessed(t *testing.T) {
	m := From(map[string]any{"delay": 1.0})
	if !m.Known("delay") {
		t.Fatal("Known(delay) = false")
	}
	if err := m.AllAccessed("test", "params"); err == nil {
		t.Error("Known must not mark entries as accessed")
	}
}

func TestMap_NilSafe(t *testing.T) {
	var m *Map
	if m.Known("x") {
		t.Error("nil map should know nothing")
	}
	if m.Len() != 0 || !m.Empty() {
		t.Error("nil map should be empty")
	}
	if err := m.AllAccessed("nil", "nil"); err != nil {
		t.Errorf("AllAccessed on nil = %v", err)
	}
	if c := m.Clone(); c == nil || c.Len() != 0 {
		t.Error("Clone of nil should be an empty map")
	}
}

func TestMap_TypedGetters(t *testing.T) {
	m := From(map[string]any{
		"f":       3,
		"i":       4.0,
		"frac":    4.5,
		"b":       true,
		"s":       "stdp_synapse",
		"ids":     []any{1.0, 2, int64(3)},
		"floats":  []any{1, 2.5},
		"scalars": 7,
	})

	tests := []struct {
		name    string
		run     func() error
		wantErr bool
	}{
		{"int to float", func() error {
			f, _, err := m.Float("f")
			if err == nil && f != 3 {
				t.Errorf("Float(f) = %v, want 3", f)
			}
			return err
		}, false},
		{"integral float to int", func() error {
			n, _, err := m.Int("i")
			if err == nil && n != 4 {
				t.Errorf("Int(i) = %v, want 4", n)
			}
			return err
		}, false},
		{"fractional float to int", func() error { _, _, err := m.Int("frac"); return err }, true},
		{"string as bool", func() error { _, _, err := m.Bool("s"); return err }, true},
		{"bool", func() error { _, _, err := m.Bool("b"); return err }, false},
		{"number as string", func() error { _, _, err := m.String("f"); return err }, true},
		{"id array", func() error {
			ids, _, err := m.Uints("ids")
			if err == nil && (len(ids) != 3 || ids[2] != 3) {
				t.Errorf("Uints(ids) = %v", ids)
			}
			return err
		}, false},
		{"float array", func() error {
			fs, _, err := m.Floats("floats")
			if err == nil && (len(fs) != 2 || fs[1] != 2.5) {
				t.Errorf("Floats(floats) = %v", fs)
			}
			return err
		}, false},
		{"scalar as array", func() error {
			ids, _, err := m.Uints("scalars")
			if err == nil && (len(ids) != 1 || ids[0] != 7) {
				t.Errorf("Uints(scalars) = %v", ids)
			}
			return err
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, connerr.ErrTypeMismatch) {
				t.Errorf("error = %v, want ErrTypeMismatch", err)
			}
		})
	}
}

func TestMap_UpdateLeavesDefaultWhenAbsent(t *testing.T) {
	m := New()
	w := 1.0
	ok, err := m.UpdateFloat("weight", &w)
	if err != nil || ok {
		t.Fatalf("UpdateFloat on missing key = (%v, %v)", ok, err)
	}
	if w != 1.0 {
		t.Errorf("weight changed to %v", w)
	}

	m.Set("weight", 2.0)
	if ok, _ := m.UpdateFloat("weight", &w); !ok || w != 2.0 {
		t.Errorf("UpdateFloat = %v, weight = %v", ok, w)
	}
}

func TestMap_CloneIsIndependent(t *testing.T) {
	m := From(map[string]any{"xs": []float64{1, 2}})
	c := m.Clone()
	raw := c.Raw()
	raw["xs"].([]float64)[0] = 99

	xs, _, _ := m.Floats("xs")
	if xs[0] != 1 {
		t.Errorf("clone shares slice storage with original")
	}
	if len(c.Unaccessed()) != 1 {
		t.Errorf("clone should start with fresh access flags")
	}
}
