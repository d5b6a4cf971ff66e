package delay

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/simtime"
)

func window(t *testing.T, c *Checker, min, max float64) {
	t.Helper()
	if err := c.SetStatus(dict.From(map[string]any{KeyMinDelay: min, KeyMaxDelay: max})); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
}

func TestChecker_ObservedExtrema(t *testing.T) {
	c := New(simtime.Default())
	if c.MinDelay() != simtime.PosInf || c.MaxDelay() != simtime.NegInf {
		t.Fatalf("fresh checker extrema = (%d, %d)", c.MinDelay(), c.MaxDelay())
	}

	for _, ms := range []float64{2.0, 0.5, 7.5} {
		if err := c.AssertValid(ms); err != nil {
			t.Fatalf("AssertValid(%v) error = %v", ms, err)
		}
	}
	if c.MinDelay() != 5 || c.MaxDelay() != 75 {
		t.Errorf("extrema = (%d, %d), want (5, 75)", c.MinDelay(), c.MaxDelay())
	}
}

func TestChecker_BelowResolution(t *testing.T) {
	c := New(simtime.Default())
	err := c.AssertValid(0.01)
	if !errors.Is(err, connerr.ErrBadDelay) {
		t.Fatalf("AssertValid(0.01) error = %v, want ErrBadDelay", err)
	}
	if c.MinDelay() != simtime.PosInf {
		t.Error("rejected delay must not update extrema")
	}
}

func TestChecker_UserWindow(t *testing.T) {
	c := New(simtime.Default())
	window(t, c, 0.1, 10.0)
	if !c.UserSetExtrema() {
		t.Fatal("UserSetExtrema() = false")
	}

	tests := []struct {
		ms      float64
		wantErr bool
	}{
		{15.0, true},
		{5.0, false},
		{0.1, false},
		{10.0, false},
		{10.1, true},
	}
	for _, tt := range tests {
		err := c.AssertValid(tt.ms)
		if (err != nil) != tt.wantErr {
			t.Errorf("AssertValid(%v) error = %v, wantErr %v", tt.ms, err, tt.wantErr)
		}
		var bd *connerr.BadDelayError
		if err != nil && (!errors.As(err, &bd) || bd.MaxMS != 10.0) {
			t.Errorf("AssertValid(%v) error = %v, want window max 10", tt.ms, err)
		}
	}
	if c.MinDelay() != 1 || c.MaxDelay() != 100 {
		t.Errorf("user window moved to (%d, %d)", c.MinDelay(), c.MaxDelay())
	}
}

func TestChecker_Frozen(t *testing.T) {
	c := New(simtime.Default())
	c.Freeze()
	if err := c.AssertValid(3.0); err != nil {
		t.Fatalf("AssertValid() error = %v", err)
	}
	if c.MinDelay() != simtime.PosInf {
		t.Error("frozen checker must not widen extrema")
	}
	c.Unfreeze()
	if err := c.AssertValid(3.0); err != nil {
		t.Fatalf("AssertValid() error = %v", err)
	}
	if c.MinDelay() != 30 {
		t.Errorf("MinDelay() = %d, want 30", c.MinDelay())
	}
}

func TestChecker_SetStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   error
	}{
		{"only min", map[string]any{KeyMinDelay: 1.0}, connerr.ErrBadProperty},
		{"below resolution", map[string]any{KeyMinDelay: 0.01, KeyMaxDelay: 1.0}, connerr.ErrBadDelay},
		{"inverted", map[string]any{KeyMinDelay: 2.0, KeyMaxDelay: 1.0}, connerr.ErrBadDelay},
		{"wrong type", map[string]any{KeyMinDelay: "x", KeyMaxDelay: 1.0}, connerr.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(simtime.Default())
			err := c.SetStatus(dict.From(tt.values))
			if !errors.Is(err, tt.want) {
				t.Errorf("SetStatus() error = %v, want %v", err, tt.want)
			}
			if c.UserSetExtrema() {
				t.Error("failed SetStatus must not mark extrema as user-set")
			}
		})
	}
}

func TestChecker_Status(t *testing.T) {
	c := New(simtime.Default())
	window(t, c, 0.5, 4.0)
	d := dict.New()
	c.Status(d)
	min, _, _ := d.Float(KeyMinDelay)
	max, _, _ := d.Float(KeyMaxDelay)
	if math.Abs(min-0.5) > 1e-9 || math.Abs(max-4.0) > 1e-9 {
		t.Errorf("Status() = (%v, %v), want (0.5, 4.0)", min, max)
	}
}

func TestChecker_AssertDefaultDelay(t *testing.T) {
	c := New(simtime.Default())
	window(t, c, 0.1, 10.0)

	err := c.AssertDefaultDelay(0, 1, "static_synapse", 20.0, true)
	if !errors.Is(err, connerr.ErrBadDelay) {
		t.Fatalf("AssertDefaultDelay() error = %v, want ErrBadDelay", err)
	}
	if !strings.Contains(err.Error(), "static_synapse") {
		t.Errorf("error should name the synapse type: %v", err)
	}

	if err := c.AssertDefaultDelay(0, 2, "static_synapse", 1.0, true); err != nil {
		t.Fatalf("AssertDefaultDelay() error = %v", err)
	}
	// Same generation is not checked again.
	if err := c.AssertDefaultDelay(0, 2, "static_synapse", 20.0, true); err != nil {
		t.Errorf("second check for same generation = %v, want nil", err)
	}
	// Types without delay are probed with the communication interval.
	if err := c.AssertDefaultDelay(1, 1, "gap_junction", math.NaN(), false); err != nil {
		t.Errorf("AssertDefaultDelay(no delay) error = %v", err)
	}
}

func TestChecker_LockWindow(t *testing.T) {
	c := New(simtime.Default())
	if err := c.AssertValid(1.0); err != nil {
		t.Fatalf("AssertValid() error = %v", err)
	}
	c.LockWindow(10, 10)
	if err := c.AssertValid(2.0); !errors.Is(err, connerr.ErrBadDelay) {
		t.Errorf("AssertValid outside locked window = %v, want ErrBadDelay", err)
	}
	if err := c.AssertValid(1.0); err != nil {
		t.Errorf("AssertValid inside locked window = %v", err)
	}
}

func TestChecker_Calibrate(t *testing.T) {
	c := New(simtime.Default())
	window(t, c, 1.0, 2.0)
	fine, _ := simtime.NewResolution(0.01)
	c.Calibrate(simtime.NewConverter(simtime.Default(), fine))
	if c.MinDelay() != 100 || c.MaxDelay() != 200 {
		t.Errorf("calibrated extrema = (%d, %d), want (100, 200)", c.MinDelay(), c.MaxDelay())
	}
	if c.Resolution().StepMS() != 0.01 {
		t.Errorf("Resolution() = %v, want 0.01", c.Resolution().StepMS())
	}
}
