package simtime

import (
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/connectome/internal/connerr"
)

func TestResolution_RoundTrip(t *testing.T) {
	r := Default()
	tests := []struct {
		ms    float64
		steps Steps
	}{
		{0.1, 1},
		{1.0, 10},
		{5.0, 50},
		{10.0, 100},
		{0.14, 1},
		{0.16, 2},
	}
	for _, tt := range tests {
		if got := r.Steps(tt.ms); got != tt.steps {
			t.Errorf("Steps(%v) = %d, want %d", tt.ms, got, tt.steps)
		}
	}
	if got := r.MS(50); math.Abs(got-5.0) > 1e-12 {
		t.Errorf("MS(50) = %v, want 5.0", got)
	}
}

func TestResolution_Infinities(t *testing.T) {
	r := Default()
	if r.Steps(math.Inf(1)) != PosInf {
		t.Error("+Inf ms should map to PosInf")
	}
	if r.Steps(math.Inf(-1)) != NegInf {
		t.Error("-Inf ms should map to NegInf")
	}
	if !math.IsInf(r.MS(PosInf), 1) {
		t.Error("PosInf should map to +Inf ms")
	}
	if PosInf.IsFinite() || !Steps(3).IsFinite() {
		t.Error("IsFinite mismatch")
	}
}

func TestNewResolution_Invalid(t *testing.T) {
	for _, ms := range []float64{0, -0.1, math.NaN(), math.Inf(1)} {
		if _, err := NewResolution(ms); !errors.Is(err, connerr.ErrConfig) {
			t.Errorf("NewResolution(%v) error = %v, want ErrConfig", ms, err)
		}
	}
}

func TestConverter_Steps(t *testing.T) {
	old := Default()
	fine, err := NewResolution(0.01)
	if err != nil {
		t.Fatalf("NewResolution() error = %v", err)
	}
	c := NewConverter(old, fine)
	if got := c.Steps(15); got != 150 {
		t.Errorf("Steps(15) = %d, want 150", got)
	}
	if got := c.Steps(PosInf); got != PosInf {
		t.Errorf("Steps(PosInf) = %d", got)
	}
}
