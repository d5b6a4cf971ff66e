// Package simtime converts between milliseconds and integer simulation
// steps at a configurable resolution.
package simtime

import (
	"fmt"
	"math"

	"github.com/nvandessel/connectome/internal/connerr"
)

// DefaultResolutionMS is the step length used when none is configured.
const DefaultResolutionMS = 0.1

// Steps is a time span expressed in whole simulation steps.
type Steps int64

const (
	PosInf Steps = math.MaxInt64
	NegInf Steps = math.MinInt64
)

// IsFinite reports whether s is neither PosInf nor NegInf.
func (s Steps) IsFinite() bool { return s != PosInf && s != NegInf }

// Resolution is the length of one simulation step.
type Resolution struct {
	stepMS float64
}

// NewResolution returns a resolution of stepMS milliseconds per step.
func NewResolution(stepMS float64) (Resolution, error) {
	if !(stepMS > 0) || math.IsInf(stepMS, 0) {
		return Resolution{}, fmt.Errorf("%w: resolution must be a positive finite number of ms, got %g",
			connerr.ErrConfig, stepMS)
	}
	return Resolution{stepMS: stepMS}, nil
}

// Default returns the default 0.1 ms resolution.
func Default() Resolution { return Resolution{stepMS: DefaultResolutionMS} }

// StepMS returns the length of one step in milliseconds.
func (r Resolution) StepMS() float64 {
	if r.stepMS == 0 {
		return DefaultResolutionMS
	}
	return r.stepMS
}

// Steps converts ms to the nearest whole number of steps. Infinite input maps
// to PosInf/NegInf.
func (r Resolution) Steps(ms float64) Steps {
	switch {
	case math.IsInf(ms, 1):
		return PosInf
	case math.IsInf(ms, -1):
		return NegInf
	}
	return Steps(math.Round(ms / r.StepMS()))
}

// MS converts steps back to milliseconds.
func (r Resolution) MS(s Steps) float64 {
	switch s {
	case PosInf:
		return math.Inf(1)
	case NegInf:
		return math.Inf(-1)
	}
	return float64(s) * r.StepMS()
}

// Round snaps ms onto the step grid.
func (r Resolution) Round(ms float64) float64 { return r.MS(r.Steps(ms)) }

// Converter re-expresses step counts taken at one resolution in another.
type Converter struct {
	From Resolution
	To   Resolution
}

// NewConverter returns a converter from old to new.
func NewConverter(old, new Resolution) Converter { return Converter{From: old, To: new} }

// Steps converts s from the old grid to the new grid, keeping infinities.
func (c Converter) Steps(s Steps) Steps {
	if !s.IsFinite() {
		return s
	}
	return c.To.Steps(c.From.MS(s))
}
