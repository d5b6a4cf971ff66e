// Package delay validates transmission delays against the simulation-wide
// [min_delay, max_delay] window. One Checker exists per worker thread.
package delay

import (
	"fmt"
	"math"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/simtime"
)

// Status keys.
const (
	KeyMinDelay = "min_delay"
	KeyMaxDelay = "max_delay"
)

// CommIntervalMS is the delay contributed to the extrema by synapse types
// that carry no delay of their own.
const CommIntervalMS = 1.0

// Checker tracks the delay extrema seen on one thread and rejects delays
// that fall outside a user-set or locked window.
//
// A Checker is owned by exactly one worker and is not safe for concurrent
// use.
type Checker struct {
	res      simtime.Resolution
	min, max simtime.Steps
	userSet  bool
	frozen   bool

	locked               bool
	lockedMin, lockedMax simtime.Steps

	// synapse type id -> model generation whose default delay was checked
	defaults map[int]uint64
}

// New returns an unfrozen checker that has seen no delays yet.
func New(res simtime.Resolution) *Checker {
	return &Checker{
		res:      res,
		min:      simtime.PosInf,
		max:      simtime.NegInf,
		defaults: make(map[int]uint64),
	}
}

// Resolution returns the step length the checker validates against.
func (c *Checker) Resolution() simtime.Resolution { return c.res }

// MinDelay returns the smallest delay observed or configured.
func (c *Checker) MinDelay() simtime.Steps { return c.min }

// MaxDelay returns the largest delay observed or configured.
func (c *Checker) MaxDelay() simtime.Steps { return c.max }

// UserSetExtrema reports whether min_delay and max_delay were set explicitly.
func (c *Checker) UserSetExtrema() bool { return c.userSet }

// Freeze stops observed delays from widening the extrema.
func (c *Checker) Freeze() { c.frozen = true }

// Unfreeze re-enables extrema updates.
func (c *Checker) Unfreeze() { c.frozen = false }

// Frozen reports whether extrema updates are suspended.
func (c *Checker) Frozen() bool { return c.frozen }

// LockWindow pins the global window used once the network is prepared.
// Later delays must fall inside it.
func (c *Checker) LockWindow(min, max simtime.Steps) {
	c.locked = true
	c.lockedMin, c.lockedMax = min, max
}

// Locked reports whether LockWindow was called.
func (c *Checker) Locked() bool { return c.locked }

func (c *Checker) window() (float64, float64) {
	if c.locked {
		return c.res.MS(c.lockedMin), c.res.MS(c.lockedMax)
	}
	return c.res.MS(c.min), c.res.MS(c.max)
}

func (c *Checker) bad(ms float64, reason string) error {
	min, max := c.window()
	return &connerr.BadDelayError{DelayMS: ms, MinMS: min, MaxMS: max, Reason: reason}
}

// AssertValid checks delayMS and, unless frozen or bounded by a user-set
// window, widens the observed extrema to include it.
func (c *Checker) AssertValid(delayMS float64) error {
	if math.IsNaN(delayMS) {
		return c.bad(delayMS, "delay is not a number")
	}
	d := c.res.Steps(delayMS)
	ms := c.res.MS(d)

	if d < 1 {
		return c.bad(ms, "delay must be greater than or equal to resolution")
	}

	if c.locked && (d < c.lockedMin || d > c.lockedMax) {
		return c.bad(ms, "min_delay and max_delay cannot change once the network is prepared")
	}

	if d < c.min {
		if c.userSet {
			return c.bad(ms, "")
		}
		if !c.frozen {
			c.min = d
		}
	}
	if d > c.max {
		if c.userSet {
			return c.bad(ms, "")
		}
		if !c.frozen {
			c.max = d
		}
	}
	return nil
}

// AssertDefaultDelay validates a synapse type's default delay the first
// time it is used after the type's defaults last changed. Types without a
// delay contribute CommIntervalMS instead.
func (c *Checker) AssertDefaultDelay(synID int, generation uint64, name string, defaultMS float64, hasDelay bool) error {
	if g, ok := c.defaults[synID]; ok && g == generation {
		return nil
	}
	probe := defaultMS
	if !hasDelay {
		probe = CommIntervalMS
	}
	if err := c.AssertValid(probe); err != nil {
		min, max := c.window()
		return &connerr.BadDelayError{
			DelayMS: defaultMS,
			MinMS:   min,
			MaxMS:   max,
			Reason: fmt.Sprintf("default delay of '%s' must be between min_delay %g and max_delay %g",
				name, min, max),
		}
	}
	c.defaults[synID] = generation
	return nil
}

// Calibrate re-expresses the extrema on a new step grid.
func (c *Checker) Calibrate(conv simtime.Converter) {
	c.min = conv.Steps(c.min)
	c.max = conv.Steps(c.max)
	if c.locked {
		c.lockedMin = conv.Steps(c.lockedMin)
		c.lockedMax = conv.Steps(c.lockedMax)
	}
	c.res = conv.To
	clear(c.defaults)
}

// Status writes min_delay and max_delay in ms into d.
func (c *Checker) Status(d *dict.Map) {
	d.Set(KeyMinDelay, c.res.MS(c.min))
	d.Set(KeyMaxDelay, c.res.MS(c.max))
}

// SetStatus applies a user-defined window. Both bounds must be given
// together; they then become hard limits for every later delay.
func (c *Checker) SetStatus(d *dict.Map) error {
	var minMS, maxMS float64
	hasMin, err := d.UpdateFloat(KeyMinDelay, &minMS)
	if err != nil {
		return err
	}
	hasMax, err := d.UpdateFloat(KeyMaxDelay, &maxMS)
	if err != nil {
		return err
	}
	if hasMin != hasMax {
		return fmt.Errorf("%w: both min_delay and max_delay have to be specified", connerr.ErrBadProperty)
	}
	if !hasMin {
		return nil
	}

	min, max := c.res.Steps(minMS), c.res.Steps(maxMS)
	switch {
	case min < 1:
		return &connerr.BadDelayError{DelayMS: minMS, MinMS: minMS, MaxMS: maxMS,
			Reason: "min_delay must be greater than or equal to resolution"}
	case max < min:
		return &connerr.BadDelayError{DelayMS: minMS, MinMS: minMS, MaxMS: maxMS,
			Reason: "min_delay must be smaller than or equal to max_delay"}
	}
	c.min, c.max = min, max
	c.userSet = true
	clear(c.defaults)
	return nil
}
