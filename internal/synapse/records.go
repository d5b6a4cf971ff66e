package synapse

import (
	"fmt"
	"math"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
)

// Static is a fixed-weight connection.
type Static struct {
	Base
}

// StaticHomW is a fixed connection whose weight lives in HomWeight.
type StaticHomW struct {
	Base
}

func (c *StaticHomW) SetWeight(float64) error {
	return fmt.Errorf("%w: setting of individual weights is not possible, change the common weight via CopyModel or SetDefaults",
		connerr.ErrBadProperty)
}

func (c *StaticHomW) Status(d *dict.Map, cp CommonProperties) {
	c.Base.Status(d, cp)
	if hw, ok := cp.(*HomWeight); ok {
		d.Set(KeyWeight, hw.Weight)
	}
}

func (c *StaticHomW) SetStatus(d *dict.Map, s Scope) error {
	if !s.Defaults && d.Known(KeyWeight) {
		d.MarkAccessed(KeyWeight)
		return c.SetWeight(0)
	}
	return c.Base.SetStatus(d, s)
}

func (c *StaticHomW) EffectiveWeight(cp CommonProperties) float64 {
	if hw, ok := cp.(*HomWeight); ok {
		return hw.Weight
	}
	return c.Weight
}

// Keys of per-connection plasticity state.
const (
	KeyLambda  = "lambda"
	KeyAlpha   = "alpha"
	KeyMuPlus  = "mu_plus"
	KeyMuMinus = "mu_minus"
	KeyKPlus   = "Kplus"
	KeyC       = "c"
	KeyN       = "n"
)

// STDP is a spike-timing dependent plastic connection.
type STDP struct {
	Base
	TauPlus float64
	Lambda  float64
	Alpha   float64
	MuPlus  float64
	MuMinus float64
	WMax    float64
	KPlus   float64
}

// DefaultSTDP returns the stock STDP parameter set.
func DefaultSTDP() STDP {
	return STDP{
		Base:    Base{Weight: 1.0, DelayMS: 1.0, Label: Unlabeled},
		TauPlus: 20.0,
		Lambda:  0.01,
		Alpha:   1.0,
		MuPlus:  1.0,
		MuMinus: 1.0,
		WMax:    100.0,
	}
}

func (c *STDP) Check(src, tgt node.Node, receptor int, cp CommonProperties) error {
	if tgt.Shape != node.ShapeNeuron {
		return fmt.Errorf("%w: stdp connections require a neuron target, %d is a %v",
			connerr.ErrIllegalConnection, tgt.GID, tgt.Shape)
	}
	return c.Base.Check(src, tgt, receptor, cp)
}

func (c *STDP) Status(d *dict.Map, cp CommonProperties) {
	c.Base.Status(d, cp)
	d.Set(KeyTauPlus, c.TauPlus)
	d.Set(KeyLambda, c.Lambda)
	d.Set(KeyAlpha, c.Alpha)
	d.Set(KeyMuPlus, c.MuPlus)
	d.Set(KeyMuMinus, c.MuMinus)
	d.Set(KeyWMax, c.WMax)
	d.Set(KeyKPlus, c.KPlus)
}

func (c *STDP) SetStatus(d *dict.Map, s Scope) error {
	next := *c
	for key, dst := range map[string]*float64{
		KeyTauPlus: &next.TauPlus,
		KeyLambda:  &next.Lambda,
		KeyAlpha:   &next.Alpha,
		KeyMuPlus:  &next.MuPlus,
		KeyMuMinus: &next.MuMinus,
		KeyWMax:    &next.WMax,
		KeyKPlus:   &next.KPlus,
	} {
		if _, err := d.UpdateFloat(key, dst); err != nil {
			return err
		}
	}
	if err := next.Base.SetStatus(d, s); err != nil {
		return err
	}
	if sign(next.Weight) != sign(next.WMax) {
		return fmt.Errorf("%w: weight and Wmax must have the same sign", connerr.ErrBadProperty)
	}
	if next.KPlus < 0 {
		return fmt.Errorf("%w: Kplus must be non-negative", connerr.ErrBadProperty)
	}
	if next.TauPlus <= 0 {
		return fmt.Errorf("%w: tau_plus must be positive", connerr.ErrBadProperty)
	}
	*c = next
	return nil
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}

// SpikeCounter is one entry of a volume transmitter's spike history.
type SpikeCounter struct {
	TimeMS       float64
	Multiplicity float64
}

// STDPDopamine is an STDP connection gated by a dopamine signal delivered
// by a volume transmitter named in DopamineCommon.
type STDPDopamine struct {
	Base
	KPlus        float64
	C            float64
	N            float64
	LastUpdateMS float64
}

func (c *STDPDopamine) Check(src, tgt node.Node, receptor int, cp CommonProperties) error {
	dc, ok := cp.(*DopamineCommon)
	if !ok {
		return fmt.Errorf("%w: dopamine connection without dopamine parameters", connerr.ErrIllegalConnection)
	}
	if _, ok := dc.VolumeTransmitter(); !ok {
		return fmt.Errorf("%w: no volume transmitter has been assigned to the dopamine synapse",
			connerr.ErrIllegalConnection)
	}
	if tgt.Shape != node.ShapeNeuron {
		return fmt.Errorf("%w: dopamine connections require a neuron target, %d is a %v",
			connerr.ErrIllegalConnection, tgt.GID, tgt.Shape)
	}
	return c.Base.Check(src, tgt, receptor, cp)
}

func (c *STDPDopamine) Status(d *dict.Map, cp CommonProperties) {
	c.Base.Status(d, cp)
	d.Set(KeyKPlus, c.KPlus)
	d.Set(KeyC, c.C)
	d.Set(KeyN, c.N)
}

func (c *STDPDopamine) SetStatus(d *dict.Map, s Scope) error {
	next := *c
	for key, dst := range map[string]*float64{
		KeyKPlus: &next.KPlus,
		KeyC:     &next.C,
		KeyN:     &next.N,
	} {
		if _, err := d.UpdateFloat(key, dst); err != nil {
			return err
		}
	}
	if err := next.Base.SetStatus(d, s); err != nil {
		return err
	}
	if next.KPlus < 0 {
		return fmt.Errorf("%w: Kplus must be non-negative", connerr.ErrBadProperty)
	}
	*c = next
	return nil
}

// TriggerUpdateWeight advances the eligibility and dopamine traces to
// tTrig, integrating the weight across the dopamine spikes in between.
// spikes[0] is the transmitter's reference entry at the previous trigger.
func (c *STDPDopamine) TriggerUpdateWeight(spikes []SpikeCounter, tTrig float64, cp *DopamineCommon) {
	if len(spikes) == 0 {
		return
	}
	idx := 0
	t0 := c.LastUpdateMS
	c.processDopaSpikes(spikes, &idx, t0, tTrig, cp)
	c.N *= math.Exp((spikes[idx].TimeMS - tTrig) / cp.TauN)
	c.KPlus *= math.Exp((c.LastUpdateMS - tTrig) / cp.TauPlus)
	c.LastUpdateMS = tTrig
}

func (c *STDPDopamine) updateWeight(c0, n0, minusDt float64, cp *DopamineCommon) {
	taus := (cp.TauC + cp.TauN) / (cp.TauC * cp.TauN)
	c.Weight -= c0 * (n0/taus*math.Expm1(taus*minusDt) - cp.B*cp.TauC*math.Expm1(minusDt/cp.TauC))
	c.Weight = min(max(c.Weight, cp.WMin), cp.WMax)
}

func (c *STDPDopamine) updateDopamine(spikes []SpikeCounter, idx *int, cp *DopamineCommon) {
	minusDt := spikes[*idx].TimeMS - spikes[*idx+1].TimeMS
	*idx++
	c.N = c.N*math.Exp(minusDt/cp.TauN) + spikes[*idx].Multiplicity/cp.TauN
}

func (c *STDPDopamine) processDopaSpikes(spikes []SpikeCounter, idx *int, t0, t1 float64, cp *DopamineCommon) {
	pending := func() bool { return len(spikes) > *idx+1 && spikes[*idx+1].TimeMS <= t1 }

	if pending() {
		n0 := c.N * math.Exp((spikes[*idx].TimeMS-t0)/cp.TauN)
		c.updateWeight(c.C, n0, t0-spikes[*idx+1].TimeMS, cp)
		c.updateDopamine(spikes, idx, cp)

		for pending() {
			cd := c.C * math.Exp((t0-spikes[*idx].TimeMS)/cp.TauC)
			c.updateWeight(cd, c.N, spikes[*idx].TimeMS-spikes[*idx+1].TimeMS, cp)
			c.updateDopamine(spikes, idx, cp)
		}

		cd := c.C * math.Exp((t0-spikes[*idx].TimeMS)/cp.TauC)
		c.updateWeight(cd, c.N, spikes[*idx].TimeMS-t1, cp)
	} else {
		n0 := c.N * math.Exp((spikes[*idx].TimeMS-t0)/cp.TauN)
		c.updateWeight(c.C, n0, t0-t1, cp)
	}
	c.C *= math.Exp((t0 - t1) / cp.TauC)
}

// GapJunction is a secondary, delay-free electrical coupling.
type GapJunction struct {
	Base
}

func (c *GapJunction) Check(src, tgt node.Node, receptor int, _ CommonProperties) error {
	if !src.Secondary {
		return fmt.Errorf("%w: source %d does not emit gap junction events", connerr.ErrIllegalConnection, src.GID)
	}
	if !tgt.Secondary {
		return fmt.Errorf("%w: target %d does not support gap junctions", connerr.ErrIllegalConnection, tgt.GID)
	}
	return CheckReceptor(tgt, receptor)
}

// Modulated records take part in volume-transmitter driven weight updates.
type Modulated interface {
	TriggerUpdateWeight(spikes []SpikeCounter, tTrig float64, cp *DopamineCommon)
}
