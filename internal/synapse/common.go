package synapse

import (
	"fmt"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
)

// CommonProperties are parameters shared by every record of one synapse
// type. They are stored once per type, not per record.
type CommonProperties interface {
	Status(d *dict.Map)
	SetStatus(d *dict.Map) error
	Clone() CommonProperties
}

// NoCommon is used by types without shared parameters.
type NoCommon struct{}

func (NoCommon) Status(*dict.Map)          {}
func (NoCommon) SetStatus(*dict.Map) error { return nil }
func (NoCommon) Clone() CommonProperties   { return NoCommon{} }

// HomWeight shares one weight across all records of a type.
type HomWeight struct {
	Weight float64
}

func (c *HomWeight) Status(d *dict.Map) { d.Set(KeyWeight, c.Weight) }

func (c *HomWeight) SetStatus(d *dict.Map) error {
	_, err := d.UpdateFloat(KeyWeight, &c.Weight)
	return err
}

func (c *HomWeight) Clone() CommonProperties {
	cp := *c
	return &cp
}

// Keys of the dopamine-modulated plasticity parameters.
const (
	KeyVT      = "vt"
	KeyAPlus   = "A_plus"
	KeyAMinus  = "A_minus"
	KeyTauPlus = "tau_plus"
	KeyTauC    = "tau_c"
	KeyTauN    = "tau_n"
	KeyB       = "b"
	KeyWMin    = "Wmin"
	KeyWMax    = "Wmax"
)

// NoVT marks a dopamine synapse type without a volume transmitter.
const NoVT int64 = -1

// DopamineCommon holds the parameters shared by dopamine-modulated STDP
// synapses, including the volume transmitter that drives them.
type DopamineCommon struct {
	VT      int64
	APlus   float64
	AMinus  float64
	TauPlus float64
	TauC    float64
	TauN    float64
	B       float64
	WMin    float64
	WMax    float64
}

// DefaultDopamineCommon returns the stock parameter set.
func DefaultDopamineCommon() *DopamineCommon {
	return &DopamineCommon{
		VT:      NoVT,
		APlus:   1.0,
		AMinus:  1.5,
		TauPlus: 20.0,
		TauC:    1000.0,
		TauN:    200.0,
		B:       0.0,
		WMin:    0.0,
		WMax:    200.0,
	}
}

// VolumeTransmitter returns the configured transmitter and whether one is set.
func (c *DopamineCommon) VolumeTransmitter() (node.GID, bool) {
	if c.VT <= 0 {
		return 0, false
	}
	return node.GID(c.VT), true
}

func (c *DopamineCommon) Status(d *dict.Map) {
	d.Set(KeyVT, c.VT)
	d.Set(KeyAPlus, c.APlus)
	d.Set(KeyAMinus, c.AMinus)
	d.Set(KeyTauPlus, c.TauPlus)
	d.Set(KeyTauC, c.TauC)
	d.Set(KeyTauN, c.TauN)
	d.Set(KeyB, c.B)
	d.Set(KeyWMin, c.WMin)
	d.Set(KeyWMax, c.WMax)
}

func (c *DopamineCommon) SetStatus(d *dict.Map) error {
	next := *c
	if _, err := d.UpdateInt64(KeyVT, &next.VT); err != nil {
		return err
	}
	for key, dst := range map[string]*float64{
		KeyAPlus:   &next.APlus,
		KeyAMinus:  &next.AMinus,
		KeyTauPlus: &next.TauPlus,
		KeyTauC:    &next.TauC,
		KeyTauN:    &next.TauN,
		KeyB:       &next.B,
		KeyWMin:    &next.WMin,
		KeyWMax:    &next.WMax,
	} {
		if _, err := d.UpdateFloat(key, dst); err != nil {
			return err
		}
	}
	if next.TauC <= 0 || next.TauN <= 0 || next.TauPlus <= 0 {
		return fmt.Errorf("%w: time constants must be positive", connerr.ErrBadProperty)
	}
	if next.WMin > next.WMax {
		return fmt.Errorf("%w: Wmin must not exceed Wmax", connerr.ErrBadProperty)
	}
	*c = next
	return nil
}

func (c *DopamineCommon) Clone() CommonProperties {
	cp := *c
	return &cp
}
