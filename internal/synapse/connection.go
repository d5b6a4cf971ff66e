// Package synapse defines connection records, the synapse types that
// produce them, and the homogeneous containers that store records of one
// type contiguously.
package synapse

import (
	"fmt"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/node"
)

// SynID indexes a registered synapse type.
type SynID int

// Unlabeled is the label carried by connections that were never labeled.
const Unlabeled int64 = -1

// Dictionary keys understood by records and models.
const (
	KeyWeight       = "weight"
	KeyDelay        = "delay"
	KeyReceptor     = "receptor"
	KeyReceptorType = "receptor_type"
	KeyLabel        = "synapse_label"
	KeySynapseModel = "synapse_model"
	KeySource       = "source"
	KeyTarget       = "target"
	KeyHasDelay     = "has_delay"
	KeyPrimary      = "primary"
	KeyNumConns     = "num_connections"
)

// DelayValidator accepts or rejects a delay in ms.
type DelayValidator interface {
	AssertValid(ms float64) error
}

// DelayGuard is a DelayValidator that can suspend extrema updates while a
// synapse type's defaults are rewritten.
type DelayGuard interface {
	DelayValidator
	Freeze()
	Unfreeze()
}

// Scope carries what a record needs when its status is read or written.
type Scope struct {
	Common   CommonProperties
	Delays   DelayValidator
	HasDelay bool

	// Defaults is set while the synapse type's default record is updated.
	Defaults bool
}

// Connection is a single stored edge. Implementations embed Base and are
// stored by value in a Homogeneous connector; methods use pointer receivers.
type Connection interface {
	Core() *Base
	SetWeight(w float64) error
	EffectiveWeight(cp CommonProperties) float64
	Check(src, tgt node.Node, receptor int, cp CommonProperties) error
	Status(d *dict.Map, cp CommonProperties)
	SetStatus(d *dict.Map, s Scope) error
}

// Base holds the fields every record has.
type Base struct {
	Target   node.GID
	Weight   float64
	DelayMS  float64
	Receptor int
	Label    int64
}

// Core returns the embedded base record.
func (b *Base) Core() *Base { return b }

// SetWeight sets the per-connection weight.
func (b *Base) SetWeight(w float64) error {
	b.Weight = w
	return nil
}

// EffectiveWeight returns the weight the record transmits with.
func (b *Base) EffectiveWeight(CommonProperties) float64 { return b.Weight }

// Check accepts any target that takes primary input on receptor.
func (b *Base) Check(src, tgt node.Node, receptor int, _ CommonProperties) error {
	if err := CheckPrimaryTarget(tgt); err != nil {
		return err
	}
	return CheckReceptor(tgt, receptor)
}

// Status writes the base fields into d.
func (b *Base) Status(d *dict.Map, _ CommonProperties) {
	d.Set(KeyWeight, b.Weight)
	d.Set(KeyDelay, b.DelayMS)
	d.Set(KeyReceptor, b.Receptor)
	d.Set(KeyLabel, b.Label)
	if b.Target != 0 {
		d.Set(KeyTarget, uint64(b.Target))
	}
}

// SetStatus updates weight, delay and label from d. All values are
// validated before any field changes.
func (b *Base) SetStatus(d *dict.Map, s Scope) error {
	w, delay, label := b.Weight, b.DelayMS, b.Label
	if _, err := d.UpdateFloat(KeyWeight, &w); err != nil {
		return err
	}
	if d.Known(KeyDelay) {
		if !s.HasDelay {
			d.MarkAccessed(KeyDelay)
			return fmt.Errorf("%w: synapse type has no delay", connerr.ErrBadProperty)
		}
		if _, err := d.UpdateFloat(KeyDelay, &delay); err != nil {
			return err
		}
		if s.Delays != nil {
			if err := s.Delays.AssertValid(delay); err != nil {
				return err
			}
		}
	}
	relabeled, err := d.UpdateInt64(KeyLabel, &label)
	if err != nil {
		return err
	}
	if relabeled && label < 0 && label != Unlabeled {
		return fmt.Errorf("%w: synapse_label must not be negative, got %d", connerr.ErrBadProperty, label)
	}
	b.Weight, b.DelayMS, b.Label = w, delay, label
	return nil
}

// Labeled reports whether the record matches label; Unlabeled matches all.
func (b *Base) Labeled(label int64) bool {
	return label == Unlabeled || b.Label == label
}

// CheckReceptor rejects ports the target does not expose.
func CheckReceptor(tgt node.Node, receptor int) error {
	n := max(1, tgt.Receptors)
	if receptor < 0 || receptor >= n {
		return fmt.Errorf("%w: receptor %d not in [0, %d) for %s %d",
			connerr.ErrUnknownReceptorType, receptor, n, tgt.Model, tgt.GID)
	}
	return nil
}

// CheckPrimaryTarget rejects targets that accept no input at all.
func CheckPrimaryTarget(tgt node.Node) error {
	if tgt.Generator {
		return fmt.Errorf("%w: %s %d does not accept incoming connections",
			connerr.ErrIllegalConnection, tgt.Model, tgt.GID)
	}
	return nil
}
