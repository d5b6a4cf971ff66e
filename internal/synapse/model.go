package synapse

import (
	"fmt"
	"math"

	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/dict"
)

// Traits are the capability flags of a synapse type.
type Traits struct {
	// HasDelay is false for types whose records carry no transmission delay.
	HasDelay bool
	// Primary types deliver point-to-point events; the rest are secondary.
	Primary bool
}

// Model is a registered synapse type: defaults, shared parameters and the
// factory for its records and connectors.
//
// Models are created with NewPrototype; the unexported methods keep the set
// of implementations closed.
type Model interface {
	Name() string
	ID() SynID
	Traits() Traits
	// Receptor is the default receptor port for new records.
	Receptor() int
	// Generation increments every time the defaults change.
	Generation() uint64
	Common() CommonProperties
	DefaultDelayMS() float64

	// NewRecord returns a fresh copy of the default record.
	NewRecord() Connection
	NewConnector() Connector

	Status(d *dict.Map)
	SetStatus(d *dict.Map, g DelayGuard) error

	bind(name string, id SynID) Model
}

// Prototype is the generic Model implementation for record type T.
type Prototype[T any, P interface {
	*T
	Connection
}] struct {
	name       string
	id         SynID
	traits     Traits
	receptor   int
	defaults   T
	common     CommonProperties
	generation uint64
}

// NewPrototype returns an unregistered synapse type named name. Register
// it with a Registry to assign its id.
func NewPrototype[T any, P interface {
	*T
	Connection
}](name string, traits Traits, defaults T, common CommonProperties) *Prototype[T, P] {
	if common == nil {
		common = NoCommon{}
	}
	return &Prototype[T, P]{
		name:     name,
		id:       -1,
		traits:   traits,
		defaults: defaults,
		common:   common,
	}
}

func (m *Prototype[T, P]) Name() string             { return m.name }
func (m *Prototype[T, P]) ID() SynID                { return m.id }
func (m *Prototype[T, P]) Traits() Traits           { return m.traits }
func (m *Prototype[T, P]) Receptor() int            { return m.receptor }
func (m *Prototype[T, P]) Generation() uint64       { return m.generation }
func (m *Prototype[T, P]) Common() CommonProperties { return m.common }

func (m *Prototype[T, P]) DefaultDelayMS() float64 {
	if !m.traits.HasDelay {
		return math.NaN()
	}
	return P(&m.defaults).Core().DelayMS
}

func (m *Prototype[T, P]) NewRecord() Connection {
	rec := m.defaults
	return P(&rec)
}

func (m *Prototype[T, P]) NewConnector() Connector {
	return &Homogeneous[T, P]{id: m.id}
}

// RecordScope returns the scope for updating stored records of m.
func RecordScope(m Model, dv DelayValidator) Scope {
	return Scope{Common: m.Common(), Delays: dv, HasDelay: m.Traits().HasDelay}
}

// Status reports common properties, defaults and identity.
func (m *Prototype[T, P]) Status(d *dict.Map) {
	m.common.Status(d)
	P(&m.defaults).Status(d, m.common)
	d.Delete(KeyTarget)
	d.Set(KeyReceptorType, m.receptor)
	d.Set(KeySynapseModel, m.name)
	d.Set(KeyHasDelay, m.traits.HasDelay)
	d.Set(KeyPrimary, m.traits.Primary)
}

// SetStatus updates the default receptor, common properties and default
// record. g is frozen for the duration so that a new default delay does not
// move the observed extrema before a connection uses it. Nothing changes if
// any value is rejected.
func (m *Prototype[T, P]) SetStatus(d *dict.Map, g DelayGuard) error {
	receptor := m.receptor
	if _, err := d.UpdateInt(KeyReceptorType, &receptor); err != nil {
		return err
	}
	if receptor < 0 {
		return fmt.Errorf("%w: receptor_type must be non-negative", connerr.ErrBadProperty)
	}

	if g != nil {
		g.Freeze()
		defer g.Unfreeze()
	}

	common := m.common.Clone()
	if err := common.SetStatus(d); err != nil {
		return err
	}
	defaults := m.defaults
	s := Scope{Common: common, HasDelay: m.traits.HasDelay, Defaults: true}
	if g != nil {
		s.Delays = g
	}
	if err := P(&defaults).SetStatus(d, s); err != nil {
		return err
	}

	m.receptor = receptor
	m.common = common
	m.defaults = defaults
	m.generation++
	return nil
}

func (m *Prototype[T, P]) bind(name string, id SynID) Model {
	cp := *m
	cp.name = name
	cp.id = id
	cp.common = m.common.Clone()
	return &cp
}
