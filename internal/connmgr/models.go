package connmgr

import (
	"github.com/nvandessel/connectome/internal/builder"
	"github.com/nvandessel/connectome/internal/delay"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/synapse"
)

// checkers fans a delay check out to every thread's checker.
type checkers []*delay.Checker

func (c checkers) AssertValid(ms float64) error {
	for _, ch := range c {
		if err := ch.AssertValid(ms); err != nil {
			return err
		}
	}
	return nil
}

func (c checkers) Freeze() {
	for _, ch := range c {
		ch.Freeze()
	}
}

func (c checkers) Unfreeze() {
	for _, ch := range c {
		ch.Unfreeze()
	}
}

func (m *Manager) checkers() checkers {
	c := make(checkers, len(m.shards))
	for i, sh := range m.shards {
		c[i] = sh.delays
	}
	return c
}

// RegisterRule makes a connectivity rule available to Connect.
func (m *Manager) RegisterRule(name string, f builder.Factory) error {
	return m.rules.Register(name, f)
}

// RegisterSynapseType adds a synapse type under name.
func (m *Manager) RegisterSynapseType(name string, prototype synapse.Model) (synapse.SynID, error) {
	return m.synapses.Register(name, prototype)
}

// CopyModel registers name as a copy of base with params applied to its
// defaults. A default delay in params is checked against the delay window.
func (m *Manager) CopyModel(base, name string, params *dict.Map) (synapse.SynID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return 0, err
	}
	id, err := m.synapses.CopyModel(base, name, params, m.checkers())
	if err != nil {
		return 0, err
	}
	m.logger.Debug("copied synapse type", "base", base, "name", name, "synapse_id", int(id))
	return id, nil
}

// SetDefaults updates the defaults and common properties of a synapse type.
// Connections made afterwards pick up the new defaults.
func (m *Manager) SetDefaults(name string, params *dict.Map) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	return m.synapses.SetDefaults(name, params, m.checkers())
}

// SynapseDefaults returns the defaults of a synapse type together with the
// number of its connections.
func (m *Manager) SynapseDefaults(name string) (*dict.Map, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, err := m.synapses.Lookup(name)
	if err != nil {
		return nil, err
	}
	d := dict.New()
	model.Status(d)
	d.Set(KeySynapseID, int(model.ID()))
	d.Set(synapse.KeyNumConns, m.numConnectionsOfLocked(model.ID()))
	return d, nil
}
