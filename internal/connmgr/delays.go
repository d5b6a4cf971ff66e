package connmgr

import (
	"context"
	"fmt"

	"github.com/nvandessel/connectome/internal/collective"
	"github.com/nvandessel/connectome/internal/connerr"
	"github.com/nvandessel/connectome/internal/delay"
	"github.com/nvandessel/connectome/internal/dict"
	"github.com/nvandessel/connectome/internal/metrics"
	"github.com/nvandessel/connectome/internal/node"
	"github.com/nvandessel/connectome/internal/simtime"
	"github.com/nvandessel/connectome/internal/synapse"
)

// MinDelay returns the global minimum delay from the last reduction.
func (m *Manager) MinDelay() simtime.Steps {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minDelay
}

// MaxDelay returns the global maximum delay from the last reduction.
func (m *Manager) MaxDelay() simtime.Steps {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxDelay
}

// Calibrate moves the delay window onto a new resolution. It fails once
// connections exist, since their delays were rounded on the old grid.
func (m *Manager) Calibrate(conv simtime.Converter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	if n := m.numConnectionsLocked(); n > 0 {
		return fmt.Errorf("%w: cannot change the resolution with %d connections in place", connerr.ErrInvalidState, n)
	}
	for _, sh := range m.shards {
		sh.delays.Calibrate(conv)
	}
	m.res = conv.To
	m.minDelay, m.maxDelay = conv.Steps(m.minDelay), conv.Steps(m.maxDelay)
	m.builderMin, m.builderMax = conv.Steps(m.builderMin), conv.Steps(m.builderMax)
	return nil
}

// UpdateDelayExtrema reduces the delay extrema over all threads and
// processes. Until the user sets the window explicitly, delays given to
// builders widen it too. A failed reduction is returned as is; the cached
// extrema are then unchanged.
func (m *Manager) UpdateDelayExtrema(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	return m.updateDelayExtremaLocked(ctx)
}

func (m *Manager) updateDelayExtremaLocked(ctx context.Context) error {
	lo, hi := simtime.PosInf, simtime.Steps(1)
	userSet := false
	for _, sh := range m.shards {
		lo = min(lo, sh.delays.MinDelay())
		hi = max(hi, sh.delays.MaxDelay())
		userSet = userSet || sh.delays.UserSetExtrema()
	}
	if !userSet {
		lo = min(lo, m.builderMin)
		hi = max(hi, m.builderMax)
	}

	if m.comm.NumProcesses() > 1 {
		timer := metrics.ReductionTimer()
		ext, err := m.comm.AllReduce(ctx, collective.Extrema{Min: int64(lo), Max: int64(hi)})
		timer.ObserveDuration()
		if err != nil {
			return fmt.Errorf("reducing delay extrema on rank %d: %w", m.comm.Rank(), err)
		}
		lo, hi = simtime.Steps(ext.Min), simtime.Steps(ext.Max)
	}
	if lo == simtime.PosInf {
		lo = 1
	}

	m.minDelay, m.maxDelay = lo, hi
	metrics.SetDelayExtrema(m.res.MS(lo), m.res.MS(hi))
	return nil
}

// Status reports the cached delay window, the number of connections and
// whether the source table survives Prepare.
func (m *Manager) Status() *dict.Map {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := dict.New()
	d.Set(delay.KeyMinDelay, m.res.MS(m.minDelay))
	d.Set(delay.KeyMaxDelay, m.res.MS(m.maxDelay))
	d.Set(KeyNumConnections, m.numConnectionsLocked())
	d.Set(KeyKeepSourceTable, m.keepSourceTable)
	return d
}

// SetStatus applies keep_source_table and a user-defined delay window.
// The window can only be set while no connections exist.
func (m *Manager) SetStatus(d *dict.Map) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}

	keep := m.keepSourceTable
	if _, err := d.UpdateBool(KeyKeepSourceTable, &keep); err != nil {
		return err
	}
	if keep && !m.keepSourceTable && m.sources.Cleared() {
		return fmt.Errorf("%w: the source table was already cleared", connerr.ErrInvalidState)
	}

	if d.Known(delay.KeyMinDelay) || d.Known(delay.KeyMaxDelay) {
		if m.numConnectionsLocked() > 0 {
			d.MarkAccessed(delay.KeyMinDelay)
			d.MarkAccessed(delay.KeyMaxDelay)
			return fmt.Errorf("%w: connections already exist; min_delay and max_delay cannot be changed",
				connerr.ErrBadProperty)
		}
		// The first checker validates; the rest cannot disagree.
		for _, sh := range m.shards {
			if err := sh.delays.SetStatus(d); err != nil {
				return err
			}
		}
		m.minDelay = m.shards[0].delays.MinDelay()
		m.maxDelay = m.shards[0].delays.MaxDelay()
	}
	m.keepSourceTable = keep
	return nil
}

// SortConnections orders every thread store by source id.
func (m *Manager) SortConnections(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	return m.sortLocked(ctx)
}

func (m *Manager) sortLocked(ctx context.Context) error {
	// No neuron connection can be added once the sources are gone, so the
	// stores are as sorted as they will ever be.
	if m.sorted || m.sources.Cleared() {
		m.sorted = true
		return nil
	}
	err := m.parallel(ctx, func(ctx context.Context, sh *shard) error {
		sh.store.SortConnections(func(syn synapse.SynID) []node.GID {
			return m.sources.Sources(sh.tid, syn)
		})
		return ctx.Err()
	})
	if err != nil {
		return err
	}
	m.sorted = true
	return nil
}

// Prepare readies the connections for simulation: it reduces the delay
// extrema, sorts the thread stores, pins the delay window and drops the
// source table unless it is to be kept.
func (m *Manager) Prepare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	if err := m.updateDelayExtremaLocked(ctx); err != nil {
		return err
	}
	if err := m.sortLocked(ctx); err != nil {
		return err
	}
	for _, sh := range m.shards {
		sh.delays.LockWindow(m.minDelay, m.maxDelay)
	}
	if !m.keepSourceTable {
		m.sources.Clear()
	}
	m.prepared = true

	n := m.numConnectionsLocked()
	minMS, maxMS := m.res.MS(m.minDelay), m.res.MS(m.maxDelay)
	m.decisions.LogPrepare(minMS, maxMS, n, m.keepSourceTable)
	m.logger.Info("connections prepared",
		"connections", n,
		"min_delay", minMS,
		"max_delay", maxMS,
		"keep_source_table", m.keepSourceTable)
	return nil
}

// Prepared reports whether Prepare ran since the last Initialize.
func (m *Manager) Prepared() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prepared
}

// ClearSourceTable releases the source table. Neuron connections can no
// longer be added or listed afterwards.
func (m *Manager) ClearSourceTable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	if !m.sorted {
		if err := m.sortLocked(context.Background()); err != nil {
			return err
		}
	}
	m.sources.Clear()
	return nil
}

// TriggerUpdateWeight delivers the spikes of volume transmitter vt to every
// dopamine-modulated connection it drives.
func (m *Manager) TriggerUpdateWeight(ctx context.Context, vt node.GID, spikes []synapse.SpikeCounter, tTrig float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInitialized(); err != nil {
		return err
	}
	return m.parallel(ctx, func(ctx context.Context, sh *shard) error {
		sh.store.TriggerUpdateWeight(vt, spikes, tTrig, m.synapses.Get)
		return nil
	})
}
