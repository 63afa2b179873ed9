// Package health tracks the liveness of configured backend instances. A
// periodic prober maintains a shared health map read by the scheduler; it
// never holds the map lock across a network call.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/model"
	"go.uber.org/zap"
)

// instanceState pairs the externally visible health state with the
// consecutive probe failure count that drives transitions
type instanceState struct {
	health   model.HealthState
	failures int
}

// Monitor owns the mutable health classification for every configured
// backend instance. It is the only writer of health state; the scheduler
// and the status endpoints are readers.
type Monitor struct {
	instances []model.BackendInstance
	probes    map[string]backend.Store

	mu     sync.RWMutex
	states map[string]*instanceState

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewMonitor creates a monitor over the configured instances. probes maps
// instance ID to the store used for liveness checks.
func NewMonitor(
	instances []model.BackendInstance,
	probes map[string]backend.Store,
	interval time.Duration,
	logger *zap.Logger,
) *Monitor {
	states := make(map[string]*instanceState, len(instances))
	for _, inst := range instances {
		states[inst.ID] = &instanceState{health: model.HealthUnknown}
	}

	return &Monitor{
		instances: instances,
		probes:    probes,
		states:    states,
		interval:  interval,
		stopCh:    make(chan struct{}),
		logger:    logger,
	}
}

// Start begins the periodic probe loop
func (m *Monitor) Start() {
	m.logger.Info("Starting health monitor",
		zap.Duration("interval", m.interval),
		zap.Int("instances", len(m.instances)))

	ticker := time.NewTicker(m.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				m.ProbeAll(context.Background())
			case <-m.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the probe loop
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.logger.Info("Health monitor stopped")
}

// ProbeAll probes every configured instance once and applies the results.
// Probes run without holding the state lock; each is bounded by the
// instance's configured timeout.
func (m *Monitor) ProbeAll(ctx context.Context) {
	results := make(map[string]bool, len(m.instances))
	for _, inst := range m.instances {
		store, ok := m.probes[inst.ID]
		if !ok {
			continue
		}

		timeout := inst.Timeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := store.Ping(probeCtx)
		cancel()

		results[inst.ID] = err == nil
		if err != nil {
			m.logger.Debug("Health probe failed",
				zap.String("instance_id", inst.ID),
				zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range m.instances {
		ok, probed := results[inst.ID]
		if !probed {
			continue
		}
		m.applyResultLocked(inst, ok)
	}
}

// ReportFailure records a failed live request against an instance, feeding
// the same consecutive-failure counter as probes. Lets the scheduler's
// direct-attempt outcomes tighten health state between probe ticks.
func (m *Monitor) ReportFailure(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range m.instances {
		if inst.ID == instanceID {
			m.applyResultLocked(inst, false)
			return
		}
	}
}

// ReportSuccess records a successful live request against an instance
func (m *Monitor) ReportSuccess(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, inst := range m.instances {
		if inst.ID == instanceID {
			m.applyResultLocked(inst, true)
			return
		}
	}
}

// applyResultLocked updates one instance's state from a probe outcome.
// A single success flips to Healthy; consecutive failures beyond the
// instance's retry budget flip to Unhealthy.
func (m *Monitor) applyResultLocked(inst model.BackendInstance, ok bool) {
	st := m.states[inst.ID]
	if st == nil {
		return
	}

	prev := st.health
	if ok {
		st.failures = 0
		st.health = model.HealthHealthy
	} else {
		st.failures++
		if st.failures > inst.Retries {
			st.health = model.HealthUnhealthy
		}
	}

	if st.health != prev {
		m.logger.Info("Instance health state changed",
			zap.String("instance_id", inst.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(st.health)))
	}
}

// State returns the current health state of an instance
func (m *Monitor) State(instanceID string) model.HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[instanceID]
	if !ok {
		return model.HealthUnknown
	}
	return st.health
}

// Snapshot returns a copy of the health map
func (m *Monitor) Snapshot() map[string]model.HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]model.HealthState, len(m.states))
	for id, st := range m.states {
		out[id] = st.health
	}
	return out
}

// HealthyCount returns the number of instances currently Healthy
func (m *Monitor) HealthyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, st := range m.states {
		if st.health == model.HealthHealthy {
			n++
		}
	}
	return n
}
