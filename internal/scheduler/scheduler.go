// Package scheduler routes crypto operations to backend instances under the
// configured topology, consumes health monitor state, and provisions an
// emergency stand-in instance when the whole backend tier of a needed role
// is unreachable.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/health"
	"github.com/devrev/cryptgate/internal/metrics"
	"github.com/devrev/cryptgate/internal/model"
	"go.uber.org/zap"
)

// ErrBackendUnavailable is returned when no configured instance can serve an
// operation and no emergency instance could be provisioned
var ErrBackendUnavailable = errors.New("backend unavailable")

// RoutingState classifies the scheduler's view of one operation role
type RoutingState string

const (
	StateNormal    RoutingState = "normal"
	StateDegraded  RoutingState = "degraded"
	StateEmergency RoutingState = "emergency"
)

// Scheduler selects backend targets per operation, confirms outages with a
// live attempt before escalating, and routes to the emergency instance while
// one is active.
type Scheduler struct {
	strategy  model.Strategy
	instances []model.BackendInstance
	stores    map[string]backend.Store

	monitor   *health.Monitor
	emergency *EmergencyManager
	cursor    atomic.Uint64

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewScheduler creates a scheduler over the statically configured instances.
// stores maps instance ID to its backend store.
func NewScheduler(
	strategy model.Strategy,
	instances []model.BackendInstance,
	stores map[string]backend.Store,
	monitor *health.Monitor,
	emergency *EmergencyManager,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		strategy:  strategy,
		instances: instances,
		stores:    stores,
		monitor:   monitor,
		emergency: emergency,
		metrics:   m,
		logger:    logger,
	}
}

// Persist routes a write to the selected backend instance, falling over to
// the emergency instance when every write-capable instance is down
func (s *Scheduler) Persist(ctx context.Context, record *model.ResourceRecord) error {
	return s.execute(ctx, model.RoleWrite, func(ctx context.Context, store backend.Store) error {
		return store.Save(ctx, record)
	})
}

// Fetch routes a read to the selected backend instance. A missing resource
// on a reachable instance surfaces as backend.ErrResourceNotFound without
// triggering failover.
func (s *Scheduler) Fetch(ctx context.Context, resourceType, resourceID string) (*model.ResourceRecord, error) {
	var record *model.ResourceRecord
	err := s.execute(ctx, model.RoleRead, func(ctx context.Context, store backend.Store) error {
		rec, err := store.Fetch(ctx, resourceType, resourceID)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// execute runs op against the instance selected for the role. Failed
// attempts feed the health monitor and widen the search to the remaining
// eligible instances; once every candidate has failed a live attempt, the
// scheduler escalates to the emergency instance.
func (s *Scheduler) execute(
	ctx context.Context,
	role model.InstanceRole,
	op func(context.Context, backend.Store) error,
) error {
	// While an emergency instance is active, route to it until the monitor
	// reports a real eligible instance healthy again
	if store, active := s.emergencyRoute(role); active {
		return op(ctx, store)
	}

	tried := make(map[string]bool)
	var lastErr error

	for {
		inst, ok := Select(s.strategy, s.instances, s.monitor.Snapshot(), s.nextCursor(), role, tried)
		if !ok {
			break
		}
		tried[inst.ID] = true

		err := op(ctx, s.stores[inst.ID])
		if err == nil {
			s.monitor.ReportSuccess(inst.ID)
			s.countBackend(inst.ID, "success")
			return nil
		}
		if errors.Is(err, backend.ErrResourceNotFound) {
			// The instance answered; the resource just is not there
			s.monitor.ReportSuccess(inst.ID)
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		s.monitor.ReportFailure(inst.ID)
		s.countBackend(inst.ID, "failure")
		lastErr = err
	}

	// Health state alone is advisory: before escalating, confirm the outage
	// with one live attempt against an instance the health map wrote off
	if inst, ok := s.anyCapable(role, tried); ok {
		err := op(ctx, s.stores[inst.ID])
		if err == nil {
			s.monitor.ReportSuccess(inst.ID)
			s.countBackend(inst.ID, "success")
			return nil
		}
		if errors.Is(err, backend.ErrResourceNotFound) {
			s.monitor.ReportSuccess(inst.ID)
			return err
		}
		s.monitor.ReportFailure(inst.ID)
		s.countBackend(inst.ID, "failure")
		lastErr = err
	}

	store, err := s.emergency.Activate()
	if err != nil {
		s.logger.Error("Failover has no viable target",
			zap.String("role", string(role)),
			zap.NamedError("activate_error", err),
			zap.NamedError("last_attempt_error", lastErr))
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return op(ctx, store)
}

// emergencyRoute returns the emergency store while one is active for the
// role. Recovery of any real eligible instance demotes the emergency
// instance immediately and resumes normal routing.
func (s *Scheduler) emergencyRoute(role model.InstanceRole) (backend.Store, bool) {
	store, active := s.emergency.Current()
	if !active {
		return nil, false
	}

	healthMap := s.monitor.Snapshot()
	for _, inst := range s.instances {
		if !s.servesUnder(inst, role) {
			continue
		}
		if healthMap[inst.ID] == model.HealthHealthy {
			s.emergency.Deactivate()
			return nil, false
		}
	}
	return store, true
}

// anyCapable picks an untried instance capable of the role, ignoring health
// state, for the final confirmation attempt
func (s *Scheduler) anyCapable(role model.InstanceRole, tried map[string]bool) (model.BackendInstance, bool) {
	for _, inst := range s.instances {
		if tried[inst.ID] {
			continue
		}
		if s.servesUnder(inst, role) {
			return inst, true
		}
	}
	return model.BackendInstance{}, false
}

// servesUnder applies the strategy's eligibility rules for one instance
func (s *Scheduler) servesUnder(inst model.BackendInstance, role model.InstanceRole) bool {
	if s.strategy == model.StrategySingle {
		return true
	}
	if inst.Role.Serves(role) {
		return true
	}
	// Split reads fall back to the write side when no read instance exists
	if s.strategy == model.StrategyReadWriteSplit && role == model.RoleRead {
		return inst.Role.Serves(model.RoleWrite)
	}
	return false
}

// nextCursor advances the round-robin cursor exactly once per selection
func (s *Scheduler) nextCursor() uint64 {
	return s.cursor.Add(1) - 1
}

// InstanceStatus is one instance's entry in the aggregate status report
type InstanceStatus struct {
	ID     string            `json:"id"`
	URL    string            `json:"url"`
	Role   model.InstanceRole `json:"role"`
	Health model.HealthState `json:"health"`
}

// Status is the aggregate scheduler state surfaced to the health endpoint
type Status struct {
	Strategy           model.Strategy   `json:"strategy"`
	State              RoutingState     `json:"state"`
	Instances          []InstanceStatus `json:"instances"`
	EmergencyActive    bool             `json:"emergency_active"`
	EmergencyCreatedAt *time.Time       `json:"emergency_created_at,omitempty"`
}

// Status reports the current routing state across all instances
func (s *Scheduler) Status() Status {
	healthMap := s.monitor.Snapshot()

	st := Status{Strategy: s.strategy}
	healthy, unhealthy := 0, 0
	for _, inst := range s.instances {
		h := healthMap[inst.ID]
		switch h {
		case model.HealthHealthy:
			healthy++
		case model.HealthUnhealthy:
			unhealthy++
		}
		st.Instances = append(st.Instances, InstanceStatus{
			ID:     inst.ID,
			URL:    inst.URL,
			Role:   inst.Role,
			Health: h,
		})
	}

	if createdAt, active := s.emergencyInfo(); active {
		st.EmergencyActive = true
		st.EmergencyCreatedAt = &createdAt
		st.State = StateEmergency
	} else if unhealthy == 0 {
		st.State = StateNormal
	} else if healthy > 0 {
		st.State = StateDegraded
	} else {
		st.State = StateEmergency
	}

	if s.metrics != nil {
		s.metrics.HealthyInstances.Set(float64(healthy))
	}
	return st
}

func (s *Scheduler) emergencyInfo() (time.Time, bool) {
	s.emergency.mu.Lock()
	defer s.emergency.mu.Unlock()
	if s.emergency.current == nil {
		return time.Time{}, false
	}
	return s.emergency.current.CreatedAt, true
}

func (s *Scheduler) countBackend(instanceID, result string) {
	if s.metrics != nil {
		s.metrics.BackendRequests.WithLabelValues(instanceID, result).Inc()
	}
}
