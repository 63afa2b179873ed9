package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/metrics"
	"github.com/devrev/cryptgate/internal/snapshot"
	"go.uber.org/zap"
)

// ErrNoSnapshot is returned when an emergency instance cannot be provisioned
// because no snapshot state exists to seed it
var ErrNoSnapshot = errors.New("no snapshot available to seed emergency instance")

// EmergencyInstance is the in-process stand-in backend created when every
// configured instance of a needed role is unreachable. At most one exists
// per process.
type EmergencyInstance struct {
	Store     *backend.MemoryStore
	CreatedAt time.Time
	alerted   bool
}

// EmergencyManager owns the at-most-one emergency instance and its staleness
// alerting. Creation is a mutex-guarded claim so concurrent failover
// detections collapse into a single instance; late arrivals observe the one
// already created.
type EmergencyManager struct {
	snapshots *snapshot.Cache
	alerter   *Alerter

	mu      sync.Mutex
	current *EmergencyInstance

	alertThreshold time.Duration
	checkInterval  time.Duration
	now            func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewEmergencyManager creates an emergency manager. alertThreshold is the
// emergency-instance age beyond which a single staleness alert fires.
func NewEmergencyManager(
	snapshots *snapshot.Cache,
	alerter *Alerter,
	alertThreshold time.Duration,
	checkInterval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *EmergencyManager {
	if alertThreshold == 0 {
		alertThreshold = 48 * time.Hour
	}
	if checkInterval == 0 {
		checkInterval = time.Hour
	}
	return &EmergencyManager{
		snapshots:      snapshots,
		alerter:        alerter,
		alertThreshold: alertThreshold,
		checkInterval:  checkInterval,
		now:            time.Now,
		stopCh:         make(chan struct{}),
		metrics:        m,
		logger:         logger,
	}
}

// Activate returns the store of the current emergency instance, creating and
// seeding one from the latest snapshot if none exists. Fails with
// ErrNoSnapshot when there is no state to seed from.
func (e *EmergencyManager) Activate() (backend.Store, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		return e.current.Store, nil
	}

	snap, err := e.snapshots.Latest()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for seeding: %w", err)
	}
	recent := e.snapshots.Recent()
	if snap == nil && len(recent) == 0 {
		return nil, ErrNoSnapshot
	}

	store := backend.NewMemoryStore(e.logger)
	if snap != nil {
		store.SeedFrom(snap.Records)
	}
	// Records observed since the last capture supersede the snapshot
	store.SeedFrom(recent)

	e.current = &EmergencyInstance{
		Store:     store,
		CreatedAt: e.now(),
	}

	if e.metrics != nil {
		e.metrics.EmergencyActive.Set(1)
		e.metrics.EmergencyActivations.Inc()
	}
	e.logger.Warn("Emergency instance provisioned",
		zap.Time("created_at", e.current.CreatedAt),
		zap.Int("seeded_records", store.Len()))
	return store, nil
}

// Current returns the active emergency store, if any
func (e *EmergencyManager) Current() (backend.Store, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return nil, false
	}
	return e.current.Store, true
}

// Deactivate demotes the emergency instance once a real backend recovered.
// Writes absorbed during the outage are not migrated back; that is a
// documented operational gap, and the dropped record count is logged so
// operators can reconcile by hand.
func (e *EmergencyManager) Deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}

	e.logger.Warn("Emergency instance demoted, backend recovered",
		zap.Time("created_at", e.current.CreatedAt),
		zap.Int("unmigrated_records", e.current.Store.Len()))
	e.current = nil

	if e.metrics != nil {
		e.metrics.EmergencyActive.Set(0)
	}
}

// CheckStaleness fires at most one alert per emergency-instance lifetime
// once the instance's age exceeds the threshold. A new instance re-arms the
// alert.
func (e *EmergencyManager) CheckStaleness(ctx context.Context) {
	e.mu.Lock()
	if e.current == nil || e.current.alerted {
		e.mu.Unlock()
		return
	}
	age := e.now().Sub(e.current.CreatedAt)
	if age < e.alertThreshold {
		e.mu.Unlock()
		return
	}
	// Mark before delivery: delivery failure is logged, never retried
	// aggressively
	e.current.alerted = true
	createdAt := e.current.CreatedAt
	e.mu.Unlock()

	msg := fmt.Sprintf(
		"cryptgate emergency instance has been active since %s (over %s); backend recovery needed",
		createdAt.Format(time.RFC3339), e.alertThreshold)
	if err := e.alerter.Send(ctx, msg); err != nil {
		e.logger.Error("Staleness alert delivery failed", zap.Error(err))
		return
	}
	if e.metrics != nil {
		e.metrics.AlertsSent.Inc()
	}
}

// Start begins the periodic staleness check
func (e *EmergencyManager) Start() {
	ticker := time.NewTicker(e.checkInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				e.CheckStaleness(context.Background())
			case <-e.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the staleness check loop
func (e *EmergencyManager) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
