package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/health"
	"github.com/devrev/cryptgate/internal/model"
	"github.com/devrev/cryptgate/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStore is a controllable backend.Store for routing tests
type stubStore struct {
	mu        sync.Mutex
	failing   bool
	saved     map[string]*model.ResourceRecord
	saveCalls int
}

func newStubStore() *stubStore {
	return &stubStore{saved: make(map[string]*model.ResourceRecord)}
}

func (s *stubStore) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *stubStore) Save(ctx context.Context, record *model.ResourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.failing {
		return fmt.Errorf("connection refused")
	}
	s.saved[record.ResourceID] = record
	return nil
}

func (s *stubStore) Fetch(ctx context.Context, resourceType, resourceID string) (*model.ResourceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, fmt.Errorf("connection refused")
	}
	rec, ok := s.saved[resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", backend.ErrResourceNotFound, resourceType, resourceID)
	}
	return rec, nil
}

func (s *stubStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (s *stubStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type testHarness struct {
	sched     *Scheduler
	monitor   *health.Monitor
	emergency *EmergencyManager
	snapshots *snapshot.Cache
}

func newHarness(t *testing.T, strategy model.Strategy, instances []model.BackendInstance, stores map[string]backend.Store) *testHarness {
	t.Helper()
	logger := zap.NewNop()

	snapshots, err := snapshot.NewCache(t.TempDir(), time.Hour, 24*time.Hour, logger)
	require.NoError(t, err)

	monitor := health.NewMonitor(instances, stores, time.Hour, logger)
	alerter := NewAlerter("", 0, logger)
	emergency := NewEmergencyManager(snapshots, alerter, 48*time.Hour, time.Hour, nil, logger)
	sched := NewScheduler(strategy, instances, stores, monitor, emergency, nil, logger)

	return &testHarness{sched: sched, monitor: monitor, emergency: emergency, snapshots: snapshots}
}

func record(id string) *model.ResourceRecord {
	return &model.ResourceRecord{
		ResourceID:    id,
		ResourceType:  "credentials",
		EncryptedData: "ZW5jcnlwdGVk",
		CreatedAt:     time.Now().UTC(),
	}
}

func TestScheduler_PersistRoutesToInstance(t *testing.T) {
	store := newStubStore()
	backendInst := inst("crud-01", model.RoleMixed)
	h := newHarness(t, model.StrategySingle, []model.BackendInstance{backendInst},
		map[string]backend.Store{"crud-01": store})

	err := h.sched.Persist(context.Background(), record("r1"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.savedCount())
	assert.Equal(t, model.HealthHealthy, h.monitor.State("crud-01"))
}

func TestScheduler_FailoverToEmergencySeededFromSnapshot(t *testing.T) {
	store := newStubStore()
	store.setFailing(true)
	backendInst := inst("crud-01", model.RoleMixed)
	h := newHarness(t, model.StrategySingle, []model.BackendInstance{backendInst},
		map[string]backend.Store{"crud-01": store})

	// A prior known-good record exists in the snapshot cache
	h.snapshots.Record(*record("seeded"))
	require.NoError(t, h.snapshots.Capture())

	err := h.sched.Persist(context.Background(), record("r1"))
	require.NoError(t, err)

	// The live attempt against the real instance happened before escalating
	assert.GreaterOrEqual(t, store.saveCalls, 1)

	emStore, active := h.emergency.Current()
	require.True(t, active)
	mem := emStore.(*backend.MemoryStore)
	assert.Equal(t, 2, mem.Len(), "emergency store holds the seed plus the new write")

	// Reads for the seeded record are served by the emergency instance too
	rec, err := h.sched.Fetch(context.Background(), "credentials", "seeded")
	require.NoError(t, err)
	assert.Equal(t, "seeded", rec.ResourceID)
}

func TestScheduler_FailoverWithoutSnapshotSurfacesUnavailable(t *testing.T) {
	store := newStubStore()
	store.setFailing(true)
	backendInst := inst("crud-01", model.RoleMixed)
	h := newHarness(t, model.StrategySingle, []model.BackendInstance{backendInst},
		map[string]backend.Store{"crud-01": store})

	err := h.sched.Persist(context.Background(), record("r1"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, active := h.emergency.Current()
	assert.False(t, active)
}

func TestScheduler_ConcurrentFailoverCreatesOneEmergencyInstance(t *testing.T) {
	store := newStubStore()
	store.setFailing(true)
	backendInst := inst("crud-01", model.RoleMixed)
	h := newHarness(t, model.StrategySingle, []model.BackendInstance{backendInst},
		map[string]backend.Store{"crud-01": store})

	h.snapshots.Record(*record("seeded"))

	const burst = 100
	var wg sync.WaitGroup
	errs := make([]error, burst)
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = h.sched.Persist(context.Background(), record(fmt.Sprintf("r%d", idx)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "request %d failed", i)
	}

	// All writes landed in a single shared emergency instance
	emStore, active := h.emergency.Current()
	require.True(t, active)
	mem := emStore.(*backend.MemoryStore)
	assert.Equal(t, burst+1, mem.Len())
}

func TestScheduler_EmergencyDemotedOnRecovery(t *testing.T) {
	store := newStubStore()
	store.setFailing(true)
	backendInst := inst("crud-01", model.RoleMixed)
	h := newHarness(t, model.StrategySingle, []model.BackendInstance{backendInst},
		map[string]backend.Store{"crud-01": store})

	h.snapshots.Record(*record("seeded"))
	require.NoError(t, h.sched.Persist(context.Background(), record("during-outage")))
	_, active := h.emergency.Current()
	require.True(t, active)

	// Instance recovers and the monitor observes it
	store.setFailing(false)
	h.monitor.ReportSuccess("crud-01")

	require.NoError(t, h.sched.Persist(context.Background(), record("after-recovery")))

	_, active = h.emergency.Current()
	assert.False(t, active, "emergency instance should be demoted once a real instance is healthy")
	assert.Equal(t, 1, store.savedCount(), "new writes go to the recovered instance")
}

func TestScheduler_FetchNotFoundDoesNotFailover(t *testing.T) {
	store := newStubStore()
	backendInst := inst("crud-01", model.RoleMixed)
	h := newHarness(t, model.StrategySingle, []model.BackendInstance{backendInst},
		map[string]backend.Store{"crud-01": store})

	_, err := h.sched.Fetch(context.Background(), "credentials", "missing")
	assert.ErrorIs(t, err, backend.ErrResourceNotFound)

	_, active := h.emergency.Current()
	assert.False(t, active)
	assert.Equal(t, model.HealthHealthy, h.monitor.State("crud-01"))
}

func TestScheduler_DegradedRoutesToHealthySubset(t *testing.T) {
	bad := newStubStore()
	bad.setFailing(true)
	good := newStubStore()
	a := inst("node-a", model.RoleMixed)
	b := inst("node-b", model.RoleMixed)
	h := newHarness(t, model.StrategyLoadBalance, []model.BackendInstance{a, b},
		map[string]backend.Store{"node-a": bad, "node-b": good})

	for i := 0; i < 4; i++ {
		require.NoError(t, h.sched.Persist(context.Background(), record(fmt.Sprintf("r%d", i))))
	}

	assert.Equal(t, 4, good.savedCount())
	_, active := h.emergency.Current()
	assert.False(t, active)
}

func TestScheduler_Status(t *testing.T) {
	store := newStubStore()
	backendInst := inst("crud-01", model.RoleMixed)
	h := newHarness(t, model.StrategySingle, []model.BackendInstance{backendInst},
		map[string]backend.Store{"crud-01": store})

	st := h.sched.Status()
	assert.Equal(t, StateNormal, st.State)
	require.Len(t, st.Instances, 1)
	assert.Equal(t, model.HealthUnknown, st.Instances[0].Health)

	// Drive the instance unhealthy through the monitor
	store.setFailing(true)
	for i := 0; i <= backendInst.Retries; i++ {
		h.monitor.ReportFailure("crud-01")
	}
	st = h.sched.Status()
	assert.Equal(t, StateEmergency, st.State)

	h.snapshots.Record(*record("seeded"))
	require.NoError(t, h.sched.Persist(context.Background(), record("r1")))
	st = h.sched.Status()
	assert.True(t, st.EmergencyActive)
	require.NotNil(t, st.EmergencyCreatedAt)
}
