package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devrev/cryptgate/internal/scheduler"
	"go.uber.org/zap"
)

// HealthChecker provides liveness and readiness endpoints for the gateway
// process, served separately from the API port
type HealthChecker struct {
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// HealthStatus is the health endpoint response body
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp int64            `json:"timestamp"`
	Scheduler scheduler.Status `json:"scheduler"`
}

// NewHealthChecker creates a health checker over the scheduler's aggregate state
func NewHealthChecker(sched *scheduler.Scheduler, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{sched: sched, logger: logger}
}

// LivenessHandler handles liveness probe requests
func (c *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// ReadinessHandler reports ready while the scheduler can route to at least
// one real backend instance; an Emergency state surfaces as not ready
func (c *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	st := c.sched.Status()

	body := HealthStatus{
		Timestamp: time.Now().Unix(),
		Scheduler: st,
	}

	w.Header().Set("Content-Type", "application/json")
	if st.State == scheduler.StateEmergency {
		body.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		body.Status = "ready"
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(body)
}

// StartHealthServer starts the health check HTTP server
func StartHealthServer(c *HealthChecker, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", c.LivenessHandler)
	mux.HandleFunc("/health/ready", c.ReadinessHandler)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting health check server", zap.String("address", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
