package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devrev/cryptgate/internal/model"
	"go.uber.org/zap"
)

// retryBackoff is the pause between retry attempts against the same instance
const retryBackoff = 100 * time.Millisecond

// envelope is the generic response wrapper spoken by the backend CRUD API
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPStore is a Store backed by one configured backend instance, speaking
// the backend's JSON CRUD protocol. Every call is bounded by the instance's
// configured timeout and retried up to its retry budget.
type HTTPStore struct {
	instance model.BackendInstance
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPStore creates a store for a configured backend instance
func NewHTTPStore(instance model.BackendInstance, logger *zap.Logger) *HTTPStore {
	timeout := instance.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStore{
		instance: instance,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Instance returns the configured instance this store targets
func (s *HTTPStore) Instance() model.BackendInstance {
	return s.instance
}

// Save persists a record via POST {url}/{resource_type}
func (s *HTTPStore) Save(ctx context.Context, record *model.ResourceRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	url := fmt.Sprintf("%s/%s", s.instance.URL, record.ResourceType)
	return s.withRetries(ctx, "save", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("backend returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// Fetch retrieves a record via GET {url}/{resource_type}/{resource_id}
func (s *HTTPStore) Fetch(ctx context.Context, resourceType, resourceID string) (*model.ResourceRecord, error) {
	url := fmt.Sprintf("%s/%s/%s", s.instance.URL, resourceType, resourceID)

	var record *model.ResourceRecord
	err := s.withRetries(ctx, "fetch", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// Known-missing is terminal, not a transient failure
			record = nil
			return nil
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("backend returned status %d", resp.StatusCode)
		}

		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return fmt.Errorf("failed to decode backend response: %w", err)
		}
		if len(env.Data) == 0 {
			record = nil
			return nil
		}

		var rec model.ResourceRecord
		if err := json.Unmarshal(env.Data, &rec); err != nil {
			return fmt.Errorf("failed to decode resource record: %w", err)
		}
		record = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s/%s on instance %s", ErrResourceNotFound, resourceType, resourceID, s.instance.ID)
	}
	return record, nil
}

// Ping probes GET {url}/health and expects {"status":"ok"}
func (s *HTTPStore) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", s.instance.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("instance reported status %q", health.Status)
	}
	return nil
}

// withRetries runs fn up to the instance's retry budget plus the initial
// attempt, pausing briefly between attempts. Context cancellation stops the
// loop immediately.
func (s *HTTPStore) withRetries(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := s.instance.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			s.logger.Debug("Backend call failed",
				zap.String("instance_id", s.instance.ID),
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("instance %s %s failed after %d attempts: %w", s.instance.ID, op, attempts, lastErr)
}
