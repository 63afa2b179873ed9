package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/devrev/cryptgate/internal/model"
	"go.uber.org/zap"
)

// MemoryStore is an in-process Store keyed by resource type and identifier.
// It backs the emergency instance provisioned when every real backend of a
// needed role is unreachable.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.ResourceRecord
	logger  *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.ResourceRecord),
		logger:  logger,
	}
}

func recordKey(resourceType, resourceID string) string {
	return resourceType + "/" + resourceID
}

// SeedFrom bulk-loads records, typically from the latest snapshot. Existing
// entries with the same key are overwritten.
func (s *MemoryStore) SeedFrom(records []model.ResourceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		rec := records[i]
		s.records[recordKey(rec.ResourceType, rec.ResourceID)] = &rec
	}
	s.logger.Info("Seeded in-memory store", zap.Int("records", len(records)))
}

// Save stores a record in memory
func (s *MemoryStore) Save(ctx context.Context, record *model.ResourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[recordKey(record.ResourceType, record.ResourceID)] = record
	return nil
}

// Fetch retrieves a record by resource type and identifier
func (s *MemoryStore) Fetch(ctx context.Context, resourceType, resourceID string) (*model.ResourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(resourceType, resourceID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrResourceNotFound, resourceType, resourceID)
	}
	return rec, nil
}

// Ping always succeeds; the store is in-process
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of all stored records
func (s *MemoryStore) Records() []model.ResourceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ResourceRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}
