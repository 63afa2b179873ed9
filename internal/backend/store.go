// Package backend provides access to the backend storage tier: an HTTP
// client for configured instances and an in-memory store used as the
// emergency stand-in during total outage.
package backend

import (
	"context"
	"errors"

	"github.com/devrev/cryptgate/internal/model"
)

// ErrResourceNotFound is returned when a resource identifier is unknown to
// the targeted backend
var ErrResourceNotFound = errors.New("resource not found")

// Store is the persistence surface the scheduler routes operations to.
// Both real HTTP-backed instances and the emergency instance implement it.
type Store interface {
	// Save persists an encrypted resource record
	Save(ctx context.Context, record *model.ResourceRecord) error
	// Fetch retrieves a record by resource type and identifier
	Fetch(ctx context.Context, resourceType, resourceID string) (*model.ResourceRecord, error)
	// Ping performs a lightweight liveness check
	Ping(ctx context.Context) error
}
