package model

import "time"

// ResourceRecord is the durable pairing of a resource identifier with an
// encrypted payload. Records are never mutated in place; re-encryption
// produces a new record with a new identifier.
type ResourceRecord struct {
	ResourceID    string    `json:"resource_id"`
	ResourceType  string    `json:"resource_type"`
	EncryptedData string    `json:"encrypted_data"`
	CreatedAt     time.Time `json:"created_at"`
}

// SnapshotRecord is a timestamped copy of the last known-good set of
// resource records, persisted by the snapshot cache. Ciphertext only;
// plaintext and keys are never snapshotted.
type SnapshotRecord struct {
	CapturedAt time.Time        `json:"captured_at"`
	Records    []ResourceRecord `json:"records"`
}
