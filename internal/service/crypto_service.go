// Package service implements the crypto operation engine: encrypt, decrypt
// and their batch forms, gated by the process's configured service role and
// routed through the resilience scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devrev/cryptgate/internal/backend"
	"github.com/devrev/cryptgate/internal/crypto"
	"github.com/devrev/cryptgate/internal/metrics"
	"github.com/devrev/cryptgate/internal/model"
	"github.com/devrev/cryptgate/internal/scheduler"
	"github.com/devrev/cryptgate/internal/snapshot"
	"github.com/devrev/cryptgate/internal/util/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CryptoService is the operation engine handed well-formed, authenticated
// requests by the transport layer
type CryptoService struct {
	role      model.ServiceRole
	encryptor *crypto.Encryptor
	sched     *scheduler.Scheduler
	snapshots *snapshot.Cache
	pool      *workerpool.Pool
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewCryptoService creates the operation engine
func NewCryptoService(
	role model.ServiceRole,
	encryptor *crypto.Encryptor,
	sched *scheduler.Scheduler,
	snapshots *snapshot.Cache,
	pool *workerpool.Pool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CryptoService {
	return &CryptoService{
		role:      role,
		encryptor: encryptor,
		sched:     sched,
		snapshots: snapshots,
		pool:      pool,
		metrics:   m,
		logger:    logger,
	}
}

// Encrypt derives a key from the password, seals the payload, and persists
// the resulting record via the scheduler's write target
func (s *CryptoService) Encrypt(ctx context.Context, req *EncryptRequest) (*EncryptResponse, error) {
	defer s.observe("encrypt", time.Now())

	if !s.role.AllowsEncrypt() {
		s.countError("encrypt", ErrRoleNotPermitted)
		return nil, fmt.Errorf("%w: role %q cannot encrypt", ErrRoleNotPermitted, s.role)
	}

	encrypted, err := s.encryptor.Encrypt([]byte(req.Data), req.Password)
	if err != nil {
		s.countError("encrypt", err)
		return nil, err
	}

	record := &model.ResourceRecord{
		ResourceID:    uuid.NewString(),
		ResourceType:  req.ResourceType,
		EncryptedData: encrypted,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.sched.Persist(ctx, record); err != nil {
		s.countError("encrypt", err)
		return nil, err
	}

	s.snapshots.Record(*record)
	s.setSnapshotGauge()

	return &EncryptResponse{
		EncryptedData: encrypted,
		ResourceID:    record.ResourceID,
	}, nil
}

// Decrypt recovers the plaintext of a payload, fetching the ciphertext by
// resource identifier via the scheduler's read target or accepting it inline
func (s *CryptoService) Decrypt(ctx context.Context, req *DecryptRequest) (*DecryptResponse, error) {
	defer s.observe("decrypt", time.Now())

	if !s.role.AllowsDecrypt() {
		s.countError("decrypt", ErrRoleNotPermitted)
		return nil, fmt.Errorf("%w: role %q cannot decrypt", ErrRoleNotPermitted, s.role)
	}
	if (req.ResourceID == "") == (req.EncryptedData == "") {
		s.countError("decrypt", ErrInvalidRequest)
		return nil, fmt.Errorf("%w: exactly one of resource_id and encrypted_data must be supplied", ErrInvalidRequest)
	}

	encrypted := req.EncryptedData
	if req.ResourceID != "" {
		record, err := s.sched.Fetch(ctx, req.ResourceType, req.ResourceID)
		if err != nil {
			s.countError("decrypt", err)
			return nil, err
		}
		encrypted = record.EncryptedData
		s.snapshots.Record(*record)
		s.setSnapshotGauge()
	}

	plaintext, err := s.encryptor.Decrypt(encrypted, req.Password)
	if err != nil {
		s.countError("decrypt", err)
		return nil, err
	}

	return &DecryptResponse{
		Data:       string(plaintext),
		ResourceID: req.ResourceID,
	}, nil
}

// BatchEncrypt processes each item independently on the worker pool. One
// item's failure never aborts its siblings; results are positionally ordered.
func (s *CryptoService) BatchEncrypt(ctx context.Context, reqs []EncryptRequest) ([]BatchEncryptItem, error) {
	if !s.role.AllowsEncrypt() {
		return nil, fmt.Errorf("%w: role %q cannot encrypt", ErrRoleNotPermitted, s.role)
	}

	items := make([]BatchEncryptItem, len(reqs))
	tasks := make([]workerpool.Task, len(reqs))
	for i := range reqs {
		idx := i
		tasks[i] = workerpool.Task{
			ID: fmt.Sprintf("batch-encrypt-%d", idx),
			Fn: func(ctx context.Context) error {
				resp, err := s.Encrypt(ctx, &reqs[idx])
				items[idx] = BatchEncryptItem{Response: resp, Err: err}
				return err
			},
		}
	}
	s.pool.RunAll(ctx, tasks)
	return items, nil
}

// BatchDecrypt processes each item independently on the worker pool
func (s *CryptoService) BatchDecrypt(ctx context.Context, reqs []DecryptRequest) ([]BatchDecryptItem, error) {
	if !s.role.AllowsDecrypt() {
		return nil, fmt.Errorf("%w: role %q cannot decrypt", ErrRoleNotPermitted, s.role)
	}

	items := make([]BatchDecryptItem, len(reqs))
	tasks := make([]workerpool.Task, len(reqs))
	for i := range reqs {
		idx := i
		tasks[i] = workerpool.Task{
			ID: fmt.Sprintf("batch-decrypt-%d", idx),
			Fn: func(ctx context.Context) error {
				resp, err := s.Decrypt(ctx, &reqs[idx])
				items[idx] = BatchDecryptItem{Response: resp, Err: err}
				return err
			},
		}
	}
	s.pool.RunAll(ctx, tasks)
	return items, nil
}

// Status reports the scheduler's aggregate routing state
func (s *CryptoService) Status() scheduler.Status {
	return s.sched.Status()
}

// Role returns the configured service role
func (s *CryptoService) Role() model.ServiceRole {
	return s.role
}

func (s *CryptoService) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationsTotal.WithLabelValues(op).Inc()
	s.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *CryptoService) countError(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationErrors.WithLabelValues(op, errorType(err)).Inc()
}

func (s *CryptoService) setSnapshotGauge() {
	if s.metrics != nil {
		s.metrics.SnapshotRecords.Set(float64(len(s.snapshots.Recent())))
	}
}

// errorType maps an error to its taxonomy label for metrics
func errorType(err error) string {
	switch {
	case errors.Is(err, crypto.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, crypto.ErrAuthenticationFailed):
		return "authentication_failure"
	case errors.Is(err, ErrRoleNotPermitted):
		return "role_not_permitted"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, scheduler.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, backend.ErrResourceNotFound):
		return "resource_not_found"
	default:
		return "other"
	}
}
