// Package repository provides persistence for the nurse dispatch core.
//
// The request ledger's storage sits behind the RequestStore interface so the
// core is storage-agnostic: production wiring uses PostgreSQL with row-level
// locking, tests and ephemeral deployments use the in-memory store. Both
// implementations must make TryAssign a single conditional update.
package repository

import (
	"context"
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// DefaultStoreTimeout bounds any single store operation, including lock wait
// time. Tracking-sample ingestion must never block a nurse client longer.
const DefaultStoreTimeout = 5 * time.Second

// RequestStore persists service requests and their tracking history.
type RequestStore interface {
	// Create persists a new request. The caller has already validated the
	// location and computed the pricing snapshot.
	Create(ctx context.Context, req *model.ServiceRequest) error

	// Get fetches a request with its tracking history.
	// Returns model.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*model.ServiceRequest, error)

	// TryAssign atomically assigns a nurse: succeeds only if the request is
	// exactly 'pending' with no nurse set; on success sets the nurse,
	// advances status to 'accepted', and stamps nurse_accepted_at.
	// Returns model.ErrAlreadyAssigned when the race was lost and
	// model.ErrNotFound for unknown ids. Two concurrent callers can never
	// both succeed.
	TryAssign(ctx context.Context, id, nurseID string, at time.Time) (*model.ServiceRequest, error)

	// UpdateStatus advances the request along the forward state machine,
	// stamping the matching timestamp. Returns model.ErrInvalidTransition
	// for illegal changes. reason is recorded for cancellations.
	UpdateStatus(ctx context.Context, id string, status model.RequestStatus, reason string, at time.Time) (*model.ServiceRequest, error)

	// AppendSample appends one tracking sample. Returns
	// model.ErrNoActiveAssignment when no nurse is assigned.
	AppendSample(ctx context.Context, id string, sample model.TrackingSample) error

	// ListPending returns all requests currently in 'pending' status
	// (used to rebuild the pending geo index at startup).
	ListPending(ctx context.Context) ([]*model.ServiceRequest, error)

	// ListByPatient returns a patient's requests, newest first.
	ListByPatient(ctx context.Context, patientID string, limit int) ([]*model.ServiceRequest, error)

	// ListByNurse returns a nurse's assigned requests, newest first.
	ListByNurse(ctx context.Context, nurseID string, limit int) ([]*model.ServiceRequest, error)

	// NurseStats aggregates completed visits and earnings since dayStart
	// (today) and weekStart (current week).
	NurseStats(ctx context.Context, nurseID string, dayStart, weekStart time.Time) (*model.NurseStats, error)
}
