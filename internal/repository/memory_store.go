package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// MemoryRequestStore is an in-memory RequestStore. Mutations on a given
// request are serialized by a per-record mutex; the map itself is guarded
// separately so cross-record operations never take a global lock during a
// record mutation.
type MemoryRequestStore struct {
	mu      sync.RWMutex
	records map[string]*memRecord
}

type memRecord struct {
	mu  sync.Mutex
	req model.ServiceRequest
}

// NewMemoryRequestStore creates an empty in-memory store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{records: make(map[string]*memRecord)}
}

func (s *MemoryRequestStore) record(id string) (*memRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Create persists a new request.
func (s *MemoryRequestStore) Create(ctx context.Context, req *model.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[req.ID] = &memRecord{req: cloneRequest(req)}
	return nil
}

// Get fetches a request copy with its tracking history.
func (s *MemoryRequestStore) Get(ctx context.Context, id string) (*model.ServiceRequest, error) {
	rec, ok := s.record(id)
	if !ok {
		return nil, model.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := cloneRequest(&rec.req)
	return &out, nil
}

// TryAssign is the check-and-set critical section: exactly one caller can
// observe status == pending with no nurse and flip both fields.
func (s *MemoryRequestStore) TryAssign(ctx context.Context, id, nurseID string, at time.Time) (*model.ServiceRequest, error) {
	rec, ok := s.record(id)
	if !ok {
		return nil, model.ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.req.Status != model.RequestPending || rec.req.NurseID != nil {
		return nil, model.ErrAlreadyAssigned
	}

	nid := nurseID
	rec.req.NurseID = &nid
	rec.req.Status = model.RequestAccepted
	rec.req.NurseAcceptedAt = &at

	out := cloneRequest(&rec.req)
	return &out, nil
}

// UpdateStatus validates the transition under the record lock.
func (s *MemoryRequestStore) UpdateStatus(ctx context.Context, id string, status model.RequestStatus, reason string, at time.Time) (*model.ServiceRequest, error) {
	rec, ok := s.record(id)
	if !ok {
		return nil, model.ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !model.CanTransition(rec.req.Status, status) {
		return nil, model.ErrInvalidTransition
	}

	rec.req.Status = status
	stampStatusTime(&rec.req, status, at)
	if status == model.RequestCancelled {
		rec.req.CancelReason = reason
	}

	out := cloneRequest(&rec.req)
	return &out, nil
}

// AppendSample appends one tracking sample.
func (s *MemoryRequestStore) AppendSample(ctx context.Context, id string, sample model.TrackingSample) error {
	rec, ok := s.record(id)
	if !ok {
		return model.ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.req.NurseID == nil {
		return model.ErrNoActiveAssignment
	}
	rec.req.TrackingData = append(rec.req.TrackingData, sample)
	return nil
}

// ListPending returns all requests currently pending.
func (s *MemoryRequestStore) ListPending(ctx context.Context) ([]*model.ServiceRequest, error) {
	return s.list(func(r *model.ServiceRequest) bool {
		return r.Status == model.RequestPending
	}, 0)
}

// ListByPatient returns a patient's requests, newest first.
func (s *MemoryRequestStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]*model.ServiceRequest, error) {
	return s.list(func(r *model.ServiceRequest) bool {
		return r.PatientID == patientID
	}, limit)
}

// ListByNurse returns a nurse's assigned requests, newest first.
func (s *MemoryRequestStore) ListByNurse(ctx context.Context, nurseID string, limit int) ([]*model.ServiceRequest, error) {
	return s.list(func(r *model.ServiceRequest) bool {
		return r.NurseID != nil && *r.NurseID == nurseID
	}, limit)
}

// NurseStats aggregates completed visits for the dashboard.
func (s *MemoryRequestStore) NurseStats(ctx context.Context, nurseID string, dayStart, weekStart time.Time) (*model.NurseStats, error) {
	completed, err := s.list(func(r *model.ServiceRequest) bool {
		return r.NurseID != nil && *r.NurseID == nurseID &&
			r.Status == model.RequestCompleted && r.ServiceCompletedAt != nil
	}, 0)
	if err != nil {
		return nil, err
	}

	stats := &model.NurseStats{}
	for _, r := range completed {
		done := *r.ServiceCompletedAt
		if !done.Before(weekStart) {
			stats.WeekPatients++
			stats.WeekEarningsCents += r.Pricing.NurseEarningsCents
		}
		if !done.Before(dayStart) {
			stats.TodayPatients++
			stats.TodayEarningsCents += r.Pricing.NurseEarningsCents
		}
	}
	return stats, nil
}

func (s *MemoryRequestStore) list(keep func(*model.ServiceRequest) bool, limit int) ([]*model.ServiceRequest, error) {
	s.mu.RLock()
	recs := make([]*memRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]*model.ServiceRequest, 0, 8)
	for _, rec := range recs {
		rec.mu.Lock()
		if keep(&rec.req) {
			c := cloneRequest(&rec.req)
			out = append(out, &c)
		}
		rec.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─── Helpers shared with the Postgres store ─────────────────

// stampStatusTime records the per-status timestamp the lifecycle keeps.
func stampStatusTime(req *model.ServiceRequest, status model.RequestStatus, at time.Time) {
	switch status {
	case model.RequestAccepted:
		req.NurseAcceptedAt = &at
	case model.RequestEnRoute:
		req.NurseDepartedAt = &at
	case model.RequestArrived:
		req.NurseArrivedAt = &at
	case model.RequestInProgress:
		req.ServiceStartedAt = &at
	case model.RequestCompleted:
		req.ServiceCompletedAt = &at
	}
}

func cloneRequest(r *model.ServiceRequest) model.ServiceRequest {
	out := *r
	if r.NurseID != nil {
		nid := *r.NurseID
		out.NurseID = &nid
	}
	out.PreferredSpecialties = append([]string(nil), r.PreferredSpecialties...)
	out.TrackingData = append([]model.TrackingSample(nil), r.TrackingData...)
	cloneTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		c := *t
		return &c
	}
	out.NurseAcceptedAt = cloneTime(r.NurseAcceptedAt)
	out.NurseDepartedAt = cloneTime(r.NurseDepartedAt)
	out.NurseArrivedAt = cloneTime(r.NurseArrivedAt)
	out.ServiceStartedAt = cloneTime(r.ServiceStartedAt)
	out.ServiceCompletedAt = cloneTime(r.ServiceCompletedAt)
	return out
}
