package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/repository"
	"github.com/iamsogoodlo/QuickNurse/pkg/geo"
)

// PendingFeedLimit caps how many open requests a nurse's feed returns.
const PendingFeedLimit = 5

// RequestLedger is the system of record for service requests. It prices a
// request exactly once at creation, owns the request state machine through
// the store, and keeps a geo index of open requests for nurse feeds.
type RequestLedger struct {
	store   repository.RequestStore
	pricing *PricingEngine
	cache   *repository.TrackingCache
	pending *geo.Index

	// now is swappable in tests so time surcharges are deterministic.
	now func() time.Time
}

// CreateRequestInput carries everything a patient submits for a new visit.
type CreateRequestInput struct {
	PatientID            string
	ServiceType          model.ServiceType
	Urgency              model.Urgency
	SpecialInstructions  string
	PreferredSpecialties []string
	PatientLocation      model.Location
	PatientAddress       model.Address
	DistanceMiles        float64
}

func NewRequestLedger(store repository.RequestStore, pricing *PricingEngine, cache *repository.TrackingCache) *RequestLedger {
	return &RequestLedger{
		store:   store,
		pricing: pricing,
		cache:   cache,
		pending: geo.NewIndex(),
		now:     time.Now,
	}
}

// Create validates, prices, and persists a new pending request. The
// pricing snapshot is immutable from this point on.
func (l *RequestLedger) Create(ctx context.Context, in CreateRequestInput) (*model.ServiceRequest, error) {
	if !in.PatientLocation.Valid() {
		return nil, model.ErrMissingLocation
	}
	if in.Urgency == "" {
		in.Urgency = model.UrgencyNormal
	}

	now := l.now().UTC()
	pricing, err := l.pricing.Price(in.ServiceType, in.DistanceMiles, in.Urgency, now)
	if err != nil {
		return nil, err
	}

	req := &model.ServiceRequest{
		ID:                   "req_" + uuid.NewString(),
		PatientID:            in.PatientID,
		ServiceType:          in.ServiceType,
		Urgency:              in.Urgency,
		SpecialInstructions:  in.SpecialInstructions,
		PreferredSpecialties: in.PreferredSpecialties,
		PatientLocation:      in.PatientLocation,
		PatientAddress:       in.PatientAddress,
		Status:               model.RequestPending,
		Pricing:              pricing,
		RequestedAt:          now,
	}

	if err := l.store.Create(ctx, req); err != nil {
		return nil, err
	}
	l.pending.Upsert(req.ID, req.PatientLocation)
	log.Printf("[ledger] request %s created: %s %s, total %d cents",
		req.ID, req.ServiceType, req.Urgency, req.Pricing.TotalPriceCents)
	return req, nil
}

// Get returns one request and its tracking trail.
func (l *RequestLedger) Get(ctx context.Context, id string) (*model.ServiceRequest, error) {
	return l.store.Get(ctx, id)
}

// ListPendingNear returns the open requests closest to a nurse's position,
// nearest first, capped at PendingFeedLimit.
func (l *RequestLedger) ListPendingNear(ctx context.Context, from model.Location, radiusMiles float64) ([]model.PendingRequest, error) {
	matches := l.pending.Query(from, radiusMiles, PendingFeedLimit)

	out := make([]model.PendingRequest, 0, len(matches))
	for _, m := range matches {
		req, err := l.store.Get(ctx, m.ID)
		if err != nil {
			// Index can lag the store; a vanished request just drops out.
			l.pending.Remove(m.ID)
			continue
		}
		if req.Status != model.RequestPending {
			l.pending.Remove(m.ID)
			continue
		}
		out = append(out, model.PendingRequest{Request: req, DistanceMiles: m.DistanceMiles})
	}
	return out, nil
}

// TryAssign atomically claims a pending request for a nurse. Exactly one
// caller wins; the rest get ErrAlreadyAssigned.
func (l *RequestLedger) TryAssign(ctx context.Context, requestID, nurseID string) (*model.ServiceRequest, error) {
	req, err := l.store.TryAssign(ctx, requestID, nurseID, l.now().UTC())
	if err != nil {
		return nil, err
	}
	l.pending.Remove(requestID)
	log.Printf("[ledger] request %s assigned to nurse %s", requestID, nurseID)
	return req, nil
}

// AdvanceStatus moves a request forward through its lifecycle.
func (l *RequestLedger) AdvanceStatus(ctx context.Context, requestID string, status model.RequestStatus) (*model.ServiceRequest, error) {
	req, err := l.store.UpdateStatus(ctx, requestID, status, "", l.now().UTC())
	if err != nil {
		return nil, err
	}
	if model.Terminal(status) {
		l.pending.Remove(requestID)
		_ = l.cache.Invalidate(ctx, requestID)
	}
	return req, nil
}

// Cancel terminates a request with a reason. Legal from any non-terminal
// state on either side of the assignment.
func (l *RequestLedger) Cancel(ctx context.Context, requestID, reason string) (*model.ServiceRequest, error) {
	req, err := l.store.UpdateStatus(ctx, requestID, model.RequestCancelled, reason, l.now().UTC())
	if err != nil {
		return nil, err
	}
	l.pending.Remove(requestID)
	_ = l.cache.Invalidate(ctx, requestID)
	log.Printf("[ledger] request %s cancelled: %s", requestID, reason)
	return req, nil
}

// AppendTrackingSample records a sample in the store and refreshes the
// cached latest position.
func (l *RequestLedger) AppendTrackingSample(ctx context.Context, requestID string, sample model.TrackingSample) error {
	if err := l.store.AppendSample(ctx, requestID, sample); err != nil {
		return err
	}
	if err := l.cache.SetLatest(ctx, requestID, sample); err != nil {
		// Cache trouble must not fail the ingest path.
		log.Printf("[ledger] cache write failed for %s: %v", requestID, err)
	}
	return nil
}

// LatestSample returns the freshest known position for a request, cache
// first, store second. A sample older than LatestSampleTTL reports stale.
func (l *RequestLedger) LatestSample(ctx context.Context, requestID string) (*model.TrackingSample, bool, error) {
	sample, err := l.cache.Latest(ctx, requestID)
	if err != nil {
		log.Printf("[ledger] cache read failed for %s: %v", requestID, err)
	}
	if sample == nil {
		req, err := l.store.Get(ctx, requestID)
		if err != nil {
			return nil, false, err
		}
		sample = req.LatestSample()
	}
	if sample == nil {
		return nil, false, nil
	}
	stale := l.now().UTC().Sub(sample.Timestamp) > repository.LatestSampleTTL
	return sample, stale, nil
}

// NurseStats aggregates completed-visit earnings for today and this week.
// Week starts Monday 00:00 in UTC.
func (l *RequestLedger) NurseStats(ctx context.Context, nurseID string) (*model.NurseStats, error) {
	now := l.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	weekStart := dayStart.AddDate(0, 0, -(weekday - 1))
	return l.store.NurseStats(ctx, nurseID, dayStart, weekStart)
}

// ListByPatient returns a patient's request history, newest first.
func (l *RequestLedger) ListByPatient(ctx context.Context, patientID string, limit int) ([]*model.ServiceRequest, error) {
	return l.store.ListByPatient(ctx, patientID, limit)
}

// ListByNurse returns a nurse's assignment history, newest first.
func (l *RequestLedger) ListByNurse(ctx context.Context, nurseID string, limit int) ([]*model.ServiceRequest, error) {
	return l.store.ListByNurse(ctx, nurseID, limit)
}

// RebuildPendingIndex reloads the open-request index from the store.
// Called once at startup so feeds survive a restart.
func (l *RequestLedger) RebuildPendingIndex(ctx context.Context) error {
	reqs, err := l.store.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		l.pending.Upsert(req.ID, req.PatientLocation)
	}
	log.Printf("[ledger] pending index rebuilt: %d open requests", len(reqs))
	return nil
}
