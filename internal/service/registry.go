package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/repository"
	"github.com/iamsogoodlo/QuickNurse/pkg/geo"
)

// NurseRegistry owns the live presence state of every nurse: online flag,
// status, coarse general location, and the precise beacon while tracking.
// General locations feed the discovery index; precise locations never do.
type NurseRegistry struct {
	accounts repository.AccountStore
	index    *geo.Index

	mu     sync.RWMutex
	nurses map[string]*nurseRecord
}

// nurseRecord serializes updates for one nurse. The registry map lock is
// only held long enough to find the record.
type nurseRecord struct {
	mu    sync.Mutex
	nurse model.Nurse
}

func NewNurseRegistry(accounts repository.AccountStore) *NurseRegistry {
	return &NurseRegistry{
		accounts: accounts,
		index:    geo.NewIndex(),
		nurses:   make(map[string]*nurseRecord),
	}
}

// DiscoveryIndex exposes the general-location index for matching queries.
func (r *NurseRegistry) DiscoveryIndex() *geo.Index {
	return r.index
}

// SetOnline flips a nurse's presence. Coming online loads the profile from
// the account store and resets status to available; going offline clears
// all location state and leaves the discovery index.
func (r *NurseRegistry) SetOnline(ctx context.Context, nurseID string, online bool, loc model.Location, accuracyMeters float64) (*model.Nurse, error) {
	rec, err := r.record(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !online {
		rec.nurse.IsOnline = false
		rec.nurse.Status = model.NurseOffline
		rec.nurse.GeneralLocation = nil
		rec.nurse.PreciseLocation = nil
		rec.nurse.IsTracking = false
		rec.nurse.ActiveJob = nil
		r.index.Remove(nurseID)
		log.Printf("[registry] nurse %s offline", nurseID)
		n := rec.nurse
		return &n, nil
	}

	rec.nurse.IsOnline = true
	rec.nurse.Status = model.NurseAvailable
	if loc.Valid() {
		rec.nurse.GeneralLocation = &model.Beacon{
			Location:       loc,
			AccuracyMeters: accuracyMeters,
			UpdatedAt:      time.Now().UTC(),
		}
		if !rec.nurse.IsTracking {
			r.index.Upsert(nurseID, loc)
		}
	}
	log.Printf("[registry] nurse %s online at (%.4f, %.4f)", nurseID, loc.Lat, loc.Lng)
	n := rec.nurse
	return &n, nil
}

// SetStatus changes a nurse's working status. Any status change while
// offline is rejected; presence only changes through SetOnline, which also
// routes the offline status so the index and beacons are cleaned up in one
// place.
func (r *NurseRegistry) SetStatus(ctx context.Context, nurseID string, status model.NurseStatus) (*model.Nurse, error) {
	if !model.ValidNurseStatus(status) {
		return nil, model.ErrInvalidTransition
	}
	if status == model.NurseOffline {
		return r.SetOnline(ctx, nurseID, false, model.Location{}, 0)
	}

	rec, err := r.record(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.nurse.IsOnline {
		return nil, model.ErrInvalidTransition
	}
	rec.nurse.Status = status
	n := rec.nurse
	return &n, nil
}

// UpdateGeneralLocation refreshes the coarse beacon used for discovery.
func (r *NurseRegistry) UpdateGeneralLocation(ctx context.Context, nurseID string, loc model.Location, accuracyMeters float64) (*model.Nurse, error) {
	if !loc.Valid() {
		return nil, model.ErrMissingLocation
	}
	rec, err := r.record(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.nurse.GeneralLocation = &model.Beacon{
		Location:       loc,
		AccuracyMeters: accuracyMeters,
		UpdatedAt:      time.Now().UTC(),
	}
	if rec.nurse.IsOnline && !rec.nurse.IsTracking {
		r.index.Upsert(nurseID, loc)
	}
	n := rec.nurse
	return &n, nil
}

// EnablePreciseTracking pins the nurse to one request. While tracking, the
// nurse disappears from discovery so a second patient cannot select them.
func (r *NurseRegistry) EnablePreciseTracking(ctx context.Context, nurseID, requestID string, patientLoc model.Location) (*model.Nurse, error) {
	rec, err := r.record(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.nurse.IsTracking {
		return nil, model.ErrAlreadyTracking
	}
	rec.nurse.IsTracking = true
	rec.nurse.ActiveJob = &model.ActiveJob{
		RequestID:         requestID,
		PatientLocation:   patientLoc,
		StartedTrackingAt: time.Now().UTC(),
	}
	r.index.Remove(nurseID)
	log.Printf("[registry] nurse %s tracking request %s", nurseID, requestID)
	n := rec.nurse
	return &n, nil
}

// UpdatePreciseLocation records a tracked beacon and returns the active job
// so the caller can compute distance and ETA against the patient.
func (r *NurseRegistry) UpdatePreciseLocation(ctx context.Context, nurseID string, loc model.Location, accuracyMeters float64) (*model.ActiveJob, error) {
	if !loc.Valid() {
		return nil, model.ErrMissingLocation
	}
	rec, err := r.record(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.nurse.IsTracking || rec.nurse.ActiveJob == nil {
		return nil, model.ErrTrackingNotEnabled
	}
	rec.nurse.PreciseLocation = &model.Beacon{
		Location:       loc,
		AccuracyMeters: accuracyMeters,
		UpdatedAt:      time.Now().UTC(),
	}
	job := *rec.nurse.ActiveJob
	return &job, nil
}

// DisablePreciseTracking ends the tracked job and returns the nurse to the
// discovery index if a general location is known. Idempotent.
func (r *NurseRegistry) DisablePreciseTracking(ctx context.Context, nurseID string) (*model.Nurse, error) {
	rec, err := r.record(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.nurse.IsTracking = false
	rec.nurse.ActiveJob = nil
	rec.nurse.PreciseLocation = nil
	if rec.nurse.IsOnline && rec.nurse.GeneralLocation != nil {
		r.index.Upsert(nurseID, rec.nurse.GeneralLocation.Location)
	}
	n := rec.nurse
	return &n, nil
}

// Snapshot returns a copy of the live state for one nurse.
func (r *NurseRegistry) Snapshot(ctx context.Context, nurseID string) (*model.Nurse, error) {
	rec, err := r.record(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := rec.nurse
	return &n, nil
}

// record finds or lazily creates the live record for a nurse, loading the
// profile from the account store on first touch.
func (r *NurseRegistry) record(ctx context.Context, nurseID string) (*nurseRecord, error) {
	r.mu.RLock()
	rec, ok := r.nurses[nurseID]
	r.mu.RUnlock()
	if ok {
		return rec, nil
	}

	profile, err := r.accounts.GetNurse(ctx, nurseID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.nurses[nurseID]; ok {
		return rec, nil
	}
	rec = &nurseRecord{nurse: model.Nurse{
		Profile: *profile,
		Status:  model.NurseOffline,
	}}
	r.nurses[nurseID] = rec
	return rec, nil
}
