package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

func newPendingRequest(id, patientID string) *model.ServiceRequest {
	return &model.ServiceRequest{
		ID:              id,
		PatientID:       patientID,
		ServiceType:     model.ServiceWoundCareDressing,
		Urgency:         model.UrgencyNormal,
		PatientLocation: model.Location{Lat: 40.75, Lng: -73.98},
		Status:          model.RequestPending,
		Pricing:         model.PricingBreakdown{TotalPriceCents: 6000, NurseEarningsCents: 4800, PlatformFeeCents: 1200},
		RequestedAt:     time.Now().UTC(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()

	if err := s.Create(ctx, newPendingRequest("req_1", "pat_1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "req_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.RequestPending || got.PatientID != "pat_1" {
		t.Errorf("Get = %+v", got)
	}

	if _, err := s.Get(ctx, "req_missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	s.Create(ctx, newPendingRequest("req_1", "pat_1"))

	got, _ := s.Get(ctx, "req_1")
	got.Status = model.RequestCompleted
	got.PatientID = "tampered"

	again, _ := s.Get(ctx, "req_1")
	if again.Status != model.RequestPending || again.PatientID != "pat_1" {
		t.Error("mutating a returned request leaked into the store")
	}
}

func TestMemoryStore_TryAssign(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	s.Create(ctx, newPendingRequest("req_1", "pat_1"))
	at := time.Now().UTC()

	got, err := s.TryAssign(ctx, "req_1", "nurse_a", at)
	if err != nil {
		t.Fatalf("TryAssign: %v", err)
	}
	if got.Status != model.RequestAccepted || got.NurseID == nil || *got.NurseID != "nurse_a" {
		t.Errorf("TryAssign result = %+v", got)
	}
	if got.NurseAcceptedAt == nil {
		t.Error("NurseAcceptedAt not stamped")
	}

	if _, err := s.TryAssign(ctx, "req_1", "nurse_b", at); !errors.Is(err, model.ErrAlreadyAssigned) {
		t.Errorf("second TryAssign err = %v, want ErrAlreadyAssigned", err)
	}
	if _, err := s.TryAssign(ctx, "req_missing", "nurse_b", at); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("TryAssign(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_TryAssignRace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	s.Create(ctx, newPendingRequest("req_1", "pat_1"))

	const nurses = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := make([]string, 0, 1)

	for i := 0; i < nurses; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nurseID := fmt.Sprintf("nurse_%d", i)
			if _, err := s.TryAssign(ctx, "req_1", nurseID, time.Now().UTC()); err == nil {
				mu.Lock()
				winners = append(winners, nurseID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("assignment race produced %d winners, want exactly 1", len(winners))
	}

	got, _ := s.Get(ctx, "req_1")
	if got.NurseID == nil || *got.NurseID != winners[0] {
		t.Errorf("stored nurse %v does not match winner %s", got.NurseID, winners[0])
	}
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	s.Create(ctx, newPendingRequest("req_1", "pat_1"))
	at := time.Now().UTC()

	s.TryAssign(ctx, "req_1", "nurse_a", at)

	// Forward chain: accepted → en_route → arrived → in_progress → completed.
	for _, status := range []model.RequestStatus{
		model.RequestEnRoute, model.RequestArrived, model.RequestInProgress, model.RequestCompleted,
	} {
		if _, err := s.UpdateStatus(ctx, "req_1", status, "", at); err != nil {
			t.Fatalf("UpdateStatus(%s): %v", status, err)
		}
	}

	got, _ := s.Get(ctx, "req_1")
	if got.NurseDepartedAt == nil || got.NurseArrivedAt == nil ||
		got.ServiceStartedAt == nil || got.ServiceCompletedAt == nil {
		t.Error("lifecycle timestamps not all stamped")
	}

	// Terminal state admits nothing further.
	if _, err := s.UpdateStatus(ctx, "req_1", model.RequestCancelled, "too late", at); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("UpdateStatus after completed err = %v, want ErrInvalidTransition", err)
	}
}

func TestMemoryStore_UpdateStatus_IllegalJump(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	s.Create(ctx, newPendingRequest("req_1", "pat_1"))

	if _, err := s.UpdateStatus(ctx, "req_1", model.RequestCompleted, "", time.Now()); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("pending → completed err = %v, want ErrInvalidTransition", err)
	}
}

func TestMemoryStore_CancelKeepsReason(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	s.Create(ctx, newPendingRequest("req_1", "pat_1"))

	got, err := s.UpdateStatus(ctx, "req_1", model.RequestCancelled, "patient changed plans", time.Now())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.CancelReason != "patient changed plans" {
		t.Errorf("CancelReason = %q", got.CancelReason)
	}
}

func TestMemoryStore_AppendSample(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	s.Create(ctx, newPendingRequest("req_1", "pat_1"))

	sample := model.TrackingSample{Timestamp: time.Now().UTC(), DistanceToPatientMiles: 2.5}
	if err := s.AppendSample(ctx, "req_1", sample); !errors.Is(err, model.ErrNoActiveAssignment) {
		t.Errorf("AppendSample without nurse err = %v, want ErrNoActiveAssignment", err)
	}

	s.TryAssign(ctx, "req_1", "nurse_a", time.Now().UTC())
	if err := s.AppendSample(ctx, "req_1", sample); err != nil {
		t.Fatalf("AppendSample: %v", err)
	}

	got, _ := s.Get(ctx, "req_1")
	if len(got.TrackingData) != 1 {
		t.Errorf("TrackingData len = %d, want 1", len(got.TrackingData))
	}
}

func TestMemoryStore_Lists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()

	for i := 0; i < 3; i++ {
		req := newPendingRequest(fmt.Sprintf("req_%d", i), "pat_1")
		req.RequestedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		s.Create(ctx, req)
	}
	s.TryAssign(ctx, "req_0", "nurse_a", time.Now().UTC())

	pending, _ := s.ListPending(ctx)
	if len(pending) != 2 {
		t.Errorf("ListPending len = %d, want 2", len(pending))
	}

	byPatient, _ := s.ListByPatient(ctx, "pat_1", 0)
	if len(byPatient) != 3 {
		t.Fatalf("ListByPatient len = %d, want 3", len(byPatient))
	}
	if byPatient[0].ID != "req_2" {
		t.Errorf("ListByPatient not newest first: %s", byPatient[0].ID)
	}

	if limited, _ := s.ListByPatient(ctx, "pat_1", 2); len(limited) != 2 {
		t.Errorf("ListByPatient(limit=2) len = %d", len(limited))
	}

	byNurse, _ := s.ListByNurse(ctx, "nurse_a", 0)
	if len(byNurse) != 1 || byNurse[0].ID != "req_0" {
		t.Errorf("ListByNurse = %+v", byNurse)
	}
}

func TestMemoryStore_NurseStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRequestStore()
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -3)

	complete := func(id string, doneAt time.Time, earnings int64) {
		req := newPendingRequest(id, "pat_1")
		req.Pricing.NurseEarningsCents = earnings
		s.Create(ctx, req)
		s.TryAssign(ctx, id, "nurse_a", doneAt)
		s.UpdateStatus(ctx, id, model.RequestEnRoute, "", doneAt)
		s.UpdateStatus(ctx, id, model.RequestArrived, "", doneAt)
		s.UpdateStatus(ctx, id, model.RequestInProgress, "", doneAt)
		s.UpdateStatus(ctx, id, model.RequestCompleted, "", doneAt)
	}

	complete("req_today", dayStart.Add(2*time.Hour), 5000)
	complete("req_week", dayStart.Add(-24*time.Hour), 3000)
	complete("req_old", weekStart.Add(-24*time.Hour), 9000)

	stats, err := s.NurseStats(ctx, "nurse_a", dayStart, weekStart)
	if err != nil {
		t.Fatalf("NurseStats: %v", err)
	}
	if stats.TodayPatients != 1 || stats.TodayEarningsCents != 5000 {
		t.Errorf("today = %d visits / %d cents, want 1 / 5000", stats.TodayPatients, stats.TodayEarningsCents)
	}
	if stats.WeekPatients != 2 || stats.WeekEarningsCents != 8000 {
		t.Errorf("week = %d visits / %d cents, want 2 / 8000", stats.WeekPatients, stats.WeekEarningsCents)
	}
}
