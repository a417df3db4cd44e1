package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/notify"
	"github.com/iamsogoodlo/QuickNurse/pkg/geo"
)

// ArrivingThresholdMiles is the distance at which the patient gets a
// one-time heads-up that the nurse is close.
const ArrivingThresholdMiles = 0.5

// TrackingService runs the en-route phase: it turns precise nurse beacons
// into tracking samples with distance and ETA, and tells the patient when
// the nurse is almost there.
type TrackingService struct {
	registry *NurseRegistry
	ledger   *RequestLedger
	gateway  notify.Gateway

	// arrivingSent dedupes the nurse_arriving notification per request.
	mu           sync.Mutex
	arrivingSent map[string]struct{}

	now func() time.Time
}

// TrackingNurse is the nurse summary shown on the patient's tracking
// screen. Just enough to recognize who is coming.
type TrackingNurse struct {
	NurseID       string  `json:"nurse_id"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	AverageRating float64 `json:"average_rating"`
}

// TrackingReadout is the patient-facing view of an en-route nurse. Latest
// is omitted once the sample falls outside the staleness bound; Stale then
// tells the client the beacon went quiet rather than away.
type TrackingReadout struct {
	RequestID       string                `json:"request_id"`
	Status          model.RequestStatus   `json:"status"`
	Nurse           *TrackingNurse        `json:"nurse,omitempty"`
	IsTracking      bool                  `json:"is_tracking"`
	CurrentPosition *model.Beacon         `json:"current_position,omitempty"`
	Latest          *model.TrackingSample `json:"latest,omitempty"`
	Stale           bool                  `json:"stale"`
}

func NewTrackingService(registry *NurseRegistry, ledger *RequestLedger, gateway notify.Gateway) *TrackingService {
	return &TrackingService{
		registry:     registry,
		ledger:       ledger,
		gateway:      gateway,
		arrivingSent: make(map[string]struct{}),
		now:          time.Now,
	}
}

// StartTracking begins the en-route phase for an assigned request: the
// nurse's precise beacon turns on and an accepted request advances to
// en_route. A request that already departed (en_route, arrived,
// in_progress) just gets the beacon re-enabled, so the nurse app can
// resume after a crash or a manual stop.
func (t *TrackingService) StartTracking(ctx context.Context, requestID, nurseID string) (*model.ServiceRequest, error) {
	req, err := t.ledger.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.NurseID == nil || *req.NurseID != nurseID {
		return nil, model.ErrNoActiveAssignment
	}

	switch req.Status {
	case model.RequestAccepted, model.RequestEnRoute, model.RequestArrived, model.RequestInProgress:
	default:
		return nil, model.ErrInvalidTransition
	}

	if _, err := t.registry.EnablePreciseTracking(ctx, nurseID, requestID, req.PatientLocation); err != nil {
		return nil, err
	}

	if req.Status == model.RequestAccepted {
		req, err = t.ledger.AdvanceStatus(ctx, requestID, model.RequestEnRoute)
		if err != nil {
			// The request changed hands between the read and the advance,
			// likely a concurrent cancel. Roll the beacon back so the
			// nurse is not stuck tracking a dead request.
			if _, derr := t.registry.DisablePreciseTracking(ctx, nurseID); derr != nil {
				log.Printf("[tracking] rollback failed for nurse %s: %v", nurseID, derr)
			}
			return nil, err
		}

		t.gateway.Notify(ctx, notify.Event{
			Type:        notify.EventStatusChanged,
			Role:        notify.RolePatient,
			RecipientID: req.PatientID,
			Payload:     req,
		})
	}

	if req.Status == model.RequestEnRoute {
		if _, serr := t.registry.SetStatus(ctx, nurseID, model.NurseEnRoute); serr != nil {
			log.Printf("[tracking] nurse %s status update failed: %v", nurseID, serr)
		}
	}

	log.Printf("[tracking] request %s tracking on, nurse %s (%s)", requestID, nurseID, req.Status)
	return req, nil
}

// StopTracking turns the precise beacon off. Idempotent; called when the
// nurse arrives or the request terminates.
func (t *TrackingService) StopTracking(ctx context.Context, nurseID string) error {
	if _, err := t.registry.DisablePreciseTracking(ctx, nurseID); err != nil {
		return err
	}
	return nil
}

// PositionInput is one precise beacon reported by an en-route nurse.
type PositionInput struct {
	Location       model.Location
	AccuracyMeters float64
	SpeedMph       float64
}

// IngestPosition records a tracked beacon: computes distance and ETA to
// the patient, appends the sample, refreshes the cache, and pushes a
// location update to the patient. Crossing the arriving threshold sends
// nurse_arriving exactly once per request.
func (t *TrackingService) IngestPosition(ctx context.Context, nurseID string, in PositionInput) (*model.TrackingSample, error) {
	job, err := t.registry.UpdatePreciseLocation(ctx, nurseID, in.Location, in.AccuracyMeters)
	if err != nil {
		return nil, err
	}

	now := t.now().UTC()
	distance := geo.Miles(in.Location, job.PatientLocation)
	eta := geo.ETAMinutes(distance, in.SpeedMph)

	sample := model.TrackingSample{
		Timestamp:              now,
		Location:               in.Location,
		DistanceToPatientMiles: distance,
		ETAMinutes:             eta,
		EstimatedArrival:       now.Add(time.Duration(eta * float64(time.Minute))),
		SpeedMph:               in.SpeedMph,
		AccuracyMeters:         in.AccuracyMeters,
	}
	if err := t.ledger.AppendTrackingSample(ctx, job.RequestID, sample); err != nil {
		return nil, err
	}

	req, err := t.ledger.Get(ctx, job.RequestID)
	if err != nil {
		return nil, err
	}

	t.gateway.Notify(ctx, notify.Event{
		Type:        notify.EventLocationPing,
		Role:        notify.RolePatient,
		RecipientID: req.PatientID,
		Payload:     sample,
	})

	if distance <= ArrivingThresholdMiles && t.markArriving(job.RequestID) {
		t.gateway.Notify(ctx, notify.Event{
			Type:        notify.EventNurseArriving,
			Role:        notify.RolePatient,
			RecipientID: req.PatientID,
			Payload: map[string]any{
				"request_id":  job.RequestID,
				"eta_minutes": eta,
			},
		})
		log.Printf("[tracking] request %s: nurse %s arriving (%.2f mi)", job.RequestID, nurseID, distance)
	}

	return &sample, nil
}

// MarkArrived ends the en-route phase: request goes to arrived, beacon
// turns off, nurse status becomes with_patient.
func (t *TrackingService) MarkArrived(ctx context.Context, requestID, nurseID string) (*model.ServiceRequest, error) {
	req, err := t.ledger.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.NurseID == nil || *req.NurseID != nurseID {
		return nil, model.ErrNoActiveAssignment
	}

	req, err = t.ledger.AdvanceStatus(ctx, requestID, model.RequestArrived)
	if err != nil {
		return nil, err
	}

	if err := t.StopTracking(ctx, nurseID); err != nil {
		log.Printf("[tracking] stop tracking for nurse %s failed: %v", nurseID, err)
	}
	if _, serr := t.registry.SetStatus(ctx, nurseID, model.NurseWithPatient); serr != nil {
		log.Printf("[tracking] nurse %s status update failed: %v", nurseID, serr)
	}
	t.clearArriving(requestID)

	t.gateway.Notify(ctx, notify.Event{
		Type:        notify.EventStatusChanged,
		Role:        notify.RolePatient,
		RecipientID: req.PatientID,
		Payload:     req,
	})
	return req, nil
}

// Readout returns the patient-facing tracking view for a request: who is
// coming, whether their beacon is live, where they last were.
func (t *TrackingService) Readout(ctx context.Context, requestID string) (*TrackingReadout, error) {
	req, err := t.ledger.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	latest, stale, err := t.ledger.LatestSample(ctx, requestID)
	if err != nil {
		return nil, err
	}

	out := &TrackingReadout{
		RequestID: req.ID,
		Status:    req.Status,
		Stale:     stale,
	}
	if !stale {
		out.Latest = latest
	}

	if req.NurseID != nil {
		nurse, err := t.registry.Snapshot(ctx, *req.NurseID)
		if err != nil {
			log.Printf("[tracking] nurse snapshot for request %s failed: %v", requestID, err)
			return out, nil
		}
		out.Nurse = &TrackingNurse{
			NurseID:       nurse.Profile.ID,
			FirstName:     nurse.Profile.FirstName,
			LastName:      nurse.Profile.LastName,
			AverageRating: nurse.Profile.AverageRating,
		}
		if nurse.IsTracking && nurse.ActiveJob != nil && nurse.ActiveJob.RequestID == req.ID {
			out.IsTracking = true
			out.CurrentPosition = nurse.PreciseLocation
		}
	}
	return out, nil
}

func (t *TrackingService) markArriving(requestID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, sent := t.arrivingSent[requestID]; sent {
		return false
	}
	t.arrivingSent[requestID] = struct{}{}
	return true
}

func (t *TrackingService) clearArriving(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.arrivingSent, requestID)
}
