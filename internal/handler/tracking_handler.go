package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/service"
)

// TrackingHandler handles the en-route phase: starting and stopping the
// precise beacon, ingesting positions, and the patient's tracking view.
type TrackingHandler struct {
	tracker *service.TrackingService
}

// NewTrackingHandler creates a new handler wired to the tracking service.
func NewTrackingHandler(tracker *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{tracker: tracker}
}

// Start handles POST /api/v1/requests/{request_id}/tracking/start
//
// Body: {"nurse_id": "..."}. Turns on the precise beacon; an accepted
// request advances to en_route, a request already underway keeps its
// status so the nurse app can resume tracking after a crash or a stop.
//
// Response codes:
//   200  — Tracking started (or resumed)
//   404  — Request not found
//   409  — Nurse not assigned to this request, already tracking another
//          visit, or the request already ended
func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	var body struct {
		NurseID string `json:"nurse_id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.NurseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	req, err := h.tracker.StartTracking(r.Context(), requestID, body.NurseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Position handles POST /api/v1/nurses/{nurse_id}/tracking/position
//
// Body: {"location": {...}, "accuracy_meters": .., "speed_mph": ..}
// Records one precise beacon and returns the computed sample.
func (h *TrackingHandler) Position(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]

	var body struct {
		Location       model.Location `json:"location"`
		AccuracyMeters float64        `json:"accuracy_meters"`
		SpeedMph       float64        `json:"speed_mph"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	sample, err := h.tracker.IngestPosition(r.Context(), nurseID, service.PositionInput{
		Location:       body.Location,
		AccuracyMeters: body.AccuracyMeters,
		SpeedMph:       body.SpeedMph,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// Stop handles POST /api/v1/nurses/{nurse_id}/tracking/stop
//
// Turns the precise beacon off without touching the request. Idempotent;
// used when a tracked job ends abnormally (cancellation, app crash).
func (h *TrackingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]
	if err := h.tracker.StopTracking(r.Context(), nurseID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "tracking_stopped"})
}

// Arrived handles POST /api/v1/requests/{request_id}/tracking/arrived
//
// Body: {"nurse_id": "..."}. Ends the en-route phase.
func (h *TrackingHandler) Arrived(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	var body struct {
		NurseID string `json:"nurse_id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.NurseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	req, err := h.tracker.MarkArrived(r.Context(), requestID, body.NurseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Readout handles GET /api/v1/requests/{request_id}/tracking
//
// The patient's live view: nurse summary, whether the beacon is live, the
// current position while tracking, and the latest sample unless it has
// gone stale.
func (h *TrackingHandler) Readout(w http.ResponseWriter, r *http.Request) {
	readout, err := h.tracker.Readout(r.Context(), mux.Vars(r)["request_id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readout)
}
