package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/service"
)

// NurseHandler handles nurse-side HTTP requests: presence, status,
// location beacons, feeds, and earnings.
type NurseHandler struct {
	registry *service.NurseRegistry
	matcher  *service.MatchingService
	ledger   *service.RequestLedger
}

// NewNurseHandler creates a new handler wired to the nurse-facing services.
func NewNurseHandler(registry *service.NurseRegistry, matcher *service.MatchingService, ledger *service.RequestLedger) *NurseHandler {
	return &NurseHandler{registry: registry, matcher: matcher, ledger: ledger}
}

// SetOnline handles POST /api/v1/nurses/{nurse_id}/online
//
// Body: {"is_online": bool, "location": {"lat": .., "lng": ..}, "accuracy_meters": ..}
// Coming online requires a location so the nurse enters discovery.
func (h *NurseHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]

	var body struct {
		IsOnline       bool           `json:"is_online"`
		Location       model.Location `json:"location"`
		AccuracyMeters float64        `json:"accuracy_meters"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	nurse, err := h.registry.SetOnline(r.Context(), nurseID, body.IsOnline, body.Location, body.AccuracyMeters)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nurse)
}

// SetStatus handles PUT /api/v1/nurses/{nurse_id}/status
//
// Body: {"status": "available" | "busy" | "en_route" | "with_patient" | "break" | "offline"}
// Rejected with 409 while the nurse is offline; presence changes go
// through the online endpoint.
func (h *NurseHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]

	var body struct {
		Status model.NurseStatus `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	nurse, err := h.registry.SetStatus(r.Context(), nurseID, body.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nurse)
}

// UpdateLocation handles PUT /api/v1/nurses/{nurse_id}/location
//
// Updates the coarse general-location beacon used for discovery.
func (h *NurseHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]

	var body struct {
		Location       model.Location `json:"location"`
		AccuracyMeters float64        `json:"accuracy_meters"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	nurse, err := h.registry.UpdateGeneralLocation(r.Context(), nurseID, body.Location, body.AccuracyMeters)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nurse)
}

// GetNurse handles GET /api/v1/nurses/{nurse_id}
func (h *NurseHandler) GetNurse(w http.ResponseWriter, r *http.Request) {
	nurse, err := h.registry.Snapshot(r.Context(), mux.Vars(r)["nurse_id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nurse)
}

// VerifyOnline handles GET /api/v1/nurses/{nurse_id}/availability
//
// Patients call this before re-requesting a nurse they know.
func (h *NurseHandler) VerifyOnline(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]
	available, err := h.matcher.VerifyNurseOnline(r.Context(), nurseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nurse_id":  nurseID,
		"available": available,
	})
}

// PendingFeed handles GET /api/v1/nurses/{nurse_id}/requests/pending
//
// Returns up to five open requests near the nurse, nearest first.
// Optional query param: radius_miles.
func (h *NurseHandler) PendingFeed(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]

	radius := 0.0
	if raw := r.URL.Query().Get("radius_miles"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid radius_miles: must be a positive number",
			})
			return
		}
		radius = v
	}

	feed, err := h.matcher.PendingFeedForNurse(r.Context(), nurseID, radius)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": feed,
		"count":    len(feed),
	})
}

// History handles GET /api/v1/nurses/{nurse_id}/requests
func (h *NurseHandler) History(w http.ResponseWriter, r *http.Request) {
	nurseID := mux.Vars(r)["nurse_id"]
	reqs, err := h.ledger.ListByNurse(r.Context(), nurseID, parseLimit(r, 20))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": reqs,
		"count":    len(reqs),
	})
}

// Stats handles GET /api/v1/nurses/{nurse_id}/stats
//
// Returns completed visits and earnings for today and the current week.
func (h *NurseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.NurseStats(r.Context(), mux.Vars(r)["nurse_id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// parseLimit reads a ?limit= query param with a default.
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
