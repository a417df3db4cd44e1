package handler

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/service"
)

// RequestHandler handles the service-request lifecycle: creation,
// discovery, the accept race, and status changes.
type RequestHandler struct {
	ledger  *service.RequestLedger
	matcher *service.MatchingService
	pricing *service.PricingEngine
}

// NewRequestHandler creates a new handler wired to the request services.
func NewRequestHandler(ledger *service.RequestLedger, matcher *service.MatchingService, pricing *service.PricingEngine) *RequestHandler {
	return &RequestHandler{ledger: ledger, matcher: matcher, pricing: pricing}
}

// Catalog handles GET /api/v1/services
//
// Returns every bookable service with its base price and typical duration.
func (h *RequestHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pricing.Catalog())
}

// Nearby handles GET /api/v1/nurses/nearby
//
// Query params: lat, lng, service_type, urgency?, specialties? (comma
// separated), radius_miles?, limit?. Same search as Discover for clients
// that prefer a plain GET.
func (h *RequestHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid lat/lng: must be numbers",
		})
		return
	}

	radius := 0.0
	if raw := q.Get("radius_miles"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid radius_miles: must be a positive number",
			})
			return
		}
		radius = v
	}

	var specialties []string
	if raw := q.Get("specialties"); raw != "" {
		specialties = strings.Split(raw, ",")
	}

	candidates, err := h.matcher.FindCandidates(r.Context(), service.DiscoverInput{
		PatientLocation: model.Location{Lat: lat, Lng: lng},
		ServiceType:     model.ServiceType(q.Get("service_type")),
		Urgency:         model.Urgency(q.Get("urgency")),
		Specialties:     specialties,
		RadiusMiles:     radius,
		Limit:           parseLimit(r, 20),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nurses": candidates,
		"count":  len(candidates),
	})
}

// Discover handles POST /api/v1/requests/discover
//
// Returns available nurses near the patient with a price preview each.
//
// Response codes:
//   200  — Candidate list (possibly empty)
//   400  — Missing location or unknown service type
func (h *RequestHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Location    model.Location    `json:"location"`
		ServiceType model.ServiceType `json:"service_type"`
		Urgency     model.Urgency     `json:"urgency"`
		Specialties []string          `json:"specialties"`
		RadiusMiles float64           `json:"radius_miles"`
		Limit       int               `json:"limit"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	candidates, err := h.matcher.FindCandidates(r.Context(), service.DiscoverInput{
		PatientLocation: body.Location,
		ServiceType:     body.ServiceType,
		Urgency:         body.Urgency,
		Specialties:     body.Specialties,
		RadiusMiles:     body.RadiusMiles,
		Limit:           body.Limit,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nurses": candidates,
		"count":  len(candidates),
	})
}

// Create handles POST /api/v1/requests
//
// Creates a pending request with an immutable price snapshot and pings
// the nearest eligible nurses. When requested_nurse_id is set, only that
// nurse is pinged, and they must be online and available.
//
// Response codes:
//   201  — Request created (returns the full request with pricing)
//   400  — Missing location or unknown service type
//   409  — Requested nurse is offline or unavailable
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID            string            `json:"patient_id"`
		ServiceType          model.ServiceType `json:"service_type"`
		Urgency              model.Urgency     `json:"urgency"`
		SpecialInstructions  string            `json:"special_instructions"`
		PreferredSpecialties []string          `json:"preferred_specialties"`
		Location             model.Location    `json:"location"`
		Address              model.Address     `json:"address"`
		DistanceMiles        float64           `json:"distance_miles"`
		RequestedNurseID     string            `json:"requested_nurse_id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.PatientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	// Verify a directly requested nurse is reachable before taking the
	// patient's request at all.
	if body.RequestedNurseID != "" {
		available, err := h.matcher.VerifyNurseOnline(r.Context(), body.RequestedNurseID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !available {
			writeDomainError(w, model.ErrNurseUnavailable)
			return
		}
	}

	req, err := h.ledger.Create(r.Context(), service.CreateRequestInput{
		PatientID:            body.PatientID,
		ServiceType:          body.ServiceType,
		Urgency:              body.Urgency,
		SpecialInstructions:  body.SpecialInstructions,
		PreferredSpecialties: body.PreferredSpecialties,
		PatientLocation:      body.Location,
		PatientAddress:       body.Address,
		DistanceMiles:        body.DistanceMiles,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if body.RequestedNurseID != "" {
		if err := h.matcher.DispatchTo(r.Context(), req, body.RequestedNurseID); err != nil {
			log.Printf("[handler] direct dispatch of %s failed: %v", req.ID, err)
		}
	} else {
		h.matcher.Dispatch(r.Context(), req)
	}
	writeJSON(w, http.StatusCreated, req)
}

// Get handles GET /api/v1/requests/{request_id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.ledger.Get(r.Context(), mux.Vars(r)["request_id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Accept handles POST /api/v1/requests/{request_id}/accept
//
// The nurse side of the assignment race.
//
// Response codes:
//   200  — This nurse won the assignment
//   404  — Request not found
//   409  — Already assigned, or the nurse is not available
func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	var body struct {
		NurseID string `json:"nurse_id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.NurseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	req, err := h.matcher.Accept(r.Context(), requestID, body.NurseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Decline handles POST /api/v1/requests/{request_id}/decline
//
// Hides the request from this nurse's feed. Always succeeds.
func (h *RequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	var body struct {
		NurseID string `json:"nurse_id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.NurseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	h.matcher.Decline(r.Context(), requestID, body.NurseID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

// UpdateStatus handles PUT /api/v1/requests/{request_id}/status
//
// Advances the request through its lifecycle (arrived, in_progress,
// completed, no_show).
//
// Response codes:
//   200  — Status advanced
//   404  — Request not found
//   409  — Illegal transition from the current state
func (h *RequestHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	var body struct {
		Status model.RequestStatus `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	req, err := h.ledger.AdvanceStatus(r.Context(), requestID, body.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Cancel handles POST /api/v1/requests/{request_id}/cancel
//
// Body: {"reason": "..."}. Legal from any non-terminal state.
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]

	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_body"})
		return
	}

	req, err := h.ledger.Cancel(r.Context(), requestID, body.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.matcher.Forget(req.ID)
	writeJSON(w, http.StatusOK, req)
}

// PatientHistory handles GET /api/v1/patients/{patient_id}/requests
func (h *RequestHandler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patient_id"]
	reqs, err := h.ledger.ListByPatient(r.Context(), patientID, parseLimit(r, 20))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": reqs,
		"count":    len(reqs),
	})
}

// Quote handles GET /api/v1/pricing/quote
//
// Query params: service_type, distance_miles, urgency. Returns the full
// breakdown a request at those parameters would be priced at now.
func (h *RequestHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceType := model.ServiceType(q.Get("service_type"))

	distance := 0.0
	if raw := q.Get("distance_miles"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid distance_miles: must be a non-negative number",
			})
			return
		}
		distance = v
	}
	urgency := model.Urgency(q.Get("urgency"))
	if urgency == "" {
		urgency = model.UrgencyNormal
	}

	breakdown, err := h.pricing.Price(serviceType, distance, urgency, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}
