// Package handler contains HTTP request handlers for the dispatch API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeDomainError maps the domain error taxonomy onto HTTP responses.
// Every handler funnels service errors through here so a given error
// always produces the same status and shape.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidServiceType):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_service_type",
			"message": "Unknown service type. See /api/v1/services for the catalog.",
		})
	case errors.Is(err, model.ErrMissingLocation):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "missing_location",
			"message": "A valid location (lat, lng) is required.",
		})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "No such nurse or request.",
		})
	case errors.Is(err, model.ErrAlreadyAssigned):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "already_assigned",
			"message": "Another nurse already accepted this request.",
		})
	case errors.Is(err, model.ErrNurseUnavailable):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "nurse_unavailable",
			"message": "The nurse is offline or not available right now.",
		})
	case errors.Is(err, model.ErrAlreadyTracking):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "already_tracking",
			"message": "This nurse is already tracking another visit.",
		})
	case errors.Is(err, model.ErrTrackingNotEnabled):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "tracking_not_enabled",
			"message": "Precise tracking is not active for this nurse.",
		})
	case errors.Is(err, model.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "invalid_transition",
			"message": "This status change is not allowed from the current state.",
		})
	case errors.Is(err, model.ErrNoActiveAssignment):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "no_active_assignment",
			"message": "The request has no assigned nurse for this operation.",
		})
	default:
		log.Printf("[handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}

// decodeJSON decodes a request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
