package model

import "errors"

// Domain error taxonomy. All are recoverable-by-caller conditions; the
// HTTP layer translates them into user-facing responses.
var (
	// ErrInvalidServiceType: the requested service is not in the catalog.
	ErrInvalidServiceType = errors.New("invalid service type")

	// ErrMissingLocation: a request was created without a usable patient location.
	ErrMissingLocation = errors.New("patient location is required")

	// ErrNotFound: unknown nurse or request id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAssigned: the assignment race was lost, another nurse won.
	ErrAlreadyAssigned = errors.New("request is already assigned to a nurse")

	// ErrNurseUnavailable: the nurse is offline or not in 'available' status.
	ErrNurseUnavailable = errors.New("nurse is not available")

	// ErrAlreadyTracking: the nurse already has an active tracked job.
	ErrAlreadyTracking = errors.New("precise tracking already active for this nurse")

	// ErrTrackingNotEnabled: a precise beacon arrived while tracking is off.
	ErrTrackingNotEnabled = errors.New("precise tracking not enabled for this nurse")

	// ErrInvalidTransition: illegal status change for nurse or request.
	ErrInvalidTransition = errors.New("illegal status transition")

	// ErrNoActiveAssignment: tracking data for a request with no assigned nurse.
	ErrNoActiveAssignment = errors.New("request has no assigned nurse")
)
