// Package model contains domain models for the nurse dispatch core.
// Entities arrive already validated and identified by the account system;
// nothing here knows about passwords, documents, or sessions.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

type ServiceType string

const (
	ServiceFeverVitalsCheck         ServiceType = "fever_vitals_check"
	ServiceBloodPressureMonitoring  ServiceType = "blood_pressure_monitoring"
	ServiceWoundCareDressing        ServiceType = "wound_care_dressing"
	ServiceMedicationAdministration ServiceType = "medication_administration"
	ServiceHealthConsultation       ServiceType = "health_consultation"
	ServiceDiabetesManagement       ServiceType = "diabetes_management"
	ServiceIVTherapy                ServiceType = "iv_therapy"
	ServiceInjectionService         ServiceType = "injection_service"
	ServicePostSurgeryCare          ServiceType = "post_surgery_care"
)

type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyUrgent Urgency = "urgent"
)

type NurseStatus string

const (
	NurseOffline     NurseStatus = "offline"
	NurseAvailable   NurseStatus = "available"
	NurseBusy        NurseStatus = "busy"
	NurseEnRoute     NurseStatus = "en_route"
	NurseWithPatient NurseStatus = "with_patient"
	NurseOnBreak     NurseStatus = "break"
)

// ActiveJobStatus reports whether a nurse status implies an assigned job.
// These statuses are illegal while the nurse is offline.
func ActiveJobStatus(s NurseStatus) bool {
	return s == NurseBusy || s == NurseEnRoute || s == NurseWithPatient
}

// ValidNurseStatus reports whether s is a known nurse status value.
func ValidNurseStatus(s NurseStatus) bool {
	switch s {
	case NurseOffline, NurseAvailable, NurseBusy, NurseEnRoute, NurseWithPatient, NurseOnBreak:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestPending       RequestStatus = "pending"
	RequestNurseAssigned RequestStatus = "nurse_assigned"
	RequestAccepted      RequestStatus = "accepted"
	RequestEnRoute       RequestStatus = "en_route"
	RequestArrived       RequestStatus = "arrived"
	RequestInProgress    RequestStatus = "in_progress"
	RequestCompleted     RequestStatus = "completed"
	RequestCancelled     RequestStatus = "cancelled"
	RequestNoShow        RequestStatus = "no_show"
)

// ─── Request state machine ──────────────────────────────────

// transitions is the forward-only state machine for ServiceRequest.status.
// cancelled is reachable from any non-terminal state; no_show only from
// accepted/en_route. pending may jump straight to accepted because the
// assignment race resolves nurse_assigned and accepted in one step.
var transitions = map[RequestStatus][]RequestStatus{
	RequestPending:       {RequestNurseAssigned, RequestAccepted, RequestCancelled},
	RequestNurseAssigned: {RequestAccepted, RequestCancelled},
	RequestAccepted:      {RequestEnRoute, RequestCancelled, RequestNoShow},
	RequestEnRoute:       {RequestArrived, RequestCancelled, RequestNoShow},
	RequestArrived:       {RequestInProgress, RequestCancelled},
	RequestInProgress:    {RequestCompleted, RequestCancelled},
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions.
func Terminal(s RequestStatus) bool {
	return s == RequestCompleted || s == RequestCancelled || s == RequestNoShow
}

// ─── Location ───────────────────────────────────────────────

// Location is a WGS-84 geographic point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinates are usable. Zero-zero is treated as
// missing: nobody requests a home visit from null island.
func (l Location) Valid() bool {
	if l.Lat == 0 && l.Lng == 0 {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Beacon is one reported position with its accuracy and freshness.
// last_updated is advisory: consumers must treat beacon data as stale.
type Beacon struct {
	Location       Location  `json:"location"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	UpdatedAt      time.Time `json:"last_updated"`
}

// ─── Nurse ──────────────────────────────────────────────────

// NurseProfile is the read-only slice of the account system's nurse record
// that dispatch needs: identity, attributes used by matching and candidate
// summaries, and verification flags.
type NurseProfile struct {
	ID                   string   `json:"nurse_id"`
	FirstName            string   `json:"first_name"`
	LastName             string   `json:"last_name"`
	Specialties          []string `json:"specialties"`
	YearsExperience      int      `json:"years_experience"`
	AverageRating        float64  `json:"average_rating"`
	TotalCompletedVisits int      `json:"total_completed_visits"`
	ServiceRadiusMiles   float64  `json:"service_radius_miles"`
	Verified             bool     `json:"-"`
	Active               bool     `json:"-"`
}

// ActiveJob ties a tracking nurse to the single request being tracked.
type ActiveJob struct {
	RequestID         string    `json:"request_id"`
	PatientLocation   Location  `json:"patient_location"`
	StartedTrackingAt time.Time `json:"started_tracking_at"`
}

// Nurse is the live dispatch view of a nurse: profile plus the mutable state
// owned by the registry. General location is coarse and always present while
// online; precise location exists only while tracking an active job.
type Nurse struct {
	Profile         NurseProfile `json:"profile"`
	IsOnline        bool         `json:"is_online"`
	Status          NurseStatus  `json:"current_status"`
	GeneralLocation *Beacon      `json:"general_location,omitempty"`
	PreciseLocation *Beacon      `json:"precise_location,omitempty"`
	IsTracking      bool         `json:"is_tracking"`
	ActiveJob       *ActiveJob   `json:"active_job,omitempty"`
}

// ─── Pricing ────────────────────────────────────────────────

// PricingBreakdown is the price snapshot computed once at assignment time and
// never recomputed. All amounts are in cents.
type PricingBreakdown struct {
	ServiceBasePriceCents int64 `json:"service_base_price_cents"`
	DistanceFeeCents      int64 `json:"distance_fee_cents"`
	UrgencySurchargeCents int64 `json:"urgency_surcharge_cents"`
	TimeSurchargeCents    int64 `json:"time_surcharge_cents"`
	TotalPriceCents       int64 `json:"total_price_cents"`
	PlatformFeeCents      int64 `json:"platform_fee_cents"`
	NurseEarningsCents    int64 `json:"nurse_earnings_cents"`
}

// ─── Tracking ───────────────────────────────────────────────

// TrackingSample is one timestamped observation of the nurse's position
// relative to the patient. Samples are append-only and chronological.
type TrackingSample struct {
	Timestamp              time.Time `json:"timestamp"`
	Location               Location  `json:"nurse_location"`
	DistanceToPatientMiles float64   `json:"distance_to_patient_miles"`
	ETAMinutes             float64   `json:"eta_minutes"`
	EstimatedArrival       time.Time `json:"estimated_arrival"`
	SpeedMph               float64   `json:"speed_mph"`
	AccuracyMeters         float64   `json:"accuracy_meters"`
}

// ─── ServiceRequest ─────────────────────────────────────────

// Address is the human-readable destination, carried through untouched.
type Address struct {
	Street             string `json:"street,omitempty"`
	City               string `json:"city,omitempty"`
	State              string `json:"state,omitempty"`
	ZipCode            string `json:"zip_code,omitempty"`
	UnitNumber         string `json:"unit_number,omitempty"`
	AccessInstructions string `json:"access_instructions,omitempty"`
}

// ServiceRequest is a patient's visit request and its full dispatch
// lifecycle: assignment, pricing snapshot, status timestamps, tracking trail.
// At most one nurse ever holds NurseID, and the assignment is final.
type ServiceRequest struct {
	ID                   string           `json:"request_id"`
	PatientID            string           `json:"patient_id"`
	NurseID              *string          `json:"nurse_id,omitempty"`
	ServiceType          ServiceType      `json:"service_type"`
	Urgency              Urgency          `json:"urgency"`
	SpecialInstructions  string           `json:"special_instructions,omitempty"`
	PreferredSpecialties []string         `json:"preferred_specialties,omitempty"`
	PatientLocation      Location         `json:"patient_location"`
	PatientAddress       Address          `json:"patient_address"`
	Status               RequestStatus    `json:"status"`
	Pricing              PricingBreakdown `json:"pricing"`
	CancelReason         string           `json:"cancel_reason,omitempty"`

	RequestedAt        time.Time  `json:"requested_at"`
	NurseAcceptedAt    *time.Time `json:"nurse_accepted_at,omitempty"`
	NurseDepartedAt    *time.Time `json:"nurse_departed_at,omitempty"`
	NurseArrivedAt     *time.Time `json:"nurse_arrived_at,omitempty"`
	ServiceStartedAt   *time.Time `json:"service_started_at,omitempty"`
	ServiceCompletedAt *time.Time `json:"service_completed_at,omitempty"`

	TrackingData []TrackingSample `json:"tracking_data,omitempty"`
}

// LatestSample returns the newest tracking sample, or nil if none recorded.
func (r *ServiceRequest) LatestSample() *TrackingSample {
	if len(r.TrackingData) == 0 {
		return nil
	}
	return &r.TrackingData[len(r.TrackingData)-1]
}

// ─── Matching DTOs ──────────────────────────────────────────

// CandidateNurse is a nurse summary returned by discovery and matching, with
// the computed distance and a price preview. Internal account fields never
// leave the core.
type CandidateNurse struct {
	NurseID                 string           `json:"nurse_id"`
	FirstName               string           `json:"first_name"`
	LastName                string           `json:"last_name"`
	Specialties             []string         `json:"specialties"`
	YearsExperience         int              `json:"years_experience"`
	AverageRating           float64          `json:"average_rating"`
	TotalCompletedVisits    int              `json:"total_completed_visits"`
	DistanceMiles           float64          `json:"distance_miles"`
	EstimatedArrivalMinutes int              `json:"estimated_arrival_minutes"`
	Pricing                 PricingBreakdown `json:"pricing"`
}

// PendingRequest is a pending service request as seen from a nurse's feed,
// with the distance from that nurse's general location.
type PendingRequest struct {
	Request       *ServiceRequest `json:"request"`
	DistanceMiles float64         `json:"distance_miles"`
}

// NurseStats aggregates a nurse's completed visits and earnings for the
// dashboard (today and current week).
type NurseStats struct {
	TodayEarningsCents int64 `json:"earnings_cents"`
	TodayPatients      int   `json:"patients"`
	WeekEarningsCents  int64 `json:"week_earnings_cents"`
	WeekPatients       int   `json:"week_patients"`
}
