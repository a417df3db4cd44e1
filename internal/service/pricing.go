// Package service contains the core business logic for nurse dispatch.
package service

import (
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// ─── Service catalog ────────────────────────────────────────

// ServiceInfo describes one fixed-price visit type. Nurses cannot set their
// own rates; the catalog is the single source of base prices.
type ServiceInfo struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	BasePriceCents  int64  `json:"base_price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
}

// DefaultCatalog returns the fixed service price table.
func DefaultCatalog() map[model.ServiceType]ServiceInfo {
	return map[model.ServiceType]ServiceInfo{
		model.ServiceFeverVitalsCheck: {
			Name:            "Fever & Vitals Check",
			Description:     "Temperature, pulse, blood pressure, basic assessment",
			BasePriceCents:  3500,
			DurationMinutes: 20,
		},
		model.ServiceBloodPressureMonitoring: {
			Name:            "Blood Pressure Monitoring",
			Description:     "Blood pressure check, heart rate monitoring",
			BasePriceCents:  3000,
			DurationMinutes: 15,
		},
		model.ServiceWoundCareDressing: {
			Name:            "Wound Care & Dressing",
			Description:     "Wound cleaning, dressing change, healing assessment",
			BasePriceCents:  5500,
			DurationMinutes: 30,
		},
		model.ServiceMedicationAdministration: {
			Name:            "Medication Administration",
			Description:     "Oral medication, injection administration",
			BasePriceCents:  4500,
			DurationMinutes: 25,
		},
		model.ServiceHealthConsultation: {
			Name:            "Health Consultation",
			Description:     "General health questions, symptom assessment",
			BasePriceCents:  2500,
			DurationMinutes: 20,
		},
		model.ServiceDiabetesManagement: {
			Name:            "Diabetes Care",
			Description:     "Blood sugar testing, insulin administration",
			BasePriceCents:  5000,
			DurationMinutes: 25,
		},
		model.ServiceIVTherapy: {
			Name:            "IV Therapy",
			Description:     "IV insertion, fluid administration, monitoring",
			BasePriceCents:  7500,
			DurationMinutes: 45,
		},
		model.ServiceInjectionService: {
			Name:            "Injection Service",
			Description:     "Intramuscular or subcutaneous injections",
			BasePriceCents:  4000,
			DurationMinutes: 15,
		},
		model.ServicePostSurgeryCare: {
			Name:            "Post-Surgery Care",
			Description:     "Surgical site assessment, drain care",
			BasePriceCents:  6500,
			DurationMinutes: 35,
		},
	}
}

// ─── Surcharge constants ────────────────────────────────────

const (
	// UrgencySurchargeCents is the flat add-on for urgent requests.
	UrgencySurchargeCents = 1500

	// Time-of-day surcharge bands, additive and not mutually exclusive:
	// a late Friday night stacks weekend + evening + late-night.
	WeekendSurchargeCents   = 1000 // Sat/Sun, or Friday from 18:00
	EveningSurchargeCents   = 800  // hour in [18, 22]
	LateNightSurchargeCents = 1500 // hour >= 22 or hour <= 6

	// PlatformFeeRate is the platform's cut of the total, rounded half-up.
	PlatformFeeRate = 0.20
)

// ─── PricingEngine ──────────────────────────────────────────

// PricingEngine computes deterministic price breakdowns. Pure, no I/O:
// identical inputs always yield an identical breakdown. The breakdown is
// computed exactly once per request; a later call with a different clock
// never changes an agreed price.
type PricingEngine struct {
	catalog map[model.ServiceType]ServiceInfo
}

// NewPricingEngine creates a pricing engine over the default catalog.
func NewPricingEngine() *PricingEngine {
	return &PricingEngine{catalog: DefaultCatalog()}
}

// Catalog returns the service price table (for the API's service listing).
func (e *PricingEngine) Catalog() map[model.ServiceType]ServiceInfo {
	return e.catalog
}

// Lookup returns catalog info for a service type.
func (e *PricingEngine) Lookup(st model.ServiceType) (ServiceInfo, error) {
	info, ok := e.catalog[st]
	if !ok {
		return ServiceInfo{}, model.ErrInvalidServiceType
	}
	return info, nil
}

// Price computes the full breakdown for a visit:
//
//	total = base + distance fee + urgency surcharge + time surcharge
//	platform fee = round-half-up(total × 0.20)
//	nurse earnings = total − platform fee
//
// requestTime is evaluated in its own location's local hour and weekday.
func (e *PricingEngine) Price(
	serviceType model.ServiceType,
	distanceMiles float64,
	urgency model.Urgency,
	requestTime time.Time,
) (model.PricingBreakdown, error) {

	info, ok := e.catalog[serviceType]
	if !ok {
		return model.PricingBreakdown{}, model.ErrInvalidServiceType
	}

	b := model.PricingBreakdown{
		ServiceBasePriceCents: info.BasePriceCents,
		DistanceFeeCents:      DistanceFeeCents(distanceMiles),
		TimeSurchargeCents:    TimeSurchargeCents(requestTime),
	}
	if urgency == model.UrgencyUrgent {
		b.UrgencySurchargeCents = UrgencySurchargeCents
	}

	b.TotalPriceCents = b.ServiceBasePriceCents + b.DistanceFeeCents +
		b.UrgencySurchargeCents + b.TimeSurchargeCents
	b.PlatformFeeCents = roundHalfUp(float64(b.TotalPriceCents) * PlatformFeeRate)
	b.NurseEarningsCents = b.TotalPriceCents - b.PlatformFeeCents

	return b, nil
}

// DistanceFeeCents is a step function of miles with half-open upper bounds:
// 2.0 mi is free, 2.01 mi is not.
func DistanceFeeCents(distanceMiles float64) int64 {
	switch {
	case distanceMiles <= 2:
		return 0
	case distanceMiles <= 5:
		return 500
	case distanceMiles <= 10:
		return 1200
	case distanceMiles <= 15:
		return 2000
	case distanceMiles <= 20:
		return 3000
	default:
		return 4000
	}
}

// TimeSurchargeCents sums the applicable time-of-day bands for t.
func TimeSurchargeCents(t time.Time) int64 {
	hour := t.Hour()
	day := t.Weekday()

	var surcharge int64
	if day == time.Saturday || day == time.Sunday || (day == time.Friday && hour >= 18) {
		surcharge += WeekendSurchargeCents
	}
	if hour >= 18 && hour <= 22 {
		surcharge += EveningSurchargeCents
	}
	if hour >= 22 || hour <= 6 {
		surcharge += LateNightSurchargeCents
	}
	return surcharge
}

// roundHalfUp rounds a non-negative cent amount half-up to a whole cent.
func roundHalfUp(v float64) int64 {
	return int64(v + 0.5)
}
