// Package geo provides geographic primitives for nurse dispatch.
//
// All distances use the Haversine formula on WGS-84 coordinates with an
// Earth radius of 3959 miles. Pricing bands, ETA estimates, and candidate
// ordering all derive from this one distance.
package geo

import (
	"math"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusMiles is the mean radius of Earth in miles.
	EarthRadiusMiles = 3959.0

	// FallbackMinutesPerMile is the ETA heuristic used when no speed is
	// reported: 3 min/mile, roughly a 20 mph urban average.
	FallbackMinutesPerMile = 3.0
)

// ─── Distance ───────────────────────────────────────────────

// Miles returns the great-circle distance between two points in miles.
//
// Complexity: O(1)
func Miles(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLng*sinLng

	return 2 * EarthRadiusMiles * math.Asin(math.Sqrt(h))
}

// ─── ETA ────────────────────────────────────────────────────

// ETAMinutes estimates travel time for a distance at the reported speed.
// With no usable speed it falls back to FallbackMinutesPerMile.
func ETAMinutes(distanceMiles, speedMph float64) float64 {
	if speedMph > 0 {
		return (distanceMiles / speedMph) * 60.0
	}
	return distanceMiles * FallbackMinutesPerMile
}

// ArrivalEstimateMinutes is the discovery-time heuristic shown to patients
// before any tracking exists: travel at the fallback pace plus a 5 minute
// departure buffer.
func ArrivalEstimateMinutes(distanceMiles float64) int {
	return int(math.Round(distanceMiles*FallbackMinutesPerMile + 5))
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
