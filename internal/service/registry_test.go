package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/repository"
)

func testProfile(id string) model.NurseProfile {
	return model.NurseProfile{
		ID:                 id,
		FirstName:          "Dana",
		LastName:           "Reyes",
		Specialties:        []string{"wound_care", "iv_therapy"},
		YearsExperience:    6,
		AverageRating:      4.8,
		ServiceRadiusMiles: 15,
		Verified:           true,
		Active:             true,
	}
}

func newTestRegistry(profiles ...model.NurseProfile) *NurseRegistry {
	return NewNurseRegistry(repository.NewStaticAccountStore(profiles...))
}

var midtown = model.Location{Lat: 40.7580, Lng: -73.9855}

func TestRegistry_SetOnline(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(testProfile("nurse_a"))

	nurse, err := r.SetOnline(ctx, "nurse_a", true, midtown, 25)
	require.NoError(t, err)
	assert.True(t, nurse.IsOnline)
	assert.Equal(t, model.NurseAvailable, nurse.Status)
	require.NotNil(t, nurse.GeneralLocation)
	assert.Equal(t, midtown, nurse.GeneralLocation.Location)
	assert.True(t, r.DiscoveryIndex().Contains("nurse_a"))
}

func TestRegistry_SetOnline_UnknownNurse(t *testing.T) {
	r := newTestRegistry()
	_, err := r.SetOnline(context.Background(), "nurse_ghost", true, midtown, 25)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRegistry_GoOfflineClearsEverything(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(testProfile("nurse_a"))
	r.SetOnline(ctx, "nurse_a", true, midtown, 25)

	nurse, err := r.SetOnline(ctx, "nurse_a", false, model.Location{}, 0)
	require.NoError(t, err)
	assert.False(t, nurse.IsOnline)
	assert.Equal(t, model.NurseOffline, nurse.Status)
	assert.Nil(t, nurse.GeneralLocation)
	assert.Nil(t, nurse.PreciseLocation)
	assert.False(t, nurse.IsTracking)
	assert.False(t, r.DiscoveryIndex().Contains("nurse_a"))
}

func TestRegistry_SetStatus_RejectsChangesWhileOffline(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(testProfile("nurse_a"))

	// No status implies presence. Going online is SetOnline's job, so even
	// break or available must not flip an offline nurse online.
	for _, status := range []model.NurseStatus{
		model.NurseAvailable, model.NurseBusy, model.NurseEnRoute,
		model.NurseWithPatient, model.NurseOnBreak,
	} {
		_, err := r.SetStatus(ctx, "nurse_a", status)
		assert.ErrorIs(t, err, model.ErrInvalidTransition, "status %s", status)
	}

	nurse, err := r.Snapshot(ctx, "nurse_a")
	require.NoError(t, err)
	assert.False(t, nurse.IsOnline)
	assert.Equal(t, model.NurseOffline, nurse.Status)
	assert.False(t, r.DiscoveryIndex().Contains("nurse_a"))

	_, err = r.SetStatus(ctx, "nurse_a", "napping")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// Offline to offline stays a no-op rather than an error.
	_, err = r.SetStatus(ctx, "nurse_a", model.NurseOffline)
	assert.NoError(t, err)
}

func TestRegistry_SetStatus(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(testProfile("nurse_a"))
	r.SetOnline(ctx, "nurse_a", true, midtown, 25)

	nurse, err := r.SetStatus(ctx, "nurse_a", model.NurseOnBreak)
	require.NoError(t, err)
	assert.Equal(t, model.NurseOnBreak, nurse.Status)

	// Offline through SetStatus routes through the same cleanup.
	nurse, err = r.SetStatus(ctx, "nurse_a", model.NurseOffline)
	require.NoError(t, err)
	assert.False(t, nurse.IsOnline)
	assert.False(t, r.DiscoveryIndex().Contains("nurse_a"))
}

func TestRegistry_PreciseTrackingLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(testProfile("nurse_a"))
	r.SetOnline(ctx, "nurse_a", true, midtown, 25)

	patientLoc := model.Location{Lat: 40.74, Lng: -73.99}
	nurse, err := r.EnablePreciseTracking(ctx, "nurse_a", "req_1", patientLoc)
	require.NoError(t, err)
	assert.True(t, nurse.IsTracking)
	require.NotNil(t, nurse.ActiveJob)
	assert.Equal(t, "req_1", nurse.ActiveJob.RequestID)

	// Tracking nurses leave discovery.
	assert.False(t, r.DiscoveryIndex().Contains("nurse_a"))

	// Double enable is rejected.
	_, err = r.EnablePreciseTracking(ctx, "nurse_a", "req_2", patientLoc)
	assert.ErrorIs(t, err, model.ErrAlreadyTracking)

	// Precise beacons flow while tracking.
	job, err := r.UpdatePreciseLocation(ctx, "nurse_a", model.Location{Lat: 40.75, Lng: -73.988}, 10)
	require.NoError(t, err)
	assert.Equal(t, "req_1", job.RequestID)
	assert.Equal(t, patientLoc, job.PatientLocation)

	// Disable restores discovery from the general location.
	nurse, err = r.DisablePreciseTracking(ctx, "nurse_a")
	require.NoError(t, err)
	assert.False(t, nurse.IsTracking)
	assert.Nil(t, nurse.ActiveJob)
	assert.Nil(t, nurse.PreciseLocation)
	assert.True(t, r.DiscoveryIndex().Contains("nurse_a"))

	// Disable again is a no-op.
	_, err = r.DisablePreciseTracking(ctx, "nurse_a")
	assert.NoError(t, err)
}

func TestRegistry_UpdatePreciseLocation_RequiresTracking(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(testProfile("nurse_a"))
	r.SetOnline(ctx, "nurse_a", true, midtown, 25)

	_, err := r.UpdatePreciseLocation(ctx, "nurse_a", midtown, 10)
	assert.ErrorIs(t, err, model.ErrTrackingNotEnabled)
}

func TestRegistry_GeneralLocationWhileTrackingSkipsIndex(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(testProfile("nurse_a"))
	r.SetOnline(ctx, "nurse_a", true, midtown, 25)
	r.EnablePreciseTracking(ctx, "nurse_a", "req_1", model.Location{Lat: 40.74, Lng: -73.99})

	_, err := r.UpdateGeneralLocation(ctx, "nurse_a", model.Location{Lat: 40.76, Lng: -73.99}, 30)
	require.NoError(t, err)
	assert.False(t, r.DiscoveryIndex().Contains("nurse_a"))
}
