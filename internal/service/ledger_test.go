package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/repository"
)

func newTestLedger() *RequestLedger {
	return NewRequestLedger(repository.NewMemoryRequestStore(), NewPricingEngine(), repository.NewTrackingCache(nil))
}

func createInput() CreateRequestInput {
	return CreateRequestInput{
		PatientID:       "pat_1",
		ServiceType:     model.ServiceWoundCareDressing,
		Urgency:         model.UrgencyNormal,
		PatientLocation: model.Location{Lat: 40.75, Lng: -73.98},
		DistanceMiles:   3,
	}
}

func TestLedger_Create(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.now = func() time.Time { return time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC) }

	req, err := l.Create(ctx, createInput())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(req.ID, "req_"))
	assert.Equal(t, model.RequestPending, req.Status)
	// wound_care_dressing 5500 + distance fee 500, Tuesday noon.
	assert.Equal(t, int64(6000), req.Pricing.TotalPriceCents)
	assert.Equal(t, int64(1200), req.Pricing.PlatformFeeCents)
	assert.Equal(t, int64(4800), req.Pricing.NurseEarningsCents)

	stored, err := l.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Pricing, stored.Pricing)
}

func TestLedger_Create_RequiresLocation(t *testing.T) {
	l := newTestLedger()
	in := createInput()
	in.PatientLocation = model.Location{}
	_, err := l.Create(context.Background(), in)
	assert.ErrorIs(t, err, model.ErrMissingLocation)
}

func TestLedger_Create_UnknownService(t *testing.T) {
	l := newTestLedger()
	in := createInput()
	in.ServiceType = "exorcism"
	_, err := l.Create(context.Background(), in)
	assert.ErrorIs(t, err, model.ErrInvalidServiceType)
}

func TestLedger_Create_DefaultsUrgency(t *testing.T) {
	l := newTestLedger()
	in := createInput()
	in.Urgency = ""
	req, err := l.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.UrgencyNormal, req.Urgency)
}

func TestLedger_PricingImmutableAfterCreate(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	l.now = func() time.Time { return time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC) }

	req, err := l.Create(ctx, createInput())
	require.NoError(t, err)
	priced := req.Pricing

	// A later clock (late-night Saturday) must not change the agreed price.
	l.now = func() time.Time { return time.Date(2025, time.March, 8, 23, 0, 0, 0, time.UTC) }
	_, err = l.TryAssign(ctx, req.ID, "nurse_a")
	require.NoError(t, err)
	_, err = l.AdvanceStatus(ctx, req.ID, model.RequestEnRoute)
	require.NoError(t, err)

	got, err := l.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, priced, got.Pricing)
}

func TestLedger_ListPendingNear(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	// Seven open requests around midtown; the feed caps at five.
	for i := 0; i < 7; i++ {
		in := createInput()
		in.PatientLocation = model.Location{Lat: 40.75 + float64(i)*0.002, Lng: -73.98}
		_, err := l.Create(ctx, in)
		require.NoError(t, err)
	}

	feed, err := l.ListPendingNear(ctx, model.Location{Lat: 40.75, Lng: -73.98}, 10)
	require.NoError(t, err)
	assert.Len(t, feed, PendingFeedLimit)
	for i := 1; i < len(feed); i++ {
		assert.GreaterOrEqual(t, feed[i].DistanceMiles, feed[i-1].DistanceMiles, "feed not nearest first")
	}
}

func TestLedger_AssignedRequestLeavesFeed(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	req, err := l.Create(ctx, createInput())
	require.NoError(t, err)

	_, err = l.TryAssign(ctx, req.ID, "nurse_a")
	require.NoError(t, err)

	feed, err := l.ListPendingNear(ctx, req.PatientLocation, 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestLedger_TryAssignLoser(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	req, _ := l.Create(ctx, createInput())

	_, err := l.TryAssign(ctx, req.ID, "nurse_a")
	require.NoError(t, err)
	_, err = l.TryAssign(ctx, req.ID, "nurse_b")
	assert.ErrorIs(t, err, model.ErrAlreadyAssigned)
}

func TestLedger_CancelFromPending(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	req, _ := l.Create(ctx, createInput())

	got, err := l.Cancel(ctx, req.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.RequestCancelled, got.Status)
	assert.Equal(t, "changed my mind", got.CancelReason)

	feed, _ := l.ListPendingNear(ctx, req.PatientLocation, 10)
	assert.Empty(t, feed)
}

func TestLedger_LatestSampleStaleness(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	base := time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	req, _ := l.Create(ctx, createInput())
	l.TryAssign(ctx, req.ID, "nurse_a")

	sample := model.TrackingSample{Timestamp: base, DistanceToPatientMiles: 2, ETAMinutes: 6}
	require.NoError(t, l.AppendTrackingSample(ctx, req.ID, sample))

	got, stale, err := l.LatestSample(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, stale)

	// 61 seconds later the same sample reads as stale.
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	got, stale, err = l.LatestSample(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, stale)
}

func TestLedger_LatestSample_NoneRecorded(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	req, _ := l.Create(ctx, createInput())

	got, stale, err := l.LatestSample(ctx, req.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, stale)
}

func TestLedger_RebuildPendingIndex(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRequestStore()
	first := NewRequestLedger(store, NewPricingEngine(), repository.NewTrackingCache(nil))

	req, err := first.Create(ctx, createInput())
	require.NoError(t, err)

	// A fresh ledger over the same store starts with an empty index.
	second := NewRequestLedger(store, NewPricingEngine(), repository.NewTrackingCache(nil))
	feed, _ := second.ListPendingNear(ctx, req.PatientLocation, 10)
	assert.Empty(t, feed)

	require.NoError(t, second.RebuildPendingIndex(ctx))
	feed, _ = second.ListPendingNear(ctx, req.PatientLocation, 10)
	assert.Len(t, feed, 1)
}
