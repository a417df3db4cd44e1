package service

import (
	"errors"
	"testing"
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// tuesdayNoon is a plain weekday daytime slot: no time surcharges apply.
var tuesdayNoon = time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC)

func TestPrice_BaseOnly(t *testing.T) {
	e := NewPricingEngine()
	got, err := e.Price(model.ServiceHealthConsultation, 1.5, model.UrgencyNormal, tuesdayNoon)
	if err != nil {
		t.Fatalf("Price returned error: %v", err)
	}
	if got.ServiceBasePriceCents != 2500 {
		t.Errorf("base = %d, want 2500", got.ServiceBasePriceCents)
	}
	if got.DistanceFeeCents != 0 || got.UrgencySurchargeCents != 0 || got.TimeSurchargeCents != 0 {
		t.Errorf("unexpected surcharges: %+v", got)
	}
	if got.TotalPriceCents != 2500 {
		t.Errorf("total = %d, want 2500", got.TotalPriceCents)
	}
	if got.PlatformFeeCents != 500 || got.NurseEarningsCents != 2000 {
		t.Errorf("fee/earnings = %d/%d, want 500/2000", got.PlatformFeeCents, got.NurseEarningsCents)
	}
}

func TestPrice_UnknownService(t *testing.T) {
	e := NewPricingEngine()
	_, err := e.Price("home_surgery", 1, model.UrgencyNormal, tuesdayNoon)
	if !errors.Is(err, model.ErrInvalidServiceType) {
		t.Errorf("err = %v, want ErrInvalidServiceType", err)
	}
}

func TestDistanceFeeCents_Boundaries(t *testing.T) {
	cases := []struct {
		miles float64
		want  int64
	}{
		{0, 0},
		{2.0, 0},
		{2.01, 500},
		{5.0, 500},
		{5.01, 1200},
		{10.0, 1200},
		{10.01, 2000},
		{15.0, 2000},
		{15.01, 3000},
		{20.0, 3000},
		{20.01, 4000},
		{100, 4000},
	}
	for _, c := range cases {
		if got := DistanceFeeCents(c.miles); got != c.want {
			t.Errorf("DistanceFeeCents(%v) = %d, want %d", c.miles, got, c.want)
		}
	}
}

func TestTimeSurchargeCents_Bands(t *testing.T) {
	mk := func(day time.Month, date, hour int) time.Time {
		return time.Date(2025, day, date, hour, 30, 0, 0, time.UTC)
	}
	cases := []struct {
		name string
		t    time.Time
		want int64
	}{
		// 2025-03-04 is a Tuesday; 2025-03-08 a Saturday; 2025-03-07 a Friday.
		{"weekday noon", mk(time.March, 4, 12), 0},
		{"weekday evening", mk(time.March, 4, 19), 800},
		{"weekday 22h is evening and late night", mk(time.March, 4, 22), 800 + 1500},
		{"weekday late night", mk(time.March, 4, 23), 1500},
		{"weekday early morning", mk(time.March, 4, 5), 1500},
		{"saturday noon", mk(time.March, 8, 12), 1000},
		{"saturday 23h", mk(time.March, 8, 23), 1000 + 1500},
		{"friday 17h is still weekday", mk(time.March, 7, 17), 0},
		{"friday 19h counts as weekend and evening", mk(time.March, 7, 19), 1000 + 800},
	}
	for _, c := range cases {
		if got := TimeSurchargeCents(c.t); got != c.want {
			t.Errorf("%s: TimeSurchargeCents = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestPrice_SaturdayLateNightIVTherapy(t *testing.T) {
	// iv_therapy, 12 miles, normal urgency, Saturday 23:00:
	// 7500 + 2000 + 0 + (1000 + 1500) = 12000; fee 2400; earnings 9600.
	e := NewPricingEngine()
	at := time.Date(2025, time.March, 8, 23, 0, 0, 0, time.UTC)
	got, err := e.Price(model.ServiceIVTherapy, 12, model.UrgencyNormal, at)
	if err != nil {
		t.Fatalf("Price returned error: %v", err)
	}
	if got.TotalPriceCents != 12000 {
		t.Errorf("total = %d, want 12000", got.TotalPriceCents)
	}
	if got.PlatformFeeCents != 2400 {
		t.Errorf("platform fee = %d, want 2400", got.PlatformFeeCents)
	}
	if got.NurseEarningsCents != 9600 {
		t.Errorf("earnings = %d, want 9600", got.NurseEarningsCents)
	}
}

func TestPrice_UrgentSurcharge(t *testing.T) {
	e := NewPricingEngine()
	normal, _ := e.Price(model.ServiceInjectionService, 3, model.UrgencyNormal, tuesdayNoon)
	urgent, _ := e.Price(model.ServiceInjectionService, 3, model.UrgencyUrgent, tuesdayNoon)
	if urgent.TotalPriceCents-normal.TotalPriceCents != UrgencySurchargeCents {
		t.Errorf("urgent delta = %d, want %d",
			urgent.TotalPriceCents-normal.TotalPriceCents, UrgencySurchargeCents)
	}
}

func TestPrice_EarningsPlusFeeEqualsTotal(t *testing.T) {
	e := NewPricingEngine()
	times := []time.Time{
		tuesdayNoon,
		time.Date(2025, time.March, 7, 19, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 8, 23, 0, 0, 0, time.UTC),
	}
	for st := range DefaultCatalog() {
		for _, miles := range []float64{0, 3.7, 12.2, 25} {
			for _, at := range times {
				b, err := e.Price(st, miles, model.UrgencyUrgent, at)
				if err != nil {
					t.Fatalf("Price(%s) error: %v", st, err)
				}
				if b.PlatformFeeCents+b.NurseEarningsCents != b.TotalPriceCents {
					t.Errorf("%s @ %.1f mi: fee %d + earnings %d != total %d",
						st, miles, b.PlatformFeeCents, b.NurseEarningsCents, b.TotalPriceCents)
				}
			}
		}
	}
}

func TestPrice_Deterministic(t *testing.T) {
	e := NewPricingEngine()
	a, _ := e.Price(model.ServiceWoundCareDressing, 7.3, model.UrgencyUrgent, tuesdayNoon)
	b, _ := e.Price(model.ServiceWoundCareDressing, 7.3, model.UrgencyUrgent, tuesdayNoon)
	if a != b {
		t.Errorf("identical inputs produced different breakdowns: %+v vs %+v", a, b)
	}
}
