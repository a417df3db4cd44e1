package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to RequestStatus }{
		{RequestPending, RequestNurseAssigned},
		{RequestPending, RequestAccepted},
		{RequestPending, RequestCancelled},
		{RequestNurseAssigned, RequestAccepted},
		{RequestAccepted, RequestEnRoute},
		{RequestAccepted, RequestNoShow},
		{RequestEnRoute, RequestArrived},
		{RequestEnRoute, RequestNoShow},
		{RequestArrived, RequestInProgress},
		{RequestInProgress, RequestCompleted},
		{RequestInProgress, RequestCancelled},
	}
	for _, c := range allowed {
		if !CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", c.from, c.to)
		}
	}

	forbidden := []struct{ from, to RequestStatus }{
		{RequestPending, RequestCompleted},
		{RequestPending, RequestEnRoute},
		{RequestAccepted, RequestInProgress},
		{RequestArrived, RequestNoShow},
		{RequestCompleted, RequestCancelled},
		{RequestCancelled, RequestPending},
		{RequestNoShow, RequestAccepted},
		{RequestEnRoute, RequestEnRoute},
	}
	for _, c := range forbidden {
		if CanTransition(c.from, c.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", c.from, c.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []RequestStatus{RequestCompleted, RequestCancelled, RequestNoShow} {
		if !Terminal(s) {
			t.Errorf("Terminal(%s) = false, want true", s)
		}
	}
	for _, s := range []RequestStatus{RequestPending, RequestAccepted, RequestEnRoute, RequestArrived, RequestInProgress} {
		if Terminal(s) {
			t.Errorf("Terminal(%s) = true, want false", s)
		}
	}
}

func TestLocationValid(t *testing.T) {
	cases := []struct {
		loc  Location
		want bool
	}{
		{Location{Lat: 40.7, Lng: -74.0}, true},
		{Location{}, false},
		{Location{Lat: 91, Lng: 0.1}, false},
		{Location{Lat: 0.1, Lng: 181}, false},
		{Location{Lat: -90, Lng: 180}, true},
	}
	for _, c := range cases {
		if got := c.loc.Valid(); got != c.want {
			t.Errorf("Valid(%+v) = %v, want %v", c.loc, got, c.want)
		}
	}
}

func TestActiveJobStatus(t *testing.T) {
	for _, s := range []NurseStatus{NurseBusy, NurseEnRoute, NurseWithPatient} {
		if !ActiveJobStatus(s) {
			t.Errorf("ActiveJobStatus(%s) = false, want true", s)
		}
	}
	for _, s := range []NurseStatus{NurseOffline, NurseAvailable, NurseOnBreak} {
		if ActiveJobStatus(s) {
			t.Errorf("ActiveJobStatus(%s) = true, want false", s)
		}
	}
}

func TestLatestSample(t *testing.T) {
	req := &ServiceRequest{}
	if req.LatestSample() != nil {
		t.Error("LatestSample on empty trail should be nil")
	}
	req.TrackingData = []TrackingSample{
		{DistanceToPatientMiles: 3},
		{DistanceToPatientMiles: 1},
	}
	if got := req.LatestSample(); got == nil || got.DistanceToPatientMiles != 1 {
		t.Errorf("LatestSample = %+v, want the last appended sample", got)
	}
}
