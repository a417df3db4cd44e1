package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
	"github.com/iamsogoodlo/QuickNurse/internal/notify"
	"github.com/iamsogoodlo/QuickNurse/pkg/geo"
)

// MaxDispatchCandidates caps how many nurses are pinged about a new request.
const MaxDispatchCandidates = 5

// MatchingService pairs pending requests with available nurses: candidate
// discovery for patients, feeds and the accept race for nurses.
type MatchingService struct {
	registry *NurseRegistry
	ledger   *RequestLedger
	pricing  *PricingEngine
	gateway  notify.Gateway

	defaultRadiusMiles float64

	// declined remembers which nurses passed on which request so their
	// feeds stop showing it. In-memory only; resets on restart.
	mu       sync.Mutex
	declined map[string]map[string]struct{}
}

// DiscoverInput is a patient-side candidate search.
type DiscoverInput struct {
	PatientLocation model.Location
	ServiceType     model.ServiceType
	Urgency         model.Urgency
	Specialties     []string
	RadiusMiles     float64
	Limit           int
}

func NewMatchingService(registry *NurseRegistry, ledger *RequestLedger, pricing *PricingEngine, gateway notify.Gateway, defaultRadiusMiles float64) *MatchingService {
	if defaultRadiusMiles <= 0 {
		defaultRadiusMiles = 10
	}
	return &MatchingService{
		registry:           registry,
		ledger:             ledger,
		pricing:            pricing,
		gateway:            gateway,
		defaultRadiusMiles: defaultRadiusMiles,
		declined:           make(map[string]map[string]struct{}),
	}
}

// FindCandidates returns available nurses near the patient, nearest first,
// each with a distance, an arrival estimate, and a price preview for the
// requested service at that distance.
func (m *MatchingService) FindCandidates(ctx context.Context, in DiscoverInput) ([]model.CandidateNurse, error) {
	if !in.PatientLocation.Valid() {
		return nil, model.ErrMissingLocation
	}
	if _, err := m.pricing.Lookup(in.ServiceType); err != nil {
		return nil, err
	}
	if in.RadiusMiles <= 0 {
		in.RadiusMiles = m.defaultRadiusMiles
	}
	if in.Limit <= 0 {
		in.Limit = 20
	}
	if in.Urgency == "" {
		in.Urgency = model.UrgencyNormal
	}

	now := time.Now().UTC()
	matches := m.registry.DiscoveryIndex().Query(in.PatientLocation, in.RadiusMiles, 0)

	out := make([]model.CandidateNurse, 0, in.Limit)
	for _, match := range matches {
		if len(out) >= in.Limit {
			break
		}
		nurse, err := m.registry.Snapshot(ctx, match.ID)
		if err != nil {
			continue
		}
		if !eligible(nurse, in.Specialties, match.DistanceMiles) {
			continue
		}

		pricing, err := m.pricing.Price(in.ServiceType, match.DistanceMiles, in.Urgency, now)
		if err != nil {
			return nil, err
		}
		out = append(out, model.CandidateNurse{
			NurseID:                 nurse.Profile.ID,
			FirstName:               nurse.Profile.FirstName,
			LastName:                nurse.Profile.LastName,
			Specialties:             nurse.Profile.Specialties,
			YearsExperience:         nurse.Profile.YearsExperience,
			AverageRating:           nurse.Profile.AverageRating,
			TotalCompletedVisits:    nurse.Profile.TotalCompletedVisits,
			DistanceMiles:           match.DistanceMiles,
			EstimatedArrivalMinutes: geo.ArrivalEstimateMinutes(match.DistanceMiles),
			Pricing:                 pricing,
		})
	}
	return out, nil
}

// Dispatch notifies the nearest eligible nurses about a fresh request.
// Fire and forget: the request stays pending until someone accepts.
func (m *MatchingService) Dispatch(ctx context.Context, req *model.ServiceRequest) {
	matches := m.registry.DiscoveryIndex().Query(req.PatientLocation, 25, 0)

	notified := 0
	for _, match := range matches {
		if notified >= MaxDispatchCandidates {
			break
		}
		nurse, err := m.registry.Snapshot(ctx, match.ID)
		if err != nil || !eligible(nurse, req.PreferredSpecialties, match.DistanceMiles) {
			continue
		}
		m.gateway.Notify(ctx, notify.Event{
			Type:        notify.EventNewRequest,
			Role:        notify.RoleNurse,
			RecipientID: nurse.Profile.ID,
			Payload: model.PendingRequest{
				Request:       req,
				DistanceMiles: match.DistanceMiles,
			},
		})
		notified++
	}
	log.Printf("[matching] request %s dispatched to %d nurses", req.ID, notified)
}

// DispatchTo pings a single requested nurse about a direct request. The
// nurse must be online and available right now.
func (m *MatchingService) DispatchTo(ctx context.Context, req *model.ServiceRequest, nurseID string) error {
	nurse, err := m.registry.Snapshot(ctx, nurseID)
	if err != nil {
		return err
	}
	if !nurse.IsOnline || nurse.Status != model.NurseAvailable {
		return model.ErrNurseUnavailable
	}

	distance := 0.0
	if nurse.GeneralLocation != nil {
		distance = geo.Miles(nurse.GeneralLocation.Location, req.PatientLocation)
	}
	m.gateway.Notify(ctx, notify.Event{
		Type:        notify.EventNewRequest,
		Role:        notify.RoleNurse,
		RecipientID: nurseID,
		Payload: model.PendingRequest{
			Request:       req,
			DistanceMiles: distance,
		},
	})
	log.Printf("[matching] request %s dispatched directly to nurse %s", req.ID, nurseID)
	return nil
}

// Accept is the nurse side of the assignment race. The nurse must be
// online and available; the ledger's conditional assign picks the winner.
// On success the nurse goes busy and the patient is told who is coming.
func (m *MatchingService) Accept(ctx context.Context, requestID, nurseID string) (*model.ServiceRequest, error) {
	nurse, err := m.registry.Snapshot(ctx, nurseID)
	if err != nil {
		return nil, err
	}
	if !nurse.IsOnline || nurse.Status != model.NurseAvailable {
		return nil, model.ErrNurseUnavailable
	}

	req, err := m.ledger.TryAssign(ctx, requestID, nurseID)
	if err != nil {
		return nil, err
	}

	if _, err := m.registry.SetStatus(ctx, nurseID, model.NurseBusy); err != nil {
		log.Printf("[matching] nurse %s status update after accept failed: %v", nurseID, err)
	}
	m.Forget(requestID)

	m.gateway.Notify(ctx, notify.Event{
		Type:        notify.EventStatusChanged,
		Role:        notify.RolePatient,
		RecipientID: req.PatientID,
		Payload:     req,
	})
	return req, nil
}

// VerifyNurseOnline checks whether a specific nurse can take a request
// right now. Patients call this before requesting a nurse they used before.
func (m *MatchingService) VerifyNurseOnline(ctx context.Context, nurseID string) (bool, error) {
	nurse, err := m.registry.Snapshot(ctx, nurseID)
	if err != nil {
		return false, err
	}
	return nurse.IsOnline && nurse.Status == model.NurseAvailable, nil
}

// Decline hides a request from this nurse's feed. The request itself is
// untouched and other nurses can still take it.
func (m *MatchingService) Decline(_ context.Context, requestID, nurseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.declined[nurseID]
	if !ok {
		set = make(map[string]struct{})
		m.declined[nurseID] = set
	}
	set[requestID] = struct{}{}
}

// Forget drops a request from every nurse's declined set. Called once the
// request leaves pending (accepted or cancelled) so the sets do not grow
// without bound.
func (m *MatchingService) Forget(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for nurseID, set := range m.declined {
		delete(set, requestID)
		if len(set) == 0 {
			delete(m.declined, nurseID)
		}
	}
}

// PendingFeedForNurse returns open requests near the nurse's general
// location, minus anything they already declined.
func (m *MatchingService) PendingFeedForNurse(ctx context.Context, nurseID string, radiusMiles float64) ([]model.PendingRequest, error) {
	nurse, err := m.registry.Snapshot(ctx, nurseID)
	if err != nil {
		return nil, err
	}
	if !nurse.IsOnline || nurse.GeneralLocation == nil {
		return nil, model.ErrNurseUnavailable
	}
	if radiusMiles <= 0 {
		radiusMiles = nurse.Profile.ServiceRadiusMiles
	}
	if radiusMiles <= 0 {
		radiusMiles = m.defaultRadiusMiles
	}

	feed, err := m.ledger.ListPendingNear(ctx, nurse.GeneralLocation.Location, radiusMiles)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	declined := m.declined[nurseID]
	m.mu.Unlock()

	out := feed[:0]
	for _, item := range feed {
		if _, skip := declined[item.Request.ID]; skip {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// eligible applies the matching filters: online, available, verified and
// active account, inside the nurse's own service radius, and sharing at
// least one preferred specialty when the patient names any.
func eligible(nurse *model.Nurse, wantSpecialties []string, distanceMiles float64) bool {
	if !nurse.IsOnline || nurse.Status != model.NurseAvailable {
		return false
	}
	if !nurse.Profile.Verified || !nurse.Profile.Active {
		return false
	}
	if nurse.Profile.ServiceRadiusMiles > 0 && distanceMiles > nurse.Profile.ServiceRadiusMiles {
		return false
	}
	if len(wantSpecialties) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(nurse.Profile.Specialties))
	for _, s := range nurse.Profile.Specialties {
		have[s] = struct{}{}
	}
	for _, want := range wantSpecialties {
		if _, ok := have[want]; ok {
			return true
		}
	}
	return false
}
