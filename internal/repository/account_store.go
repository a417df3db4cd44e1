package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// AccountStore resolves nurse profiles. The registry consults it when a
// nurse comes online so discovery results carry real credentials.
type AccountStore interface {
	GetNurse(ctx context.Context, id string) (*model.NurseProfile, error)
}

// PostgresAccountStore reads nurse profiles from the nurses table.
type PostgresAccountStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountStore(pool *pgxpool.Pool) *PostgresAccountStore {
	return &PostgresAccountStore{pool: pool}
}

func (s *PostgresAccountStore) GetNurse(ctx context.Context, id string) (*model.NurseProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	p := &model.NurseProfile{}
	err := s.pool.QueryRow(ctx, `
		SELECT nurse_id, first_name, last_name, specialties, years_experience,
		       average_rating, total_completed_visits, service_radius_miles,
		       verified, active
		FROM nurses
		WHERE nurse_id = $1
	`, id).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Specialties, &p.YearsExperience,
		&p.AverageRating, &p.TotalCompletedVisits, &p.ServiceRadiusMiles,
		&p.Verified, &p.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get nurse %s: %w", id, err)
	}
	return p, nil
}

// StaticAccountStore serves profiles from a fixed map. Used in tests and
// when running without Postgres.
type StaticAccountStore struct {
	mu       sync.RWMutex
	profiles map[string]model.NurseProfile
}

func NewStaticAccountStore(profiles ...model.NurseProfile) *StaticAccountStore {
	s := &StaticAccountStore{profiles: make(map[string]model.NurseProfile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

func (s *StaticAccountStore) Put(p model.NurseProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *StaticAccountStore) GetNurse(_ context.Context, id string) (*model.NurseProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}
