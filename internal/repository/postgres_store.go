package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iamsogoodlo/QuickNurse/internal/model"
)

// PostgresRequestStore is the durable RequestStore. Per-record serialization
// comes from row-level locks; TryAssign is a single conditional UPDATE so
// two nurses racing for one request cannot both win.
type PostgresRequestStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRequestStore creates a store backed by the given pool.
func NewPostgresRequestStore(pool *pgxpool.Pool) *PostgresRequestStore {
	return &PostgresRequestStore{pool: pool}
}

const requestColumns = `
	request_id, patient_id, nurse_id, service_type, urgency,
	special_instructions, preferred_specialties, lat, lng, address,
	status, cancel_reason,
	base_price_cents, distance_fee_cents, urgency_surcharge_cents,
	time_surcharge_cents, total_price_cents, platform_fee_cents,
	nurse_earnings_cents,
	requested_at, nurse_accepted_at, nurse_departed_at, nurse_arrived_at,
	service_started_at, service_completed_at`

// Create inserts a new pending request with its immutable pricing snapshot.
func (s *PostgresRequestStore) Create(ctx context.Context, req *model.ServiceRequest) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	addr, err := json.Marshal(req.PatientAddress)
	if err != nil {
		return fmt.Errorf("create request: marshal address: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO service_requests (
			request_id, patient_id, service_type, urgency,
			special_instructions, preferred_specialties, lat, lng, address,
			status,
			base_price_cents, distance_fee_cents, urgency_surcharge_cents,
			time_surcharge_cents, total_price_cents, platform_fee_cents,
			nurse_earnings_cents, requested_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending',
			$10, $11, $12, $13, $14, $15, $16, $17
		)
	`,
		req.ID, req.PatientID, req.ServiceType, req.Urgency,
		req.SpecialInstructions, req.PreferredSpecialties,
		req.PatientLocation.Lat, req.PatientLocation.Lng, addr,
		req.Pricing.ServiceBasePriceCents, req.Pricing.DistanceFeeCents,
		req.Pricing.UrgencySurchargeCents, req.Pricing.TimeSurchargeCents,
		req.Pricing.TotalPriceCents, req.Pricing.PlatformFeeCents,
		req.Pricing.NurseEarningsCents, req.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("create request %s: %w", req.ID, err)
	}
	return nil
}

// Get fetches a request and its tracking history.
func (s *PostgresRequestStore) Get(ctx context.Context, id string) (*model.ServiceRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE request_id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}

	if req.NurseID != nil {
		req.TrackingData, err = s.samples(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

// TryAssign is the single point of mutual exclusion for assignment: one
// conditional UPDATE checks status and nurse_id and sets both atomically.
// The losing caller's UPDATE matches zero rows.
func (s *PostgresRequestStore) TryAssign(ctx context.Context, id, nurseID string, at time.Time) (*model.ServiceRequest, error) {
	opCtx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	tag, err := s.pool.Exec(opCtx, `
		UPDATE service_requests
		SET nurse_id = $2, status = 'accepted', nurse_accepted_at = $3
		WHERE request_id = $1
		  AND status = 'pending'
		  AND nurse_id IS NULL
	`, id, nurseID, at)
	if err != nil {
		return nil, fmt.Errorf("assign request %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race, or the id is unknown. One lookup tells them apart.
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, model.ErrAlreadyAssigned
	}

	return s.Get(ctx, id)
}

// UpdateStatus advances the state machine under a row lock.
func (s *PostgresRequestStore) UpdateStatus(ctx context.Context, id string, status model.RequestStatus, reason string, at time.Time) (*model.ServiceRequest, error) {
	opCtx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(opCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("update status: begin tx: %w", err)
	}
	defer tx.Rollback(opCtx)

	var current model.RequestStatus
	err = tx.QueryRow(opCtx, `
		SELECT status FROM service_requests WHERE request_id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("update status: lock request %s: %w", id, err)
	}

	if !model.CanTransition(current, status) {
		return nil, model.ErrInvalidTransition
	}

	col := statusTimestampColumn(status)
	query := `UPDATE service_requests SET status = $2, cancel_reason = $3 WHERE request_id = $1`
	if col != "" {
		query = fmt.Sprintf(
			`UPDATE service_requests SET status = $2, cancel_reason = $3, %s = $4 WHERE request_id = $1`, col)
	}

	if col != "" {
		_, err = tx.Exec(opCtx, query, id, status, reason, at)
	} else {
		_, err = tx.Exec(opCtx, query, id, status, reason)
	}
	if err != nil {
		return nil, fmt.Errorf("update status: request %s → %s: %w", id, status, err)
	}

	if err := tx.Commit(opCtx); err != nil {
		return nil, fmt.Errorf("update status: commit: %w", err)
	}

	return s.Get(ctx, id)
}

// AppendSample inserts one tracking sample, guarded on an active assignment.
func (s *PostgresRequestStore) AppendSample(ctx context.Context, id string, sample model.TrackingSample) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tracking_samples (
			request_id, recorded_at, lat, lng, distance_miles,
			eta_minutes, estimated_arrival, speed_mph, accuracy_meters
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE EXISTS (
			SELECT 1 FROM service_requests
			WHERE request_id = $1 AND nurse_id IS NOT NULL
		)
	`,
		id, sample.Timestamp, sample.Location.Lat, sample.Location.Lng,
		sample.DistanceToPatientMiles, sample.ETAMinutes,
		sample.EstimatedArrival, sample.SpeedMph, sample.AccuracyMeters,
	)
	if err != nil {
		return fmt.Errorf("append sample: request %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM service_requests WHERE request_id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("append sample: request %s: %w", id, err)
		}
		if !exists {
			return model.ErrNotFound
		}
		return model.ErrNoActiveAssignment
	}
	return nil
}

// ListPending returns all pending requests (startup index rebuild).
func (s *PostgresRequestStore) ListPending(ctx context.Context) ([]*model.ServiceRequest, error) {
	return s.listWhere(ctx, `status = 'pending'`, nil, 0)
}

// ListByPatient returns a patient's requests, newest first.
func (s *PostgresRequestStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]*model.ServiceRequest, error) {
	return s.listWhere(ctx, `patient_id = $1`, []any{patientID}, limit)
}

// ListByNurse returns a nurse's assigned requests, newest first.
func (s *PostgresRequestStore) ListByNurse(ctx context.Context, nurseID string, limit int) ([]*model.ServiceRequest, error) {
	return s.listWhere(ctx, `nurse_id = $1`, []any{nurseID}, limit)
}

// NurseStats aggregates completed visit earnings for the dashboard.
func (s *PostgresRequestStore) NurseStats(ctx context.Context, nurseID string, dayStart, weekStart time.Time) (*model.NurseStats, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	stats := &model.NurseStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(nurse_earnings_cents) FILTER (WHERE service_completed_at >= $2), 0)::bigint,
			COUNT(*) FILTER (WHERE service_completed_at >= $2)::int,
			COALESCE(SUM(nurse_earnings_cents) FILTER (WHERE service_completed_at >= $3), 0)::bigint,
			COUNT(*) FILTER (WHERE service_completed_at >= $3)::int
		FROM service_requests
		WHERE nurse_id = $1 AND status = 'completed'
	`, nurseID, dayStart, weekStart).Scan(
		&stats.TodayEarningsCents, &stats.TodayPatients,
		&stats.WeekEarningsCents, &stats.WeekPatients,
	)
	if err != nil {
		return nil, fmt.Errorf("nurse stats %s: %w", nurseID, err)
	}
	return stats, nil
}

// ─── Internals ──────────────────────────────────────────────

func (s *PostgresRequestStore) listWhere(ctx context.Context, where string, args []any, limit int) ([]*model.ServiceRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE ` + where + ` ORDER BY requested_at DESC`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*model.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *PostgresRequestStore) samples(ctx context.Context, id string) ([]model.TrackingSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recorded_at, lat, lng, distance_miles, eta_minutes,
		       estimated_arrival, speed_mph, accuracy_meters
		FROM tracking_samples
		WHERE request_id = $1
		ORDER BY recorded_at ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get samples: request %s: %w", id, err)
	}
	defer rows.Close()

	var out []model.TrackingSample
	for rows.Next() {
		var ts model.TrackingSample
		err := rows.Scan(
			&ts.Timestamp, &ts.Location.Lat, &ts.Location.Lng,
			&ts.DistanceToPatientMiles, &ts.ETAMinutes,
			&ts.EstimatedArrival, &ts.SpeedMph, &ts.AccuracyMeters,
		)
		if err != nil {
			return nil, fmt.Errorf("get samples: request %s: %w", id, err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*model.ServiceRequest, error) {
	req := &model.ServiceRequest{}
	var addr []byte
	err := row.Scan(
		&req.ID, &req.PatientID, &req.NurseID, &req.ServiceType, &req.Urgency,
		&req.SpecialInstructions, &req.PreferredSpecialties,
		&req.PatientLocation.Lat, &req.PatientLocation.Lng, &addr,
		&req.Status, &req.CancelReason,
		&req.Pricing.ServiceBasePriceCents, &req.Pricing.DistanceFeeCents,
		&req.Pricing.UrgencySurchargeCents, &req.Pricing.TimeSurchargeCents,
		&req.Pricing.TotalPriceCents, &req.Pricing.PlatformFeeCents,
		&req.Pricing.NurseEarningsCents,
		&req.RequestedAt, &req.NurseAcceptedAt, &req.NurseDepartedAt,
		&req.NurseArrivedAt, &req.ServiceStartedAt, &req.ServiceCompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(addr) > 0 {
		if err := json.Unmarshal(addr, &req.PatientAddress); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	return req, nil
}

// statusTimestampColumn maps a status to the lifecycle timestamp it stamps.
func statusTimestampColumn(status model.RequestStatus) string {
	switch status {
	case model.RequestAccepted:
		return "nurse_accepted_at"
	case model.RequestEnRoute:
		return "nurse_departed_at"
	case model.RequestArrived:
		return "nurse_arrived_at"
	case model.RequestInProgress:
		return "service_started_at"
	case model.RequestCompleted:
		return "service_completed_at"
	default:
		return ""
	}
}
