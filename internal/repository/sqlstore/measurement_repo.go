package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

type measurementRepo struct {
	conn
}

const measurementColumns = `id, client_id, metric_date, weight_kg, perimeters, notes, created_at, updated_at, recorded_by`

func (r *measurementRepo) GetByClientDate(ctx context.Context, clientID uuid.UUID, date time.Time) (*domain.Measurement, error) {
	m, err := scanMeasurement(r.queryRow(ctx, `SELECT `+measurementColumns+` FROM measurements
		WHERE client_id = ? AND metric_date = ?`, clientID, dateArg(date)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select measurement: %w", err)
	}
	return m, nil
}

// Create inserts a measurement; a second row for the same (client, date)
// fails with repository.ErrConflict.
func (r *measurementRepo) Create(ctx context.Context, m *domain.Measurement) error {
	perimeters, err := jsonArg(m.Perimeters)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, `INSERT INTO measurements (`+measurementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ClientID, dateArg(m.MetricDate), nullFloatArg(m.WeightKg), perimeters, m.Notes,
		r.d.timeArg(m.CreatedAt), r.d.timeArg(m.UpdatedAt), m.RecordedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func (r *measurementRepo) Update(ctx context.Context, m *domain.Measurement) error {
	perimeters, err := jsonArg(m.Perimeters)
	if err != nil {
		return err
	}
	res, err := r.exec(ctx, `UPDATE measurements
		SET weight_kg = ?, perimeters = ?, notes = ?, updated_at = ?, recorded_by = ?
		WHERE id = ?`,
		nullFloatArg(m.WeightKg), perimeters, m.Notes, r.d.timeArg(m.UpdatedAt), m.RecordedBy, m.ID)
	if err != nil {
		return fmt.Errorf("update measurement: %w", err)
	}
	return expectAffected(res)
}

func (r *measurementRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Measurement, error) {
	rows, err := r.query(ctx, `SELECT `+measurementColumns+` FROM measurements
		WHERE client_id = ? ORDER BY metric_date`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Measurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return out, nil
}

func scanMeasurement(row rowScanner) (*domain.Measurement, error) {
	var (
		m          domain.Measurement
		date       string
		weight     sql.NullFloat64
		perimeters sql.NullString
	)
	if err := row.Scan(&m.ID, &m.ClientID, &date, &weight, &perimeters, &m.Notes,
		scanTime(&m.CreatedAt), scanTime(&m.UpdatedAt), &m.RecordedBy); err != nil {
		return nil, err
	}
	var err error
	if m.MetricDate, err = parseDate(date); err != nil {
		return nil, err
	}
	if m.Perimeters, err = parseJSONMap(perimeters); err != nil {
		return nil, err
	}
	m.WeightKg = floatPtr(weight)
	return &m, nil
}
