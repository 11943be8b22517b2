package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
)

type executionRepo struct {
	conn
}

const executionColumns = `id, plan_id, client_id, routine_day, recorded_at, performed_on, note, recorded_by`

// Create appends a record. Records are never deduplicated.
func (r *executionRepo) Create(ctx context.Context, rec *domain.ExecutionRecord) error {
	_, err := r.exec(ctx, `INSERT INTO executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PlanID, rec.ClientID, rec.RoutineDay, r.d.timeArg(rec.RecordedAt),
		nullDateArg(rec.PerformedOn), rec.Note, rec.RecordedBy)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (r *executionRepo) ListByPlan(ctx context.Context, planID uuid.UUID) ([]domain.ExecutionRecord, error) {
	rows, err := r.query(ctx, `SELECT `+executionColumns+` FROM executions
		WHERE plan_id = ? ORDER BY recorded_at, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.ExecutionRecord, 0)
	for rows.Next() {
		var (
			rec       domain.ExecutionRecord
			performed sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.ClientID, &rec.RoutineDay, scanTime(&rec.RecordedAt),
			&performed, &rec.Note, &rec.RecordedBy); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if performed.Valid {
			d, err := parseDate(performed.String)
			if err != nil {
				return nil, err
			}
			rec.PerformedOn = &d
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}
