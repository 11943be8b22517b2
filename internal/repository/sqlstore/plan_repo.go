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

type planRepo struct {
	conn
}

const planColumns = `id, client_id, snapshot_id, status, frequency, created_at, archived_at`

// Create inserts a plan. When it is ACTIVE and the client already has an
// ACTIVE plan, the partial unique index rejects it with repository.ErrConflict.
func (r *planRepo) Create(ctx context.Context, p *domain.Plan) error {
	_, err := r.exec(ctx, `INSERT INTO plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, p.SnapshotID, string(p.Status), p.Frequency, r.d.timeArg(p.CreatedAt), r.d.nullTimeArg(p.ArchivedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (r *planRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	return r.getOne(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
}

func (r *planRepo) GetActiveByClient(ctx context.Context, clientID uuid.UUID) (*domain.Plan, error) {
	return r.getOne(ctx, `SELECT `+planColumns+` FROM plans WHERE client_id = ? AND status = ?`,
		clientID, string(domain.PlanActive))
}

func (r *planRepo) getOne(ctx context.Context, query string, args ...any) (*domain.Plan, error) {
	p, err := scanPlan(r.queryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select plan: %w", err)
	}
	return p, nil
}

// Archive flips an ACTIVE plan to ARCHIVED. Archiving a plan that is not
// ACTIVE returns repository.ErrNotFound.
func (r *planRepo) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.exec(ctx, `UPDATE plans SET status = ?, archived_at = ? WHERE id = ? AND status = ?`,
		string(domain.PlanArchived), r.d.timeArg(at), id, string(domain.PlanActive))
	if err != nil {
		return fmt.Errorf("archive plan: %w", err)
	}
	return expectAffected(res)
}

func (r *planRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Plan, error) {
	rows, err := r.query(ctx, `SELECT `+planColumns+` FROM plans WHERE client_id = ?
		ORDER BY created_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Plan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return out, nil
}

func scanPlan(row rowScanner) (*domain.Plan, error) {
	var (
		p      domain.Plan
		status string
	)
	if err := row.Scan(&p.ID, &p.ClientID, &p.SnapshotID, &status, &p.Frequency, scanTime(&p.CreatedAt),
		nullTime{dst: &p.ArchivedAt}); err != nil {
		return nil, err
	}
	p.Status = domain.PlanStatus(status)
	return &p, nil
}
