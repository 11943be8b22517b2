package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

type snapshotRepo struct {
	conn
}

const snapshotColumns = `id, client_id, source_routine_id, source_code, source_name, source_version, created_at`

const snapshotItemColumns = `id, snapshot_id, day_index, order_index, exercise_key, exercise_name, category,
	sets, reps, load_kg, rest_seconds, notes, active, updated_at`

// Create inserts the snapshot header and every item.
func (r *snapshotRepo) Create(ctx context.Context, snap *domain.RoutineSnapshot) error {
	_, err := r.exec(ctx, `INSERT INTO routine_snapshots (`+snapshotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.ClientID, snap.SourceRoutineID, snap.SourceCode, snap.SourceName, snap.SourceVersion,
		r.d.timeArg(snap.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	for i := range snap.Items {
		it := &snap.Items[i]
		_, err := r.exec(ctx, `INSERT INTO snapshot_items (`+snapshotItemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, snap.ID, it.DayIndex, it.OrderIndex, it.ExerciseKey, it.ExerciseName, it.Category,
			it.Sets, it.Reps, nullFloatArg(it.LoadKg), nullIntArg(it.RestSeconds), it.Notes, it.Active,
			r.d.timeArg(it.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert snapshot item: %w", err)
		}
	}
	return nil
}

// GetByID returns the snapshot with its items ordered by day and position.
func (r *snapshotRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.RoutineSnapshot, error) {
	snap, err := scanSnapshot(r.queryRow(ctx, `SELECT `+snapshotColumns+` FROM routine_snapshots WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	rows, err := r.query(ctx, `SELECT `+snapshotItemColumns+` FROM snapshot_items
		WHERE snapshot_id = ? ORDER BY day_index, order_index, id`, id)
	if err != nil {
		return nil, fmt.Errorf("select snapshot items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snap.Items = make([]domain.SnapshotItem, 0)
	for rows.Next() {
		it, err := scanSnapshotItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot item: %w", err)
		}
		snap.Items = append(snap.Items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot items: %w", err)
	}
	return snap, nil
}

func (r *snapshotRepo) GetItem(ctx context.Context, itemID uuid.UUID) (*domain.SnapshotItem, error) {
	it, err := scanSnapshotItem(r.queryRow(ctx, `SELECT `+snapshotItemColumns+` FROM snapshot_items WHERE id = ?`, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select snapshot item: %w", err)
	}
	return it, nil
}

// UpdateItem writes back the editable fields of an item.
func (r *snapshotRepo) UpdateItem(ctx context.Context, it *domain.SnapshotItem) error {
	res, err := r.exec(ctx, `UPDATE snapshot_items
		SET sets = ?, reps = ?, load_kg = ?, rest_seconds = ?, notes = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		it.Sets, it.Reps, nullFloatArg(it.LoadKg), nullIntArg(it.RestSeconds), it.Notes, it.Active,
		r.d.timeArg(it.UpdatedAt), it.ID)
	if err != nil {
		return fmt.Errorf("update snapshot item: %w", err)
	}
	return expectAffected(res)
}

// ListByClient returns the client's snapshots newest first, without items.
func (r *snapshotRepo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.RoutineSnapshot, error) {
	rows, err := r.query(ctx, `SELECT `+snapshotColumns+` FROM routine_snapshots
		WHERE client_id = ? ORDER BY created_at DESC, id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.RoutineSnapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

func scanSnapshot(row rowScanner) (*domain.RoutineSnapshot, error) {
	var s domain.RoutineSnapshot
	if err := row.Scan(&s.ID, &s.ClientID, &s.SourceRoutineID, &s.SourceCode, &s.SourceName,
		&s.SourceVersion, scanTime(&s.CreatedAt)); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSnapshotItem(row rowScanner) (*domain.SnapshotItem, error) {
	var (
		it   domain.SnapshotItem
		load sql.NullFloat64
		rest sql.NullInt64
	)
	if err := row.Scan(&it.ID, &it.SnapshotID, &it.DayIndex, &it.OrderIndex, &it.ExerciseKey,
		&it.ExerciseName, &it.Category, &it.Sets, &it.Reps, &load, &rest, &it.Notes, &it.Active,
		scanTime(&it.UpdatedAt)); err != nil {
		return nil, err
	}
	it.LoadKg = floatPtr(load)
	it.RestSeconds = intPtr(rest)
	return &it, nil
}
