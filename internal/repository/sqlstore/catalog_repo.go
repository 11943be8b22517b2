package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

type catalogRepo struct {
	conn
}

// UpsertExercise inserts or refreshes an exercise keyed by its external id.
// The stored row id is written back into ex.
func (r *catalogRepo) UpsertExercise(ctx context.Context, ex *domain.ExerciseDefinition) error {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	err := r.queryRow(ctx, `
		INSERT INTO exercises (id, external_id, name, category, muscle_group, description, video_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			muscle_group = excluded.muscle_group,
			description = excluded.description,
			video_url = excluded.video_url,
			updated_at = excluded.updated_at
		RETURNING id`,
		ex.ID, ex.ExternalID, ex.Name, ex.Category, ex.MuscleGroup, ex.Description, ex.VideoURL,
		r.d.timeArg(ex.UpdatedAt),
	).Scan(&ex.ID)
	if err != nil {
		return fmt.Errorf("upsert exercise %s: %w", ex.ExternalID, err)
	}
	return nil
}

const exerciseColumns = `id, external_id, name, category, muscle_group, description, video_url, updated_at`

// GetExercisesByKeys returns the stored exercises among keys, indexed by external id.
func (r *catalogRepo) GetExercisesByKeys(ctx context.Context, keys []string) (map[string]domain.ExerciseDefinition, error) {
	out := make(map[string]domain.ExerciseDefinition, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := r.query(ctx, `SELECT `+exerciseColumns+` FROM exercises WHERE external_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("select exercises: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		out[ex.ExternalID] = ex
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return out, nil
}

func (r *catalogRepo) ListExercises(ctx context.Context) ([]domain.ExerciseDefinition, error) {
	rows, err := r.query(ctx, `SELECT `+exerciseColumns+` FROM exercises ORDER BY name, external_id`)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.ExerciseDefinition, 0)
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return out, nil
}

func scanExercise(row rowScanner) (domain.ExerciseDefinition, error) {
	var ex domain.ExerciseDefinition
	err := row.Scan(&ex.ID, &ex.ExternalID, &ex.Name, &ex.Category, &ex.MuscleGroup,
		&ex.Description, &ex.VideoURL, scanTime(&ex.UpdatedAt))
	return ex, err
}

const routineColumns = `id, code, name, version, content_hash, created_at`

func (r *catalogRepo) GetLatestRoutine(ctx context.Context, code string) (*domain.BaseRoutine, error) {
	br, err := scanRoutine(r.queryRow(ctx,
		`SELECT `+routineColumns+` FROM base_routines WHERE code = ? ORDER BY version DESC LIMIT 1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select latest routine %s: %w", code, err)
	}
	return br, nil
}

func (r *catalogRepo) GetRoutineByID(ctx context.Context, id uuid.UUID) (*domain.BaseRoutine, error) {
	br, err := scanRoutine(r.queryRow(ctx, `SELECT `+routineColumns+` FROM base_routines WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select routine: %w", err)
	}
	if br.Items, err = r.GetRoutineItems(ctx, br.ID); err != nil {
		return nil, err
	}
	return br, nil
}

func (r *catalogRepo) GetRoutineItems(ctx context.Context, routineID uuid.UUID) ([]domain.BaseRoutineItem, error) {
	rows, err := r.query(ctx, `
		SELECT id, routine_id, day_index, order_index, exercise_key, exercise_name, category,
		       sets, reps, load_kg, rest_seconds, notes
		FROM base_routine_items WHERE routine_id = ?
		ORDER BY day_index, order_index`, routineID)
	if err != nil {
		return nil, fmt.Errorf("select routine items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]domain.BaseRoutineItem, 0)
	for rows.Next() {
		var (
			it   domain.BaseRoutineItem
			load sql.NullFloat64
			rest sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.RoutineID, &it.DayIndex, &it.OrderIndex, &it.ExerciseKey,
			&it.ExerciseName, &it.Category, &it.Sets, &it.Reps, &load, &rest, &it.Notes); err != nil {
			return nil, fmt.Errorf("scan routine item: %w", err)
		}
		it.LoadKg = floatPtr(load)
		it.RestSeconds = intPtr(rest)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routine items: %w", err)
	}
	return items, nil
}

// CreateRoutineVersion inserts a routine version and all of its items.
func (r *catalogRepo) CreateRoutineVersion(ctx context.Context, br *domain.BaseRoutine) error {
	_, err := r.exec(ctx, `INSERT INTO base_routines (`+routineColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		br.ID, br.Code, br.Name, br.Version, br.ContentHash, r.d.timeArg(br.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert routine %s v%d: %w", br.Code, br.Version, err)
	}
	for i := range br.Items {
		it := &br.Items[i]
		it.RoutineID = br.ID
		_, err := r.exec(ctx, `
			INSERT INTO base_routine_items (id, routine_id, day_index, order_index, exercise_key, exercise_name,
				category, sets, reps, load_kg, rest_seconds, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.RoutineID, it.DayIndex, it.OrderIndex, it.ExerciseKey, it.ExerciseName,
			it.Category, it.Sets, it.Reps, nullFloatArg(it.LoadKg), nullIntArg(it.RestSeconds), it.Notes)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrConflict
			}
			return fmt.Errorf("insert routine item: %w", err)
		}
	}
	return nil
}

// ListLatestRoutines returns the current version of every routine code, without items.
func (r *catalogRepo) ListLatestRoutines(ctx context.Context) ([]domain.BaseRoutine, error) {
	return r.listRoutines(ctx, `
		SELECT `+routineColumns+` FROM base_routines b
		WHERE b.version = (SELECT MAX(version) FROM base_routines WHERE code = b.code)
		ORDER BY b.code`)
}

// ListRoutineVersions returns every stored version of code, newest first.
func (r *catalogRepo) ListRoutineVersions(ctx context.Context, code string) ([]domain.BaseRoutine, error) {
	return r.listRoutines(ctx,
		`SELECT `+routineColumns+` FROM base_routines WHERE code = ? ORDER BY version DESC`, code)
}

func (r *catalogRepo) listRoutines(ctx context.Context, query string, args ...any) ([]domain.BaseRoutine, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.BaseRoutine, 0)
	for rows.Next() {
		br, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		out = append(out, *br)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routines: %w", err)
	}
	return out, nil
}

func (r *catalogRepo) LockForSync(ctx context.Context) error {
	return r.d.lockForSync(ctx, r.conn)
}

func scanRoutine(row rowScanner) (*domain.BaseRoutine, error) {
	var br domain.BaseRoutine
	if err := row.Scan(&br.ID, &br.Code, &br.Name, &br.Version, &br.ContentHash, scanTime(&br.CreatedAt)); err != nil {
		return nil, err
	}
	return &br, nil
}
