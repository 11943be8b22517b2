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

type userRepo struct {
	conn
}

const userColumns = `id, dni, first_name, last_name, role, active, trainer_id, password_hash, created_at, updated_at`

// Create inserts a new user. A duplicate DNI yields repository.ErrConflict.
func (r *userRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := r.exec(ctx, `INSERT INTO app_users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.DNI, u.FirstName, u.LastName, string(u.Role), u.Active,
		uuidArg(u.TrainerID), u.PasswordHash, r.d.timeArg(u.CreatedAt), r.d.timeArg(u.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM app_users WHERE id = ?`, id)
}

func (r *userRepo) GetByDNI(ctx context.Context, dni string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM app_users WHERE dni = ?`, dni)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	u, err := scanUser(r.queryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// Lock holds a row lock on the user until the surrounding transaction ends.
func (r *userRepo) Lock(ctx context.Context, id uuid.UUID) error {
	var locked string
	if err := r.queryRow(ctx, r.d.lockUserSQL(), id).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (r *userRepo) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error {
	res, err := r.exec(ctx, `UPDATE app_users SET active = ?, updated_at = ? WHERE id = ?`,
		active, r.d.timeArg(at), id)
	if err != nil {
		return fmt.Errorf("update user active: %w", err)
	}
	return expectAffected(res)
}

// SetTrainer sets or clears the trainer a client is assigned to.
func (r *userRepo) SetTrainer(ctx context.Context, clientID uuid.UUID, trainerID *uuid.UUID, at time.Time) error {
	res, err := r.exec(ctx, `UPDATE app_users SET trainer_id = ?, updated_at = ? WHERE id = ? AND role = ?`,
		uuidArg(trainerID), r.d.timeArg(at), clientID, string(domain.RoleClient))
	if err != nil {
		return fmt.Errorf("update user trainer: %w", err)
	}
	return expectAffected(res)
}

// ListClients returns clients ordered by last and first name. A nil trainerID
// lists every client.
func (r *userRepo) ListClients(ctx context.Context, trainerID *uuid.UUID) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_users WHERE role = ?`
	args := []any{string(domain.RoleClient)}
	if trainerID != nil {
		query += ` AND trainer_id = ?`
		args = append(args, *trainerID)
	}
	query += ` ORDER BY last_name, first_name, dni`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u       domain.User
		role    string
		trainer uuid.NullUUID
	)
	if err := row.Scan(&u.ID, &u.DNI, &u.FirstName, &u.LastName, &role, &u.Active, &trainer,
		&u.PasswordHash, scanTime(&u.CreatedAt), scanTime(&u.UpdatedAt)); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	if trainer.Valid {
		id := trainer.UUID
		u.TrainerID = &id
	}
	return &u, nil
}

func uuidArg(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
