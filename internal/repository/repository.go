package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
	ErrConflict = RepositoryError("conflict") // Unique constraint hit
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with client and staff identities.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error // ErrConflict on duplicate DNI
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByDNI(ctx context.Context, dni string) (*domain.User, error)
	// Lock takes a row lock on the user for the rest of the transaction.
	Lock(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) error
	SetTrainer(ctx context.Context, clientID uuid.UUID, trainerID *uuid.UUID, at time.Time) error
	ListClients(ctx context.Context, trainerID *uuid.UUID) ([]domain.User, error) // nil = all clients
}

// CatalogRepository defines the interface for the exercise dictionary and
// versioned base routines. Only synchronization writes through it.
type CatalogRepository interface {
	UpsertExercise(ctx context.Context, ex *domain.ExerciseDefinition) error
	GetExercisesByKeys(ctx context.Context, keys []string) (map[string]domain.ExerciseDefinition, error)
	ListExercises(ctx context.Context) ([]domain.ExerciseDefinition, error)
	// GetLatestRoutine returns the highest version of code, without items.
	GetLatestRoutine(ctx context.Context, code string) (*domain.BaseRoutine, error)
	// GetRoutineByID returns one routine version with its items.
	GetRoutineByID(ctx context.Context, id uuid.UUID) (*domain.BaseRoutine, error)
	GetRoutineItems(ctx context.Context, routineID uuid.UUID) ([]domain.BaseRoutineItem, error)
	CreateRoutineVersion(ctx context.Context, routine *domain.BaseRoutine) error // ErrConflict if (code, version) exists
	ListLatestRoutines(ctx context.Context) ([]domain.BaseRoutine, error)
	ListRoutineVersions(ctx context.Context, code string) ([]domain.BaseRoutine, error)
	// LockForSync serializes synchronizations across processes where the backend supports it.
	LockForSync(ctx context.Context) error
}

// SnapshotRepository defines the interface for client-owned routine copies.
type SnapshotRepository interface {
	Create(ctx context.Context, snap *domain.RoutineSnapshot) error // Inserts the snapshot and its items
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RoutineSnapshot, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*domain.SnapshotItem, error)
	UpdateItem(ctx context.Context, item *domain.SnapshotItem) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.RoutineSnapshot, error) // Without items
}

// PlanRepository defines the interface for plan lifecycle rows.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.Plan) error // ErrConflict when the client already has an ACTIVE plan
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
	GetActiveByClient(ctx context.Context, clientID uuid.UUID) (*domain.Plan, error)
	Archive(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Plan, error) // Newest first
}

// ExecutionRepository defines the interface for the append-only execution log.
type ExecutionRepository interface {
	Create(ctx context.Context, rec *domain.ExecutionRecord) error
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]domain.ExecutionRecord, error) // Ordered by recorded_at, id
}

// MeasurementRepository defines the interface for per-date body measurements.
type MeasurementRepository interface {
	GetByClientDate(ctx context.Context, clientID uuid.UUID, date time.Time) (*domain.Measurement, error)
	Create(ctx context.Context, m *domain.Measurement) error // ErrConflict if (client, date) exists
	Update(ctx context.Context, m *domain.Measurement) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Measurement, error) // Ordered by date
}

// AuditRepository defines the interface for the staff action trail.
type AuditRepository interface {
	Record(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) // Newest first
}

// Repositories groups the relational repositories bound to one connection or transaction.
type Repositories interface {
	Users() UserRepository
	Catalog() CatalogRepository
	Snapshots() SnapshotRepository
	Plans() PlanRepository
	Executions() ExecutionRepository
	Measurements() MeasurementRepository
}

// UnitOfWork runs fn inside one transaction. Returning an error rolls back
// every write made through the repositories handed to fn.
type UnitOfWork interface {
	Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// CatalogUnitOfWork is the narrow transaction surface given to synchronization.
// It exposes the catalog and nothing else, so sync cannot reach plans or snapshots.
type CatalogUnitOfWork interface {
	Catalog() CatalogRepository
	WithinCatalogTx(ctx context.Context, fn func(ctx context.Context, catalog CatalogRepository) error) error
}
