package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/feed"
	"rutinasds/routines-app/internal/metrics"
	"rutinasds/routines-app/internal/repository/memory"
	"rutinasds/routines-app/internal/repository/sqlstore"
	"rutinasds/routines-app/internal/storage"
)

const testSecret = "test-secret"

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fixture is a fully wired engine on a throwaway SQLite file. The catalog is
// seeded with baseBatch: RB001 (two days, three items) and RB002 (one day).
type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *sqlstore.Store
	audit   *memory.AuditRepository
	archive *storage.MemoryStorage
	metrics *metrics.Metrics
	clock   *testClock
	deps    Deps

	admin        access.Actor
	coordinator  access.Actor
	trainer      access.Actor
	otherTrainer access.Actor
	client       *domain.User
	clientActor  access.Actor
	seed         *SyncSummary

	identity     IdentityService
	sync         SyncService
	catalog      CatalogService
	assignments  AssignmentService
	plans        PlanService
	executions   ExecutionService
	measurements MeasurementService
	auditLog     AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "routines.db")
	store, err := sqlstore.Open(ctx, sqlstore.SQLite, dsn, sqlstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		t:       t,
		ctx:     ctx,
		store:   store,
		audit:   memory.NewAuditRepository(),
		archive: storage.NewMemoryStorage(),
		metrics: metrics.New(),
		// A Monday, so week-based progress figures are easy to reason about.
		clock: &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	f.deps = Deps{
		Audit:   f.audit,
		Metrics: f.metrics,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:   f.clock.Now,
	}

	f.identity = NewIdentityService(store, testSecret, time.Hour, f.deps)
	f.sync = NewSyncService(store, f.archive, f.deps)
	f.catalog = NewCatalogService(store, f.deps)
	f.assignments = NewAssignmentService(store, f.deps)
	f.plans = NewPlanService(store, f.deps)
	f.executions = NewExecutionService(store, f.deps)
	f.measurements = NewMeasurementService(store, f.deps)
	f.auditLog = NewAuditService(f.deps)

	f.admin = f.actor(f.addUser(domain.RoleAdmin, "20000001", nil))
	f.coordinator = f.actor(f.addUser(domain.RoleCoordinator, "20000002", nil))
	f.trainer = f.actor(f.addUser(domain.RoleTrainer, "20000003", nil))
	f.otherTrainer = f.actor(f.addUser(domain.RoleTrainer, "20000004", nil))
	f.client = f.addUser(domain.RoleClient, "30000001", &f.trainer.ID)
	f.clientActor = f.actor(f.client)

	f.seed, err = f.sync.Sync(ctx, f.coordinator, baseBatch())
	require.NoError(t, err)
	return f
}

func (f *fixture) addUser(role domain.Role, dni string, trainerID *uuid.UUID) *domain.User {
	f.t.Helper()
	now := f.clock.Now()
	u := &domain.User{
		ID: uuid.New(), DNI: dni, FirstName: "Test", LastName: string(role),
		Role: role, Active: true, TrainerID: trainerID, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(f.t, f.store.Users().Create(f.ctx, u))
	return u
}

func (f *fixture) actor(u *domain.User) access.Actor {
	return access.Actor{ID: u.ID, Role: u.Role}
}

// assign gives the fixture client routine code through their trainer.
func (f *fixture) assign(code string) *AssignmentResult {
	f.t.Helper()
	res, err := f.assignments.Assign(f.ctx, f.trainer, f.client.ID, code, 0)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) activePlans(clientID uuid.UUID) int {
	f.t.Helper()
	plans, err := f.store.Plans().ListByClient(f.ctx, clientID)
	require.NoError(f.t, err)
	n := 0
	for _, p := range plans {
		if p.IsActive() {
			n++
		}
	}
	return n
}

func (f *fixture) auditActions() []domain.AuditAction {
	f.t.Helper()
	entries, err := f.audit.List(f.ctx, domain.AuditFilter{Limit: 1000})
	require.NoError(f.t, err)
	out := make([]domain.AuditAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func baseBatch() *feed.Batch {
	return &feed.Batch{
		Exercises: []feed.ExerciseRow{
			{ExternalID: "squat", Name: "Sentadilla", Category: "fuerza", MuscleGroup: "piernas"},
			{ExternalID: "Row", Name: "Remo", Category: "fuerza", MuscleGroup: "espalda"},
			{ExternalID: "press", Name: "Press banca", Category: "fuerza", MuscleGroup: "pecho"},
		},
		Routines: []feed.RoutineRow{
			{Code: "rb001", Name: "Full body"},
			{Code: "RB002", Name: "Torso"},
		},
		Items: []feed.ItemRow{
			{Code: "RB001", Day: "1", Order: "1", ExerciseKey: "squat", Sets: "4", Reps: "8", LoadKg: "60", RestSeconds: "90"},
			{Code: "RB001", Day: "1", Order: "2", ExerciseKey: "press", Sets: "3", Reps: "10"},
			{Code: "RB001", Day: "2", Order: "1", ExerciseKey: "row", Sets: "3", Reps: "12", LoadKg: "40,5", Notes: "agarre prono"},
			{Code: "RB002", Day: "1", Order: "1", ExerciseKey: "press", Sets: "5", Reps: "5", Category: "potencia"},
		},
	}
}

// changedBatch is baseBatch with RB001's squat reps changed.
func changedBatch() *feed.Batch {
	b := baseBatch()
	b.Items[0].Reps = "6"
	return b
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func strPtr(v string) *string     { return &v }
func boolPtr(v bool) *bool        { return &v }
