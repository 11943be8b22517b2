package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "routines.db")
	s, err := Open(context.Background(), SQLite, dsn, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var testNow = time.Date(2026, 3, 2, 10, 30, 0, 123456000, time.UTC)

func seedClient(t *testing.T, s *Store, dni string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID: uuid.New(), DNI: dni, FirstName: "Ana", LastName: "Gómez",
		Role: domain.RoleClient, Active: true, CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func seedSnapshot(t *testing.T, s *Store, clientID uuid.UUID) *domain.RoutineSnapshot {
	t.Helper()
	load := 40.0
	routine := &domain.BaseRoutine{
		ID: uuid.New(), Code: "RB001", Name: "Full body", Version: 1,
		Items: []domain.BaseRoutineItem{
			{ID: uuid.New(), DayIndex: 1, OrderIndex: 1, ExerciseKey: "squat", ExerciseName: "Squat", Sets: "3", Reps: "10", LoadKg: &load},
			{ID: uuid.New(), DayIndex: 2, OrderIndex: 1, ExerciseKey: "row", ExerciseName: "Row", Sets: "3", Reps: "12"},
		},
	}
	snap := domain.NewSnapshot(clientID, routine, testNow)
	require.NoError(t, s.Snapshots().Create(context.Background(), snap))
	return snap
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y IN (?, ?)`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)`, Postgres.rebind(q))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:x.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", sqliteDSN("file:x.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", sqliteDSN("file:x.db?mode=rwc"))
	full := "file:x.db?_pragma=busy_timeout(100)&_pragma=foreign_keys(1)&_txlock=deferred"
	assert.Equal(t, full, sqliteDSN(full))
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := seedClient(t, s, "30123456")

	got, err := s.Users().GetByDNI(ctx, "30123456")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.RoleClient, got.Role)
	assert.True(t, got.Active)
	assert.Nil(t, got.TrainerID)
	assert.True(t, got.CreatedAt.Equal(testNow))

	dup := &domain.User{ID: uuid.New(), DNI: "30123456", Role: domain.RoleClient, Active: true, CreatedAt: testNow, UpdatedAt: testNow}
	assert.ErrorIs(t, s.Users().Create(ctx, dup), repository.ErrConflict)
	_, err = s.Users().GetByID(ctx, dup.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	trainer := &domain.User{ID: uuid.New(), DNI: "20111222", Role: domain.RoleTrainer, Active: true, PasswordHash: "x", CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, s.Users().Create(ctx, trainer))
	require.NoError(t, s.Users().SetTrainer(ctx, u.ID, &trainer.ID, testNow))
	clients, err := s.Users().ListClients(ctx, &trainer.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.NotNil(t, clients[0].TrainerID)
	assert.Equal(t, trainer.ID, *clients[0].TrainerID)

	require.NoError(t, s.Users().SetActive(ctx, u.ID, false, testNow.Add(time.Hour)))
	got, err = s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, s.Users().SetActive(ctx, uuid.New(), false, testNow), repository.ErrNotFound)
	assert.ErrorIs(t, s.Users().Lock(ctx, uuid.New()), repository.ErrNotFound)
	assert.NoError(t, s.Users().Lock(ctx, u.ID))
}

func TestPlanRepo_OneActivePerClient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	client := seedClient(t, s, "30123456")
	snap1 := seedSnapshot(t, s, client.ID)
	snap2 := seedSnapshot(t, s, client.ID)

	first := &domain.Plan{ID: uuid.New(), ClientID: client.ID, SnapshotID: snap1.ID, Status: domain.PlanActive, CreatedAt: testNow}
	require.NoError(t, s.Plans().Create(ctx, first))

	second := &domain.Plan{ID: uuid.New(), ClientID: client.ID, SnapshotID: snap2.ID, Status: domain.PlanActive, Frequency: 3, CreatedAt: testNow.Add(time.Minute)}
	assert.ErrorIs(t, s.Plans().Create(ctx, second), repository.ErrConflict)

	require.NoError(t, s.Plans().Archive(ctx, first.ID, testNow.Add(time.Minute)))
	assert.ErrorIs(t, s.Plans().Archive(ctx, first.ID, testNow.Add(time.Minute)), repository.ErrNotFound)
	require.NoError(t, s.Plans().Create(ctx, second))

	active, err := s.Plans().GetActiveByClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, 3, active.Frequency)

	plans, err := s.Plans().ListByClient(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, second.ID, plans[0].ID)
	assert.Equal(t, domain.PlanArchived, plans[1].Status)
	require.NotNil(t, plans[1].ArchivedAt)
	assert.True(t, plans[1].ArchivedAt.Equal(testNow.Add(time.Minute)))
}

func TestWithinTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	id := uuid.New()
	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		u := &domain.User{ID: id, DNI: "1234567", Role: domain.RoleClient, Active: true, CreatedAt: testNow, UpdatedAt: testNow}
		require.NoError(t, tx.Users().Create(ctx, u))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.Users().GetByID(ctx, id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCatalogRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cat := s.Catalog()

	ex := &domain.ExerciseDefinition{ExternalID: "squat", Name: "Squat", UpdatedAt: testNow}
	require.NoError(t, cat.UpsertExercise(ctx, ex))
	firstID := ex.ID

	again := &domain.ExerciseDefinition{ExternalID: "squat", Name: "Back squat", Category: "legs", UpdatedAt: testNow}
	require.NoError(t, cat.UpsertExercise(ctx, again))
	assert.Equal(t, firstID, again.ID, "upsert keeps the stored id")

	found, err := cat.GetExercisesByKeys(ctx, []string{"squat", "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Back squat", found["squat"].Name)

	load := 50.0
	rest := 90
	v1 := &domain.BaseRoutine{ID: uuid.New(), Code: "RB001", Name: "Full body", Version: 1, ContentHash: "h1", CreatedAt: testNow,
		Items: []domain.BaseRoutineItem{
			{ID: uuid.New(), DayIndex: 1, OrderIndex: 1, ExerciseKey: "squat", ExerciseName: "Back squat", LoadKg: &load, RestSeconds: &rest},
		}}
	require.NoError(t, cat.CreateRoutineVersion(ctx, v1))

	dupVersion := &domain.BaseRoutine{ID: uuid.New(), Code: "RB001", Name: "Full body", Version: 1, ContentHash: "h2", CreatedAt: testNow}
	assert.ErrorIs(t, cat.CreateRoutineVersion(ctx, dupVersion), repository.ErrConflict)

	v2 := &domain.BaseRoutine{ID: uuid.New(), Code: "RB001", Name: "Full body", Version: 2, ContentHash: "h2", CreatedAt: testNow.Add(time.Hour),
		Items: []domain.BaseRoutineItem{{ID: uuid.New(), DayIndex: 1, OrderIndex: 1, ExerciseKey: "squat", ExerciseName: "Back squat"}}}
	require.NoError(t, cat.CreateRoutineVersion(ctx, v2))
	other := &domain.BaseRoutine{ID: uuid.New(), Code: "RB002", Name: "Upper", Version: 1, ContentHash: "h3", CreatedAt: testNow,
		Items: []domain.BaseRoutineItem{{ID: uuid.New(), DayIndex: 1, OrderIndex: 1, ExerciseKey: "squat"}}}
	require.NoError(t, cat.CreateRoutineVersion(ctx, other))

	latest, err := cat.GetLatestRoutine(ctx, "RB001")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	listed, err := cat.ListLatestRoutines(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "RB001", listed[0].Code)
	assert.Equal(t, 2, listed[0].Version)
	assert.Equal(t, "RB002", listed[1].Code)

	versions, err := cat.ListRoutineVersions(ctx, "RB001")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)

	old, err := cat.GetRoutineByID(ctx, v1.ID)
	require.NoError(t, err)
	require.Len(t, old.Items, 1)
	require.NotNil(t, old.Items[0].LoadKg)
	assert.Equal(t, 50.0, *old.Items[0].LoadKg)
	assert.Equal(t, 90, *old.Items[0].RestSeconds)

	_, err = cat.GetLatestRoutine(ctx, "NOPE")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, cat.LockForSync(ctx))
}

func TestSnapshotRepo(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	client := seedClient(t, s, "30123456")
	snap := seedSnapshot(t, s, client.ID)

	got, err := s.Snapshots().GetByID(ctx, snap.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "squat", got.Items[0].ExerciseKey)
	assert.Equal(t, 40.0, *got.Items[0].LoadKg)
	assert.Nil(t, got.Items[1].LoadKg)
	assert.True(t, got.Items[1].Active)

	item := got.Items[1]
	item.Reps = "15"
	item.Active = false
	item.UpdatedAt = testNow.Add(time.Hour)
	require.NoError(t, s.Snapshots().UpdateItem(ctx, &item))

	reloaded, err := s.Snapshots().GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "15", reloaded.Reps)
	assert.False(t, reloaded.Active)

	list, err := s.Snapshots().ListByClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestExecutionAndMeasurementRepos(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	client := seedClient(t, s, "30123456")
	snap := seedSnapshot(t, s, client.ID)
	plan := &domain.Plan{ID: uuid.New(), ClientID: client.ID, SnapshotID: snap.ID, Status: domain.PlanActive, CreatedAt: testNow}
	require.NoError(t, s.Plans().Create(ctx, plan))

	performed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, day := range []int{1, 1, 2} {
		rec := &domain.ExecutionRecord{ID: uuid.New(), PlanID: plan.ID, ClientID: client.ID, RoutineDay: day,
			RecordedAt: testNow.Add(time.Duration(i) * time.Second), RecordedBy: client.ID}
		if i == 2 {
			rec.PerformedOn = &performed
		}
		require.NoError(t, s.Executions().Create(ctx, rec))
	}
	recs, err := s.Executions().ListByPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []int{1, 1, 2}, []int{recs[0].RoutineDay, recs[1].RoutineDay, recs[2].RoutineDay})
	require.NotNil(t, recs[2].PerformedOn)
	assert.Equal(t, performed, *recs[2].PerformedOn)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	weight := 81.5
	m := &domain.Measurement{ID: uuid.New(), ClientID: client.ID, MetricDate: date, WeightKg: &weight,
		Perimeters: map[string]float64{"waist": 84}, CreatedAt: testNow, UpdatedAt: testNow, RecordedBy: client.ID}
	require.NoError(t, s.Measurements().Create(ctx, m))

	dup := *m
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.Measurements().Create(ctx, &dup), repository.ErrConflict)

	got, err := s.Measurements().GetByClientDate(ctx, client.ID, date)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, map[string]float64{"waist": 84}, got.Perimeters)
	assert.Equal(t, "2026-03-02", got.Date())

	newWeight := 80.9
	got.WeightKg = &newWeight
	got.UpdatedAt = testNow.Add(time.Hour)
	require.NoError(t, s.Measurements().Update(ctx, got))

	history, err := s.Measurements().ListByClient(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 80.9, *history[0].WeightKg)

	_, err = s.Measurements().GetByClientDate(ctx, client.ID, date.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
