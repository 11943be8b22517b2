package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/metrics"
	"rutinasds/routines-app/internal/repository/memory"
	"rutinasds/routines-app/internal/repository/sqlstore"
	"rutinasds/routines-app/internal/service"
	"rutinasds/routines-app/internal/storage"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	svc    Services

	adminToken       string
	coordinatorToken string
	trainerToken     string
	clientToken      string
	clientID         uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, sqlstore.SQLite, "file:"+filepath.Join(t.TempDir(), "api.db"), sqlstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	deps := service.Deps{
		Audit:   memory.NewAuditRepository(),
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	identity := service.NewIdentityService(store, "api-test-secret", time.Hour, deps)
	svc := Services{
		Identity:     identity,
		Sync:         service.NewSyncService(store, storage.NewMemoryStorage(), deps),
		Catalog:      service.NewCatalogService(store, deps),
		Assignments:  service.NewAssignmentService(store, deps),
		Plans:        service.NewPlanService(store, deps),
		Executions:   service.NewExecutionService(store, deps),
		Measurements: service.NewMeasurementService(store, deps),
		Audit:        service.NewAuditService(deps),
		Metrics:      m,
		Ready:        store.Ping,
	}
	s := &testServer{t: t, router: NewRouter(svc, gin.TestMode), svc: svc}

	admin, err := identity.BootstrapAdmin(ctx, service.NewStaff{DNI: "20000001", Password: "admin-pass"})
	require.NoError(t, err)
	s.adminToken = s.login("20000001", "admin-pass")
	adminActor := actorOf(admin)

	_, err = identity.CreateStaff(ctx, adminActor, service.NewStaff{DNI: "20000002", Role: "COORDINADOR", Password: "coord-pass"})
	require.NoError(t, err)
	s.coordinatorToken = s.login("20000002", "coord-pass")
	trainer, err := identity.CreateStaff(ctx, adminActor, service.NewStaff{DNI: "20000003", Role: "PROFE", Password: "trainer-pass"})
	require.NoError(t, err)
	s.trainerToken = s.login("20000003", "trainer-pass")

	client, err := identity.CreateClient(ctx, adminActor, service.NewClient{DNI: "30000001", FirstName: "Ana", TrainerID: &trainer.ID})
	require.NoError(t, err)
	s.clientID = client.ID
	s.clientToken = s.login("30000001", "")
	return s
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(dni, password string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/auth/login", "", LoginRequest{DNI: dni, Password: password})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var resp LoginResponse
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func feedBody() map[string]any {
	return map[string]any{
		"exercises": []map[string]string{
			{"externalId": "squat", "name": "Sentadilla"},
			{"externalId": "row", "name": "Remo"},
		},
		"routines": []map[string]string{{"code": "RB010", "name": "Base"}},
		"items": []map[string]string{
			{"code": "RB010", "day": "1", "order": "1", "exerciseKey": "squat", "sets": "4", "reps": "8", "loadKg": "50"},
			{"code": "RB010", "day": "2", "order": "1", "exerciseKey": "row", "sets": "3", "reps": "12"},
		},
	}
}

func TestProbes(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/readyz", "", nil).Code)

	s.svc.Ready = func(context.Context) error { return errors.New("db down") }
	router := NewRouter(s.svc, gin.TestMode)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/me", "not-a-token", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Token "+s.clientToken)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/me", s.clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]string](t, w)
	assert.Equal(t, s.clientID.String(), me["userId"])
	assert.Equal(t, string(domain.RoleClient), me["role"])

	w = s.do(http.MethodPost, "/api/v1/auth/login", "", LoginRequest{DNI: "20000003", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeactivatedUserLosesAccess(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/users/"+s.clientID.String()+"/deactivate", s.coordinatorToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/me", s.clientToken, nil).Code)
}

func TestRoutineLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/catalog/sync", s.trainerToken, feedBody())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/catalog/sync", s.coordinatorToken, feedBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[service.SyncSummary](t, w)
	assert.Equal(t, []string{"RB010"}, summary.RoutinesUpdated)
	assert.Equal(t, 1, summary.VersionsAssigned["RB010"])

	w = s.do(http.MethodGet, "/api/v1/catalog/syncs/"+summary.SyncID.String()+"/feed", s.coordinatorToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "memory://feeds/")

	w = s.do(http.MethodGet, "/api/v1/catalog/routines", s.clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.BaseRoutine](t, w), 1)

	assignPath := "/api/v1/clients/" + s.clientID.String() + "/assignments"
	w = s.do(http.MethodPost, assignPath, s.clientToken, AssignRoutineRequest{Routine: "RB010"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPost, assignPath, s.trainerToken, AssignRoutineRequest{Routine: "RB404"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodPost, assignPath, s.trainerToken, AssignRoutineRequest{Routine: "rb010", Frequency: 9})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = s.do(http.MethodPost, assignPath, s.trainerToken, AssignRoutineRequest{Routine: "rb010", Frequency: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assigned := decode[service.AssignmentResult](t, w)
	assert.Equal(t, 2, assigned.ItemCount)
	assert.Equal(t, 1, assigned.Frequency)

	w = s.do(http.MethodGet, "/api/v1/clients/"+s.clientID.String()+"/plan", s.clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[domain.ActivePlanView](t, w)
	assert.Equal(t, assigned.PlanID, view.Plan.ID)
	require.Len(t, view.Snapshot.Items, 2)

	w = s.do(http.MethodPatch, "/api/v1/snapshot-items/"+view.Snapshot.Items[0].ID.String(), s.trainerToken, map[string]any{"reps": "10"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "10", decode[domain.SnapshotItem](t, w).Reps)

	execPath := "/api/v1/plans/" + assigned.PlanID.String() + "/executions"
	w = s.do(http.MethodPost, execPath, s.clientToken, MarkExecutedRequest{RoutineDay: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodPost, execPath, s.clientToken, MarkExecutedRequest{RoutineDay: 3})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = s.do(http.MethodPost, execPath, s.clientToken, MarkExecutedRequest{RoutineDay: 2, PerformedOn: "2999-01-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = s.do(http.MethodPost, execPath, s.clientToken, MarkExecutedRequest{RoutineDay: 2, PerformedOn: "ayer"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodGet, "/api/v1/plans/"+assigned.PlanID.String()+"/progress", s.trainerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	progress := decode[domain.Progress](t, w)
	assert.Equal(t, 1, progress.TotalSessions)
	assert.Equal(t, 2, progress.NextRoutineDay)

	w = s.do(http.MethodGet, "/api/v1/plans/"+assigned.PlanID.String()+"/today", s.clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	today := decode[domain.Today](t, w)
	assert.Equal(t, 1, today.Frequency)
	assert.Equal(t, 1, today.BasesDoneThisWeek)
	assert.Equal(t, domain.SessionExtra, today.Kind, "weekly quota of one is used up")
	assert.Equal(t, 2, today.NextRoutineDay)

	// Reassigning archives the plan; archived plans take no executions.
	w = s.do(http.MethodPost, assignPath, s.trainerToken, AssignRoutineRequest{Routine: "RB010"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(http.MethodPost, execPath, s.clientToken, MarkExecutedRequest{RoutineDay: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, execPath, s.clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.ExecutionRecord](t, w), 1)

	w = s.do(http.MethodGet, "/api/v1/audit?action=ROUTINE_ASSIGNED", s.coordinatorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.AuditEntry](t, w), 2)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/v1/audit", s.trainerToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/audit?limit=many", s.coordinatorToken, nil).Code)
}

func TestSyncRejectionReportsRows(t *testing.T) {
	s := newTestServer(t)
	body := feedBody()
	items := body["items"].([]map[string]string)
	items[1]["exerciseKey"] = "deadlift"
	items[0]["day"] = "uno"

	w := s.do(http.MethodPost, "/api/v1/catalog/sync", s.coordinatorToken, body)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, domain.KindValidation, resp.Kind)
	assert.Len(t, resp.Rows, 2)

	w = s.do(http.MethodGet, "/api/v1/catalog/routines", s.coordinatorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.BaseRoutine](t, w))

	w = s.do(http.MethodPost, "/api/v1/catalog/sync/source", s.coordinatorToken, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMeasurementsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	path := "/api/v1/clients/" + s.clientID.String() + "/measurements/2026-01-10"

	w := s.do(http.MethodPut, path, s.clientToken, domain.MeasurementInput{WeightKg: ptr(81.0)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodPut, path, s.trainerToken, domain.MeasurementInput{WeightKg: ptr(80.2)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPut, "/api/v1/clients/"+s.clientID.String()+"/measurements/10-01-2026", s.clientToken, domain.MeasurementInput{WeightKg: ptr(80.0)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodGet, "/api/v1/clients/"+s.clientID.String()+"/measurements", s.clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]map[string]any](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, "2026-01-10", history[0]["date"])
	assert.Equal(t, 80.2, history[0]["weightKg"])
}

func TestClientsOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/clients", s.trainerToken, service.NewClient{DNI: "30000002", FirstName: "Bruno"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/api/v1/clients", s.trainerToken, service.NewClient{DNI: "30000002"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(http.MethodPost, "/api/v1/clients", s.trainerToken, service.NewClient{DNI: "3O000003"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodGet, "/api/v1/clients", s.trainerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.User](t, w), 2)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/clients/not-a-uuid", s.trainerToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/clients/"+uuid.NewString(), s.coordinatorToken, nil).Code)

	w = s.do(http.MethodPost, "/api/v1/staff", s.coordinatorToken, service.NewStaff{DNI: "20000009", Role: "TRAINER", Password: "long-enough"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPost, "/api/v1/staff", s.adminToken, service.NewStaff{DNI: "20000009", Role: "TRAINER", Password: "long-enough"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodPost, "/api/v1/catalog/sync", s.trainerToken, feedBody())

	w := s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `routines_authorization_denials_total{operation="catalog.sync"} 1`))
}

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
	}{
		{domain.NotFound("op", "missing"), http.StatusNotFound},
		{domain.Conflict("op", "taken"), http.StatusConflict},
		{domain.InvalidState("op", "archived"), http.StatusConflict},
		{domain.Forbidden("op", "no"), http.StatusForbidden},
		{domain.Validation("op", "bad"), http.StatusUnprocessableEntity},
		{domain.Internal("op", errors.New("disk")), http.StatusInternalServerError},
		{errors.New("untyped"), http.StatusInternalServerError},
		{service.ErrInvalidToken, http.StatusUnauthorized},
		{service.ErrAuthenticationFailed, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, domain.Internal("op", errors.New("connection refused on 10.0.0.3")))
	assert.NotContains(t, w.Body.String(), "10.0.0.3")
}

func actorOf(u *domain.User) access.Actor {
	return access.Actor{ID: u.ID, Role: u.Role}
}

func ptr[T any](v T) *T { return &v }
