package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
)

func TestCreateClient_DuplicateDNI(t *testing.T) {
	f := newFixture(t)

	created, err := f.identity.CreateClient(f.ctx, f.trainer, NewClient{DNI: " 40111222 ", FirstName: "Luz", LastName: "Pérez"})
	require.NoError(t, err)
	assert.Equal(t, "40111222", created.DNI)
	assert.Equal(t, domain.RoleClient, created.Role)
	require.NotNil(t, created.TrainerID)
	assert.Equal(t, f.trainer.ID, *created.TrainerID, "the enrolling trainer owns the client")

	before, err := f.identity.ListClients(f.ctx, f.coordinator)
	require.NoError(t, err)

	_, err = f.identity.CreateClient(f.ctx, f.coordinator, NewClient{DNI: "40111222", FirstName: "Otra"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	after, err := f.identity.ListClients(f.ctx, f.coordinator)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "no row inserted")
}

func TestCreateClient_Rules(t *testing.T) {
	f := newFixture(t)

	_, err := f.identity.CreateClient(f.ctx, f.trainer, NewClient{DNI: "12ab456"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.identity.CreateClient(f.ctx, f.clientActor, NewClient{DNI: "40111223"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.identity.CreateClient(f.ctx, f.trainer, NewClient{DNI: "40111224", TrainerID: &f.otherTrainer.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.identity.CreateClient(f.ctx, f.coordinator, NewClient{DNI: "40111225", TrainerID: &f.client.ID})
	assert.ErrorIs(t, err, domain.ErrValidation, "clients cannot train clients")

	c, err := f.identity.CreateClient(f.ctx, f.coordinator, NewClient{DNI: "40111226", TrainerID: &f.otherTrainer.ID})
	require.NoError(t, err)
	assert.Equal(t, f.otherTrainer.ID, *c.TrainerID)
	assert.Contains(t, f.auditActions(), domain.AuditClientCreated)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	staff, err := f.identity.CreateStaff(f.ctx, f.admin, NewStaff{DNI: "25000001", FirstName: "Caro", Role: "entrenador", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTrainer, staff.Role)
	assert.Empty(t, staff.PasswordHash)

	token, user, err := f.identity.Login(f.ctx, "25000001", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, staff.ID, user.ID)
	actor, err := f.identity.ResolveActor(f.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, access.Actor{ID: staff.ID, Role: domain.RoleTrainer}, actor)

	_, _, err = f.identity.Login(f.ctx, "25000001", "wrong")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, _, err = f.identity.Login(f.ctx, "25000001", "")
	assert.ErrorIs(t, err, ErrAuthenticationFailed, "staff need a password")
	_, _, err = f.identity.Login(f.ctx, "99999999", "")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// Clients log in with their DNI only.
	token, user, err = f.identity.Login(f.ctx, f.client.DNI, "")
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, user.ID)
	actor, err = f.identity.ResolveActor(f.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, f.clientActor, actor)

	// Deactivation revokes existing tokens.
	require.NoError(t, f.identity.Deactivate(f.ctx, f.coordinator, f.client.ID))
	_, err = f.identity.ResolveActor(f.ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, _, err = f.identity.Login(f.ctx, f.client.DNI, "")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestResolveActor_TrustsStoredRole(t *testing.T) {
	f := newFixture(t)
	claims := &tokenClaims{
		UserID: f.client.ID.String(),
		Role:   domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	actor, err := f.identity.ResolveActor(f.ctx, forged)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleClient, actor.Role)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = f.identity.ResolveActor(f.ctx, wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = f.identity.ResolveActor(f.ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims.UserID = uuid.NewString()
	unknown, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = f.identity.ResolveActor(f.ctx, unknown)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCreateStaff_Rules(t *testing.T) {
	f := newFixture(t)

	_, err := f.identity.CreateStaff(f.ctx, f.coordinator, NewStaff{DNI: "25000002", Role: "TRAINER", Password: "long-enough"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.identity.CreateStaff(f.ctx, f.admin, NewStaff{DNI: "25000002", Role: "CLIENTE", Password: "long-enough"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.identity.CreateStaff(f.ctx, f.admin, NewStaff{DNI: "25000002", Role: "jefe", Password: "long-enough"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.identity.CreateStaff(f.ctx, f.admin, NewStaff{DNI: "25000002", Role: "COACH", Password: "short"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.identity.CreateStaff(f.ctx, f.admin, NewStaff{DNI: "20000003", Role: "COACH", Password: "long-enough"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	admin, err := f.identity.BootstrapAdmin(f.ctx, NewStaff{DNI: "21000000", Password: "first-admin", Role: "TRAINER"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role, "bootstrap always creates an admin")

	_, err = f.identity.BootstrapAdmin(f.ctx, NewStaff{DNI: "21000000", Password: "first-admin"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDeactivate_Rules(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.identity.Deactivate(f.ctx, f.trainer, f.client.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.identity.Deactivate(f.ctx, f.coordinator, f.admin.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.identity.Deactivate(f.ctx, f.coordinator, f.coordinator.ID), domain.ErrInvalidState)
	assert.ErrorIs(t, f.identity.Deactivate(f.ctx, f.coordinator, uuid.New()), domain.ErrNotFound)

	require.NoError(t, f.identity.Deactivate(f.ctx, f.admin, f.trainer.ID))
	assert.ErrorIs(t, f.identity.Deactivate(f.ctx, f.admin, f.trainer.ID), domain.ErrInvalidState)

	entries, err := f.auditLog.List(f.ctx, f.admin, domain.AuditFilter{Action: domain.AuditUserDeactivated})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, f.trainer.ID.String(), entries[0].TargetID)
	assert.Nil(t, entries[0].ClientID)
}

func TestAssignTrainerAndScopes(t *testing.T) {
	f := newFixture(t)

	mine, err := f.identity.ListClients(f.ctx, f.trainer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	theirs, err := f.identity.ListClients(f.ctx, f.otherTrainer)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = f.identity.AssignTrainer(f.ctx, f.trainer, f.client.ID, &f.otherTrainer.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.identity.AssignTrainer(f.ctx, f.coordinator, f.client.ID, &f.client.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	updated, err := f.identity.AssignTrainer(f.ctx, f.coordinator, f.client.ID, &f.otherTrainer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.otherTrainer.ID, *updated.TrainerID)

	_, err = f.identity.GetClient(f.ctx, f.trainer, f.client.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden, "the former trainer lost access")
	got, err := f.identity.GetClient(f.ctx, f.otherTrainer, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, f.client.DNI, got.DNI)
	_, err = f.identity.GetClient(f.ctx, f.clientActor, f.client.ID)
	assert.NoError(t, err)

	_, err = f.auditLog.List(f.ctx, f.trainer, domain.AuditFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	entries, err := f.auditLog.List(f.ctx, f.coordinator, domain.AuditFilter{ClientID: &f.client.ID})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.AuditTrainerAssigned, entries[0].Action)
}
