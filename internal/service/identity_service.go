package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

// Authentication failures are deliberately vague; callers map them to 401.
var (
	ErrAuthenticationFailed = errors.New("authentication failed: invalid credentials")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrTokenGeneration      = errors.New("failed to generate authentication token")
)

const minPasswordLength = 8

// NewClient is the enrollment form for a gym client.
type NewClient struct {
	DNI       string     `json:"dni"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	TrainerID *uuid.UUID `json:"trainerId,omitempty"` // Defaults to the enrolling trainer
}

// NewStaff is the creation form for a staff member.
type NewStaff struct {
	DNI       string `json:"dni"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"` // Aliases accepted
	Password  string `json:"password"`
}

// IdentityService manages gym users and turns credentials into actors.
type IdentityService interface {
	Login(ctx context.Context, dni, password string) (token string, user *domain.User, err error)
	// ResolveActor validates a token and reloads its user, who must still
	// exist and be active. The stored role wins over the token's claim.
	ResolveActor(ctx context.Context, token string) (access.Actor, error)
	CreateClient(ctx context.Context, actor access.Actor, in NewClient) (*domain.User, error)
	CreateStaff(ctx context.Context, actor access.Actor, in NewStaff) (*domain.User, error)
	// BootstrapAdmin creates the first ADMIN. It refuses once any user with that DNI exists.
	BootstrapAdmin(ctx context.Context, in NewStaff) (*domain.User, error)
	Deactivate(ctx context.Context, actor access.Actor, userID uuid.UUID) error
	AssignTrainer(ctx context.Context, actor access.Actor, clientID uuid.UUID, trainerID *uuid.UUID) (*domain.User, error)
	GetClient(ctx context.Context, actor access.Actor, clientID uuid.UUID) (*domain.User, error)
	ListClients(ctx context.Context, actor access.Actor) ([]domain.User, error)
}

type identityService struct {
	base
	store         repository.UnitOfWork
	jwtSecret     []byte
	jwtExpiration time.Duration
}

// NewIdentityService creates the identity service. The secret must not be empty.
func NewIdentityService(store repository.UnitOfWork, jwtSecret string, jwtExpiration time.Duration, deps Deps) IdentityService {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty")
	}
	if jwtExpiration <= 0 {
		jwtExpiration = 24 * time.Hour
	}
	return &identityService{
		base:          newBase(deps, "identity"),
		store:         store,
		jwtSecret:     []byte(jwtSecret),
		jwtExpiration: jwtExpiration,
	}
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	UserID string      `json:"uid"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

const tokenIssuer = "routines-app"

func (s *identityService) Login(ctx context.Context, dni, password string) (string, *domain.User, error) {
	dni, err := domain.NormalizeDNI(dni)
	if err != nil {
		return "", nil, err
	}
	user, err := s.store.Users().GetByDNI(ctx, dni)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrAuthenticationFailed
		}
		return "", nil, s.storeErr("auth.login", err, "user")
	}
	if !user.Active {
		return "", nil, ErrAuthenticationFailed
	}
	// Clients log in with their DNI alone; staff also need a password.
	if user.IsStaff() {
		if password == "" || user.PasswordHash == "" {
			return "", nil, ErrAuthenticationFailed
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return "", nil, ErrAuthenticationFailed
		}
	}

	token, err := s.issueToken(user)
	if err != nil {
		s.logger.Error("token signing failed", "user", user.ID, "error", err)
		return "", nil, ErrTokenGeneration
	}
	user.PasswordHash = ""
	return token, user, nil
}

func (s *identityService) issueToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		UserID: user.ID.String(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *identityService) ResolveActor(ctx context.Context, tokenString string) (access.Actor, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return access.Actor{}, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return access.Actor{}, ErrInvalidToken
	}

	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return access.Actor{}, ErrInvalidToken
		}
		return access.Actor{}, s.storeErr("auth.resolve", err, "user")
	}
	if !user.Active {
		return access.Actor{}, ErrInvalidToken
	}
	return access.Actor{ID: user.ID, Role: user.Role}, nil
}

func (s *identityService) CreateClient(ctx context.Context, actor access.Actor, in NewClient) (*domain.User, error) {
	const op = "user.create_client"
	if err := s.authorize(actor, access.OpCreateClient); err != nil {
		return nil, err
	}
	dni, err := domain.NormalizeDNI(in.DNI)
	if err != nil {
		return nil, err
	}

	trainerID := in.TrainerID
	if trainerID == nil && actor.Role == domain.RoleTrainer {
		trainerID = uuidPtr(actor.ID)
	}
	// Trainers without assign_trainers may only enroll for themselves.
	if trainerID != nil && *trainerID != actor.ID && !actor.Can(access.AssignTrainers) {
		s.denied(actor, access.OpAssignTrainer)
		return nil, domain.Forbidden(op, "only coordinators may enroll clients for another trainer")
	}

	now := s.now()
	user := &domain.User{
		ID:        uuid.New(),
		DNI:       dni,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      domain.RoleClient,
		Active:    true,
		TrainerID: trainerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		if trainerID != nil {
			if err := checkTrainer(ctx, tx.Users(), *trainerID); err != nil {
				return err
			}
		}
		return tx.Users().Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Conflict(op, "a user with DNI %s already exists", dni)
		}
		return nil, s.storeErr(op, err, "trainer")
	}

	s.record(ctx, actor, domain.AuditEntry{
		Action:     domain.AuditClientCreated,
		TargetType: "user",
		TargetID:   user.ID.String(),
		ClientID:   uuidPtr(user.ID),
	})
	return user, nil
}

// checkTrainer makes sure id names an active staff member.
func checkTrainer(ctx context.Context, users repository.UserRepository, id uuid.UUID) error {
	trainer, err := users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !trainer.IsStaff() || !trainer.Active {
		return domain.Validation("user.trainer", "trainer %s is not an active staff member", id)
	}
	return nil
}

func (s *identityService) CreateStaff(ctx context.Context, actor access.Actor, in NewStaff) (*domain.User, error) {
	if err := s.authorize(actor, access.OpCreateStaff); err != nil {
		return nil, err
	}
	user, err := s.createStaff(ctx, in)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, domain.AuditEntry{
		Action:     domain.AuditStaffCreated,
		TargetType: "user",
		TargetID:   user.ID.String(),
		Details:    map[string]string{"role": string(user.Role)},
	})
	return user, nil
}

func (s *identityService) BootstrapAdmin(ctx context.Context, in NewStaff) (*domain.User, error) {
	in.Role = string(domain.RoleAdmin)
	user, err := s.createStaff(ctx, in)
	if err != nil {
		return nil, err
	}
	s.record(ctx, access.Actor{ID: user.ID, Role: user.Role}, domain.AuditEntry{
		Action:     domain.AuditStaffCreated,
		TargetType: "user",
		TargetID:   user.ID.String(),
		Details:    map[string]string{"role": string(user.Role), "bootstrap": "true"},
	})
	return user, nil
}

func (s *identityService) createStaff(ctx context.Context, in NewStaff) (*domain.User, error) {
	const op = "user.create_staff"
	dni, err := domain.NormalizeDNI(in.DNI)
	if err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if role == domain.RoleClient {
		return nil, domain.Validation(op, "staff role required, got %s", role)
	}
	if len(in.Password) < minPasswordLength {
		return nil, domain.Validation(op, "password must have at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Internal(op, fmt.Errorf("hash password: %w", err))
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		DNI:          dni,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Conflict(op, "a user with DNI %s already exists", dni)
		}
		return nil, s.storeErr(op, err, "user")
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *identityService) Deactivate(ctx context.Context, actor access.Actor, userID uuid.UUID) error {
	const op = "user.deactivate"
	if err := s.authorize(actor, access.OpDeactivateUser); err != nil {
		return err
	}
	if userID == actor.ID {
		return domain.InvalidState(op, "users cannot deactivate themselves")
	}

	var target *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u.Role == domain.RoleAdmin && !actor.Can(access.ManageStaff) {
			return domain.Forbidden(op, "only admins may deactivate admins")
		}
		if !u.Active {
			return domain.InvalidState(op, "user is already inactive")
		}
		target = u
		return tx.Users().SetActive(ctx, userID, false, s.now())
	})
	if err != nil {
		return s.storeErr(op, err, "user")
	}

	entry := domain.AuditEntry{
		Action:     domain.AuditUserDeactivated,
		TargetType: "user",
		TargetID:   userID.String(),
		Details:    map[string]string{"role": string(target.Role)},
	}
	if target.IsClient() {
		entry.ClientID = uuidPtr(target.ID)
	}
	s.record(ctx, actor, entry)
	return nil
}

func (s *identityService) AssignTrainer(ctx context.Context, actor access.Actor, clientID uuid.UUID, trainerID *uuid.UUID) (*domain.User, error) {
	const op = "user.assign_trainer"
	if err := s.authorize(actor, access.OpAssignTrainer); err != nil {
		return nil, err
	}

	var client *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		c, err := loadClient(ctx, tx.Users(), clientID)
		if err != nil {
			return err
		}
		if trainerID != nil {
			if err := checkTrainer(ctx, tx.Users(), *trainerID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.NotFound(op, "trainer not found")
				}
				return err
			}
		}
		if err := tx.Users().SetTrainer(ctx, clientID, trainerID, s.now()); err != nil {
			return err
		}
		c.TrainerID = trainerID
		client = c
		return nil
	})
	if err != nil {
		return nil, s.storeErr(op, err, "client")
	}

	trainer := ""
	if trainerID != nil {
		trainer = trainerID.String()
	}
	s.record(ctx, actor, domain.AuditEntry{
		Action:     domain.AuditTrainerAssigned,
		TargetType: "user",
		TargetID:   clientID.String(),
		ClientID:   uuidPtr(clientID),
		Details:    map[string]string{"trainer": trainer},
	})
	return client, nil
}

func (s *identityService) GetClient(ctx context.Context, actor access.Actor, clientID uuid.UUID) (*domain.User, error) {
	const op = "user.view_client"
	client, err := loadClient(ctx, s.store.Users(), clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "client")
	}
	if err := s.authorizeClient(actor, access.OpViewClient, client); err != nil {
		return nil, err
	}
	return client, nil
}

// ListClients returns every client for coordinators and admins, and the
// assigned clients for trainers.
func (s *identityService) ListClients(ctx context.Context, actor access.Actor) ([]domain.User, error) {
	const op = "user.list_clients"
	if err := s.authorize(actor, access.OpListClients); err != nil {
		return nil, err
	}
	var trainerID *uuid.UUID
	if !actor.Can(access.ManageAllClients) {
		trainerID = uuidPtr(actor.ID)
	}
	clients, err := s.store.Users().ListClients(ctx, trainerID)
	if err != nil {
		return nil, s.storeErr(op, err, "clients")
	}
	return clients, nil
}
