package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

// Activation describes a plan switch.
type Activation struct {
	Plan           domain.Plan `json:"plan"`
	ArchivedPlanID *uuid.UUID  `json:"archivedPlanId,omitempty"`
}

// PlanService manages which snapshot a client currently follows.
type PlanService interface {
	// Activate makes one of the client's existing snapshots the active plan.
	// frequency is the weekly base-session quota; 0 means one per routine day.
	Activate(ctx context.Context, actor access.Actor, clientID, snapshotID uuid.UUID, frequency int) (*Activation, error)
	GetActivePlan(ctx context.Context, actor access.Actor, clientID uuid.UUID) (*domain.ActivePlanView, error)
	ListPlans(ctx context.Context, actor access.Actor, clientID uuid.UUID) ([]domain.Plan, error)
	ListSnapshots(ctx context.Context, actor access.Actor, clientID uuid.UUID) ([]domain.RoutineSnapshot, error)
}

type planService struct {
	base
	store repository.UnitOfWork
}

func NewPlanService(store repository.UnitOfWork, deps Deps) PlanService {
	return &planService{base: newBase(deps, "plan"), store: store}
}

// activateInTx archives the client's ACTIVE plan, if any, and inserts a new
// ACTIVE plan for snapshotID. It must run inside tx. The client row lock
// serializes activations of one client; the partial unique index turns any
// activation that slips past it into repository.ErrConflict.
func activateInTx(ctx context.Context, tx repository.Repositories, clientID, snapshotID uuid.UUID, frequency int, now time.Time) (*Activation, error) {
	if err := tx.Users().Lock(ctx, clientID); err != nil {
		return nil, err
	}
	// Re-read under the lock: a deactivation may have committed since the caller checked.
	client, err := tx.Users().GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.Active {
		return nil, domain.InvalidState("plan.activate", "client is inactive")
	}

	result := &Activation{}
	current, err := tx.Plans().GetActiveByClient(ctx, clientID)
	switch {
	case err == nil:
		if current.SnapshotID == snapshotID {
			return nil, domain.InvalidState("plan.activate", "snapshot is already the active plan")
		}
		if err := tx.Plans().Archive(ctx, current.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, repository.ErrConflict
			}
			return nil, err
		}
		result.ArchivedPlanID = uuidPtr(current.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	result.Plan = domain.Plan{
		ID:         uuid.New(),
		ClientID:   clientID,
		SnapshotID: snapshotID,
		Status:     domain.PlanActive,
		Frequency:  frequency,
		CreatedAt:  now,
	}
	if err := tx.Plans().Create(ctx, &result.Plan); err != nil {
		return nil, err
	}
	return result, nil
}

// requireActiveClient loads the client and checks the actor may manage them.
func (b *base) requireActiveClient(ctx context.Context, users repository.UserRepository, actor access.Actor, op access.Operation, clientID uuid.UUID) (*domain.User, error) {
	client, err := loadClient(ctx, users, clientID)
	if err != nil {
		return nil, b.storeErr(string(op), err, "client")
	}
	if err := b.authorizeClient(actor, op, client); err != nil {
		return nil, err
	}
	if !client.Active {
		return nil, domain.InvalidState(string(op), "client is inactive")
	}
	return client, nil
}

func (s *planService) Activate(ctx context.Context, actor access.Actor, clientID, snapshotID uuid.UUID, frequency int) (*Activation, error) {
	const op = "plan.activate"
	if err := domain.ValidateFrequency(op, frequency); err != nil {
		return nil, err
	}
	if _, err := s.requireActiveClient(ctx, s.store.Users(), actor, access.OpActivatePlan, clientID); err != nil {
		return nil, err
	}

	var result *Activation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		snap, err := tx.Snapshots().GetByID(ctx, snapshotID)
		if err != nil {
			return err
		}
		if snap.ClientID != clientID {
			return domain.NotFound(op, "snapshot not found")
		}
		result, err = activateInTx(ctx, tx, clientID, snapshotID, frequency, s.now())
		return err
	})
	if err != nil {
		return nil, s.activationErr(op, err)
	}

	s.logger.Info("plan activated", "client", clientID, "plan", result.Plan.ID, "snapshot", snapshotID)
	details := map[string]string{"snapshot": snapshotID.String()}
	if frequency > 0 {
		details["frequency"] = strconv.Itoa(frequency)
	}
	if result.ArchivedPlanID != nil {
		details["archived_plan"] = result.ArchivedPlanID.String()
	}
	s.record(ctx, actor, domain.AuditEntry{
		Action:     domain.AuditPlanActivated,
		TargetType: "plan",
		TargetID:   result.Plan.ID.String(),
		ClientID:   uuidPtr(clientID),
		Details:    details,
	})
	return result, nil
}

func (b *base) activationErr(op string, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return domain.Conflict(op, "another activation for this client happened concurrently")
	}
	return b.storeErr(op, err, "snapshot")
}

func (s *planService) GetActivePlan(ctx context.Context, actor access.Actor, clientID uuid.UUID) (*domain.ActivePlanView, error) {
	const op = "plan.view"
	client, err := loadClient(ctx, s.store.Users(), clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "client")
	}
	if err := s.authorizeClient(actor, access.OpViewPlan, client); err != nil {
		return nil, err
	}

	plan, err := s.store.Plans().GetActiveByClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "client has no active plan")
		}
		return nil, s.storeErr(op, err, "plan")
	}
	snap, err := s.store.Snapshots().GetByID(ctx, plan.SnapshotID)
	if err != nil {
		return nil, s.storeErr(op, err, "snapshot")
	}
	return &domain.ActivePlanView{Plan: *plan, Snapshot: *snap}, nil
}

func (s *planService) ListPlans(ctx context.Context, actor access.Actor, clientID uuid.UUID) ([]domain.Plan, error) {
	const op = "plan.list"
	client, err := loadClient(ctx, s.store.Users(), clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "client")
	}
	if err := s.authorizeClient(actor, access.OpViewPlan, client); err != nil {
		return nil, err
	}
	plans, err := s.store.Plans().ListByClient(ctx, clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "plans")
	}
	return plans, nil
}

func (s *planService) ListSnapshots(ctx context.Context, actor access.Actor, clientID uuid.UUID) ([]domain.RoutineSnapshot, error) {
	const op = "snapshot.list"
	client, err := loadClient(ctx, s.store.Users(), clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "client")
	}
	if err := s.authorizeClient(actor, access.OpViewPlan, client); err != nil {
		return nil, err
	}
	snaps, err := s.store.Snapshots().ListByClient(ctx, clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "snapshots")
	}
	return snaps, nil
}
