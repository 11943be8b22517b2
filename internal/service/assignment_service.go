package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

// AssignmentResult is returned by Assign.
type AssignmentResult struct {
	SnapshotID     uuid.UUID  `json:"snapshotId"`
	PlanID         uuid.UUID  `json:"planId"`
	ArchivedPlanID *uuid.UUID `json:"archivedPlanId,omitempty"`
	SourceCode     string     `json:"sourceCode"`
	SourceVersion  int        `json:"sourceVersion"`
	ItemCount      int        `json:"itemCount"`
	Frequency      int        `json:"frequency,omitempty"`
}

// AssignmentService copies catalog routines into client snapshots and edits them.
type AssignmentService interface {
	// Assign snapshots the current version of routineRef (a routine code or
	// any version id of it) for the client and makes it the active plan with
	// the given weekly frequency (0 for one session per routine day).
	Assign(ctx context.Context, actor access.Actor, clientID uuid.UUID, routineRef string, frequency int) (*AssignmentResult, error)
	// EditItem changes one item of the client's active snapshot.
	EditItem(ctx context.Context, actor access.Actor, itemID uuid.UUID, patch domain.SnapshotItemPatch) (*domain.SnapshotItem, error)
}

type assignmentService struct {
	base
	store repository.UnitOfWork
}

func NewAssignmentService(store repository.UnitOfWork, deps Deps) AssignmentService {
	return &assignmentService{base: newBase(deps, "assignment"), store: store}
}

func (s *assignmentService) Assign(ctx context.Context, actor access.Actor, clientID uuid.UUID, routineRef string, frequency int) (*AssignmentResult, error) {
	const op = "plan.assign"
	if strings.TrimSpace(routineRef) == "" {
		return nil, domain.Validation(op, "routine code or id is required")
	}
	if err := domain.ValidateFrequency(op, frequency); err != nil {
		return nil, err
	}
	if _, err := s.requireActiveClient(ctx, s.store.Users(), actor, access.OpAssignRoutine, clientID); err != nil {
		return nil, err
	}

	var (
		snap       *domain.RoutineSnapshot
		activation *Activation
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		routine, err := resolveRoutine(ctx, tx.Catalog(), routineRef)
		if err != nil {
			return err
		}
		now := s.now()
		snap = domain.NewSnapshot(clientID, routine, now)
		if err := tx.Snapshots().Create(ctx, snap); err != nil {
			return err
		}
		activation, err = activateInTx(ctx, tx, clientID, snap.ID, frequency, now)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "routine %q not found", routineRef)
		}
		return nil, s.activationErr(op, err)
	}

	s.metrics.Assignment()
	s.logger.Info("routine assigned",
		"client", clientID,
		"routine", snap.SourceCode,
		"version", snap.SourceVersion,
		"snapshot", snap.ID,
		"plan", activation.Plan.ID,
	)
	details := map[string]string{
		"routine":  snap.SourceCode,
		"version":  strconv.Itoa(snap.SourceVersion),
		"snapshot": snap.ID.String(),
	}
	if activation.ArchivedPlanID != nil {
		details["archived_plan"] = activation.ArchivedPlanID.String()
	}
	s.record(ctx, actor, domain.AuditEntry{
		Action:     domain.AuditRoutineAssigned,
		TargetType: "plan",
		TargetID:   activation.Plan.ID.String(),
		ClientID:   uuidPtr(clientID),
		Details:    details,
	})

	return &AssignmentResult{
		SnapshotID:     snap.ID,
		PlanID:         activation.Plan.ID,
		ArchivedPlanID: activation.ArchivedPlanID,
		SourceCode:     snap.SourceCode,
		SourceVersion:  snap.SourceVersion,
		ItemCount:      len(snap.Items),
		Frequency:      activation.Plan.Frequency,
	}, nil
}

// resolveRoutine returns the latest version, with items, of the routine that
// ref names. Stale version ids resolve to the current version of their code.
func resolveRoutine(ctx context.Context, catalog repository.CatalogRepository, ref string) (*domain.BaseRoutine, error) {
	code := domain.NormalizeRoutineCode(ref)
	if id, err := uuid.Parse(strings.TrimSpace(ref)); err == nil {
		version, err := catalog.GetRoutineByID(ctx, id)
		if err != nil {
			return nil, err
		}
		code = version.Code
	}
	latest, err := catalog.GetLatestRoutine(ctx, code)
	if err != nil {
		return nil, err
	}
	return catalog.GetRoutineByID(ctx, latest.ID)
}

func (s *assignmentService) EditItem(ctx context.Context, actor access.Actor, itemID uuid.UUID, patch domain.SnapshotItemPatch) (*domain.SnapshotItem, error) {
	const op = "snapshot.edit_item"
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var (
		item    *domain.SnapshotItem
		client  *domain.User
		changed []string
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		var err error
		if item, err = tx.Snapshots().GetItem(ctx, itemID); err != nil {
			return err
		}
		snap, err := tx.Snapshots().GetByID(ctx, item.SnapshotID)
		if err != nil {
			return err
		}
		if client, err = loadClient(ctx, tx.Users(), snap.ClientID); err != nil {
			return err
		}
		if err := s.authorizeClient(actor, access.OpEditSnapshotItem, client); err != nil {
			return err
		}

		active, err := tx.Plans().GetActiveByClient(ctx, client.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return domain.InvalidState(op, "client has no active plan")
		case err != nil:
			return err
		case active.SnapshotID != snap.ID:
			return domain.InvalidState(op, "item does not belong to the client's active plan")
		}

		if changed = patch.Apply(item); len(changed) == 0 {
			return nil
		}
		item.UpdatedAt = s.now()
		return tx.Snapshots().UpdateItem(ctx, item)
	})
	if err != nil {
		return nil, s.storeErr(op, err, "snapshot item")
	}
	if len(changed) == 0 {
		return item, nil
	}

	s.metrics.ItemEdit()
	s.record(ctx, actor, domain.AuditEntry{
		Action:     domain.AuditSnapshotItemEdited,
		TargetType: "snapshot_item",
		TargetID:   item.ID.String(),
		ClientID:   uuidPtr(client.ID),
		Details: map[string]string{
			"snapshot": item.SnapshotID.String(),
			"fields":   strings.Join(changed, ","),
		},
	})
	return item, nil
}
