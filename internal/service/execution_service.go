package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

// MarkInput describes one completed routine day.
type MarkInput struct {
	RoutineDay  int        `json:"routineDay"`
	Note        string     `json:"note,omitempty"`
	PerformedOn *time.Time `json:"-"` // Backfill date; nil means today
}

// ExecutionService records and reports completed routine days.
type ExecutionService interface {
	MarkExecuted(ctx context.Context, actor access.Actor, planID uuid.UUID, in MarkInput) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context, actor access.Actor, planID uuid.UUID) ([]domain.ExecutionRecord, error)
	Progress(ctx context.Context, actor access.Actor, planID uuid.UUID) (*domain.Progress, error)
	// Today reports the next routine day and whether a session today would be
	// BASE or EXTRA under the plan's weekly frequency.
	Today(ctx context.Context, actor access.Actor, planID uuid.UUID) (*domain.Today, error)
}

type executionService struct {
	base
	store repository.UnitOfWork
}

func NewExecutionService(store repository.UnitOfWork, deps Deps) ExecutionService {
	return &executionService{base: newBase(deps, "execution"), store: store}
}

const maxNoteLength = 1000

func (s *executionService) MarkExecuted(ctx context.Context, actor access.Actor, planID uuid.UUID, in MarkInput) (*domain.ExecutionRecord, error) {
	const op = "execution.mark"
	note := strings.TrimSpace(in.Note)
	if len(note) > maxNoteLength {
		return nil, domain.Validation(op, "note must be at most %d characters", maxNoteLength)
	}
	now := s.now()
	var performedOn *time.Time
	if in.PerformedOn != nil {
		d := domain.DateOnly(*in.PerformedOn)
		if d.After(domain.DateOnly(now)) {
			return nil, domain.Validation(op, "performedOn %s is in the future", domain.FormatDate(d))
		}
		performedOn = &d
	}

	rec := &domain.ExecutionRecord{
		ID:          uuid.New(),
		PlanID:      planID,
		RoutineDay:  in.RoutineDay,
		RecordedAt:  now,
		PerformedOn: performedOn,
		Note:        note,
		RecordedBy:  actor.ID,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		plan, client, err := s.planForActor(ctx, tx, actor, access.OpMarkExecuted, planID)
		if err != nil {
			return err
		}
		// Lock, then re-read: an activation in flight may be archiving this plan.
		if err := tx.Users().Lock(ctx, client.ID); err != nil {
			return err
		}
		if plan, err = tx.Plans().GetByID(ctx, plan.ID); err != nil {
			return err
		}
		if !plan.IsActive() {
			return domain.InvalidState(op, "plan is archived; executions can only be recorded on the active plan")
		}

		snap, err := tx.Snapshots().GetByID(ctx, plan.SnapshotID)
		if err != nil {
			return err
		}
		if !containsDay(snap.DayIndexes(), in.RoutineDay) {
			return domain.Validation(op, "routine day %d does not exist in this plan (days: %s)", in.RoutineDay, joinDays(snap.DayIndexes()))
		}
		rec.ClientID = client.ID
		return tx.Executions().Create(ctx, rec)
	})
	if err != nil {
		return nil, s.storeErr(op, err, "plan")
	}

	s.metrics.Execution()
	s.logger.Debug("execution recorded", "plan", planID, "day", rec.RoutineDay, "by", actor.ID)
	return rec, nil
}

// planForActor loads a plan and its client and authorizes op on them.
func (s *executionService) planForActor(ctx context.Context, repos repository.Repositories, actor access.Actor, op access.Operation, planID uuid.UUID) (*domain.Plan, *domain.User, error) {
	plan, err := repos.Plans().GetByID(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	client, err := loadClient(ctx, repos.Users(), plan.ClientID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorizeClient(actor, op, client); err != nil {
		return nil, nil, err
	}
	return plan, client, nil
}

func (s *executionService) ListExecutions(ctx context.Context, actor access.Actor, planID uuid.UUID) ([]domain.ExecutionRecord, error) {
	const op = "execution.list"
	plan, _, err := s.planForActor(ctx, s.store, actor, access.OpViewExecutions, planID)
	if err != nil {
		return nil, s.storeErr(op, err, "plan")
	}
	records, err := s.store.Executions().ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, s.storeErr(op, err, "executions")
	}
	return records, nil
}

func (s *executionService) Progress(ctx context.Context, actor access.Actor, planID uuid.UUID) (*domain.Progress, error) {
	const op = "execution.progress"
	plan, _, err := s.planForActor(ctx, s.store, actor, access.OpViewExecutions, planID)
	if err != nil {
		return nil, s.storeErr(op, err, "plan")
	}
	snap, err := s.store.Snapshots().GetByID(ctx, plan.SnapshotID)
	if err != nil {
		return nil, s.storeErr(op, err, "snapshot")
	}
	records, err := s.store.Executions().ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, s.storeErr(op, err, "executions")
	}
	p := domain.ComputeProgress(plan.ID, records, len(snap.DayIndexes()), s.now())
	return &p, nil
}

func (s *executionService) Today(ctx context.Context, actor access.Actor, planID uuid.UUID) (*domain.Today, error) {
	const op = "execution.today"
	plan, _, err := s.planForActor(ctx, s.store, actor, access.OpViewExecutions, planID)
	if err != nil {
		return nil, s.storeErr(op, err, "plan")
	}
	if !plan.IsActive() {
		return nil, domain.InvalidState(op, "plan is archived")
	}
	snap, err := s.store.Snapshots().GetByID(ctx, plan.SnapshotID)
	if err != nil {
		return nil, s.storeErr(op, err, "snapshot")
	}
	records, err := s.store.Executions().ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, s.storeErr(op, err, "executions")
	}
	t := domain.ComputeToday(plan, records, len(snap.DayIndexes()), s.now())
	return &t, nil
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func joinDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
