// Package service holds the routine engine: catalog synchronization, snapshot
// assignment, plan lifecycle, execution tracking and the measurement ledger.
// Every operation takes the calling access.Actor and returns *domain.Error
// failures.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/metrics"
	"rutinasds/routines-app/internal/repository"
)

// Deps carries the collaborators shared by all services. Zero fields fall
// back to sensible defaults: no audit trail, no metrics, slog.Default and the
// wall clock.
type Deps struct {
	Audit   repository.AuditRepository
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Clock   func() time.Time
}

// base is embedded by every service implementation.
type base struct {
	audit   repository.AuditRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

func newBase(d Deps, component string) base {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = wallClock
	}
	return base{
		audit:   d.Audit,
		metrics: d.Metrics,
		logger:  logger.With("component", component),
		clock:   clock,
	}
}

// wallClock is truncated to microseconds, the precision Postgres keeps.
func wallClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (b *base) now() time.Time {
	return b.clock().UTC()
}

func (b *base) authorize(actor access.Actor, op access.Operation) error {
	if err := access.Authorize(actor, op); err != nil {
		b.denied(actor, op)
		return err
	}
	return nil
}

func (b *base) authorizeClient(actor access.Actor, op access.Operation, client *domain.User) error {
	if err := access.AuthorizeClient(actor, op, client); err != nil {
		b.denied(actor, op)
		return err
	}
	return nil
}

func (b *base) denied(actor access.Actor, op access.Operation) {
	b.metrics.Denied(string(op))
	b.logger.Info("operation denied", "op", op, "actor", actor.ID, "role", actor.Role)
}

// record writes an audit entry after the business transaction committed. A
// failed write is logged and counted; it never fails the operation.
func (b *base) record(ctx context.Context, actor access.Actor, entry domain.AuditEntry) {
	if b.audit == nil {
		return
	}
	entry.ID = uuid.New()
	entry.ActorID = actor.ID
	entry.ActorRole = actor.Role
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = b.now()
	}
	if err := b.audit.Record(ctx, &entry); err != nil {
		b.metrics.AuditFailure()
		b.logger.Error("audit write failed", "action", entry.Action, "target", entry.TargetID, "error", err)
	}
}

// storeErr turns repository failures into domain errors. Domain errors pass
// through untouched so that WithinTx callbacks can return them directly.
func (b *base) storeErr(op string, err error, what string) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return domain.NotFound(op, "%s not found", what)
	case errors.Is(err, repository.ErrConflict):
		return domain.Conflict(op, "%s conflicts with existing data", what)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Internal(op, err)
	}
	b.logger.Error("storage failure", "op", op, "error", err)
	return domain.Internal(op, err)
}

// loadClient fetches a user that must exist and hold the CLIENT role.
func loadClient(ctx context.Context, users repository.UserRepository, clientID uuid.UUID) (*domain.User, error) {
	client, err := users.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.IsClient() {
		return nil, repository.ErrNotFound
	}
	return client, nil
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
