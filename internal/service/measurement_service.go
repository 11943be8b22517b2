package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

// MeasurementResult is a stored measurement plus whether this call created it.
type MeasurementResult struct {
	Measurement *domain.Measurement `json:"measurement"`
	Created     bool                `json:"created"`
}

// MeasurementService keeps one body-metrics record per client and date.
type MeasurementService interface {
	Upsert(ctx context.Context, actor access.Actor, clientID uuid.UUID, metricDate time.Time, in domain.MeasurementInput) (*MeasurementResult, error)
	ListHistory(ctx context.Context, actor access.Actor, clientID uuid.UUID) ([]domain.Measurement, error)
}

type measurementService struct {
	base
	store repository.UnitOfWork
}

func NewMeasurementService(store repository.UnitOfWork, deps Deps) MeasurementService {
	return &measurementService{base: newBase(deps, "measurement"), store: store}
}

// upsertAttempts bounds the insert-race retry: a lost insert race becomes an amend.
const upsertAttempts = 2

func (s *measurementService) Upsert(ctx context.Context, actor access.Actor, clientID uuid.UUID, metricDate time.Time, in domain.MeasurementInput) (*MeasurementResult, error) {
	const op = "measurement.upsert"
	if err := in.Validate(); err != nil {
		return nil, err
	}
	date := domain.DateOnly(metricDate)
	if date.After(domain.DateOnly(s.now())) {
		return nil, domain.Validation(op, "metric date %s is in the future", domain.FormatDate(date))
	}

	client, err := loadClient(ctx, s.store.Users(), clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "client")
	}
	if err := s.authorizeClient(actor, access.OpUpsertMeasurement, client); err != nil {
		return nil, err
	}

	var result *MeasurementResult
	for attempt := 1; ; attempt++ {
		result, err = s.upsertOnce(ctx, actor, clientID, date, in)
		if err == nil || !errors.Is(err, repository.ErrConflict) || attempt >= upsertAttempts {
			break
		}
		s.logger.Debug("measurement insert raced, retrying as amend", "client", clientID, "date", domain.FormatDate(date))
	}
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Conflict(op, "measurement for %s was modified concurrently", domain.FormatDate(date))
		}
		return nil, s.storeErr(op, err, "measurement")
	}

	s.metrics.Measurement(result.Created)
	return result, nil
}

func (s *measurementService) upsertOnce(ctx context.Context, actor access.Actor, clientID uuid.UUID, date time.Time, in domain.MeasurementInput) (*MeasurementResult, error) {
	var result *MeasurementResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		now := s.now()
		existing, err := tx.Measurements().GetByClientDate(ctx, clientID, date)
		switch {
		case err == nil:
			in.Apply(existing)
			existing.UpdatedAt = now
			existing.RecordedBy = actor.ID
			if err := tx.Measurements().Update(ctx, existing); err != nil {
				return err
			}
			result = &MeasurementResult{Measurement: existing}
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		m := &domain.Measurement{
			ID:         uuid.New(),
			ClientID:   clientID,
			MetricDate: date,
			CreatedAt:  now,
			UpdatedAt:  now,
			RecordedBy: actor.ID,
		}
		in.Apply(m)
		if err := tx.Measurements().Create(ctx, m); err != nil {
			return err
		}
		result = &MeasurementResult{Measurement: m, Created: true}
		return nil
	})
	return result, err
}

func (s *measurementService) ListHistory(ctx context.Context, actor access.Actor, clientID uuid.UUID) ([]domain.Measurement, error) {
	const op = "measurement.list"
	client, err := loadClient(ctx, s.store.Users(), clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "client")
	}
	if err := s.authorizeClient(actor, access.OpViewMeasurements, client); err != nil {
		return nil, err
	}
	history, err := s.store.Measurements().ListByClient(ctx, clientID)
	if err != nil {
		return nil, s.storeErr(op, err, "measurements")
	}
	return history, nil
}
