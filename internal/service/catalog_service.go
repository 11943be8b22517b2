package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/repository"
)

// CatalogService is the read side of the catalog. Writes only happen through
// synchronization.
type CatalogService interface {
	// ListCurrent returns the latest version of every routine, without items.
	ListCurrent(ctx context.Context, actor access.Actor) ([]domain.BaseRoutine, error)
	// GetRoutine returns the latest version of ref (code or version id) with items.
	GetRoutine(ctx context.Context, actor access.Actor, ref string) (*domain.BaseRoutine, error)
	ListVersions(ctx context.Context, actor access.Actor, code string) ([]domain.BaseRoutine, error)
	ListExercises(ctx context.Context, actor access.Actor) ([]domain.ExerciseDefinition, error)
	// EditBaseRoutineItem always fails: catalog items change only by sync.
	EditBaseRoutineItem(ctx context.Context, actor access.Actor, itemID uuid.UUID, patch domain.SnapshotItemPatch) error
}

type catalogService struct {
	base
	catalog repository.CatalogRepository
}

func NewCatalogService(catalog repository.CatalogUnitOfWork, deps Deps) CatalogService {
	return &catalogService{base: newBase(deps, "catalog"), catalog: catalog.Catalog()}
}

func (s *catalogService) ListCurrent(ctx context.Context, actor access.Actor) ([]domain.BaseRoutine, error) {
	if err := s.authorize(actor, access.OpViewCatalog); err != nil {
		return nil, err
	}
	routines, err := s.catalog.ListLatestRoutines(ctx)
	if err != nil {
		return nil, s.storeErr("catalog.list", err, "routines")
	}
	return routines, nil
}

func (s *catalogService) GetRoutine(ctx context.Context, actor access.Actor, ref string) (*domain.BaseRoutine, error) {
	const op = "catalog.get"
	if err := s.authorize(actor, access.OpViewCatalog); err != nil {
		return nil, err
	}
	routine, err := resolveRoutine(ctx, s.catalog, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "routine %q not found", ref)
		}
		return nil, s.storeErr(op, err, "routine")
	}
	return routine, nil
}

func (s *catalogService) ListVersions(ctx context.Context, actor access.Actor, code string) ([]domain.BaseRoutine, error) {
	const op = "catalog.versions"
	if err := s.authorize(actor, access.OpViewRoutineHist); err != nil {
		return nil, err
	}
	code = domain.NormalizeRoutineCode(code)
	versions, err := s.catalog.ListRoutineVersions(ctx, code)
	if err != nil {
		return nil, s.storeErr(op, err, "routine")
	}
	if len(versions) == 0 {
		return nil, domain.NotFound(op, "routine %q not found", code)
	}
	return versions, nil
}

func (s *catalogService) ListExercises(ctx context.Context, actor access.Actor) ([]domain.ExerciseDefinition, error) {
	if err := s.authorize(actor, access.OpViewCatalog); err != nil {
		return nil, err
	}
	exercises, err := s.catalog.ListExercises(ctx)
	if err != nil {
		return nil, s.storeErr("catalog.exercises", err, "exercises")
	}
	return exercises, nil
}

func (s *catalogService) EditBaseRoutineItem(_ context.Context, actor access.Actor, itemID uuid.UUID, _ domain.SnapshotItemPatch) error {
	if err := s.authorize(actor, access.OpEditCatalog); err != nil {
		return err
	}
	s.logger.Warn("direct catalog edit rejected", "actor", actor.ID, "item", itemID)
	return domain.InvalidState("catalog.edit", "catalog routines change only through synchronization; edit the client's snapshot instead")
}
