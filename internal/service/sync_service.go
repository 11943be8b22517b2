package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/feed"
	"rutinasds/routines-app/internal/repository"
	"rutinasds/routines-app/internal/storage"
)

// SyncSummary reports what one synchronization changed.
type SyncSummary struct {
	SyncID            uuid.UUID         `json:"syncId"`
	Source            string            `json:"source,omitempty"`
	StartedAt         time.Time         `json:"startedAt"`
	FinishedAt        time.Time         `json:"finishedAt"`
	RoutinesUpdated   []string          `json:"routinesUpdated"`   // Codes that got a new version, first versions included
	RoutinesUnchanged []string          `json:"routinesUnchanged"` // Codes whose content hash matched the latest version
	VersionsAssigned  map[string]int    `json:"versionsAssigned"`  // Code -> version written by this sync
	ExercisesUpserted int               `json:"exercisesUpserted"`
	RejectedRows      []domain.RowError `json:"rejectedRows,omitempty"`
	ArchiveKey        string            `json:"archiveKey,omitempty"`
}

// SyncService imports the catalog spreadsheet.
type SyncService interface {
	Sync(ctx context.Context, actor access.Actor, batch *feed.Batch) (*SyncSummary, error)
	SyncFromSource(ctx context.Context, actor access.Actor, src feed.Source) (*SyncSummary, error)
	// ArchiveURL returns a short-lived download link for the feed a sync accepted.
	ArchiveURL(ctx context.Context, actor access.Actor, syncID uuid.UUID) (string, error)
}

type syncService struct {
	base
	catalog repository.CatalogUnitOfWork
	archive storage.ObjectStorage // Optional
	mu      sync.Mutex
}

// NewSyncService wires the synchronizer. It only ever sees the catalog.
// archive may be nil, in which case accepted feeds are not kept.
func NewSyncService(catalog repository.CatalogUnitOfWork, archive storage.ObjectStorage, deps Deps) SyncService {
	return &syncService{
		base:    newBase(deps, "sync"),
		catalog: catalog,
		archive: archive,
	}
}

// FeedArchiveKey is where an accepted feed is stored.
func FeedArchiveKey(syncID uuid.UUID) string {
	return "feeds/" + syncID.String() + ".json"
}

func (s *syncService) SyncFromSource(ctx context.Context, actor access.Actor, src feed.Source) (*SyncSummary, error) {
	const op = "catalog.sync"
	if err := s.authorize(actor, access.OpSyncCatalog); err != nil {
		return nil, err
	}
	batch, err := src.Read(ctx)
	if err != nil {
		var de *domain.Error
		switch {
		case errors.As(err, &de):
			s.metrics.SyncRun("rejected", 0, 0)
			return nil, err
		case errors.Is(err, feed.ErrNoSheets):
			s.metrics.SyncRun("rejected", 0, 0)
			return nil, domain.Validation(op, "no feed sheets found in %s", src.Name())
		}
		s.metrics.SyncRun("error", 0, 0)
		s.logger.Error("feed read failed", "source", src.Name(), "error", err)
		return nil, domain.Internal(op, err)
	}
	return s.run(ctx, actor, batch, src.Name())
}

func (s *syncService) Sync(ctx context.Context, actor access.Actor, batch *feed.Batch) (*SyncSummary, error) {
	if err := s.authorize(actor, access.OpSyncCatalog); err != nil {
		return nil, err
	}
	return s.run(ctx, actor, batch, "request")
}

// preparedRoutine is a validated routine ready to be hashed and stored.
type preparedRoutine struct {
	code  string
	name  string
	line  int
	items []domain.BaseRoutineItem
	lines map[[2]int]int // (day, order) -> feed line
}

func (s *syncService) run(ctx context.Context, actor access.Actor, batch *feed.Batch, source string) (*SyncSummary, error) {
	const op = "catalog.sync"
	if batch == nil || batch.Empty() {
		s.metrics.SyncRun("rejected", 0, 0)
		return nil, domain.Validation(op, "feed is empty")
	}
	batch.Stamp()

	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &SyncSummary{
		SyncID:            uuid.New(),
		Source:            source,
		StartedAt:         s.now(),
		RoutinesUpdated:   []string{},
		RoutinesUnchanged: []string{},
		VersionsAssigned:  map[string]int{},
	}
	var accepted []domain.BaseRoutine

	err := s.catalog.WithinCatalogTx(ctx, func(ctx context.Context, catalog repository.CatalogRepository) error {
		if err := catalog.LockForSync(ctx); err != nil {
			return err
		}

		exercises, routines, rows := validateBatch(batch)
		if err := resolveExercises(ctx, catalog, exercises, routines, &rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			summary.RejectedRows = rows
			return domain.ValidationRows(op, "feed rejected", rows)
		}

		now := s.now()
		for i := range exercises {
			exercises[i].UpdatedAt = now
			if err := catalog.UpsertExercise(ctx, &exercises[i]); err != nil {
				return err
			}
		}
		summary.ExercisesUpserted = len(exercises)

		for _, pr := range routines {
			hash := domain.RoutineContentHash(pr.name, pr.items)
			version := 1
			latest, err := catalog.GetLatestRoutine(ctx, pr.code)
			switch {
			case err == nil && latest.ContentHash == hash:
				summary.RoutinesUnchanged = append(summary.RoutinesUnchanged, pr.code)
				continue
			case err == nil:
				version = latest.Version + 1
			case !errors.Is(err, repository.ErrNotFound):
				return err
			}

			br := domain.BaseRoutine{
				ID:          uuid.New(),
				Code:        pr.code,
				Name:        pr.name,
				Version:     version,
				ContentHash: hash,
				CreatedAt:   now,
				Items:       pr.items,
			}
			for i := range br.Items {
				br.Items[i].ID = uuid.New()
			}
			if err := catalog.CreateRoutineVersion(ctx, &br); err != nil {
				return err
			}
			summary.RoutinesUpdated = append(summary.RoutinesUpdated, pr.code)
			summary.VersionsAssigned[pr.code] = version
			accepted = append(accepted, br)
		}
		return nil
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) && de.Kind == domain.KindValidation {
			s.metrics.SyncRun("rejected", 0, 0)
			s.logger.Info("feed rejected", "source", source, "rejected_rows", len(de.Rows))
			return nil, err
		}
		s.metrics.SyncRun("error", 0, 0)
		return nil, s.storeErr(op, err, "catalog")
	}

	summary.FinishedAt = s.now()
	s.metrics.SyncRun("ok", len(summary.RoutinesUpdated), summary.ExercisesUpserted)
	s.logger.Info("catalog synchronized",
		"sync_id", summary.SyncID,
		"source", source,
		"updated", len(summary.RoutinesUpdated),
		"unchanged", len(summary.RoutinesUnchanged),
		"exercises", summary.ExercisesUpserted,
	)

	summary.ArchiveKey = s.archiveFeed(ctx, summary, batch, accepted)

	s.record(ctx, actor, domain.AuditEntry{
		Action:     domain.AuditCatalogSynced,
		TargetType: "catalog",
		TargetID:   summary.SyncID.String(),
		Details: map[string]string{
			"source":    source,
			"updated":   strconv.Itoa(len(summary.RoutinesUpdated)),
			"unchanged": strconv.Itoa(len(summary.RoutinesUnchanged)),
			"exercises": strconv.Itoa(summary.ExercisesUpserted),
		},
		OccurredAt: summary.FinishedAt,
	})
	return summary, nil
}

// archivedFeed is the JSON document kept for every accepted sync.
type archivedFeed struct {
	SyncID     uuid.UUID            `json:"syncId"`
	Source     string               `json:"source"`
	AcceptedAt time.Time            `json:"acceptedAt"`
	Feed       *feed.Batch          `json:"feed"`
	Versions   []domain.BaseRoutine `json:"versions"`
}

func (s *syncService) archiveFeed(ctx context.Context, summary *SyncSummary, batch *feed.Batch, versions []domain.BaseRoutine) string {
	if s.archive == nil {
		return ""
	}
	body, err := json.Marshal(archivedFeed{
		SyncID:     summary.SyncID,
		Source:     summary.Source,
		AcceptedAt: summary.FinishedAt,
		Feed:       batch,
		Versions:   versions,
	})
	if err == nil {
		err = s.archive.PutObject(ctx, FeedArchiveKey(summary.SyncID), "application/json", body)
	}
	if err != nil {
		s.metrics.FeedArchive(false)
		s.logger.Warn("feed archive failed", "sync_id", summary.SyncID, "error", err)
		return ""
	}
	s.metrics.FeedArchive(true)
	return FeedArchiveKey(summary.SyncID)
}

func (s *syncService) ArchiveURL(ctx context.Context, actor access.Actor, syncID uuid.UUID) (string, error) {
	const op = "catalog.archive_url"
	if err := s.authorize(actor, access.OpSyncCatalog); err != nil {
		return "", err
	}
	if s.archive == nil {
		return "", domain.NotFound(op, "feed archive is not configured")
	}
	key := FeedArchiveKey(syncID)
	found, err := s.archive.ObjectExists(ctx, key)
	if err != nil {
		return "", domain.Internal(op, err)
	}
	if !found {
		return "", domain.NotFound(op, "no archived feed for sync %s", syncID)
	}
	url, err := s.archive.GeneratePresignedDownloadURL(ctx, key, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return "", domain.Internal(op, err)
	}
	return url, nil
}

type itemKey struct {
	code       string
	day, order int
}

// validateBatch checks everything that does not need the store. Item
// exercise names are filled from the feed's own exercise rows when present.
func validateBatch(b *feed.Batch) ([]domain.ExerciseDefinition, []*preparedRoutine, []domain.RowError) {
	var rows []domain.RowError
	reject := func(sheet string, line int, key, format string, args ...any) {
		rows = append(rows, domain.RowError{Sheet: sheet, Line: line, Key: key, Reason: fmt.Sprintf(format, args...)})
	}

	exercises := make([]domain.ExerciseDefinition, 0, len(b.Exercises))
	seenExercise := make(map[string]int, len(b.Exercises))
	for _, r := range b.Exercises {
		key := domain.NormalizeExerciseKey(r.ExternalID)
		name := strings.TrimSpace(r.Name)
		if key == "" {
			reject(r.Sheet, r.Line, "", "exercise id is required")
			continue
		}
		if name == "" {
			reject(r.Sheet, r.Line, key, "exercise name is required")
			continue
		}
		if first, dup := seenExercise[key]; dup {
			reject(r.Sheet, r.Line, key, "duplicate exercise id, first seen on line %d", first)
			continue
		}
		seenExercise[key] = r.Line
		exercises = append(exercises, domain.ExerciseDefinition{
			ExternalID:  key,
			Name:        name,
			Category:    strings.TrimSpace(r.Category),
			MuscleGroup: strings.TrimSpace(r.MuscleGroup),
			Description: strings.TrimSpace(r.Description),
			VideoURL:    strings.TrimSpace(r.VideoURL),
		})
	}

	routines := make([]*preparedRoutine, 0, len(b.Routines))
	byCode := make(map[string]*preparedRoutine, len(b.Routines))
	for _, r := range b.Routines {
		code := domain.NormalizeRoutineCode(r.Code)
		name := strings.TrimSpace(r.Name)
		if code == "" {
			reject(r.Sheet, r.Line, "", "routine code is required")
			continue
		}
		if name == "" {
			reject(r.Sheet, r.Line, code, "routine name is required")
			continue
		}
		if first, dup := byCode[code]; dup {
			reject(r.Sheet, r.Line, code, "duplicate routine code, first seen on line %d", first.line)
			continue
		}
		pr := &preparedRoutine{code: code, name: name, line: r.Line, lines: map[[2]int]int{}}
		byCode[code] = pr
		routines = append(routines, pr)
	}

	seenItem := make(map[itemKey]int, len(b.Items))
	for _, r := range b.Items {
		code := domain.NormalizeRoutineCode(r.Code)
		if code == "" {
			reject(r.Sheet, r.Line, "", "routine code is required")
			continue
		}
		pr, declared := byCode[code]
		if !declared {
			reject(r.Sheet, r.Line, code, "routine code is not declared in the routines sheet")
			continue
		}

		bad := false
		day, err := strconv.Atoi(strings.TrimSpace(r.Day))
		if err != nil || day < 1 {
			reject(r.Sheet, r.Line, code, "day must be a whole number >= 1, got %q", r.Day)
			bad = true
		}
		order, err := strconv.Atoi(strings.TrimSpace(r.Order))
		if err != nil || order < 1 {
			reject(r.Sheet, r.Line, code, "order must be a whole number >= 1, got %q", r.Order)
			bad = true
		}
		exKey := domain.NormalizeExerciseKey(r.ExerciseKey)
		if exKey == "" {
			reject(r.Sheet, r.Line, code, "exercise key is required")
			bad = true
		}
		load, err := parseLoad(r.LoadKg)
		if err != nil {
			reject(r.Sheet, r.Line, code, "load %q is not a finite non-negative number", r.LoadKg)
			bad = true
		}
		rest, err := parseRest(r.RestSeconds)
		if err != nil {
			reject(r.Sheet, r.Line, code, "rest %q is not a non-negative whole number of seconds", r.RestSeconds)
			bad = true
		}
		if bad {
			continue
		}

		k := itemKey{code: code, day: day, order: order}
		if first, dup := seenItem[k]; dup {
			reject(r.Sheet, r.Line, code, "duplicate day %d order %d, first seen on line %d", day, order, first)
			continue
		}
		seenItem[k] = r.Line
		pr.lines[[2]int{day, order}] = r.Line

		pr.items = append(pr.items, domain.BaseRoutineItem{
			DayIndex:    day,
			OrderIndex:  order,
			ExerciseKey: exKey,
			Category:    strings.TrimSpace(r.Category),
			Sets:        strings.TrimSpace(r.Sets),
			Reps:        strings.TrimSpace(r.Reps),
			LoadKg:      load,
			RestSeconds: rest,
			Notes:       strings.TrimSpace(r.Notes),
		})
	}

	for _, pr := range routines {
		if len(pr.items) == 0 && !hasRowsFor(b.Items, pr.code) {
			reject(feed.SheetRoutines, pr.line, pr.code, "routine has no items")
		}
		domain.SortRoutineItems(pr.items)
	}
	return exercises, routines, rows
}

func hasRowsFor(items []feed.ItemRow, code string) bool {
	for _, r := range items {
		if domain.NormalizeRoutineCode(r.Code) == code {
			return true
		}
	}
	return false
}

// resolveExercises fills exercise names and categories on every item and
// rejects items whose key is neither in the feed nor in the store.
func resolveExercises(ctx context.Context, catalog repository.CatalogRepository,
	feedExercises []domain.ExerciseDefinition, routines []*preparedRoutine, rows *[]domain.RowError) error {
	known := make(map[string]domain.ExerciseDefinition, len(feedExercises))
	for _, ex := range feedExercises {
		known[ex.ExternalID] = ex
	}

	missing := make(map[string]struct{})
	for _, pr := range routines {
		for _, it := range pr.items {
			if _, ok := known[it.ExerciseKey]; !ok {
				missing[it.ExerciseKey] = struct{}{}
			}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		stored, err := catalog.GetExercisesByKeys(ctx, keys)
		if err != nil {
			return err
		}
		for k, ex := range stored {
			known[k] = ex
		}
	}

	for _, pr := range routines {
		for i := range pr.items {
			it := &pr.items[i]
			ex, ok := known[it.ExerciseKey]
			if !ok {
				*rows = append(*rows, domain.RowError{
					Sheet:  feed.SheetRoutineItems,
					Line:   pr.lines[[2]int{it.DayIndex, it.OrderIndex}],
					Key:    pr.code,
					Reason: fmt.Sprintf("unknown exercise %q", it.ExerciseKey),
				})
				continue
			}
			it.ExerciseName = ex.Name
			if it.Category == "" {
				it.Category = ex.Category
			}
		}
	}
	return nil
}

// parseLoad accepts "", "40", "42.5" and "42,5". NaN and infinities are
// rejected along with negatives.
func parseLoad(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil, fmt.Errorf("invalid load %q", raw)
	}
	return &v, nil
}

func parseRest(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid rest %q", raw)
	}
	return &v, nil
}
