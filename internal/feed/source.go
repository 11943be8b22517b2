package feed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"rutinasds/routines-app/internal/storage"
)

var sheets = []string{SheetExercises, SheetRoutines, SheetRoutineItems}

// ErrNoSheets means the source was reachable but held none of the sheets.
var ErrNoSheets = errors.New("no feed sheets found")

// DirSource reads <dir>/exercises.csv, routines.csv and routine_items.csv.
// Missing files are treated as empty sheets.
type DirSource struct {
	Dir string
}

func (s DirSource) Name() string { return "dir:" + s.Dir }

func (s DirSource) Read(_ context.Context) (*Batch, error) {
	files := make(map[string][]byte, len(sheets))
	for _, sheet := range sheets {
		body, err := os.ReadFile(filepath.Join(s.Dir, sheet+".csv"))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read feed sheet %s: %w", sheet, err)
		}
		files[sheet] = body
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSheets, s.Dir)
	}
	return parseFiles(files)
}

// ObjectSource reads the same three sheets from object storage under Prefix.
type ObjectSource struct {
	Store  storage.ObjectStorage
	Prefix string
}

func (s ObjectSource) Name() string { return "object:" + s.Prefix }

func (s ObjectSource) Read(ctx context.Context) (*Batch, error) {
	files := make(map[string][]byte, len(sheets))
	for _, sheet := range sheets {
		body, err := s.Store.GetObject(ctx, path.Join(s.Prefix, sheet+".csv"))
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				continue
			}
			return nil, fmt.Errorf("fetch feed sheet %s: %w", sheet, err)
		}
		files[sheet] = body
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoSheets, s.Prefix)
	}
	return parseFiles(files)
}
