// Package feed turns the catalog spreadsheet export into a Batch of raw rows.
// Rows keep their cells as text; the synchronizer validates them.
package feed

import (
	"context"
	"strings"
)

// Sheet names, also used as file stems (exercises.csv, ...).
const (
	SheetExercises    = "exercises"
	SheetRoutines     = "routines"
	SheetRoutineItems = "routine_items"
)

// ExerciseRow is one line of the exercise dictionary sheet.
type ExerciseRow struct {
	Sheet       string `json:"sheet,omitempty"`
	Line        int    `json:"line,omitempty"`
	ExternalID  string `json:"externalId"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	MuscleGroup string `json:"muscleGroup,omitempty"`
	Description string `json:"description,omitempty"`
	VideoURL    string `json:"videoUrl,omitempty"`
}

// RoutineRow declares a routine code and its display name.
type RoutineRow struct {
	Sheet string `json:"sheet,omitempty"`
	Line  int    `json:"line,omitempty"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

// ItemRow is one exercise prescription of a routine. Numeric cells stay as
// text so that bad cells can be reported with their line.
type ItemRow struct {
	Sheet       string `json:"sheet,omitempty"`
	Line        int    `json:"line,omitempty"`
	Code        string `json:"code"`
	Day         string `json:"day"`
	Order       string `json:"order"`
	ExerciseKey string `json:"exerciseKey"`
	Category    string `json:"category,omitempty"`
	Sets        string `json:"sets,omitempty"`
	Reps        string `json:"reps,omitempty"`
	LoadKg      string `json:"loadKg,omitempty"`
	RestSeconds string `json:"restSeconds,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Batch is everything one sync ingests.
type Batch struct {
	Exercises []ExerciseRow `json:"exercises"`
	Routines  []RoutineRow  `json:"routines"`
	Items     []ItemRow     `json:"items"`
}

// Stamp fills missing sheet names and line numbers, for batches that did not
// come from a file (e.g. JSON bodies). Lines count from 1 in input order.
func (b *Batch) Stamp() {
	for i := range b.Exercises {
		stamp(&b.Exercises[i].Sheet, &b.Exercises[i].Line, SheetExercises, i+1)
	}
	for i := range b.Routines {
		stamp(&b.Routines[i].Sheet, &b.Routines[i].Line, SheetRoutines, i+1)
	}
	for i := range b.Items {
		stamp(&b.Items[i].Sheet, &b.Items[i].Line, SheetRoutineItems, i+1)
	}
}

func stamp(sheet *string, line *int, name string, n int) {
	if strings.TrimSpace(*sheet) == "" {
		*sheet = name
	}
	if *line <= 0 {
		*line = n
	}
}

func (b *Batch) Empty() bool {
	return len(b.Exercises) == 0 && len(b.Routines) == 0 && len(b.Items) == 0
}

// Source produces a batch from wherever the spreadsheet export lives.
type Source interface {
	Name() string
	Read(ctx context.Context) (*Batch, error)
}
