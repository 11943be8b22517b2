package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/storage"
)

const (
	exercisesCSV = "\ufeffClave,Nombre,Categoría,Grupo Muscular\nsquat,Sentadilla,fuerza,piernas\nrow,Remo,fuerza,espalda\n"
	routinesCSV  = "codigo,nombre\nRB001,Full body\n\nRB002,Torso\n"
	itemsCSV     = `rutina,dia,orden,ejercicio,series,repeticiones,carga_kg,descanso_seg,notas
RB001,1,1,squat,4,8,60,90,"pausa, 2s"
RB001,2,1,row,3,10-12,,60,
RB002,1,1,row,3,12,,,
`
)

func TestParseCSV(t *testing.T) {
	b, err := ParseCSV(strings.NewReader(exercisesCSV), strings.NewReader(routinesCSV), strings.NewReader(itemsCSV))
	require.NoError(t, err)

	require.Len(t, b.Exercises, 2)
	assert.Equal(t, ExerciseRow{Sheet: SheetExercises, Line: 2, ExternalID: "squat", Name: "Sentadilla", Category: "fuerza", MuscleGroup: "piernas"}, b.Exercises[0])

	require.Len(t, b.Routines, 2)
	assert.Equal(t, "RB002", b.Routines[1].Code)
	assert.Equal(t, 4, b.Routines[1].Line, "blank lines are skipped but still counted")

	require.Len(t, b.Items, 3)
	first := b.Items[0]
	assert.Equal(t, "RB001", first.Code)
	assert.Equal(t, "1", first.Day)
	assert.Equal(t, "60", first.LoadKg)
	assert.Equal(t, "90", first.RestSeconds)
	assert.Equal(t, "pausa, 2s", first.Notes)
	assert.Equal(t, "10-12", b.Items[1].Reps)
	assert.Equal(t, "", b.Items[1].LoadKg)
}

func TestParseCSV_MissingColumns(t *testing.T) {
	_, err := ParseCSV(nil, strings.NewReader("codigo\nRB001\n"), strings.NewReader("rutina,dia\nRB001,1\n"))
	require.ErrorIs(t, err, domain.ErrValidation)

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	keys := make([]string, 0, len(de.Rows))
	for _, r := range de.Rows {
		keys = append(keys, r.Sheet+"."+r.Key)
	}
	assert.ElementsMatch(t, []string{"routines.name", "routine_items.order", "routine_items.exercise_key"}, keys)
}

func TestStamp(t *testing.T) {
	b := &Batch{
		Routines: []RoutineRow{{Code: "RB001"}, {Code: "RB002", Sheet: "custom", Line: 9}},
		Items:    []ItemRow{{Code: "RB001"}},
	}
	b.Stamp()
	assert.Equal(t, SheetRoutines, b.Routines[0].Sheet)
	assert.Equal(t, 1, b.Routines[0].Line)
	assert.Equal(t, "custom", b.Routines[1].Sheet)
	assert.Equal(t, 9, b.Routines[1].Line)
	assert.Equal(t, SheetRoutineItems, b.Items[0].Sheet)
	assert.False(t, b.Empty())
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routines.csv"), []byte(routinesCSV), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routine_items.csv"), []byte(itemsCSV), 0o600))

	b, err := DirSource{Dir: dir}.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, b.Exercises)
	assert.Len(t, b.Routines, 2)
	assert.Len(t, b.Items, 3)

	_, err = DirSource{Dir: t.TempDir()}.Read(context.Background())
	assert.ErrorIs(t, err, ErrNoSheets)
}

func TestObjectSource(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.PutObject(ctx, "catalog/exercises.csv", "text/csv", []byte(exercisesCSV)))
	require.NoError(t, store.PutObject(ctx, "catalog/routines.csv", "text/csv", []byte(routinesCSV)))
	require.NoError(t, store.PutObject(ctx, "catalog/routine_items.csv", "text/csv", []byte(itemsCSV)))

	src := ObjectSource{Store: store, Prefix: "catalog/"}
	b, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, b.Exercises, 2)
	assert.Len(t, b.Items, 3)
	assert.Equal(t, "object:catalog/", src.Name())
}
