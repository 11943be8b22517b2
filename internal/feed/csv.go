package feed

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"rutinasds/routines-app/internal/domain"
)

// headerAliases maps accepted column titles (lower-cased, trimmed) to field
// names. The gym's sheets are in Spanish; English titles work too.
var headerAliases = map[string]string{
	"id": "external_id", "external_id": "external_id", "key": "external_id", "clave": "external_id", "codigo_ejercicio": "external_id",
	"name": "name", "nombre": "name",
	"category": "category", "categoria": "category", "categoría": "category",
	"muscle_group": "muscle_group", "grupo_muscular": "muscle_group", "musculo": "muscle_group",
	"description": "description", "descripcion": "description", "descripción": "description",
	"video": "video_url", "video_url": "video_url",
	"code": "code", "codigo": "code", "código": "code", "rutina": "code", "routine": "code",
	"day": "day", "dia": "day", "día": "day",
	"order": "order", "orden": "order",
	"exercise": "exercise_key", "exercise_key": "exercise_key", "ejercicio": "exercise_key",
	"sets": "sets", "series": "sets",
	"reps": "reps", "repeticiones": "reps",
	"load": "load_kg", "load_kg": "load_kg", "carga": "load_kg", "carga_kg": "load_kg", "peso_kg": "load_kg",
	"rest": "rest_seconds", "rest_seconds": "rest_seconds", "descanso": "rest_seconds", "descanso_seg": "rest_seconds",
	"notes": "notes", "notas": "notes", "observaciones": "notes",
}

// table is a parsed CSV sheet: field name -> column index, plus data rows with
// their 1-based line numbers.
type table struct {
	sheet   string
	columns map[string]int
	rows    [][]string
	lines   []int
}

func (t *table) cell(row int, field string) string {
	idx, ok := t.columns[field]
	if !ok || idx >= len(t.rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.rows[row][idx])
}

func readTable(sheet string, r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &table{sheet: sheet, columns: map[string]int{}}, nil
		}
		return nil, fmt.Errorf("read %s header: %w", sheet, err)
	}
	t := &table{sheet: sheet, columns: make(map[string]int, len(header))}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := headerAliases[key]; ok {
			if _, dup := t.columns[field]; !dup {
				t.columns[field] = i
			}
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sheet, err)
		}
		line, _ := cr.FieldPos(0)
		if blankRecord(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// requireColumns reports missing mandatory headers as row errors on line 1.
func (t *table) requireColumns(fields ...string) []domain.RowError {
	var errs []domain.RowError
	for _, f := range fields {
		if _, ok := t.columns[f]; !ok {
			errs = append(errs, domain.RowError{Sheet: t.sheet, Line: 1, Key: f, Reason: "missing column"})
		}
	}
	return errs
}

// ParseCSV builds a batch from the three sheets. Any of the readers may be nil
// when that sheet is absent. Header problems are returned as a ValidationError.
func ParseCSV(exercises, routines, items io.Reader) (*Batch, error) {
	var (
		batch   Batch
		headers []domain.RowError
	)

	if exercises != nil {
		t, err := readTable(SheetExercises, exercises)
		if err != nil {
			return nil, domain.Validation("feed.parse", "%v", err)
		}
		if len(t.rows) > 0 {
			headers = append(headers, t.requireColumns("external_id", "name")...)
		}
		for i := range t.rows {
			batch.Exercises = append(batch.Exercises, ExerciseRow{
				Sheet: t.sheet, Line: t.lines[i],
				ExternalID:  t.cell(i, "external_id"),
				Name:        t.cell(i, "name"),
				Category:    t.cell(i, "category"),
				MuscleGroup: t.cell(i, "muscle_group"),
				Description: t.cell(i, "description"),
				VideoURL:    t.cell(i, "video_url"),
			})
		}
	}

	if routines != nil {
		t, err := readTable(SheetRoutines, routines)
		if err != nil {
			return nil, domain.Validation("feed.parse", "%v", err)
		}
		if len(t.rows) > 0 {
			headers = append(headers, t.requireColumns("code", "name")...)
		}
		for i := range t.rows {
			batch.Routines = append(batch.Routines, RoutineRow{
				Sheet: t.sheet, Line: t.lines[i],
				Code: t.cell(i, "code"),
				Name: t.cell(i, "name"),
			})
		}
	}

	if items != nil {
		t, err := readTable(SheetRoutineItems, items)
		if err != nil {
			return nil, domain.Validation("feed.parse", "%v", err)
		}
		if len(t.rows) > 0 {
			headers = append(headers, t.requireColumns("code", "day", "order", "exercise_key")...)
		}
		for i := range t.rows {
			batch.Items = append(batch.Items, ItemRow{
				Sheet: t.sheet, Line: t.lines[i],
				Code:        t.cell(i, "code"),
				Day:         t.cell(i, "day"),
				Order:       t.cell(i, "order"),
				ExerciseKey: t.cell(i, "exercise_key"),
				Category:    t.cell(i, "category"),
				Sets:        t.cell(i, "sets"),
				Reps:        t.cell(i, "reps"),
				LoadKg:      t.cell(i, "load_kg"),
				RestSeconds: t.cell(i, "rest_seconds"),
				Notes:       t.cell(i, "notes"),
			})
		}
	}

	if len(headers) > 0 {
		return nil, domain.ValidationRows("feed.parse", "feed is missing required columns", headers)
	}
	return &batch, nil
}

// parseFiles parses sheet contents keyed by sheet name.
func parseFiles(files map[string][]byte) (*Batch, error) {
	reader := func(name string) io.Reader {
		body, ok := files[name]
		if !ok {
			return nil
		}
		return bytes.NewReader(body)
	}
	return ParseCSV(reader(SheetExercises), reader(SheetRoutines), reader(SheetRoutineItems))
}
