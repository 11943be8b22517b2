package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BaseRoutine is one version of a catalog routine. Every content change
// produces a new row with Version+1; older versions are kept so snapshots
// taken from them stay traceable.
type BaseRoutine struct {
	ID          uuid.UUID         `json:"id"`
	Code        string            `json:"code"` // Human code from the spreadsheet, e.g. "RB001"
	Name        string            `json:"name"`
	Version     int               `json:"version"`
	ContentHash string            `json:"contentHash"`
	CreatedAt   time.Time         `json:"createdAt"`
	Items       []BaseRoutineItem `json:"items,omitempty"`
}

// BaseRoutineItem is one exercise prescription inside a routine day.
type BaseRoutineItem struct {
	ID           uuid.UUID `json:"id"`
	RoutineID    uuid.UUID `json:"routineId"`
	DayIndex     int       `json:"dayIndex"`   // Routine-day N, starting at 1
	OrderIndex   int       `json:"orderIndex"` // Position within the day
	ExerciseKey  string    `json:"exerciseKey"`
	ExerciseName string    `json:"exerciseName"`
	Category     string    `json:"category,omitempty"`
	Sets         string    `json:"sets,omitempty"` // Free text in the sheet ("3", "3-4")
	Reps         string    `json:"reps,omitempty"` // Free text in the sheet ("10", "8-12", "AMRAP")
	LoadKg       *float64  `json:"loadKg,omitempty"`
	RestSeconds  *int      `json:"restSeconds,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// NormalizeRoutineCode trims and upper-cases a routine code.
func NormalizeRoutineCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// SortRoutineItems orders items by day, then position.
func SortRoutineItems(items []BaseRoutineItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DayIndex != items[j].DayIndex {
			return items[i].DayIndex < items[j].DayIndex
		}
		return items[i].OrderIndex < items[j].OrderIndex
	})
}

// hashedItem is the canonical shape fed to the content hash. Ids are left out
// on purpose: two syncs of the same sheet must hash the same.
// RoutineContentHash returns the hex SHA-256 of the routine name and its
// items in (day, order) order. Every field is written length-prefixed or
// quoted, so no two distinct routines share an encoding.
func RoutineContentHash(name string, items []BaseRoutineItem) string {
	sorted := make([]BaseRoutineItem, len(items))
	copy(sorted, items)
	SortRoutineItems(sorted)

	var b strings.Builder
	b.WriteString("name=")
	b.WriteString(strconv.Quote(strings.TrimSpace(name)))
	b.WriteString("\nitems=")
	b.WriteString(strconv.Itoa(len(sorted)))
	for _, it := range sorted {
		b.WriteByte('\n')
		b.WriteString(strconv.Itoa(it.DayIndex))
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(it.OrderIndex))
		for _, field := range []string{it.ExerciseKey, it.ExerciseName, it.Category, it.Sets, it.Reps, it.Notes} {
			b.WriteByte('|')
			b.WriteString(strconv.Quote(field))
		}
		b.WriteByte('|')
		if it.LoadKg != nil {
			b.WriteString(strconv.FormatFloat(*it.LoadKg, 'g', -1, 64))
		} else {
			b.WriteByte('-')
		}
		b.WriteByte('|')
		if it.RestSeconds != nil {
			b.WriteString(strconv.Itoa(*it.RestSeconds))
		} else {
			b.WriteByte('-')
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// DayIndexes returns the distinct routine days, ascending.
func (r *BaseRoutine) DayIndexes() []int {
	days := make([]int, 0, len(r.Items))
	for _, it := range r.Items {
		days = append(days, it.DayIndex)
	}
	return distinctSorted(days)
}

func distinctSorted(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
