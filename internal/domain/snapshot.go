package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoutineSnapshot is a client's own copy of a catalog routine, frozen at
// assignment time. It holds no live reference to catalog item rows.
type RoutineSnapshot struct {
	ID              uuid.UUID      `json:"id"`
	ClientID        uuid.UUID      `json:"clientId"`
	SourceRoutineID uuid.UUID      `json:"sourceRoutineId"` // Catalog version row used, for audit only
	SourceCode      string         `json:"sourceCode"`
	SourceName      string         `json:"sourceName"`
	SourceVersion   int            `json:"sourceVersion"`
	CreatedAt       time.Time      `json:"createdAt"`
	Items           []SnapshotItem `json:"items,omitempty"`
}

// SnapshotItem is an individually editable copy of a BaseRoutineItem.
type SnapshotItem struct {
	ID           uuid.UUID `json:"id"`
	SnapshotID   uuid.UUID `json:"snapshotId"`
	DayIndex     int       `json:"dayIndex"`
	OrderIndex   int       `json:"orderIndex"`
	ExerciseKey  string    `json:"exerciseKey"`
	ExerciseName string    `json:"exerciseName"`
	Category     string    `json:"category,omitempty"`
	Sets         string    `json:"sets,omitempty"`
	Reps         string    `json:"reps,omitempty"`
	LoadKg       *float64  `json:"loadKg,omitempty"`
	RestSeconds  *int      `json:"restSeconds,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewSnapshot deep-copies routine into a snapshot owned by clientID. Every
// item gets a fresh id and its own copies of pointer fields.
func NewSnapshot(clientID uuid.UUID, routine *BaseRoutine, now time.Time) *RoutineSnapshot {
	snap := &RoutineSnapshot{
		ID:              uuid.New(),
		ClientID:        clientID,
		SourceRoutineID: routine.ID,
		SourceCode:      routine.Code,
		SourceName:      routine.Name,
		SourceVersion:   routine.Version,
		CreatedAt:       now,
		Items:           make([]SnapshotItem, 0, len(routine.Items)),
	}
	for _, it := range routine.Items {
		snap.Items = append(snap.Items, SnapshotItem{
			ID:           uuid.New(),
			SnapshotID:   snap.ID,
			DayIndex:     it.DayIndex,
			OrderIndex:   it.OrderIndex,
			ExerciseKey:  it.ExerciseKey,
			ExerciseName: it.ExerciseName,
			Category:     it.Category,
			Sets:         it.Sets,
			Reps:         it.Reps,
			LoadKg:       copyFloat(it.LoadKg),
			RestSeconds:  copyInt(it.RestSeconds),
			Notes:        it.Notes,
			Active:       true,
			UpdatedAt:    now,
		})
	}
	return snap
}

// DayIndexes returns the distinct routine days of the snapshot, ascending.
func (s *RoutineSnapshot) DayIndexes() []int {
	days := make([]int, 0, len(s.Items))
	for _, it := range s.Items {
		days = append(days, it.DayIndex)
	}
	return distinctSorted(days)
}

// SnapshotItemPatch carries the editable fields of a snapshot item. Nil means
// "leave as is"; ClearLoad and ClearRest reset the nullable fields.
type SnapshotItemPatch struct {
	Sets        *string  `json:"sets,omitempty"`
	Reps        *string  `json:"reps,omitempty"`
	LoadKg      *float64 `json:"loadKg,omitempty"`
	ClearLoad   bool     `json:"clearLoad,omitempty"`
	RestSeconds *int     `json:"restSeconds,omitempty"`
	ClearRest   bool     `json:"clearRest,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

func (p SnapshotItemPatch) IsEmpty() bool {
	return p.Sets == nil && p.Reps == nil && p.LoadKg == nil && !p.ClearLoad &&
		p.RestSeconds == nil && !p.ClearRest && p.Notes == nil && p.Active == nil
}

// Validate rejects empty patches and out of range values.
func (p SnapshotItemPatch) Validate() error {
	const op = "snapshot.patch"
	if p.IsEmpty() {
		return Validation(op, "no fields to update")
	}
	if p.LoadKg != nil && p.ClearLoad {
		return Validation(op, "loadKg and clearLoad are mutually exclusive")
	}
	if p.RestSeconds != nil && p.ClearRest {
		return Validation(op, "restSeconds and clearRest are mutually exclusive")
	}
	if p.LoadKg != nil && *p.LoadKg < 0 {
		return Validation(op, "loadKg must not be negative")
	}
	if p.RestSeconds != nil && *p.RestSeconds < 0 {
		return Validation(op, "restSeconds must not be negative")
	}
	if p.Sets != nil && strings.TrimSpace(*p.Sets) == "" {
		return Validation(op, "sets must not be blank")
	}
	if p.Reps != nil && strings.TrimSpace(*p.Reps) == "" {
		return Validation(op, "reps must not be blank")
	}
	return nil
}

// Apply writes the patch onto item and returns the names of changed fields.
func (p SnapshotItemPatch) Apply(item *SnapshotItem) []string {
	var changed []string
	if p.Sets != nil && strings.TrimSpace(*p.Sets) != item.Sets {
		item.Sets = strings.TrimSpace(*p.Sets)
		changed = append(changed, "sets")
	}
	if p.Reps != nil && strings.TrimSpace(*p.Reps) != item.Reps {
		item.Reps = strings.TrimSpace(*p.Reps)
		changed = append(changed, "reps")
	}
	switch {
	case p.ClearLoad && item.LoadKg != nil:
		item.LoadKg = nil
		changed = append(changed, "loadKg")
	case p.LoadKg != nil && (item.LoadKg == nil || *item.LoadKg != *p.LoadKg):
		item.LoadKg = copyFloat(p.LoadKg)
		changed = append(changed, "loadKg")
	}
	switch {
	case p.ClearRest && item.RestSeconds != nil:
		item.RestSeconds = nil
		changed = append(changed, "restSeconds")
	case p.RestSeconds != nil && (item.RestSeconds == nil || *item.RestSeconds != *p.RestSeconds):
		item.RestSeconds = copyInt(p.RestSeconds)
		changed = append(changed, "restSeconds")
	}
	if p.Notes != nil && *p.Notes != item.Notes {
		item.Notes = *p.Notes
		changed = append(changed, "notes")
	}
	if p.Active != nil && *p.Active != item.Active {
		item.Active = *p.Active
		changed = append(changed, "active")
	}
	return changed
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
