// internal/domain/exercise.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExerciseDefinition is one entry of the exercise dictionary. It is owned by
// the catalog and only written by synchronization, keyed by ExternalID.
type ExerciseDefinition struct {
	ID          uuid.UUID `json:"id"`
	ExternalID  string    `json:"externalId"` // Stable key from the spreadsheet
	Name        string    `json:"name"`
	Category    string    `json:"category,omitempty"`
	MuscleGroup string    `json:"muscleGroup,omitempty"` // e.g., "Chest", "Legs", "Back"
	Description string    `json:"description,omitempty"`
	VideoURL    string    `json:"videoUrl,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NormalizeExerciseKey makes feed keys comparable regardless of case and padding.
func NormalizeExerciseKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
