// internal/domain/plan.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlanStatus type for plan lifecycle
type PlanStatus string

const (
	PlanActive   PlanStatus = "ACTIVE"
	PlanArchived PlanStatus = "ARCHIVED" // Terminal; plans are never deleted
)

// Plan links a client to the snapshot they currently follow (or followed).
type Plan struct {
	ID         uuid.UUID  `json:"id"`
	ClientID   uuid.UUID  `json:"clientId"`
	SnapshotID uuid.UUID  `json:"snapshotId"`
	Status     PlanStatus `json:"status"`
	Frequency  int        `json:"frequency,omitempty"` // Base sessions per week; 0 means one per routine day
	CreatedAt  time.Time  `json:"createdAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

func (p *Plan) IsActive() bool {
	return p.Status == PlanActive
}

// MaxFrequency caps base sessions per week.
const MaxFrequency = 7

// ValidateFrequency accepts 0 (unset) through MaxFrequency.
func ValidateFrequency(op string, n int) error {
	if n < 0 || n > MaxFrequency {
		return Validation(op, "frequency must be 0 (one session per routine day) to %d sessions per week, got %d", MaxFrequency, n)
	}
	return nil
}

// WeeklyQuota is the number of base sessions expected per week. Without an
// explicit frequency the whole cycle is expected once a week.
func (p *Plan) WeeklyQuota(cycleDays int) int {
	if p.Frequency > 0 {
		return p.Frequency
	}
	if cycleDays < 1 {
		return 1
	}
	if cycleDays > MaxFrequency {
		return MaxFrequency
	}
	return cycleDays
}

// ActivePlanView is what a client currently sees: the plan plus its snapshot.
type ActivePlanView struct {
	Plan     Plan            `json:"plan"`
	Snapshot RoutineSnapshot `json:"snapshot"`
}
