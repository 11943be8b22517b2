package domain

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ExecutionRecord is one completion of a routine day. Records are append-only
// and never deduplicated: the same day may be marked twice, and several
// different days may be marked on one calendar date (backfill).
type ExecutionRecord struct {
	ID          uuid.UUID  `json:"id"`
	PlanID      uuid.UUID  `json:"planId"`
	ClientID    uuid.UUID  `json:"clientId"`
	RoutineDay  int        `json:"routineDay"`
	RecordedAt  time.Time  `json:"recordedAt"`            // Wall clock of registration
	PerformedOn *time.Time `json:"performedOn,omitempty"` // Calendar date the session happened, when backfilled
	Note        string     `json:"note,omitempty"`
	RecordedBy  uuid.UUID  `json:"recordedBy"`
}

// EffectiveDate is the calendar day the session counts for.
func (r *ExecutionRecord) EffectiveDate() time.Time {
	if r.PerformedOn != nil {
		return DateOnly(*r.PerformedOn)
	}
	return DateOnly(r.RecordedAt)
}

// SortExecutions orders records by registration time, then id.
func SortExecutions(records []ExecutionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].RecordedAt.Equal(records[j].RecordedAt) {
			return records[i].RecordedAt.Before(records[j].RecordedAt)
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}

// Progress summarizes adherence for one plan.
type Progress struct {
	PlanID           uuid.UUID  `json:"planId"`
	TotalSessions    int        `json:"totalSessions"`
	DaysCovered      int        `json:"daysCovered"` // Distinct routine days with at least one record
	CycleDays        int        `json:"cycleDays"`
	CurrentStreak    int        `json:"currentStreak"`
	NextRoutineDay   int        `json:"nextRoutineDay"`
	LastRecordedAt   *time.Time `json:"lastRecordedAt,omitempty"`
	SessionsThisWeek int        `json:"sessionsThisWeek"`
	AveragePerWeek   float64    `json:"averagePerWeek"`
}

// ComputeProgress walks records in registration order. The streak follows the
// cycle 1..N,1..N: a record for the expected day extends it, any other day
// restarts it at 1 and the cycle continues from that day.
func ComputeProgress(planID uuid.UUID, records []ExecutionRecord, cycleDays int, now time.Time) Progress {
	if cycleDays < 1 {
		cycleDays = 1
	}
	p := Progress{PlanID: planID, CycleDays: cycleDays, NextRoutineDay: 1}
	if len(records) == 0 {
		return p
	}

	ordered := make([]ExecutionRecord, len(records))
	copy(ordered, records)
	SortExecutions(ordered)

	next := func(day int) int {
		if day >= cycleDays {
			return 1
		}
		return day + 1
	}

	weekStart := WeekStart(now)
	weekEnd := weekStart.AddDate(0, 0, 7)
	covered := make(map[int]struct{})
	first, last := ordered[0].EffectiveDate(), ordered[0].EffectiveDate()
	expected := 1
	for _, r := range ordered {
		covered[r.RoutineDay] = struct{}{}
		if r.RoutineDay == expected {
			p.CurrentStreak++
		} else {
			p.CurrentStreak = 1
		}
		expected = next(r.RoutineDay)

		d := r.EffectiveDate()
		if !d.Before(weekStart) && d.Before(weekEnd) {
			p.SessionsThisWeek++
		}
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}

	lastAt := ordered[len(ordered)-1].RecordedAt
	p.TotalSessions = len(ordered)
	p.DaysCovered = len(covered)
	p.NextRoutineDay = expected
	p.LastRecordedAt = &lastAt

	spanDays := last.Sub(first).Hours()/24 + 1
	weeks := math.Max(spanDays/7, 1)
	p.AveragePerWeek = math.Round(float64(p.TotalSessions)/weeks*100) / 100
	return p
}

// SessionKind tells whether a session counts toward the weekly quota.
type SessionKind string

const (
	SessionBase  SessionKind = "BASE"
	SessionExtra SessionKind = "EXTRA" // Quota already met this week
)

// Today answers what a client should do on a given date.
type Today struct {
	PlanID            uuid.UUID   `json:"planId"`
	Date              string      `json:"date"`
	WeekStart         string      `json:"weekStart"`
	Frequency         int         `json:"frequency"` // Effective weekly quota
	NextRoutineDay    int         `json:"nextRoutineDay"`
	Kind              SessionKind `json:"kind"`
	BasesDoneThisWeek int         `json:"basesDoneThisWeek"`
	ExtrasThisWeek    int         `json:"extrasThisWeek"`
}

// ComputeToday classifies the sessions of the week containing now. The first
// quota sessions of a Monday-based week are BASE, later ones EXTRA; the next
// routine day follows the same cycle as ComputeProgress.
func ComputeToday(plan *Plan, records []ExecutionRecord, cycleDays int, now time.Time) Today {
	quota := plan.WeeklyQuota(cycleDays)
	weekStart := WeekStart(now)
	weekEnd := weekStart.AddDate(0, 0, 7)

	inWeek := 0
	for i := range records {
		d := records[i].EffectiveDate()
		if !d.Before(weekStart) && d.Before(weekEnd) {
			inWeek++
		}
	}

	t := Today{
		PlanID:         plan.ID,
		Date:           FormatDate(now),
		WeekStart:      FormatDate(weekStart),
		Frequency:      quota,
		NextRoutineDay: ComputeProgress(plan.ID, records, cycleDays, now).NextRoutineDay,
		Kind:           SessionBase,
	}
	t.BasesDoneThisWeek = min(inWeek, quota)
	t.ExtrasThisWeek = inWeek - t.BasesDoneThisWeek
	if t.BasesDoneThisWeek >= quota {
		t.Kind = SessionExtra
	}
	return t
}
