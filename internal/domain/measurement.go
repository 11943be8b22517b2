package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Measurement is the single body-metrics record of a client for one date.
// A second submission for the same date amends it in place.
type Measurement struct {
	ID         uuid.UUID          `json:"id"`
	ClientID   uuid.UUID          `json:"clientId"`
	MetricDate time.Time          `json:"-"` // UTC midnight
	WeightKg   *float64           `json:"weightKg,omitempty"`
	Perimeters map[string]float64 `json:"perimeters,omitempty"` // Name -> cm, e.g. "waist": 82.5
	Notes      string             `json:"notes,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
	RecordedBy uuid.UUID          `json:"recordedBy"`
}

// Date returns the metric date as YYYY-MM-DD.
func (m *Measurement) Date() string {
	return FormatDate(m.MetricDate)
}

// MeasurementInput holds the submitted fields. Nil fields are not touched when
// amending an existing record.
type MeasurementInput struct {
	WeightKg   *float64           `json:"weightKg,omitempty"`
	Perimeters map[string]float64 `json:"perimeters,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
}

func (in MeasurementInput) Validate() error {
	const op = "measurement.input"
	if in.WeightKg == nil && len(in.Perimeters) == 0 && in.Notes == nil {
		return Validation(op, "at least one of weightKg, perimeters or notes is required")
	}
	if in.WeightKg != nil && *in.WeightKg <= 0 {
		return Validation(op, "weightKg must be positive")
	}
	var rows []RowError
	for name, v := range in.Perimeters {
		if strings.TrimSpace(name) == "" {
			rows = append(rows, RowError{Key: "perimeters", Reason: "perimeter name is blank"})
			continue
		}
		if v <= 0 {
			rows = append(rows, RowError{Key: "perimeters." + name, Reason: "must be positive"})
		}
	}
	if len(rows) > 0 {
		return ValidationRows(op, "invalid perimeters", rows)
	}
	return nil
}

// Apply writes the present fields onto m. Perimeters are merged by name so an
// amend that only sends "waist" keeps the stored "hip".
func (in MeasurementInput) Apply(m *Measurement) {
	if in.WeightKg != nil {
		m.WeightKg = copyFloat(in.WeightKg)
	}
	if len(in.Perimeters) > 0 {
		if m.Perimeters == nil {
			m.Perimeters = make(map[string]float64, len(in.Perimeters))
		}
		for name, v := range in.Perimeters {
			m.Perimeters[strings.ToLower(strings.TrimSpace(name))] = v
		}
	}
	if in.Notes != nil {
		m.Notes = strings.TrimSpace(*in.Notes)
	}
}

// DateOnly truncates t to UTC midnight of its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, Validation("date.parse", "invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// WeekStart returns the Monday that starts the week containing t.
func WeekStart(t time.Time) time.Time {
	d := DateOnly(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
