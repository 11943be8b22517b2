package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rutinasds/routines-app/internal/domain"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// timeCol scans TIMESTAMPTZ values (pgx) and fixed-layout TEXT (sqlite).
type timeCol struct {
	t     *time.Time
	valid bool
}

func scanTime(t *time.Time) *timeCol { return &timeCol{t: t} }

func (c *timeCol) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.valid = false
		return nil
	case time.Time:
		*c.t = v.UTC()
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
	c.valid = true
	return nil
}

func (c *timeCol) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*c.t = t.UTC()
			c.valid = true
			return nil
		}
	}
	return fmt.Errorf("scan time: cannot parse %q", s)
}

// nullTime scans a nullable timestamp into a *time.Time.
type nullTime struct {
	dst **time.Time
}

func (n nullTime) Scan(src any) error {
	if src == nil {
		*n.dst = nil
		return nil
	}
	var t time.Time
	if err := scanTime(&t).Scan(src); err != nil {
		return err
	}
	*n.dst = &t
	return nil
}

func nullFloatArg(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullIntArg(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func dateArg(t time.Time) string {
	return domain.FormatDate(t)
}

func nullDateArg(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: domain.FormatDate(*t), Valid: true}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return t, nil
}

func jsonArg(m map[string]float64) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode perimeters: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func parseJSONMap(v sql.NullString) (map[string]float64, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(v.String), &m); err != nil {
		return nil, fmt.Errorf("decode perimeters: %w", err)
	}
	return m, nil
}
