package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// dayLayout is the wire and storage format for calendar dates.
const dayLayout = "2006-01-02"

// Day is a calendar date carried as UTC midnight. It marshals as
// "YYYY-MM-DD" in both JSON and CSV and stores as TEXT in SQL backends,
// overriding the RFC 3339 encoding of the embedded time.Time.
type Day struct {
	time.Time
}

// NewDay truncates t to its UTC calendar date.
func NewDay(t time.Time) Day {
	u := t.UTC()
	return Day{time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a "YYYY-MM-DD" string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{t}, nil
}

func (d Day) String() string {
	return d.Format(dayLayout)
}

// MarshalJSON encodes the date as a quoted "YYYY-MM-DD" string.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dayLayout) + `"`), nil
}

// UnmarshalJSON decodes a quoted "YYYY-MM-DD" string.
func (d *Day) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("parse day: want a quoted YYYY-MM-DD string, got %s", data)
	}
	return d.UnmarshalText(data[1 : len(data)-1])
}

// MarshalText implements encoding.TextMarshaler, which the CSV codec uses.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.Format(dayLayout)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(text []byte) error {
	parsed, err := ParseDay(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer, storing the date as TEXT.
func (d Day) Value() (driver.Value, error) {
	return d.Format(dayLayout), nil
}

// Scan implements sql.Scanner for TEXT, BLOB, and native date columns.
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Day{}
		return nil
	case string:
		parsed, err := ParseDay(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = NewDay(v)
		return nil
	default:
		return fmt.Errorf("scan day: unsupported type %T", src)
	}
}
