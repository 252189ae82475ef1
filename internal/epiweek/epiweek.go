// Package epiweek converts between CDC epiweek identifiers and calendar
// dates. An epiweek is encoded as YYYYWW where YYYY is the ISO-8601
// week-numbering year and WW the ISO week (01-53), so week boundaries match
// the Monday-start weeks the Delphi FluView API reports against.
package epiweek

import (
	"fmt"
	"strconv"
	"time"
)

// FromDate returns the epiweek containing t.
// The year component is the ISO week-numbering year, which can differ from
// the calendar year near year boundaries: 2024-12-30 is in epiweek 202501,
// and 2021-01-01 is in epiweek 202053.
func FromDate(t time.Time) int {
	year, week := t.ISOWeek()
	return year*100 + week
}

// Monday returns the Monday (UTC midnight) of the given epiweek.
// It rejects values that do not decode to a four-digit year and a week in
// 1..53, and week 53 of years that only have 52 ISO weeks.
func Monday(epi int) (time.Time, error) {
	year := epi / 100
	week := epi % 100
	if year < 1000 || year > 9999 {
		return time.Time{}, fmt.Errorf("epiweek %d: year out of range", epi)
	}
	if week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("epiweek %d: week out of range", epi)
	}

	// January 4 is always inside ISO week 1 of its year.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -isoWeekday(jan4)+(week-1)*7)

	if FromDate(monday) != epi {
		return time.Time{}, fmt.Errorf("epiweek %d: year %d has no week %d", epi, year, week)
	}
	return monday, nil
}

// Parse converts a six-digit epiweek string to its integer form.
// The string must be exactly six digits and must name a week that exists in
// the encoded year, so "202153" fails (2021 has 52 ISO weeks) while "202053"
// parses (2020 has 53).
func Parse(s string) (int, error) {
	if len(s) != 6 {
		return 0, fmt.Errorf("epiweek %q: want six digits", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("epiweek %q: want six digits", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("epiweek %q: %w", s, err)
	}
	if _, err := Monday(n); err != nil {
		return 0, err
	}
	return n, nil
}

// Range is an inclusive span of epiweeks.
type Range struct {
	Start int
	End   int
}

// String renders the range in the Delphi API's "YYYYWW-YYYYWW" form.
func (r Range) String() string {
	return FormatRange(r.Start, r.End)
}

// FormatRange renders an inclusive epiweek span as "YYYYWW-YYYYWW".
func FormatRange(start, end int) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// isoWeekday maps t's weekday onto the ISO offset from Monday (Mon=0..Sun=6).
func isoWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
