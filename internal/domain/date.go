package domain

import (
	"strings"
	"time"
)

// DateLayout is the only accepted textual form of a calendar date.
const DateLayout = "2006-01-02"

// ParseDate parses s as YYYY-MM-DD. The result is midnight UTC so that dates
// compare equal regardless of the process time zone.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(DateLayout) {
		return time.Time{}, NewValidationError("date must be in YYYY-MM-DD form")
	}
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, NewValidationError("invalid date")
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// SameDate reports whether a and b denote the same calendar day, ignoring
// the clock and location of either value.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
