package transform

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses a strict YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimestamp parses an RFC 3339 timestamp. A trailing "Z" means UTC.
// Returns nil when s is empty or malformed.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// TruncateDay returns the UTC calendar date of t.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
