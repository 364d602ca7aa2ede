package util

import (
	"fmt"
	"strings"
	"time"
)

// Text layouts used at the API boundary.
const (
	// DateTimeLayout renders timestamps as DD-MM-YYYY HH:MM:SS.
	DateTimeLayout = "02-01-2006 15:04:05"
	// TimeOfDayLayout renders bare schedule times as HH:MM:SS.
	TimeOfDayLayout = "15:04:05"
)

// FormatDateTime renders t in loc using DateTimeLayout.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateTimeLayout)
}

// ParseDateTime parses a DD-MM-YYYY HH:MM:SS timestamp in loc.
func ParseDateTime(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateTimeLayout, strings.TrimSpace(raw), loc)
}

// ParseTimeOfDay validates an HH:MM:SS string and returns its offset from midnight.
func ParseTimeOfDay(raw string) (time.Duration, error) {
	parsed, err := time.Parse(TimeOfDayLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", raw, err)
	}
	return time.Duration(parsed.Hour())*time.Hour +
		time.Duration(parsed.Minute())*time.Minute +
		time.Duration(parsed.Second())*time.Second, nil
}

// OnDay places a time-of-day offset on the calendar day of ref, in ref's location.
func OnDay(ref time.Time, offset time.Duration) time.Time {
	y, m, d := ref.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ref.Location()).Add(offset)
}

// SinceMidnight returns how far into its day t is.
func SinceMidnight(t time.Time) time.Duration {
	return t.Sub(OnDay(t, 0))
}

// ParseDateTimeOrTimeOfDay accepts either a full timestamp or a bare time of
// day; bare times are placed on the day of now.
func ParseDateTimeOrTimeOfDay(raw string, now time.Time) (time.Time, error) {
	if parsed, err := ParseDateTime(raw, now.Location()); err == nil {
		return parsed, nil
	}
	offset, err := ParseTimeOfDay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected %s or %s: %w", DateTimeLayout, TimeOfDayLayout, err)
	}
	return OnDay(now, offset), nil
}
