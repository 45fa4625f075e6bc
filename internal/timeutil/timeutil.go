// Package timeutil converts between an organization's local wall clock
// and universal instants. All persisted times are UTC; local time exists
// only at the edges (schedules, labels).
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ToUniversal converts local wall-clock fields in loc to a UTC instant.
//
// The wall clock is first treated as if it were UTC, then corrected by the
// zone offset in effect at the guessed instant. If the corrected instant
// falls under a different offset (the guess crossed a DST transition), the
// correction is applied once more with the new offset. Nonexistent or
// ambiguous local times resolve to the offset in effect at the corrected
// instant, i.e. the post-transition offset wins.
func ToUniversal(year int, month time.Month, day, hour, min, sec int, loc *time.Location) time.Time {
	guess := time.Date(year, month, day, hour, min, sec, 0, time.UTC)
	_, offset := guess.In(loc).Zone()

	corrected := guess.Add(-time.Duration(offset) * time.Second)
	_, corrOffset := corrected.In(loc).Zone()
	if corrOffset != offset {
		corrected = guess.Add(-time.Duration(corrOffset) * time.Second)
	}
	return corrected
}

// LocalDayRange returns the half-open UTC range [start, end) covering the
// local calendar day that contains date in loc.
func LocalDayRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	local := date.In(loc)
	start := ToUniversal(local.Year(), local.Month(), local.Day(), 0, 0, 0, loc)

	// Normalize via time.Date so month/year boundaries carry over.
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, time.UTC)
	end := ToUniversal(next.Year(), next.Month(), next.Day(), 0, 0, 0, loc)
	return start, end
}

// AnchorDay re-reads the civil date carried by t (year, month and day in
// t's own location) as noon in loc. A date parsed from "YYYY-MM-DD" arrives
// as midnight UTC; interpreting that instant directly in a zone east of
// UTC+12 lands on the next local day. Noon keeps the anchored instant
// inside the intended day even across DST transitions.
func AnchorDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, loc)
}

// FormatLocal renders the instant as a local "HH:MM" label.
func FormatLocal(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// LocalWeekday returns the weekday of the local calendar day containing
// date in loc. Evaluated at local noon so DST shifts around midnight
// cannot move the result to a neighboring day.
func LocalWeekday(date time.Time, loc *time.Location) time.Weekday {
	local := date.In(loc)
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, loc)
	return noon.Weekday()
}

// ParseClock parses a "HH:MM" wall-clock string into minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour*60 + min, nil
}

// FormatClock renders minutes from midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
