package domain

import (
	"errors"
	"strings"
	"time"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share an instant.
// Touching intervals (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// DurationMinutes is the length of [start, end) in fractional minutes.
func DurationMinutes(start, end time.Time) float64 {
	return end.Sub(start).Minutes()
}

var ErrNoZone = errors.New("timestamp has no zone designator")

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// ParseInstant parses an ISO-8601 timestamp, with a T or a space between date
// and time, carrying either a trailing Z or a
// numeric offset and returns it on the UTC timeline. Timestamps without a zone
// cannot be placed on that timeline and yield ErrNoZone.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range instantLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	for _, layout := range naiveLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Time{}, ErrNoZone
		}
	}
	return time.Time{}, firstErr
}
