package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is how often the merge pipeline runs
type Frequency string

const (
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

// Spec is the recognized schedule configuration. It is not versioned; the
// scheduler reads it fresh from settings on every evaluation tick.
type Spec struct {
	Frequency  Frequency
	Hour       int
	Minute     int
	DaysOfWeek []time.Weekday // weekly only
}

// New builds a Spec from settings values. timeOfDay is "HH:MM"; daysOfWeek
// uses 0=Sunday through 6=Saturday as stored by the settings table.
func New(frequency string, timeOfDay string, daysOfWeek []int) (Spec, error) {
	var s Spec
	switch Frequency(frequency) {
	case Daily:
		s.Frequency = Daily
	case Weekly:
		s.Frequency = Weekly
	default:
		return s, fmt.Errorf("unknown schedule frequency %q", frequency)
	}

	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return s, err
	}
	s.Hour = hour
	s.Minute = minute

	if s.Frequency == Weekly {
		if len(daysOfWeek) == 0 {
			return s, fmt.Errorf("weekly schedule needs at least one day of week")
		}
		for _, d := range daysOfWeek {
			if d < 0 || d > 6 {
				return s, fmt.Errorf("day of week out of range: %d", d)
			}
			s.DaysOfWeek = append(s.DaysOfWeek, time.Weekday(d))
		}
	}
	return s, nil
}

func parseTimeOfDay(v string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time of day must be HH:MM, got %q", v)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", v)
	}
	return hour, minute, nil
}

// Matches reports whether the given instant falls inside a scheduled minute.
// It is a pure function; idempotence across ticks in the same minute is the
// scheduler's job via its last-fired high-water mark.
func (s Spec) Matches(t time.Time) bool {
	if t.Hour() != s.Hour || t.Minute() != s.Minute {
		return false
	}
	if s.Frequency == Daily {
		return true
	}
	for _, d := range s.DaysOfWeek {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

// Next returns the first scheduled instant strictly after the given time.
func (s Spec) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	if s.Frequency == Daily {
		return candidate
	}
	// Weekly: walk forward to the next configured weekday. Bounded by the
	// construction-time guarantee of at least one valid day.
	for i := 0; i < 7; i++ {
		for _, d := range s.DaysOfWeek {
			if candidate.Weekday() == d {
				return candidate
			}
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
