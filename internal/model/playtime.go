package model

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// ClockTime is a time of day, stored as the offset from local midnight
type ClockTime time.Duration

// NewClockTime builds a ClockTime from hour, minute and second
func NewClockTime(hour, minute, second int) ClockTime {
	return ClockTime(time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute +
		time.Duration(second)*time.Second)
}

// ClockTimeOf returns the wall-clock time of day of t in t's location
func ClockTimeOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return NewClockTime(h, m, s) + ClockTime(t.Nanosecond())
}

// ParseClockTime parses an ISO local time such as 09:00, 09:00:30 or 09:00:30.25
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return ClockTimeOf(t), nil
		}
	}
	return 0, fmt.Errorf("%w: bad time of day %q", ErrInvalidPlayTime, s)
}

// String formats the time the way ParseClockTime reads it, omitting zero seconds
func (c ClockTime) String() string {
	t := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(c))
	switch {
	case t.Nanosecond() != 0:
		return t.Format("15:04:05.999999999")
	case t.Second() != 0:
		return t.Format("15:04:05")
	default:
		return t.Format("15:04")
	}
}

// PlayTime is a weekly recurring window in which a player may connect
type PlayTime struct {
	Day   time.Weekday
	Start ClockTime
	End   ClockTime
}

// NewPlayTime creates a PlayTime, rejecting windows that end before they start
// or fall outside a single day
func NewPlayTime(day time.Weekday, start, end ClockTime) (PlayTime, error) {
	if day < time.Sunday || day > time.Saturday {
		return PlayTime{}, fmt.Errorf("%w: bad weekday %d", ErrInvalidPlayTime, day)
	}
	if start < 0 || end > ClockTime(24*time.Hour) || end < start {
		return PlayTime{}, fmt.Errorf("%w: %s-%s", ErrInvalidPlayTime, start, end)
	}
	return PlayTime{Day: day, Start: start, End: end}, nil
}

// Contains reports whether t falls inside the window
func (p PlayTime) Contains(t time.Time) bool {
	if t.Weekday() != p.Day {
		return false
	}
	c := ClockTimeOf(t)
	return c >= p.Start && c < p.End
}

// ISODay returns the ISO-8601 day number, Monday = 1 through Sunday = 7
func (p PlayTime) ISODay() int {
	if p.Day == time.Sunday {
		return 7
	}
	return int(p.Day)
}

// WeekdayFromISO converts an ISO-8601 day number to a time.Weekday
func WeekdayFromISO(day int) (time.Weekday, error) {
	if day < 1 || day > 7 {
		return 0, fmt.Errorf("%w: bad day number %d", ErrInvalidPlayTime, day)
	}
	return time.Weekday(day % 7), nil
}

// ParsePlayTime builds a PlayTime from an ISO day number and two ISO local times
func ParsePlayTime(isoDay int, start, end string) (PlayTime, error) {
	day, err := WeekdayFromISO(isoDay)
	if err != nil {
		return PlayTime{}, err
	}
	s, err := ParseClockTime(start)
	if err != nil {
		return PlayTime{}, err
	}
	e, err := ParseClockTime(end)
	if err != nil {
		return PlayTime{}, err
	}
	return NewPlayTime(day, s, e)
}

func (p PlayTime) String() string {
	return fmt.Sprintf("%s %s-%s", p.Day, p.Start, p.End)
}

// AllowedAt reports whether t is inside any of the windows.
// An empty set of windows places no restriction.
func AllowedAt(times []PlayTime, t time.Time) bool {
	if len(times) == 0 {
		return true
	}
	for _, pt := range times {
		if pt.Contains(t) {
			return true
		}
	}
	return false
}

// NormalizePlayTimes returns a sorted copy of times with duplicates removed
func NormalizePlayTimes(times []PlayTime) []PlayTime {
	if len(times) == 0 {
		return nil
	}
	out := slices.Clone(times)
	slices.SortFunc(out, func(a, b PlayTime) int {
		if c := cmp.Compare(a.ISODay(), b.ISODay()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})
	return slices.Compact(out)
}
