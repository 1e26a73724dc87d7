// Package clock converts between wall-clock instants and the appointment-local
// calendar (a YYYY-MM-DD date plus an HH:MM time of day in the deployment zone).
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	minutesPerDay = 24 * 60
)

// Clock is the source of "now" for everything time-dependent in the engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// ParseDate validates a calendar date and returns it in canonical form.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d.Format(DateLayout), nil
}

// ParseTimeOfDay parses HH:MM (24h) into minutes after midnight.
func ParseTimeOfDay(s string) (int, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh*60 + mm, nil
}

// FormatTimeOfDay renders minutes after midnight as HH:MM.
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ValidMinutes reports whether m falls inside a single day.
func ValidMinutes(m int) bool { return m >= 0 && m < minutesPerDay }

// ScheduledInstant is the wall-clock instant of date@timeOfDay in loc.
func ScheduledInstant(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	m, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), m/60, m%60, 0, 0, loc), nil
}

// DayOf returns the calendar date t falls on in loc.
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// Overdue reports whether an appointment scheduled at date@timeOfDay is more
// than grace in the past at now. Any date before today is overdue; any date
// after today never is.
func Overdue(date, timeOfDay string, grace time.Duration, now time.Time, loc *time.Location) (bool, error) {
	at, err := ScheduledInstant(date, timeOfDay, loc)
	if err != nil {
		return false, err
	}
	return now.After(at.Add(grace)), nil
}
