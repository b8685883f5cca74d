// Package interval defines the reporting interval and interval type a batch
// run operates over.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date form used throughout the pipeline.
const DateLayout = "2006-01-02"

// Type selects how event dates are bucketed into reporting periods.
type Type string

const (
	// TypeDaily buckets each event under its own calendar date.
	TypeDaily Type = "daily"
	// TypeWeekly buckets each event under the week-ending date anchored to
	// the weekday of the interval's last complete day.
	TypeWeekly Type = "weekly"
	// TypeAll collapses every event into the interval's last complete day.
	TypeAll Type = "all"
)

// Configuration errors. These are fatal to a run: a bad interval is a
// configuration defect, not an input defect.
var (
	ErrInvalidType     = errors.New("interval type must be daily, weekly, or all")
	ErrInvalidInterval = errors.New("interval start must precede end")
	ErrBadIntervalSpec = errors.New("interval must be YYYY-MM-DD-YYYY-MM-DD")
)

// ParseType validates an interval type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDaily, TypeWeekly, TypeAll:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidType, s)
}

// Interval is a half-open calendar range [Start, End). Times are date-only
// values in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// New builds an Interval from two dates, validating Start < End.
func New(start, end time.Time) (Interval, error) {
	start = truncate(start)
	end = truncate(end)
	if !start.Before(end) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Parse reads an interval spec of the form "2024-01-01-2024-02-01".
func Parse(spec string) (Interval, error) {
	if len(spec) != 2*len(DateLayout)+1 {
		return Interval{}, fmt.Errorf("%w: got %q", ErrBadIntervalSpec, spec)
	}
	start, err := time.ParseInLocation(DateLayout, spec[:len(DateLayout)], time.UTC)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %v", ErrBadIntervalSpec, err)
	}
	end, err := time.ParseInLocation(DateLayout, spec[len(DateLayout)+1:], time.UTC)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %v", ErrBadIntervalSpec, err)
	}
	return New(start, end)
}

// Contains reports whether the given date string falls inside the interval.
// Unparseable dates are outside by definition.
func (iv Interval) Contains(date string) bool {
	d, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return false
	}
	return !d.Before(iv.Start) && d.Before(iv.End)
}

// LastCompleteDate returns the final calendar day covered by the interval,
// i.e. End minus one day.
func (iv Interval) LastCompleteDate() time.Time {
	return iv.End.AddDate(0, 0, -1)
}

// String renders the interval in the same form Parse accepts.
func (iv Interval) String() string {
	return iv.Start.Format(DateLayout) + "-" + iv.End.Format(DateLayout)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
