package tzconvert

import (
	"fmt"
	"strings"
	"time"
)

// DefaultForwardMinutes is how far clocks jump when a rule does not say.
const DefaultForwardMinutes = 60

// MonthDay is a calendar day without a year, parsed from "MM-DD".
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses "MM-DD" (e.g. "03-10").
func ParseMonthDay(s string) (MonthDay, error) {
	mm, dd, ok := strings.Cut(s, "-")
	if !ok || len(mm) != 2 || len(dd) != 2 {
		return MonthDay{}, fmt.Errorf("month-day %q: %w", s, ErrInvalidFormat)
	}
	month, err := parseDigits(mm)
	if err != nil {
		return MonthDay{}, fmt.Errorf("month-day %q month: %w", s, err)
	}
	day, err := parseDigits(dd)
	if err != nil {
		return MonthDay{}, fmt.Errorf("month-day %q day: %w", s, err)
	}
	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month)) {
		return MonthDay{}, fmt.Errorf("month-day %q: out of range: %w", s, ErrInvalidFormat)
	}
	return MonthDay{Month: time.Month(month), Day: day}, nil
}

// daysIn is the length of month in a leap year, so "02-29" is accepted.
func daysIn(month time.Month) int {
	return time.Date(2000, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// TimeOfDay is a UTC wall-clock time, parsed from "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (e.g. "02:00").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: %w", s, ErrInvalidFormat)
	}
	hour, err := parseDigits(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q hour: %w", s, err)
	}
	minute, err := parseDigits(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q minute: %w", s, err)
	}
	if hour > 23 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: out of range: %w", s, ErrInvalidFormat)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DSTRule is an annual interval, expressed as UTC calendar points, during
// which clocks run ForwardMinutes ahead of the base offset.
//
// The boundaries are recomputed for the year of every instant checked, so a
// single rule serves every year. When End falls earlier in the year than
// Start the interval wraps over New Year (southern hemisphere).
type DSTRule struct {
	StartDay       MonthDay
	StartTime      TimeOfDay
	EndDay         MonthDay
	EndTime        TimeOfDay
	ForwardMinutes int
}

// NewDSTRule builds a rule from its wire form: "MM-DD" days, "HH:MM" times
// and the forward shift in minutes (0 selects DefaultForwardMinutes).
func NewDSTRule(startDay, startTime, endDay, endTime string, forwardMinutes int) (*DSTRule, error) {
	sd, err := ParseMonthDay(startDay)
	if err != nil {
		return nil, fmt.Errorf("dst start: %w", err)
	}
	st, err := ParseTimeOfDay(startTime)
	if err != nil {
		return nil, fmt.Errorf("dst start time: %w", err)
	}
	ed, err := ParseMonthDay(endDay)
	if err != nil {
		return nil, fmt.Errorf("dst end: %w", err)
	}
	et, err := ParseTimeOfDay(endTime)
	if err != nil {
		return nil, fmt.Errorf("dst end time: %w", err)
	}
	if forwardMinutes < 0 {
		return nil, fmt.Errorf("dst forward_by %d: %w", forwardMinutes, ErrInvalidFormat)
	}
	if forwardMinutes == 0 {
		forwardMinutes = DefaultForwardMinutes
	}
	return &DSTRule{
		StartDay:       sd,
		StartTime:      st,
		EndDay:         ed,
		EndTime:        et,
		ForwardMinutes: forwardMinutes,
	}, nil
}

// Bounds returns the UTC start and end instants of the rule in year.
// A day that does not exist in year (02-29) rolls over to the next day.
func (r *DSTRule) Bounds(year int) (start, end time.Time) {
	start = time.Date(year, r.StartDay.Month, r.StartDay.Day, r.StartTime.Hour, r.StartTime.Minute, 0, 0, time.UTC)
	end = time.Date(year, r.EndDay.Month, r.EndDay.Day, r.EndTime.Hour, r.EndTime.Minute, 0, 0, time.UTC)
	return start, end
}

// Wraps reports whether the DST interval spans New Year.
func (r *DSTRule) Wraps() bool {
	start, end := r.Bounds(2001) // any non-leap year
	return end.Before(start)
}

// Active reports whether t falls inside the DST interval.
// Start is inclusive and end is exclusive in both hemispheres.
func (r *DSTRule) Active(t time.Time) bool {
	t = t.UTC()
	start, end := r.Bounds(t.Year())
	if end.Before(start) {
		return !t.Before(start) || t.Before(end)
	}
	return !t.Before(start) && t.Before(end)
}

func (r *DSTRule) String() string {
	return fmt.Sprintf("%v %v .. %v %v (+%dm)", r.StartDay, r.StartTime, r.EndDay, r.EndTime, r.ForwardMinutes)
}
