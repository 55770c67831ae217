package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"
)

// DayLayout is the calendar-date format used in query strings and in the
// rollup tables.
const DayLayout = "2006-01-02"

// MaxRangeDays bounds a single range request.
const MaxRangeDays = 366

var (
	// ErrInvalidDay is returned when a date is not in YYYY-MM-DD form.
	ErrInvalidDay = errors.New("invalid day, expected YYYY-MM-DD")
	// ErrInvalidRange is returned when a range ends before it starts or is too long.
	ErrInvalidRange = errors.New("invalid date range")
)

// Range is an inclusive span of UTC calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseDay parses a YYYY-MM-DD string as UTC midnight.
func ParseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return day, nil
}

// FormatDay renders the UTC calendar date of t.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC calendar date.
func Today(clock quartz.Clock) time.Time {
	return StartOfDay(clock.Now())
}

// NewRange builds a validated inclusive range.
func NewRange(start, end time.Time) (Range, error) {
	start, end = StartOfDay(start), StartOfDay(end)
	if end.Before(start) {
		return Range{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, FormatDay(end), FormatDay(start))
	}
	r := Range{Start: start, End: end}
	if r.Len() > MaxRangeDays {
		return Range{}, fmt.Errorf("%w: %d days exceeds the %d day limit", ErrInvalidRange, r.Len(), MaxRangeDays)
	}
	return r, nil
}

// ParseRange parses both ends of a range. Both are required.
func ParseRange(start, end string) (Range, error) {
	from, err := ParseDay(start)
	if err != nil {
		return Range{}, fmt.Errorf("invalid 'start' date: %w", err)
	}
	to, err := ParseDay(end)
	if err != nil {
		return Range{}, fmt.Errorf("invalid 'end' date: %w", err)
	}
	return NewRange(from, to)
}

// ParseRangeWithDefaults parses an optional range: a missing start means
// today and a missing end means the start day.
func ParseRangeWithDefaults(start, end string, clock quartz.Clock) (Range, error) {
	if strings.TrimSpace(start) == "" {
		start = FormatDay(Today(clock))
	}
	if strings.TrimSpace(end) == "" {
		end = start
	}
	return ParseRange(start, end)
}

// LastDays returns the range covering the n days before today through today.
func LastDays(n int, clock quartz.Clock) Range {
	today := Today(clock)
	return Range{Start: today.AddDate(0, 0, -n), End: today}
}

// Len returns the number of days in the range.
func (r Range) Len() int {
	return int(r.End.Sub(r.Start)/(24*time.Hour)) + 1
}

// Days lists every day in the range in ascending order.
func (r Range) Days() []time.Time {
	days := make([]time.Time, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayStrings lists every day in the range formatted with DayLayout.
func (r Range) DayStrings() []string {
	days := r.Days()
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = FormatDay(d)
	}
	return out
}

func (r Range) String() string {
	return FormatDay(r.Start) + ".." + FormatDay(r.End)
}
