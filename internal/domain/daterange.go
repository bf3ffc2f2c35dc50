package domain

import (
	"time"

	"github.com/cockroachdb/errors"
)

const dateLayout = "2006-01-02"

// MaxNights bounds every range built from caller input.
const MaxNights = 730

const secondsPerDay = 24 * 60 * 60

// DateRange is a half-open [Start, End) span of calendar dates. Both bounds
// are normalised to midnight UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to its calendar date at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, wrapInput(err, "parse date %q", s)
	}
	return t, nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// NewDateRange builds a range and rejects zero-night, inverted and
// over-long spans.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if !r.End.After(r.Start) {
		return DateRange{}, &InvalidRangeError{Start: r.Start, End: r.End}
	}
	if n := daysBetween(r.Start, r.End); n > MaxNights {
		return DateRange{}, errors.Wrapf(ErrInvalidRange, "range %s spans %d nights, at most %d allowed", r, n, MaxNights)
	}
	return r, nil
}

// ParseDateRange parses both bounds and validates the result.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}

// MustDateRange is NewDateRange for fixed inputs; it panics on an invalid span.
func MustDateRange(start, end time.Time) DateRange {
	r, err := NewDateRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// Nights is the number of nights in the range.
func (r DateRange) Nights() (int, error) {
	if !r.End.After(r.Start) {
		return 0, &InvalidRangeError{Start: r.Start, End: r.End}
	}
	return daysBetween(r.Start, r.End), nil
}

// Overlaps reports whether the two ranges share at least one night.
// Touching endpoints do not overlap: a checkout on day N and a check-in on
// day N can coexist.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && r.End.After(other.Start)
}

// Intersect returns the shared span, or false when the ranges share no night.
func (r DateRange) Intersect(other DateRange) (DateRange, bool) {
	start := r.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := r.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return DateRange{}, false
	}
	return DateRange{Start: start, End: end}, true
}

// Contains reports whether the night starting on day falls inside the range.
func (r DateRange) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(r.Start) && d.Before(r.End)
}

// Dates expands the range into the calendar date of every night.
func (r DateRange) Dates() []time.Time {
	if !r.End.After(r.Start) {
		return nil
	}
	dates := make([]time.Time, 0, daysBetween(r.Start, r.End))
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// IsZero reports whether the range was never set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (r DateRange) String() string {
	return "[" + FormatDate(r.Start) + ", " + FormatDate(r.End) + ")"
}

// daysBetween counts calendar days from Unix seconds; time.Duration would
// overflow past roughly 292 years.
func daysBetween(start, end time.Time) int {
	return int((Day(end).Unix() - Day(start).Unix()) / secondsPerDay)
}
