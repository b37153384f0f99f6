package schedule

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used for exception keys.
const DateLayout = "2006-01-02"

// Date is a calendar date without time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate that panics.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns midnight of d in loc (UTC when loc is nil).
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Weekday returns the day of week of d.
func (d Date) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time(time.UTC).Before(other.Time(time.UTC))
}

func (d Date) String() string {
	return d.Time(time.UTC).Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler so Date can key JSON maps.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Span is a half-open time range [Start, End).
type Span struct {
	Start time.Time
	End   time.Time
}

// NewSpan returns a span, rejecting empty or inverted ranges.
func NewSpan(start, end time.Time) (Span, error) {
	if !start.Before(end) {
		return Span{}, fmt.Errorf("span start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Span{Start: start, End: end}, nil
}

// Valid reports Start < End.
func (s Span) Valid() bool {
	return s.Start.Before(s.End)
}

// Duration returns End - Start.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Minutes returns the span length in whole minutes.
func (s Span) Minutes() int {
	return int(s.Duration() / time.Minute)
}

// MultiDay reports whether Start and End fall on different calendar dates.
func (s Span) MultiDay() bool {
	return DateOf(s.Start) != DateOf(s.End)
}

// Dates lists every calendar date from Start's date to End's date inclusive.
func (s Span) Dates() []Date {
	first, last := DateOf(s.Start), DateOf(s.End)
	dates := []Date{first}
	for d := first.AddDays(1); !last.Before(d); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

// Overlaps reports whether two half-open spans intersect. Adjacent spans do not.
func (s Span) Overlaps(other Span) bool {
	return s.Start.Before(other.End) && s.End.After(other.Start)
}

// Expand widens the span by buffer on both ends.
func (s Span) Expand(buffer time.Duration) Span {
	return Span{Start: s.Start.Add(-buffer), End: s.End.Add(buffer)}
}

// Contains reports Start <= t < End.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}
