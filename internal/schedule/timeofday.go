// Package schedule models recurring availability: time-of-day values, a weekly
// pattern with per-date exceptions, and the resolvers that answer whether a
// resource is open at an instant or across a (possibly multi-day) range.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the upper bound of a TimeOfDay ("24:00").
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time without a date, in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	tod := TimeOfDay(hour*60 + minute)
	if hour > 24 || tod > MinutesPerDay {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return tod, nil
}

// TimeOf returns the time of day of t in t's own location. Seconds are dropped.
func TimeOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Valid reports whether t lies in 0..1440.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On places t on date d in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	return d.Time(loc).Add(time.Duration(t) * time.Minute)
}

// Interval is an opening window within a single day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewInterval parses an interval from two "HH:MM" strings.
func NewInterval(start, end string) (Interval, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Interval{}, err
	}
	iv := Interval{Start: s, End: e}
	if !iv.Valid() {
		return Interval{}, fmt.Errorf("interval %s-%s: start must be before end", start, end)
	}
	return iv, nil
}

// MustInterval is NewInterval that panics; intended for literals and tests.
func MustInterval(start, end string) Interval {
	iv, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

// Valid reports whether both bounds are in range and Start < End.
func (iv Interval) Valid() bool {
	return iv.Start.Valid() && iv.End.Valid() && iv.Start < iv.End
}

// Contains reports start <= t < end.
func (iv Interval) Contains(t TimeOfDay) bool {
	return iv.Start <= t && t < iv.End
}

// ContainsClosed reports start <= t <= end.
func (iv Interval) ContainsClosed(t TimeOfDay) bool {
	return iv.Start <= t && t <= iv.End
}

// Covers reports whether [from, to] fits inside the interval.
func (iv Interval) Covers(from, to TimeOfDay) bool {
	return iv.Start <= from && iv.End >= to
}

// Minutes returns the interval length.
func (iv Interval) Minutes() int {
	return int(iv.End - iv.Start)
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

type intervalJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON renders {"start":"HH:MM","end":"HH:MM"}.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{Start: iv.Start.String(), End: iv.End.String()})
}

// UnmarshalJSON parses {"start":"HH:MM","end":"HH:MM"} strictly.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var raw intervalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewInterval(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*iv = parsed
	return nil
}
