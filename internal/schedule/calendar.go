package schedule

import (
	"encoding/json"
	"sort"
	"time"
)

// ExceptionsKey is the document key holding per-date overrides.
const ExceptionsKey = "exceptions"

// WeekdayNames maps document keys to weekdays.
var WeekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var weekdayKeys = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// WeekdayKey returns the document key for wd.
func WeekdayKey(wd time.Weekday) string {
	return weekdayKeys[wd]
}

// Calendar is a weekly pattern plus per-date exceptions. An exception, even an
// empty one, fully replaces the weekly entry for its date.
type Calendar struct {
	Weekly     [7][]Interval
	Exceptions map[Date][]Interval
}

// NewCalendar returns an empty (closed every day) calendar.
func NewCalendar() *Calendar {
	return &Calendar{Exceptions: make(map[Date][]Interval)}
}

// SetWeekly replaces the intervals for a weekday.
func (c *Calendar) SetWeekly(wd time.Weekday, ivs ...Interval) *Calendar {
	c.Weekly[wd] = append([]Interval(nil), ivs...)
	return c
}

// SetException replaces the intervals for one date. No intervals means closed.
func (c *Calendar) SetException(d Date, ivs ...Interval) *Calendar {
	if c.Exceptions == nil {
		c.Exceptions = make(map[Date][]Interval)
	}
	c.Exceptions[d] = append([]Interval{}, ivs...)
	return c
}

// ClearException removes the override for d.
func (c *Calendar) ClearException(d Date) {
	delete(c.Exceptions, d)
}

// HasException reports whether d carries an override.
func (c *Calendar) HasException(d Date) bool {
	if c == nil {
		return false
	}
	_, ok := c.Exceptions[d]
	return ok
}

// IntervalsOn returns the effective intervals for d.
func (c *Calendar) IntervalsOn(d Date) []Interval {
	if c == nil {
		return nil
	}
	if ivs, ok := c.Exceptions[d]; ok {
		return ivs
	}
	return c.Weekly[d.Weekday()]
}

// Configured reports whether any weekly interval or any exception exists.
func (c *Calendar) Configured() bool {
	if c == nil {
		return false
	}
	if len(c.Exceptions) > 0 {
		return true
	}
	for _, ivs := range c.Weekly {
		if len(ivs) > 0 {
			return true
		}
	}
	return false
}

// ExceptionDates returns the override dates in ascending order.
func (c *Calendar) ExceptionDates() []Date {
	dates := make([]Date, 0, len(c.Exceptions))
	for d := range c.Exceptions {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Document renders the calendar in its JSON document shape: the seven weekday
// keys plus "exceptions".
func (c *Calendar) Document() map[string]any {
	doc := make(map[string]any, 8)
	for wd, key := range weekdayKeys {
		ivs := c.Weekly[wd]
		if ivs == nil {
			ivs = []Interval{}
		}
		doc[key] = ivs
	}
	exceptions := make(map[string][]Interval, len(c.Exceptions))
	for d, ivs := range c.Exceptions {
		if ivs == nil {
			ivs = []Interval{}
		}
		exceptions[d.String()] = ivs
	}
	doc[ExceptionsKey] = exceptions
	return doc
}

// MarshalJSON renders Document().
func (c *Calendar) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Document())
}

// UnmarshalJSON decodes leniently, see DecodeJSON.
func (c *Calendar) UnmarshalJSON(data []byte) error {
	*c = *DecodeJSON(data)
	return nil
}
