package schedule

import (
	"fmt"
	"time"
)

// AvailableAt reports whether the owner of cal is open at instant t. An inactive
// owner is never available. The end of an interval is exclusive, so an instant
// exactly at closing time is unavailable.
func AvailableAt(cal *Calendar, active bool, t time.Time) bool {
	if !active {
		return false
	}
	tod := TimeOf(t)
	for _, iv := range cal.IntervalsOn(DateOf(t)) {
		if iv.Contains(tod) {
			return true
		}
	}
	return false
}

// RefusalReason says why a range is not allowed by the schedule.
type RefusalReason string

const (
	ReasonClosed            RefusalReason = "closed"
	ReasonOutsideHours      RefusalReason = "outside_hours"
	ReasonStartOutsideHours RefusalReason = "start_outside_hours"
	ReasonEndOutsideHours   RefusalReason = "end_outside_hours"
)

// Refusal names the first date that makes a range fail.
type Refusal struct {
	Date   Date
	Reason RefusalReason
}

func (r *Refusal) Error() string {
	return fmt.Sprintf("schedule refuses %s: %s", r.Date, r.Reason)
}

// Allows reports whether the schedule permits holding the resource over
// [start, end). See Explain for the rules.
func Allows(cal *Calendar, start, end time.Time) bool {
	return Explain(cal, start, end) == nil
}

// Explain returns nil when the schedule permits [start, end), otherwise the first
// offending date.
//
// A resource with no calendar at all is unrestricted. A same-day range must fit
// inside one interval. For a multi-day range the start time must lie within some
// first-day interval and the end time within some last-day interval, both bounds
// inclusive; interior days only need to be open at all.
//
// start must be before end; violating that is a caller bug and panics.
func Explain(cal *Calendar, start, end time.Time) *Refusal {
	if !start.Before(end) {
		panic(fmt.Sprintf("schedule: range start %s is not before end %s", start, end))
	}
	if !cal.Configured() {
		return nil
	}

	span := Span{Start: start, End: end}
	if !span.MultiDay() {
		d := DateOf(start)
		ivs := cal.IntervalsOn(d)
		if len(ivs) == 0 {
			return &Refusal{Date: d, Reason: ReasonClosed}
		}
		from, to := TimeOf(start), TimeOf(end)
		for _, iv := range ivs {
			if iv.Covers(from, to) {
				return nil
			}
		}
		return &Refusal{Date: d, Reason: ReasonOutsideHours}
	}

	dates := span.Dates()
	last := len(dates) - 1
	for i, d := range dates {
		ivs := cal.IntervalsOn(d)
		if len(ivs) == 0 {
			return &Refusal{Date: d, Reason: ReasonClosed}
		}
		switch i {
		case 0:
			if !anyContainsClosed(ivs, TimeOf(start)) {
				return &Refusal{Date: d, Reason: ReasonStartOutsideHours}
			}
		case last:
			if !anyContainsClosed(ivs, TimeOf(end)) {
				return &Refusal{Date: d, Reason: ReasonEndOutsideHours}
			}
		}
	}
	return nil
}

func anyContainsClosed(ivs []Interval, t TimeOfDay) bool {
	for _, iv := range ivs {
		if iv.ContainsClosed(t) {
			return true
		}
	}
	return false
}
