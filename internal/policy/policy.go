// Package policy holds the per-business booking rules and the checks derived
// from them: duration bounds, advance notice, daily limits and slot spacing.
package policy

import (
	"time"

	"bookcore/internal/model"
	"bookcore/internal/validation"
)

// DefaultSlotMins is the slot step when neither fixed intervals nor a service
// duration are available.
const DefaultSlotMins = 30

// BookingPolicy is the per-business rule set. Nil pointers are unset limits.
type BookingPolicy struct {
	BusinessID        model.BusinessID `json:"business_id"`
	BufferTimeMins    int              `json:"buffer_time_mins"`
	MinDurationMins   *int             `json:"min_duration_mins"`
	MaxDurationMins   *int             `json:"max_duration_mins"`
	MinAdvanceMins    int              `json:"min_advance_mins"`
	MaxAdvanceDays    *int             `json:"max_advance_days"`
	MaxDailyBookings  *int             `json:"max_daily_bookings"`
	UseFixedIntervals bool             `json:"use_fixed_intervals"`
	IntervalMins      *int             `json:"interval_mins"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Default is the policy used for a business that never saved one.
func Default(business model.BusinessID) *BookingPolicy {
	return &BookingPolicy{BusinessID: business}
}

// Int returns a pointer to v for optional fields.
func Int(v int) *int {
	return &v
}

// Buffer returns the idle time required around existing reservations.
func (p *BookingPolicy) Buffer() time.Duration {
	if p == nil || p.BufferTimeMins <= 0 {
		return 0
	}
	return time.Duration(p.BufferTimeMins) * time.Minute
}

// Validate checks the policy record itself.
func Validate(p *BookingPolicy) *validation.Errors {
	errs := validation.New()

	nonNegative := func(field string, v int) {
		if v < 0 {
			errs.Add(field, "must be greater than or equal to 0")
		}
	}
	positive := func(field string, v *int) {
		if v != nil && *v <= 0 {
			errs.Add(field, "must be greater than 0")
		}
	}

	nonNegative("buffer_time_mins", p.BufferTimeMins)
	nonNegative("min_advance_mins", p.MinAdvanceMins)
	positive("min_duration_mins", p.MinDurationMins)
	positive("max_duration_mins", p.MaxDurationMins)
	positive("max_advance_days", p.MaxAdvanceDays)
	positive("max_daily_bookings", p.MaxDailyBookings)

	if p.MinDurationMins != nil && p.MaxDurationMins != nil && *p.MaxDurationMins < *p.MinDurationMins {
		errs.Add("max_duration_mins", "must be greater than or equal to the minimum duration")
	}

	if p.UseFixedIntervals {
		switch {
		case p.IntervalMins == nil:
			errs.Add("interval_mins", "must be present when using fixed intervals")
		case *p.IntervalMins < 5:
			errs.Add("interval_mins", "must be at least 5 minutes when using fixed intervals")
		case *p.IntervalMins%5 != 0:
			errs.Add("interval_mins", "must be divisible by 5 when using fixed intervals")
		}
	}

	return errs
}

// SlotIntervalMins returns the step between offered slot starts.
func SlotIntervalMins(p *BookingPolicy, serviceDurationMins *int) int {
	if p != nil && p.UseFixedIntervals && p.IntervalMins != nil && *p.IntervalMins > 0 {
		return *p.IntervalMins
	}
	if serviceDurationMins != nil && *serviceDurationMins > 0 {
		return *serviceDurationMins
	}
	return DefaultSlotMins
}
