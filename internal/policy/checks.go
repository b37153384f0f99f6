package policy

import (
	"time"

	"bookcore/internal/validation"
)

// ValidDuration reports whether end-start lies within the policy bounds.
func ValidDuration(p *BookingPolicy, start, end time.Time) bool {
	errs := validation.New()
	CheckDuration(p, start, end, errs)
	return errs.Empty()
}

// CheckDuration adds a base error when the booked length violates the
// minimum or maximum duration.
func CheckDuration(p *BookingPolicy, start, end time.Time, errs *validation.Errors) {
	if p == nil {
		return
	}
	mins := int(end.Sub(start) / time.Minute)

	if p.MinDurationMins != nil && mins < *p.MinDurationMins {
		errs.Addf(validation.Base,
			"Booking duration (%d minutes) cannot be less than the minimum required duration (%d minutes)",
			mins, *p.MinDurationMins)
	}
	if p.MaxDurationMins != nil && mins > *p.MaxDurationMins {
		errs.Addf(validation.Base,
			"Booking duration (%d minutes) cannot exceed the maximum allowed duration (%d minutes)",
			mins, *p.MaxDurationMins)
	}
}

// CheckAdvance enforces the minimum notice and the booking horizon.
func CheckAdvance(p *BookingPolicy, start, now time.Time, errs *validation.Errors) {
	minAdvance := 0
	if p != nil && p.MinAdvanceMins > 0 {
		minAdvance = p.MinAdvanceMins
	}
	if start.Before(now.Add(time.Duration(minAdvance) * time.Minute)) {
		errs.Addf("start_time", "must be at least %d minutes from now", minAdvance)
	}

	if p != nil && p.MaxAdvanceDays != nil {
		if start.After(now.AddDate(0, 0, *p.MaxAdvanceDays)) {
			errs.Addf("start_time", "cannot be more than %d days in advance", *p.MaxAdvanceDays)
		}
	}
}

// CheckDailyLimit adds a base error when a staff member already holds the
// maximum number of bookings for the day.
func CheckDailyLimit(p *BookingPolicy, countOnDay int, errs *validation.Errors) {
	if p == nil || p.MaxDailyBookings == nil {
		return
	}
	if countOnDay >= *p.MaxDailyBookings {
		errs.Add(validation.Base, "Daily booking limit reached for this staff member")
	}
}
