package occupancy

import (
	"time"

	"bookcore/internal/model"
	"bookcore/internal/policy"
	"bookcore/internal/schedule"
)

// AvailableQuantity returns how many units of capacity remain free across span
// once the overlapping active reservations of candidate's resource are counted.
// The candidate itself is excluded, so rescheduling does not count twice.
// The result is never negative.
func AvailableQuantity(capacity int, existing []model.Reservation, candidate model.Reservation, buffer time.Duration) int {
	span := candidate.Core().Span()
	used := 0
	for _, e := range existing {
		if holds(e, candidate) && blocks(e, span, buffer) {
			used += e.Quantity()
		}
	}
	if free := capacity - used; free > 0 {
		return free
	}
	return 0
}

// Checker combines schedule, duration and capacity checks for one resource.
type Checker struct {
	Policy *policy.BookingPolicy
}

// AvailableFor reports whether quantity units of resource can be reserved for
// [start, end) given the existing reservations.
func (c Checker) AvailableFor(resource *model.Resource, existing []model.Reservation, start, end time.Time, quantity int) bool {
	if !resource.Active || quantity < 1 || !start.Before(end) {
		return false
	}
	if !schedule.Allows(resource.Calendar, start, end) {
		return false
	}
	if !policy.ValidDuration(c.Policy, start, end) {
		return false
	}
	probe := &model.Rental{
		Record: model.Record{ResourceID: resource.ID, StartTime: start, EndTime: end},
		Units:  quantity,
	}
	return AvailableQuantity(resource.TotalCapacity(), existing, probe, c.Policy.Buffer()) >= quantity
}
