package lifecycle

import (
	"context"
	"fmt"
	"time"

	"bookcore/internal/metrics"
	"bookcore/internal/model"
	"bookcore/internal/occupancy"
	"bookcore/internal/policy"
	"bookcore/internal/schedule"
	"bookcore/internal/slots"
)

// AvailableAt reports whether the resource's calendar is open at instant t.
func (s *Service) AvailableAt(ctx context.Context, business model.BusinessID, resourceID int64, t time.Time) (bool, error) {
	resource, err := s.repo.GetResource(ctx, business, resourceID)
	if err != nil {
		return false, fmt.Errorf("load resource %d: %w", resourceID, err)
	}
	ok := schedule.AvailableAt(resource.Calendar, resource.Active, t.In(s.loc))
	metrics.IncAvailabilityCheck("available_at", ok)
	return ok, nil
}

// ScheduleAllows reports whether the resource's calendar admits [start, end).
// It does not look at other reservations.
func (s *Service) ScheduleAllows(ctx context.Context, business model.BusinessID, resourceID int64, start, end time.Time) (bool, error) {
	if !start.Before(end) {
		return false, ErrInvalidRange
	}
	resource, err := s.repo.GetResource(ctx, business, resourceID)
	if err != nil {
		return false, fmt.Errorf("load resource %d: %w", resourceID, err)
	}
	ok := schedule.Allows(resource.Calendar, start.In(s.loc), end.In(s.loc))
	metrics.IncAvailabilityCheck("schedule_allows", ok)
	return ok, nil
}

// AvailableQuantity returns how many units of the resource are still free for
// the whole of [start, end).
func (s *Service) AvailableQuantity(ctx context.Context, business model.BusinessID, resourceID int64, start, end time.Time) (int, error) {
	if !start.Before(end) {
		return 0, ErrInvalidRange
	}
	resource, existing, pol, err := s.snapshot(ctx, business, resourceID, start, end)
	if err != nil {
		return 0, err
	}
	probe := &model.Rental{
		Record: model.Record{ResourceID: resource.ID, StartTime: start, EndTime: end},
		Units:  1,
	}
	return occupancy.AvailableQuantity(resource.TotalCapacity(), existing, probe, pol.Buffer()), nil
}

// AvailableFor reports whether quantity units can be reserved for [start, end):
// the calendar allows the range, the duration satisfies the policy and enough
// capacity is free.
func (s *Service) AvailableFor(ctx context.Context, business model.BusinessID, resourceID int64, start, end time.Time, quantity int) (bool, error) {
	if !start.Before(end) {
		return false, ErrInvalidRange
	}
	resource, existing, pol, err := s.snapshot(ctx, business, resourceID, start, end)
	if err != nil {
		return false, err
	}
	ok := occupancy.Checker{Policy: pol}.AvailableFor(resource, existing, start.In(s.loc), end.In(s.loc), quantity)
	metrics.IncAvailabilityCheck("available_for", ok)
	return ok, nil
}

// Slots lists the bookable start times of a staff member on day.
func (s *Service) Slots(ctx context.Context, business model.BusinessID, staffID int64, day schedule.Date, serviceDurationMins *int) ([]slots.Slot, error) {
	dayStart := day.Time(s.loc)
	resource, existing, pol, err := s.snapshot(ctx, business, staffID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	gen := slots.NewGenerator(s.now)
	return gen.Generate(slots.Request{
		Resource:            resource,
		Policy:              pol,
		Existing:            existing,
		Date:                day,
		Location:            s.loc,
		ServiceDurationMins: serviceDurationMins,
	}), nil
}

// snapshot loads what the read-only predicates need. Existing reservations are
// fetched for the range widened by the buffer.
func (s *Service) snapshot(ctx context.Context, business model.BusinessID, resourceID int64, start, end time.Time) (*model.Resource, []model.Reservation, *policy.BookingPolicy, error) {
	resource, err := s.repo.GetResource(ctx, business, resourceID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load resource %d: %w", resourceID, err)
	}
	pol, err := s.Policy(ctx, business)
	if err != nil {
		return nil, nil, nil, err
	}
	window := schedule.Span{Start: start, End: end}.Expand(pol.Buffer())
	existing, err := s.repo.ListActiveReservations(ctx, business, resourceID, window)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list reservations of resource %d: %w", resourceID, err)
	}
	return resource, existing, pol, nil
}
