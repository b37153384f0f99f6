// Package occupancy answers whether a resource is already taken for a range:
// single-capacity conflict detection for staff and unit counting for rentals.
package occupancy

import (
	"time"

	"bookcore/internal/model"
	"bookcore/internal/schedule"
)

// holds reports whether existing still occupies the resource that candidate
// targets. The candidate never conflicts with itself.
func holds(existing, candidate model.Reservation) bool {
	e, c := existing.Core(), candidate.Core()
	if e.IsCancelled() || e.ResourceID != c.ResourceID {
		return false
	}
	if c.ID != 0 && e.ID == c.ID {
		return false
	}
	return true
}

// blocks reports whether existing, widened by buffer on both ends, overlaps span.
func blocks(existing model.Reservation, span schedule.Span, buffer time.Duration) bool {
	return existing.Core().Span().Expand(buffer).Overlaps(span)
}

// FirstConflict returns the first existing reservation that overlaps the
// candidate once buffer is applied, or nil.
func FirstConflict(existing []model.Reservation, candidate model.Reservation, buffer time.Duration) model.Reservation {
	span := candidate.Core().Span()
	for _, e := range existing {
		if holds(e, candidate) && blocks(e, span, buffer) {
			return e
		}
	}
	return nil
}

// Conflicts reports whether the candidate overlaps any active reservation on
// the same resource. Touching ranges do not conflict.
func Conflicts(existing []model.Reservation, candidate model.Reservation, buffer time.Duration) bool {
	return FirstConflict(existing, candidate, buffer) != nil
}
