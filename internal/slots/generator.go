package slots

import (
	"sort"
	"time"

	"bookcore/internal/model"
	"bookcore/internal/occupancy"
	"bookcore/internal/policy"
	"bookcore/internal/schedule"
	"bookcore/internal/validation"
)

// Slot represents a time slot.
type Slot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
}

// SlotInfo is a simplified representation for clients.
type SlotInfo struct {
	Start     string `json:"start"` // "10:00"
	End       string `json:"end"`   // "10:30"
	Available bool   `json:"available"`
}

// Request holds everything needed to lay out one day of slots.
type Request struct {
	Resource            *model.Resource
	Policy              *policy.BookingPolicy
	Existing            []model.Reservation
	Date                schedule.Date
	Location            *time.Location
	ServiceDurationMins *int
}

// Generator generates slots for a date.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a new slot generator.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Generate steps through every effective interval of the date. A slot is
// offered only when it fits its interval entirely; it is available when it
// passes the same duration, buffer, advance and daily-limit rules a booking
// would.
func (g *Generator) Generate(req Request) []Slot {
	if req.Resource == nil {
		return nil
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	step := policy.SlotIntervalMins(req.Policy, req.ServiceDurationMins)
	length := step
	if req.ServiceDurationMins != nil && *req.ServiceDurationMins > 0 {
		length = *req.ServiceDurationMins
	}

	dayFull := false
	if req.Policy != nil && req.Policy.MaxDailyBookings != nil {
		errs := validation.New()
		policy.CheckDailyLimit(req.Policy, countOnDay(req.Existing, req.Resource.ID, req.Date, loc), errs)
		dayFull = !errs.Empty()
	}

	now := g.now()
	seen := make(map[int64]bool)
	var slots []Slot

	for _, iv := range req.Resource.Calendar.IntervalsOn(req.Date) {
		for cursor := iv.Start; cursor+schedule.TimeOfDay(length) <= iv.End; cursor += schedule.TimeOfDay(step) {
			start := cursor.On(req.Date, loc)
			end := start.Add(time.Duration(length) * time.Minute)
			if seen[start.Unix()] {
				continue
			}
			seen[start.Unix()] = true

			slots = append(slots, Slot{
				StartTime: start,
				EndTime:   end,
				Available: !dayFull && g.bookable(req, start, end, now),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
	return slots
}

func (g *Generator) bookable(req Request, start, end, now time.Time) bool {
	if !req.Resource.Active {
		return false
	}
	errs := validation.New()
	policy.CheckAdvance(req.Policy, start, now, errs)
	policy.CheckDuration(req.Policy, start, end, errs)
	if !errs.Empty() {
		return false
	}
	probe := &model.Appointment{Record: model.Record{ResourceID: req.Resource.ID, StartTime: start, EndTime: end}}
	return !occupancy.Conflicts(req.Existing, probe, req.Policy.Buffer())
}

func countOnDay(existing []model.Reservation, resourceID int64, day schedule.Date, loc *time.Location) int {
	n := 0
	for _, e := range existing {
		c := e.Core()
		if e.Kind() == model.KindAppointment && !c.IsCancelled() && c.ResourceID == resourceID &&
			schedule.DateOf(c.StartTime.In(loc)) == day {
			n++
		}
	}
	return n
}

// ToSlotInfo converts slots to SlotInfo for clients.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:     s.StartTime.Format("15:04"),
			End:       s.EndTime.Format("15:04"),
			Available: s.Available,
		}
	}
	return result
}

// GetAvailableSlots returns only available slots.
func GetAvailableSlots(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}
