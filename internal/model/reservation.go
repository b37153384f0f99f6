package model

import (
	"errors"
	"time"

	"bookcore/internal/schedule"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrStoreBusy means another writer held the store past its busy timeout.
	ErrStoreBusy = errors.New("store busy")
)

// Kind is the booking flow a reservation belongs to.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindRental      Kind = "rental"
)

// Status is a reservation lifecycle state.
type Status string

const (
	// Appointment flow.
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"

	// Rental flow.
	StatusPendingDeposit Status = "pending_deposit"
	StatusDepositPaid    Status = "deposit_paid"
	StatusCheckedOut     Status = "checked_out"
	StatusReturned       Status = "returned"

	// Both flows.
	StatusCancelled Status = "cancelled"
)

// Reservation is what the availability checks operate on. Appointments and
// rentals both implement it.
type Reservation interface {
	Kind() Kind
	Core() *Record
	Quantity() int
}

// Record holds the fields shared by every reservation kind.
type Record struct {
	ID            int64      `json:"id"`
	PublicID      string     `json:"public_id"`
	BusinessID    BusinessID `json:"business_id"`
	ResourceID    int64      `json:"resource_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        Status     `json:"status"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	Comment       string     `json:"comment"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Version       int64      `json:"version"`
}

// Span returns [StartTime, EndTime).
func (r *Record) Span() schedule.Span {
	return schedule.Span{Start: r.StartTime, End: r.EndTime}
}

// Duration returns the booked length.
func (r *Record) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// IsCancelled reports whether the reservation no longer holds the resource.
func (r *Record) IsCancelled() bool {
	return r.Status == StatusCancelled
}

// IsRangeBooking reports whether the reservation spans several calendar days.
func (r *Record) IsRangeBooking() bool {
	return r.Span().MultiDay()
}

// OverlapsWith uses half-open [start, end) semantics; touching ranges do not overlap.
func (r *Record) OverlapsWith(other *Record) bool {
	return r.Span().Overlaps(other.Span())
}

// ContainsTime reports start <= t < end.
func (r *Record) ContainsTime(t time.Time) bool {
	return r.Span().Contains(t)
}

// ContainsDate checks if the reservation covers any part of the given date.
func (r *Record) ContainsDate(date time.Time) bool {
	d := schedule.DateOf(date)
	first, last := schedule.DateOf(r.StartTime), schedule.DateOf(r.EndTime)
	return !d.Before(first) && !last.Before(d)
}

// Appointment is a single-capacity staff booking.
type Appointment struct {
	Record
	ServiceID           int64 `json:"service_id,omitempty"`
	ServiceDurationMins int   `json:"service_duration_mins,omitempty"`
}

func (a *Appointment) Kind() Kind    { return KindAppointment }
func (a *Appointment) Core() *Record { return &a.Record }
func (a *Appointment) Quantity() int { return 1 }

// Rental reserves one or more units of a rentable product, possibly over
// several days.
type Rental struct {
	Record
	Units int `json:"quantity"`
}

func (r *Rental) Kind() Kind    { return KindRental }
func (r *Rental) Core() *Record { return &r.Record }
func (r *Rental) Quantity() int { return r.Units }
