// Package lifecycle creates, reschedules and transitions reservations. Every
// mutation that changes when or how much of a resource is held re-runs the
// full set of availability checks under a per-resource lock.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bookcore/internal/events"
	"bookcore/internal/lock"
	"bookcore/internal/metrics"
	"bookcore/internal/model"
	"bookcore/internal/occupancy"
	"bookcore/internal/policy"
	"bookcore/internal/schedule"
	"bookcore/internal/validation"
)

const (
	msgConflict           = "Booking conflicts with another existing booking for this staff member, considering buffer time"
	msgStaffUnavailable   = "Staff member is not available at the selected time"
	msgProductUnavailable = "Product is not available for the selected dates"

	defaultLockTimeout = 5 * time.Second
)

// ErrInvalidRange is returned by the predicates when start is not before end.
var ErrInvalidRange = errors.New("start must be before end")

// Repository is the persistence the lifecycle needs. Every call is scoped to
// an explicit business.
type Repository interface {
	GetResource(ctx context.Context, business model.BusinessID, id int64) (*model.Resource, error)
	GetPolicy(ctx context.Context, business model.BusinessID) (*policy.BookingPolicy, error)
	SavePolicy(ctx context.Context, p *policy.BookingPolicy) error
	SaveCalendar(ctx context.Context, business model.BusinessID, resourceID int64, cal *schedule.Calendar) error
	GetReservation(ctx context.Context, business model.BusinessID, id int64) (model.Reservation, error)
	// ListActiveReservations returns the non-cancelled reservations of the
	// resource that overlap window.
	ListActiveReservations(ctx context.Context, business model.BusinessID, resourceID int64, window schedule.Span) ([]model.Reservation, error)
	// CommitReservation loads the active reservations overlapping window,
	// passes them to check and persists r only when check returns nil. The
	// error from check is returned unchanged. A zero ID inserts, anything else
	// updates times and quantity.
	CommitReservation(ctx context.Context, r model.Reservation, window schedule.Span, check func(existing []model.Reservation) error) error
	// UpdateReservationStatus persists status and cancellation fields of r if
	// the stored status is still from.
	UpdateReservationStatus(ctx context.Context, r model.Reservation, from model.Status) error
}

// EventPublisher delivers reservation events to collaborators.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// AppointmentRequest describes a staff booking to create.
type AppointmentRequest struct {
	StaffID             int64     `json:"staff_id"`
	ServiceID           int64     `json:"service_id"`
	ServiceDurationMins int       `json:"service_duration_mins"`
	Start               time.Time `json:"start_time"`
	End                 time.Time `json:"end_time"`
	CustomerName        string    `json:"customer_name"`
	CustomerPhone       string    `json:"customer_phone"`
	Comment             string    `json:"comment"`
}

// RentalRequest describes a product rental to create.
type RentalRequest struct {
	ProductID     int64     `json:"product_id"`
	Start         time.Time `json:"start_time"`
	End           time.Time `json:"end_time"`
	Quantity      int       `json:"quantity"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	Comment       string    `json:"comment"`
}

// RescheduleRequest moves a reservation. Quantity applies to rentals only.
type RescheduleRequest struct {
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
	Quantity *int      `json:"quantity,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for advance-notice checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the business time zone used for calendar lookups.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLockTimeout bounds how long a request waits for the resource lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// Service is the reservation lifecycle.
type Service struct {
	repo        Repository
	bus         EventPublisher
	locker      lock.Locker
	fsm         *FSM
	logger      *zerolog.Logger
	now         func() time.Time
	loc         *time.Location
	lockTimeout time.Duration
}

// NewService wires the lifecycle.
func NewService(repo Repository, bus EventPublisher, locker lock.Locker, logger *zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		bus:         bus,
		locker:      locker,
		fsm:         NewFSM(),
		logger:      logger,
		now:         time.Now,
		loc:         time.UTC,
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the business time zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// FSM returns the transition table used by the service.
func (s *Service) FSM() *FSM {
	return s.fsm
}

// CreateAppointment books a staff member for [req.Start, req.End).
func (s *Service) CreateAppointment(ctx context.Context, business model.BusinessID, req AppointmentRequest) (*model.Appointment, error) {
	appt := &model.Appointment{
		Record: model.Record{
			PublicID:      uuid.NewString(),
			BusinessID:    business,
			ResourceID:    req.StaffID,
			StartTime:     req.Start.In(s.loc),
			EndTime:       req.End.In(s.loc),
			Status:        s.fsm.Initial(model.KindAppointment),
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Comment:       req.Comment,
		},
		ServiceID:           req.ServiceID,
		ServiceDurationMins: req.ServiceDurationMins,
	}

	if err := s.place(ctx, appt); err != nil {
		return nil, err
	}

	metrics.IncReservationCreated(string(model.KindAppointment))
	s.publish(events.ReservationCreated, newReservationEvent(appt))
	s.logger.Info().
		Int64("reservation_id", appt.ID).
		Int64("business_id", int64(business)).
		Int64("staff_id", appt.ResourceID).
		Time("start", appt.StartTime).
		Msg("Appointment created")
	return appt, nil
}

// CreateRental reserves req.Quantity units of a product for [req.Start, req.End).
func (s *Service) CreateRental(ctx context.Context, business model.BusinessID, req RentalRequest) (*model.Rental, error) {
	rental := &model.Rental{
		Record: model.Record{
			PublicID:      uuid.NewString(),
			BusinessID:    business,
			ResourceID:    req.ProductID,
			StartTime:     req.Start.In(s.loc),
			EndTime:       req.End.In(s.loc),
			Status:        s.fsm.Initial(model.KindRental),
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Comment:       req.Comment,
		},
		Units: req.Quantity,
	}

	if err := s.place(ctx, rental); err != nil {
		return nil, err
	}

	metrics.IncReservationCreated(string(model.KindRental))
	s.publish(events.ReservationCreated, newReservationEvent(rental))
	s.logger.Info().
		Int64("reservation_id", rental.ID).
		Int64("business_id", int64(business)).
		Int64("product_id", rental.ResourceID).
		Int("quantity", rental.Units).
		Msg("Rental created")
	return rental, nil
}

// Reschedule changes the times (and for rentals the quantity) of an existing
// reservation, re-running every availability check.
func (s *Service) Reschedule(ctx context.Context, business model.BusinessID, id int64, req RescheduleRequest) (model.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, business, id)
	if err != nil {
		return nil, fmt.Errorf("load reservation %d: %w", id, err)
	}
	core := r.Core()
	if !s.fsm.Reschedulable(r.Kind(), core.Status) {
		return nil, fmt.Errorf("%w: %s %s reservation cannot be rescheduled", ErrIllegalTransition, core.Status, r.Kind())
	}

	previous := core.Span()
	core.StartTime = req.Start.In(s.loc)
	core.EndTime = req.End.In(s.loc)
	if rental, ok := r.(*model.Rental); ok && req.Quantity != nil {
		rental.Units = *req.Quantity
	}

	if err := s.place(ctx, r); err != nil {
		return nil, err
	}

	ev := newReservationEvent(r)
	ev.PreviousStart = &previous.Start
	ev.PreviousEnd = &previous.End
	s.publish(events.ReservationRescheduled, ev)
	s.logger.Info().Int64("reservation_id", id).Time("start", core.StartTime).Time("end", core.EndTime).Msg("Reservation rescheduled")
	return r, nil
}

// Reservation loads one reservation of business.
func (s *Service) Reservation(ctx context.Context, business model.BusinessID, id int64) (model.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, business, id)
	if err != nil {
		return nil, fmt.Errorf("load reservation %d: %w", id, err)
	}
	return r, nil
}

// Transition applies action to the reservation's status.
func (s *Service) Transition(ctx context.Context, business model.BusinessID, id int64, action Action, reason string) (model.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, business, id)
	if err != nil {
		return nil, fmt.Errorf("load reservation %d: %w", id, err)
	}
	core := r.Core()
	from := core.Status

	next, err := s.fsm.Next(r.Kind(), from, action)
	if err != nil {
		return nil, fmt.Errorf("reservation %d: %w", id, err)
	}

	core.Status = next
	if next == model.StatusCancelled {
		now := s.now()
		core.CancelledAt = &now
		core.CancelReason = strings.TrimSpace(reason)
	}

	if err := s.repo.UpdateReservationStatus(ctx, r, from); err != nil {
		return nil, fmt.Errorf("update reservation %d status: %w", id, err)
	}

	metrics.IncTransition(string(r.Kind()), string(action))
	ev := newReservationEvent(r)
	ev.PreviousStatus = from
	ev.Reason = core.CancelReason
	s.publish(events.ReservationStatusChanged, ev)
	s.logger.Info().
		Int64("reservation_id", id).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("Reservation status changed")
	return r, nil
}

// Cancel releases the reservation's hold on the resource.
func (s *Service) Cancel(ctx context.Context, business model.BusinessID, id int64, reason string) (model.Reservation, error) {
	return s.Transition(ctx, business, id, ActionCancel, reason)
}

// UpdateCalendar parses and stores a new availability document for a resource.
func (s *Service) UpdateCalendar(ctx context.Context, business model.BusinessID, resourceID int64, doc []byte) (*schedule.Calendar, error) {
	if _, err := s.repo.GetResource(ctx, business, resourceID); err != nil {
		return nil, fmt.Errorf("load resource %d: %w", resourceID, err)
	}

	cal, errs := schedule.ParseJSON(doc)
	if !errs.Empty() {
		return nil, errs
	}

	if err := s.repo.SaveCalendar(ctx, business, resourceID, cal); err != nil {
		return nil, fmt.Errorf("save calendar of resource %d: %w", resourceID, err)
	}

	s.publish(events.CalendarUpdated, map[string]interface{}{
		"business_id": business,
		"resource_id": resourceID,
	})
	return cal, nil
}

// UpdatePolicy validates and stores the business booking policy.
func (s *Service) UpdatePolicy(ctx context.Context, business model.BusinessID, p *policy.BookingPolicy) (*policy.BookingPolicy, error) {
	p.BusinessID = business
	if errs := policy.Validate(p); !errs.Empty() {
		return nil, errs
	}
	p.UpdatedAt = s.now()
	if err := s.repo.SavePolicy(ctx, p); err != nil {
		return nil, fmt.Errorf("save policy: %w", err)
	}
	return p, nil
}

// Policy returns the business booking policy, or the default one.
func (s *Service) Policy(ctx context.Context, business model.BusinessID) (*policy.BookingPolicy, error) {
	p, err := s.repo.GetPolicy(ctx, business)
	if errors.Is(err, model.ErrNotFound) {
		return policy.Default(business), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return p, nil
}

// place runs every check for r and persists it when they all pass.
func (s *Service) place(ctx context.Context, r model.Reservation) error {
	core := r.Core()
	business := core.BusinessID

	resource, err := s.repo.GetResource(ctx, business, core.ResourceID)
	if err != nil {
		return fmt.Errorf("load resource %d: %w", core.ResourceID, err)
	}
	pol, err := s.Policy(ctx, business)
	if err != nil {
		return err
	}

	errs := validation.New()
	if !s.staticChecks(r, resource, pol, errs) {
		s.reject(r, errs)
		return errs
	}

	unlock, err := s.acquire(ctx, lock.ResourceKey(business, resource.ID))
	if err != nil {
		return s.contended(ctx, r, errs, err)
	}
	defer unlock()

	err = s.repo.CommitReservation(ctx, r, s.window(r, pol), func(existing []model.Reservation) error {
		s.occupancyChecks(r, resource, pol, existing, errs)
		return errs.Err()
	})
	if verr, ok := validation.As(err); ok {
		s.reject(r, verr)
		return verr
	}
	if err != nil {
		return s.contended(ctx, r, errs, fmt.Errorf("save %s: %w", r.Kind(), err))
	}
	return nil
}

// contended reports a lost race for the resource (lock wait or store busy
// timeout) as the same conflict a competing booking would cause. Other
// errors, and a cancelled caller, are returned as they are.
func (s *Service) contended(ctx context.Context, r model.Reservation, errs *validation.Errors, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if !errors.Is(err, lock.ErrNotAcquired) && !errors.Is(err, model.ErrStoreBusy) {
		return err
	}
	s.logger.Warn().Err(err).Int64("resource_id", r.Core().ResourceID).Msg("Resource contended, reporting conflict")
	errs.Add(validation.Base, msgConflict)
	metrics.IncReservationRejected(string(r.Kind()), "contention")
	return errs
}

// staticChecks validates what does not depend on other reservations. It
// returns false when the range or resource is unusable and nothing further
// can be evaluated.
func (s *Service) staticChecks(r model.Reservation, resource *model.Resource, pol *policy.BookingPolicy, errs *validation.Errors) bool {
	core := r.Core()
	proceed := true

	switch r.Kind() {
	case model.KindAppointment:
		if !resource.IsStaff() {
			errs.Add("staff_member", "must be a staff member")
			proceed = false
		}
	case model.KindRental:
		if !resource.IsRentalProduct() {
			errs.Add("product", "must be a rental product")
			proceed = false
		}
	}

	if !core.StartTime.Before(core.EndTime) {
		if r.Kind() == model.KindRental {
			errs.Add("end_time", "must be after start time")
		} else {
			errs.Add("end_time", "must be after the start time")
		}
		return false
	}

	if r.Quantity() < 1 {
		errs.Add("quantity", "must be greater than 0")
	}

	policy.CheckDuration(pol, core.StartTime, core.EndTime, errs)
	policy.CheckAdvance(pol, core.StartTime, s.now(), errs)

	if proceed && (!resource.Active || !schedule.Allows(resource.Calendar, core.StartTime, core.EndTime)) {
		if r.Kind() == model.KindRental {
			errs.Add(validation.Base, msgProductUnavailable)
		} else {
			errs.Add(validation.Base, msgStaffUnavailable)
		}
	}
	return proceed
}

// occupancyChecks validates r against the reservations already holding the resource.
func (s *Service) occupancyChecks(r model.Reservation, resource *model.Resource, pol *policy.BookingPolicy, existing []model.Reservation, errs *validation.Errors) {
	buffer := pol.Buffer()

	switch r.Kind() {
	case model.KindAppointment:
		if c := occupancy.FirstConflict(existing, r, buffer); c != nil {
			errs.Add(validation.Base, msgConflict)
			s.logger.Debug().
				Int64("resource_id", resource.ID).
				Int64("conflicting_id", c.Core().ID).
				Msg("Appointment conflicts with existing reservation")
		}
		if pol.MaxDailyBookings != nil {
			policy.CheckDailyLimit(pol, s.countOnDay(existing, r), errs)
		}
	case model.KindRental:
		if r.Quantity() < 1 {
			return
		}
		if free := occupancy.AvailableQuantity(resource.TotalCapacity(), existing, r, buffer); free < r.Quantity() {
			errs.Addf("quantity", "exceeds available quantity (%d available)", free)
		}
	}
}

// countOnDay counts the other active appointments starting on r's date.
func (s *Service) countOnDay(existing []model.Reservation, r model.Reservation) int {
	day := schedule.DateOf(r.Core().StartTime.In(s.loc))
	n := 0
	for _, e := range existing {
		c := e.Core()
		if e.Kind() != model.KindAppointment || c.IsCancelled() || c.ResourceID != r.Core().ResourceID {
			continue
		}
		if c.ID != 0 && c.ID == r.Core().ID {
			continue
		}
		if schedule.DateOf(c.StartTime.In(s.loc)) == day {
			n++
		}
	}
	return n
}

// window is the range of existing reservations relevant to r: anything whose
// buffered span could overlap it, plus the whole day when a daily limit applies.
func (s *Service) window(r model.Reservation, pol *policy.BookingPolicy) schedule.Span {
	w := r.Core().Span().Expand(pol.Buffer())
	if r.Kind() == model.KindAppointment && pol.MaxDailyBookings != nil {
		dayStart := schedule.DateOf(r.Core().StartTime.In(s.loc)).Time(s.loc)
		dayEnd := dayStart.AddDate(0, 0, 1)
		if dayStart.Before(w.Start) {
			w.Start = dayStart
		}
		if dayEnd.After(w.End) {
			w.End = dayEnd
		}
	}
	return w
}

func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	started := time.Now()
	unlock, err := s.locker.Lock(ctx, key)
	metrics.ObserveLockWait(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return unlock, nil
}

func (s *Service) reject(r model.Reservation, errs *validation.Errors) {
	reason := "validation"
	switch {
	case errs.Has(validation.Base, msgConflict):
		reason = "conflict"
	case len(errs.On("quantity")) > 0 && strings.HasPrefix(errs.On("quantity")[0], "exceeds"):
		reason = "capacity"
	}
	metrics.IncReservationRejected(string(r.Kind()), reason)
	s.logger.Debug().
		Str("kind", string(r.Kind())).
		Int64("resource_id", r.Core().ResourceID).
		Str("reason", reason).
		Err(errs).
		Msg("Reservation rejected")
}

func (s *Service) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

type reservationEvent struct {
	ID             int64            `json:"id"`
	PublicID       string           `json:"public_id"`
	BusinessID     model.BusinessID `json:"business_id"`
	ResourceID     int64            `json:"resource_id"`
	Kind           model.Kind       `json:"kind"`
	Status         model.Status     `json:"status"`
	PreviousStatus model.Status     `json:"previous_status,omitempty"`
	Start          time.Time        `json:"start_time"`
	End            time.Time        `json:"end_time"`
	PreviousStart  *time.Time       `json:"previous_start_time,omitempty"`
	PreviousEnd    *time.Time       `json:"previous_end_time,omitempty"`
	Quantity       int              `json:"quantity"`
	Reason         string           `json:"reason,omitempty"`
}

func newReservationEvent(r model.Reservation) reservationEvent {
	c := r.Core()
	return reservationEvent{
		ID:         c.ID,
		PublicID:   c.PublicID,
		BusinessID: c.BusinessID,
		ResourceID: c.ResourceID,
		Kind:       r.Kind(),
		Status:     c.Status,
		Start:      c.StartTime,
		End:        c.EndTime,
		Quantity:   r.Quantity(),
	}
}
