package lifecycle

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"bookcore/internal/model"
	"bookcore/internal/policy"
	"bookcore/internal/schedule"
)

// memRepo is an in-memory Repository. CommitReservation does not hold the
// mutex while check runs, so the service lock is what serializes writers.
type memRepo struct {
	mu           sync.Mutex
	resources    map[int64]*model.Resource
	policies     map[model.BusinessID]*policy.BookingPolicy
	reservations map[int64]model.Reservation
	nextID       int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		resources:    make(map[int64]*model.Resource),
		policies:     make(map[model.BusinessID]*policy.BookingPolicy),
		reservations: make(map[int64]model.Reservation),
	}
}

func (m *memRepo) addResource(r *model.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r
}

func (m *memRepo) GetResource(ctx context.Context, business model.BusinessID, id int64) (*model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[id]
	if !ok || r.BusinessID != business {
		return nil, model.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) GetPolicy(ctx context.Context, business model.BusinessID) (*policy.BookingPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[business]
	if !ok {
		return nil, model.ErrNotFound
	}
	return p, nil
}

func (m *memRepo) SavePolicy(ctx context.Context, p *policy.BookingPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.BusinessID] = p
	return nil
}

func (m *memRepo) SaveCalendar(ctx context.Context, business model.BusinessID, resourceID int64, cal *schedule.Calendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[resourceID]
	if !ok || r.BusinessID != business {
		return model.ErrNotFound
	}
	r.Calendar = cal
	return nil
}

func (m *memRepo) GetReservation(ctx context.Context, business model.BusinessID, id int64) (model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || r.Core().BusinessID != business {
		return nil, model.ErrNotFound
	}
	return clone(r), nil
}

func (m *memRepo) ListActiveReservations(ctx context.Context, business model.BusinessID, resourceID int64, window schedule.Span) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(business, resourceID, window), nil
}

func (m *memRepo) activeLocked(business model.BusinessID, resourceID int64, window schedule.Span) []model.Reservation {
	var out []model.Reservation
	for _, r := range m.reservations {
		c := r.Core()
		if c.BusinessID != business || c.ResourceID != resourceID || c.IsCancelled() {
			continue
		}
		if c.Span().Overlaps(window) {
			out = append(out, clone(r))
		}
	}
	return out
}

func (m *memRepo) CommitReservation(ctx context.Context, r model.Reservation, window schedule.Span, check func([]model.Reservation) error) error {
	c := r.Core()
	m.mu.Lock()
	existing := m.activeLocked(c.BusinessID, c.ResourceID, window)
	m.mu.Unlock()

	if err := check(existing); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	}
	m.reservations[c.ID] = clone(r)
	return nil
}

func (m *memRepo) UpdateReservationStatus(ctx context.Context, r model.Reservation, from model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.reservations[r.Core().ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Core().Status != from {
		return model.ErrConcurrentModification
	}
	m.reservations[r.Core().ID] = clone(r)
	return nil
}

func clone(r model.Reservation) model.Reservation {
	switch v := r.(type) {
	case *model.Appointment:
		cp := *v
		return &cp
	case *model.Rental:
		cp := *v
		return &cp
	}
	return r
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }
