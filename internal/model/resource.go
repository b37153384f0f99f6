package model

import (
	"time"

	"bookcore/internal/schedule"
)

// BusinessID identifies the tenant every query and mutation is scoped to.
type BusinessID int64

// ResourceKind distinguishes what a resource can be booked for.
type ResourceKind string

const (
	ResourceStaff         ResourceKind = "staff"
	ResourceRentalProduct ResourceKind = "rental_product"
)

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	return k == ResourceStaff || k == ResourceRentalProduct
}

// Resource is a bookable staff member or rentable product.
type Resource struct {
	ID         int64              `json:"id"`
	BusinessID BusinessID         `json:"business_id"`
	Kind       ResourceKind       `json:"kind"`
	Name       string             `json:"name"`
	Active     bool               `json:"is_active"`
	Capacity   int                `json:"capacity"` // rental_quantity_available; staff always 1
	Calendar   *schedule.Calendar `json:"availability"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// IsStaff reports whether the resource takes appointments.
func (r *Resource) IsStaff() bool {
	return r.Kind == ResourceStaff
}

// IsRentalProduct reports whether the resource is rented out in units.
func (r *Resource) IsRentalProduct() bool {
	return r.Kind == ResourceRentalProduct
}

// TotalCapacity returns how many reservations units can overlap.
func (r *Resource) TotalCapacity() int {
	if r.IsStaff() {
		return 1
	}
	if r.Capacity < 0 {
		return 0
	}
	return r.Capacity
}
