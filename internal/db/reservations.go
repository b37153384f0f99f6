package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookcore/internal/model"
	"bookcore/internal/schedule"
)

const reservationColumns = `id, public_id, business_id, resource_id, kind, start_time, end_time, status, quantity,
	service_id, service_duration_mins, customer_name, customer_phone, comment, cancelled_at, cancel_reason,
	version, created_at, updated_at`

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		rec                  model.Record
		business             int64
		kind, status         string
		quantity             int
		serviceID, duration  sql.NullInt64
		name, phone, comment sql.NullString
		cancelledAt          sql.NullTime
		cancelReason         sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.PublicID, &business, &rec.ResourceID, &kind, &rec.StartTime, &rec.EndTime,
		&status, &quantity, &serviceID, &duration, &name, &phone, &comment, &cancelledAt, &cancelReason,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.BusinessID = model.BusinessID(business)
	rec.Status = model.Status(status)
	rec.CustomerName = name.String
	rec.CustomerPhone = phone.String
	rec.Comment = comment.String
	rec.CancelReason = cancelReason.String
	if cancelledAt.Valid {
		t := cancelledAt.Time
		rec.CancelledAt = &t
	}

	switch model.Kind(kind) {
	case model.KindAppointment:
		return &model.Appointment{Record: rec, ServiceID: serviceID.Int64, ServiceDurationMins: int(duration.Int64)}, nil
	case model.KindRental:
		return &model.Rental{Record: rec, Units: quantity}, nil
	}
	return nil, fmt.Errorf("reservation %d: unknown kind %q", rec.ID, kind)
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReservation loads a reservation of business.
func (db *DB) GetReservation(ctx context.Context, business model.BusinessID, id int64) (model.Reservation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? AND business_id = ?`,
		id, int64(business),
	)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return r, err
}

// ListActiveReservations returns the non-cancelled reservations of the resource
// overlapping window.
func (db *DB) ListActiveReservations(ctx context.Context, business model.BusinessID, resourceID int64, window schedule.Span) ([]model.Reservation, error) {
	return listActive(ctx, db, business, resourceID, window)
}

func listActive(ctx context.Context, q querier, business model.BusinessID, resourceID int64, window schedule.Span) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE business_id = ? AND resource_id = ? AND status != ?
			AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		int64(business), resourceID, string(model.StatusCancelled), window.End.UTC(), window.Start.UTC(),
	)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// ListReservationsBetween returns every reservation of business, in any
// status, starting in [from, to).
func (db *DB) ListReservationsBetween(ctx context.Context, business model.BusinessID, from, to time.Time) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE business_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time, id`,
		int64(business), from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// CommitReservation reads the active reservations overlapping window, runs
// check and writes r in one immediate transaction. A zero ID inserts; anything
// else updates times and quantity if the stored version still matches.
func (db *DB) CommitReservation(ctx context.Context, r model.Reservation, window schedule.Span, check func(existing []model.Reservation) error) error {
	c := r.Core()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", busy(err))
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := listActive(ctx, tx, c.BusinessID, c.ResourceID, window)
	if err != nil {
		return fmt.Errorf("list reservations: %w", busy(err))
	}
	if err := check(existing); err != nil {
		return err
	}

	now := time.Now().UTC()
	if c.ID == 0 {
		err = insertReservation(ctx, tx, r, now)
	} else {
		err = updateReservationTimes(ctx, tx, r, now)
	}
	if err != nil {
		return busy(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", busy(err))
	}
	return nil
}

func insertReservation(ctx context.Context, tx *sql.Tx, r model.Reservation, now time.Time) error {
	c := r.Core()
	var serviceID, duration sql.NullInt64
	if a, ok := r.(*model.Appointment); ok {
		serviceID = sql.NullInt64{Int64: a.ServiceID, Valid: a.ServiceID != 0}
		duration = sql.NullInt64{Int64: int64(a.ServiceDurationMins), Valid: a.ServiceDurationMins != 0}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (public_id, business_id, resource_id, kind, start_time, end_time, status, quantity,
			service_id, service_duration_mins, customer_name, customer_phone, comment, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		c.PublicID, int64(c.BusinessID), c.ResourceID, string(r.Kind()), c.StartTime.UTC(), c.EndTime.UTC(),
		string(c.Status), r.Quantity(), serviceID, duration, c.CustomerName, c.CustomerPhone, c.Comment, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	c.ID = id
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func updateReservationTimes(ctx context.Context, tx *sql.Tx, r model.Reservation, now time.Time) error {
	c := r.Core()
	res, err := tx.ExecContext(ctx, `
		UPDATE reservations SET start_time = ?, end_time = ?, quantity = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND business_id = ? AND version = ?`,
		c.StartTime.UTC(), c.EndTime.UTC(), r.Quantity(), now, c.ID, int64(c.BusinessID), c.Version,
	)
	if err != nil {
		return fmt.Errorf("update reservation %d: %w", c.ID, err)
	}
	if err := requireOneRow(ctx, tx, res, c); err != nil {
		return err
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}

// UpdateReservationStatus persists the status and cancellation fields of r
// when the stored status is still from.
func (db *DB) UpdateReservationStatus(ctx context.Context, r model.Reservation, from model.Status) error {
	c := r.Core()
	now := time.Now().UTC()

	var cancelledAt sql.NullTime
	if c.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: c.CancelledAt.UTC(), Valid: true}
	}

	res, err := db.ExecContext(ctx, `
		UPDATE reservations SET status = ?, cancelled_at = ?, cancel_reason = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND business_id = ? AND status = ?`,
		string(c.Status), cancelledAt, c.CancelReason, now, c.ID, int64(c.BusinessID), string(from),
	)
	if err != nil {
		return fmt.Errorf("update reservation %d status: %w", c.ID, busy(err))
	}
	if err := requireOneRow(ctx, db, res, c); err != nil {
		return err
	}
	c.Version++
	c.UpdatedAt = now
	return nil
}

// requireOneRow turns a guarded update that matched nothing into ErrNotFound
// or ErrConcurrentModification.
func requireOneRow(ctx context.Context, q querier, res sql.Result, c *model.Record) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var count int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE id = ? AND business_id = ?`, c.ID, int64(c.BusinessID),
	).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return model.ErrNotFound
	}
	return model.ErrConcurrentModification
}
