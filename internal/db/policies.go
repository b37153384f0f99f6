package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bookcore/internal/model"
	"bookcore/internal/policy"
)

// GetPolicy loads the booking policy of business. model.ErrNotFound means the
// business never saved one.
func (db *DB) GetPolicy(ctx context.Context, business model.BusinessID) (*policy.BookingPolicy, error) {
	var (
		p                                       policy.BookingPolicy
		minDur, maxDur, maxAdv, maxDaily, inter sql.NullInt64
		updated                                 sql.NullTime
	)
	err := db.QueryRowContext(ctx, `
		SELECT buffer_time_mins, min_duration_mins, max_duration_mins, min_advance_mins,
			max_advance_days, max_daily_bookings, use_fixed_intervals, interval_mins, updated_at
		FROM booking_policies WHERE business_id = ?`,
		int64(business),
	).Scan(&p.BufferTimeMins, &minDur, &maxDur, &p.MinAdvanceMins, &maxAdv, &maxDaily, &p.UseFixedIntervals, &inter, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.BusinessID = business
	p.MinDurationMins = intPtr(minDur)
	p.MaxDurationMins = intPtr(maxDur)
	p.MaxAdvanceDays = intPtr(maxAdv)
	p.MaxDailyBookings = intPtr(maxDaily)
	p.IntervalMins = intPtr(inter)
	p.UpdatedAt = updated.Time
	return &p, nil
}

// SavePolicy inserts or replaces the policy of p.BusinessID.
func (db *DB) SavePolicy(ctx context.Context, p *policy.BookingPolicy) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO booking_policies (business_id, buffer_time_mins, min_duration_mins, max_duration_mins,
			min_advance_mins, max_advance_days, max_daily_bookings, use_fixed_intervals, interval_mins, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id) DO UPDATE SET
			buffer_time_mins = excluded.buffer_time_mins,
			min_duration_mins = excluded.min_duration_mins,
			max_duration_mins = excluded.max_duration_mins,
			min_advance_mins = excluded.min_advance_mins,
			max_advance_days = excluded.max_advance_days,
			max_daily_bookings = excluded.max_daily_bookings,
			use_fixed_intervals = excluded.use_fixed_intervals,
			interval_mins = excluded.interval_mins,
			updated_at = excluded.updated_at`,
		int64(p.BusinessID), p.BufferTimeMins, nullInt(p.MinDurationMins), nullInt(p.MaxDurationMins),
		p.MinAdvanceMins, nullInt(p.MaxAdvanceDays), nullInt(p.MaxDailyBookings), boolInt(p.UseFixedIntervals),
		nullInt(p.IntervalMins), p.UpdatedAt.UTC(),
	)
	return err
}

// SeedPolicy stores p only when the business has no policy yet. It reports
// whether a row was written.
func (db *DB) SeedPolicy(ctx context.Context, p *policy.BookingPolicy) (bool, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO booking_policies (business_id, buffer_time_mins, min_duration_mins, max_duration_mins,
			min_advance_mins, max_advance_days, max_daily_bookings, use_fixed_intervals, interval_mins, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id) DO NOTHING`,
		int64(p.BusinessID), p.BufferTimeMins, nullInt(p.MinDurationMins), nullInt(p.MaxDurationMins),
		p.MinAdvanceMins, nullInt(p.MaxAdvanceDays), nullInt(p.MaxDailyBookings), boolInt(p.UseFixedIntervals),
		nullInt(p.IntervalMins), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
