package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookcore/internal/model"
	"bookcore/internal/schedule"
)

const resourceColumns = `id, business_id, kind, name, is_active, capacity, calendar, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row rowScanner) (*model.Resource, error) {
	var (
		r        model.Resource
		kind     string
		business int64
		calendar sql.NullString
	)
	if err := row.Scan(&r.ID, &business, &kind, &r.Name, &r.Active, &r.Capacity, &calendar, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.BusinessID = model.BusinessID(business)
	r.Kind = model.ResourceKind(kind)
	// Stored calendars were validated on write; decoding is lenient so a
	// damaged column closes the resource instead of failing every read.
	r.Calendar = schedule.DecodeJSON([]byte(calendar.String))
	return &r, nil
}

// GetResource loads a resource of business.
func (db *DB) GetResource(ctx context.Context, business model.BusinessID, id int64) (*model.Resource, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ? AND business_id = ?`,
		id, int64(business),
	)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListResources returns every resource of business ordered by name.
func (db *DB) ListResources(ctx context.Context, business model.BusinessID) ([]*model.Resource, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE business_id = ? ORDER BY name`,
		int64(business),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertResource inserts or updates a resource keyed by (business_id, name)
// and sets r.ID. r.Calendar is only written on insert: once a resource exists
// its calendar changes through SaveCalendar alone, and r.Calendar is reloaded
// from the stored row. created_at is preserved on update.
func (db *DB) UpsertResource(ctx context.Context, r *model.Resource) error {
	calendar, err := encodeCalendar(r.Calendar)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err = db.ExecContext(ctx, `
		INSERT INTO resources (business_id, kind, name, is_active, capacity, calendar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_id, name) DO UPDATE SET
			kind = excluded.kind,
			is_active = excluded.is_active,
			capacity = excluded.capacity,
			updated_at = excluded.updated_at`,
		int64(r.BusinessID), string(r.Kind), r.Name, boolInt(r.Active), r.Capacity, calendar, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert resource %q: %w", r.Name, err)
	}

	var stored sql.NullString
	err = db.QueryRowContext(ctx,
		`SELECT id, calendar, created_at FROM resources WHERE business_id = ? AND name = ?`,
		int64(r.BusinessID), r.Name,
	).Scan(&r.ID, &stored, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("reload resource %q: %w", r.Name, err)
	}
	r.Calendar = schedule.DecodeJSON([]byte(stored.String))
	r.UpdatedAt = now
	return nil
}

// SaveCalendar replaces the availability document of a resource.
func (db *DB) SaveCalendar(ctx context.Context, business model.BusinessID, resourceID int64, cal *schedule.Calendar) error {
	calendar, err := encodeCalendar(cal)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE resources SET calendar = ?, updated_at = ? WHERE id = ? AND business_id = ?`,
		calendar, time.Now().UTC(), resourceID, int64(business),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeactivateResourcesExcept marks inactive every resource of business whose id
// is not in keep.
func (db *DB) DeactivateResourcesExcept(ctx context.Context, business model.BusinessID, keep map[int64]struct{}) (int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id FROM resources WHERE business_id = ? AND is_active = 1`, int64(business))
	if err != nil {
		return 0, err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, id := range stale {
		if _, err := db.ExecContext(ctx,
			`UPDATE resources SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return 0, fmt.Errorf("deactivate resource %d: %w", id, err)
		}
	}
	return len(stale), nil
}

func encodeCalendar(cal *schedule.Calendar) (sql.NullString, error) {
	if cal == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(cal)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode calendar: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
