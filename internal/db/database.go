// Package db is the SQLite store behind the reservation lifecycle.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"bookcore/internal/model"
)

// DefaultBusyTimeout is how long a writer waits for the SQLite lock.
const DefaultBusyTimeout = 5 * time.Second

// DB wraps sql.DB for the engine.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Option configures NewDB.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
}

// WithBusyTimeout sets how long a write waits for another connection's lock
// before failing with model.ErrStoreBusy.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// NewDB opens database at path and runs migrations. Write transactions take
// the database lock on BEGIN so concurrent commits queue on busy_timeout
// instead of failing on upgrade.
func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate",
		path, o.busyTimeout.Milliseconds())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "db").Logger()
	}
	l.Info().Str("path", path).Msg("Database opened")

	return &DB{DB: sqlDB, path: path, logger: l}, nil
}

// Path returns the database file.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			capacity INTEGER NOT NULL DEFAULT 1,
			calendar TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (business_id, name)
		)`,

		`CREATE TABLE IF NOT EXISTS booking_policies (
			business_id INTEGER PRIMARY KEY,
			buffer_time_mins INTEGER NOT NULL DEFAULT 0,
			min_duration_mins INTEGER,
			max_duration_mins INTEGER,
			min_advance_mins INTEGER NOT NULL DEFAULT 0,
			max_advance_days INTEGER,
			max_daily_bookings INTEGER,
			use_fixed_intervals BOOLEAN NOT NULL DEFAULT 0,
			interval_mins INTEGER,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_id TEXT UNIQUE NOT NULL,
			business_id INTEGER NOT NULL,
			resource_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			service_id INTEGER,
			service_duration_mins INTEGER,
			customer_name TEXT,
			customer_phone TEXT,
			comment TEXT,
			cancelled_at DATETIME,
			cancel_reason TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (resource_id) REFERENCES resources(id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_resources_business ON resources(business_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_times ON reservations(business_id, resource_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

// busy marks SQLite lock contention as model.ErrStoreBusy.
func busy(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", model.ErrStoreBusy, err)
	}
	return err
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
