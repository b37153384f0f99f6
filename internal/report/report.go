// Package report renders reservations and raw tables as XLSX workbooks.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"bookcore/internal/model"
)

// ReservationSource lists reservations for export.
type ReservationSource interface {
	ListReservationsBetween(ctx context.Context, business model.BusinessID, from, to time.Time) ([]model.Reservation, error)
}

// TableExporter provides access to database tables for the audit dump.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

var (
	appointmentColumns = []string{"id", "public_id", "staff_id", "service_id", "start", "end", "duration_mins", "status", "customer", "phone", "comment", "cancel_reason"}
	rentalColumns      = []string{"id", "public_id", "product_id", "quantity", "start", "end", "days", "status", "customer", "phone", "comment", "cancel_reason"}
)

const timeLayout = "2006-01-02 15:04"

// Exporter builds workbooks.
type Exporter struct {
	source    ReservationSource
	tables    TableExporter
	newWriter func() ExcelWriter
	loc       *time.Location
	logger    zerolog.Logger
}

// NewExporter creates an exporter rendering times in loc.
func NewExporter(source ReservationSource, tables TableExporter, loc *time.Location, logger zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		source:    source,
		tables:    tables,
		newWriter: NewExcelizeWriter,
		loc:       loc,
		logger:    logger.With().Str("component", "report").Logger(),
	}
}

// Filename names a reservations export.
func Filename(business model.BusinessID, from, to time.Time) string {
	return fmt.Sprintf("reservations_%d_%s_%s.xlsx", business, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// ExportReservations writes the reservations of business starting in
// [from, to) to w: one sheet for appointments and one for rentals. It returns
// the number of rows written.
func (e *Exporter) ExportReservations(ctx context.Context, business model.BusinessID, from, to time.Time, w io.Writer) (int, error) {
	reservations, err := e.source.ListReservationsBetween(ctx, business, from, to)
	if err != nil {
		return 0, fmt.Errorf("list reservations: %w", err)
	}

	var appointments, rentals [][]interface{}
	for _, r := range reservations {
		switch v := r.(type) {
		case *model.Appointment:
			appointments = append(appointments, e.appointmentRow(v))
		case *model.Rental:
			rentals = append(rentals, e.rentalRow(v))
		}
	}

	excel := e.newWriter()
	defer excel.Close()

	if err := writeSheet(excel, "appointments", appointmentColumns, appointments); err != nil {
		return 0, err
	}
	if err := writeSheet(excel, "rentals", rentalColumns, rentals); err != nil {
		return 0, err
	}
	if err := excel.Save(w); err != nil {
		return 0, fmt.Errorf("save excel: %w", err)
	}

	total := len(appointments) + len(rentals)
	e.logger.Info().
		Int64("business_id", int64(business)).
		Int("rows", total).
		Msg("Reservations exported")
	return total, nil
}

// ExportTables dumps every audit table to w, one sheet per table. Tables that
// fail to load are logged and skipped.
func (e *Exporter) ExportTables(ctx context.Context, w io.Writer) error {
	if e.tables == nil {
		return fmt.Errorf("table exporter not configured")
	}
	names, err := e.tables.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}

	excel := e.newWriter()
	defer excel.Close()

	for _, name := range names {
		data, columns, err := e.tables.GetTableData(ctx, name)
		if err != nil {
			e.logger.Error().Err(err).Str("table", name).Msg("Failed to get table data")
			continue
		}
		rows := make([][]interface{}, 0, len(data))
		for _, row := range data {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			rows = append(rows, values)
		}
		if err := writeSheet(excel, name, columns, rows); err != nil {
			return err
		}
		e.logger.Debug().Str("table", name).Int("rows", len(data)).Msg("Exported table")
	}

	if err := excel.Save(w); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

func writeSheet(excel ExcelWriter, name string, columns []string, rows [][]interface{}) error {
	if err := excel.AddSheet(name); err != nil {
		return err
	}
	if err := excel.WriteHeader(columns); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	for _, row := range rows {
		if err := excel.WriteRow(row); err != nil {
			return fmt.Errorf("write %s row: %w", name, err)
		}
	}
	return nil
}

func (e *Exporter) appointmentRow(a *model.Appointment) []interface{} {
	return []interface{}{
		a.ID, a.PublicID, a.ResourceID, a.ServiceID,
		a.StartTime.In(e.loc).Format(timeLayout), a.EndTime.In(e.loc).Format(timeLayout),
		int(a.Duration().Minutes()), string(a.Status),
		a.CustomerName, a.CustomerPhone, a.Comment, a.CancelReason,
	}
}

func (e *Exporter) rentalRow(r *model.Rental) []interface{} {
	return []interface{}{
		r.ID, r.PublicID, r.ResourceID, r.Units,
		r.StartTime.In(e.loc).Format(timeLayout), r.EndTime.In(e.loc).Format(timeLayout),
		len(r.Span().Dates()), string(r.Status),
		r.CustomerName, r.CustomerPhone, r.Comment, r.CancelReason,
	}
}
