package db

import (
	"context"
	"fmt"
	"slices"
)

// AuditTableNames lists the tables dumped by the operator audit export, in
// sheet order.
var AuditTableNames = []string{"resources", "booking_policies", "reservations"}

// GetTableNames returns the tables of the audit export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return slices.Clone(AuditTableNames), nil
}

// GetTableData returns every row of an audit table in insertion order, keyed
// by column name. Text columns come back as strings.
func (db *DB) GetTableData(ctx context.Context, table string) ([]map[string]interface{}, []string, error) {
	if !slices.Contains(AuditTableNames, table) {
		return nil, nil, fmt.Errorf("table %q is not exportable", table)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY rowid")
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var data []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", table, err)
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if raw, ok := values[i].([]byte); ok {
				values[i] = string(raw)
			}
			record[col] = values[i]
		}
		data = append(data, record)
	}
	return data, columns, rows.Err()
}
