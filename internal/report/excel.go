package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	columnWidth  = 18
)

var errNoSheet = errors.New("no active sheet")

// ExcelWriter writes rows to a workbook one sheet at a time.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	Close() error
}

// ExcelizeWriter streams rows into an excelize workbook. Only the current
// sheet is open for writing; starting a new one flushes the previous.
type ExcelizeWriter struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	sheets int
	row    int
	bold   int
}

// NewExcelizeWriter creates an empty workbook.
func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

// AddSheet starts a sheet; the workbook's default sheet is reused for the first one.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if err := w.flush(); err != nil {
		return err
	}

	if w.sheets == 0 {
		if err := w.file.SetSheetName(w.file.GetSheetName(0), name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	sw, err := w.file.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("open sheet %s: %w", name, err)
	}
	w.stream = sw
	w.sheets++
	w.row = 1
	return nil
}

// WriteHeader writes bold column names and freezes them above the data.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.stream == nil {
		return errNoSheet
	}
	if w.bold == 0 {
		style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return err
		}
		w.bold = style
	}

	if len(columns) > 0 {
		if err := w.stream.SetColWidth(1, len(columns), columnWidth); err != nil {
			return err
		}
	}
	if err := w.stream.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	cells := make([]interface{}, len(columns))
	for i, col := range columns {
		cells[i] = excelize.Cell{StyleID: w.bold, Value: col}
	}
	return w.WriteRow(cells)
}

// WriteRow appends a row to the current sheet.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.stream == nil {
		return errNoSheet
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, row); err != nil {
		return fmt.Errorf("row %d: %w", w.row, err)
	}
	w.row++
	return nil
}

// Save flushes the open sheet and writes the workbook to out.
func (w *ExcelizeWriter) Save(out io.Writer) error {
	if err := w.flush(); err != nil {
		return err
	}
	return w.file.Write(out)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}

func (w *ExcelizeWriter) flush() error {
	if w.stream == nil {
		return nil
	}
	err := w.stream.Flush()
	w.stream = nil
	return err
}
