// Package export renders appointments as Excel workbooks.
package export

import (
	"bytes"
	"fmt"
	"io"

	"salonbot/internal/model"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Appointments"

var header = []string{"ID", "Date", "Start", "End", "Service", "User ID", "Client", "Status"}

// Row is one exported appointment with the client name resolved.
type Row struct {
	Appointment model.Appointment
	ClientName  string
}

// sheetWriter appends rows to a single sheet.
type sheetWriter struct {
	file  *excelize.File
	sheet string
	row   int
}

func newSheetWriter(sheet string) *sheetWriter {
	f := excelize.NewFile()
	_ = f.SetSheetName("Sheet1", sheet)
	return &sheetWriter{file: f, sheet: sheet, row: 1}
}

func (w *sheetWriter) writeHeader(columns []string) error {
	if err := w.writeRow(toAny(columns)); err != nil {
		return err
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil
	}
	start, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(len(columns), 1)
	_ = w.file.SetCellStyle(w.sheet, start, end, style)
	_ = w.file.SetPanes(w.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func (w *sheetWriter) writeRow(values []any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, v); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

// WriteAppointments writes an .xlsx workbook of rows to out.
func WriteAppointments(out io.Writer, rows []Row) error {
	w := newSheetWriter(sheetName)
	defer w.file.Close()

	if err := w.writeHeader(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		a := r.Appointment
		if err := w.writeRow([]any{a.ID, a.Date, a.StartTime, a.EndTime, a.ServiceName, a.UserID, r.ClientName, string(a.Status)}); err != nil {
			return fmt.Errorf("write appointment %d: %w", a.ID, err)
		}
	}
	_ = w.file.SetColWidth(w.sheet, "B", "B", 12)
	_ = w.file.SetColWidth(w.sheet, "E", "E", 24)
	_ = w.file.SetColWidth(w.sheet, "G", "G", 24)

	if err := w.file.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Workbook renders rows into an in-memory .xlsx file.
func Workbook(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteAppointments(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
