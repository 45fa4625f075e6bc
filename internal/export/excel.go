// Package export renders appointment day books as Excel workbooks.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"slotline/internal/models"
)

// AppointmentSource provides the rows to export.
type AppointmentSource interface {
	ListAppointmentsForOrganization(ctx context.Context, organizationID int64, from, to time.Time) ([]models.Appointment, error)
	ListStaff(ctx context.Context, organizationID int64) ([]models.Staff, error)
}

// DayBook writes one sheet per staff member listing that period's
// appointments in the organization's local time.
type DayBook struct {
	source AppointmentSource
}

// NewDayBook creates an exporter.
func NewDayBook(source AppointmentSource) *DayBook {
	return &DayBook{source: source}
}

var columns = []string{"Reference", "Client", "Phone", "Date", "Start", "End", "Status", "Notes"}

// Write renders the workbook for [from, to) to w.
func (d *DayBook) Write(ctx context.Context, w io.Writer, organizationID int64, from, to time.Time, loc *time.Location) error {
	appts, err := d.source.ListAppointmentsForOrganization(ctx, organizationID, from, to)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	staff, err := d.source.ListStaff(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("load staff: %w", err)
	}

	byStaff := make(map[int64][]models.Appointment)
	for _, a := range appts {
		byStaff[a.StaffID] = append(byStaff[a.StaffID], a)
	}

	file := excelize.NewFile()
	defer file.Close()

	first := true
	for _, member := range staff {
		rows := byStaff[member.ID]
		if len(rows) == 0 {
			continue
		}

		sheet := sheetName(member.Name)
		if first {
			file.SetSheetName("Sheet1", sheet)
			first = false
		} else {
			if _, err := file.NewSheet(sheet); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheet, err)
			}
		}

		if err := writeHeader(file, sheet); err != nil {
			return err
		}
		for i, a := range rows {
			if err := writeRow(file, sheet, i+2, a, loc); err != nil {
				return err
			}
		}
	}

	if first {
		// No appointments at all; leave a single empty sheet with headers.
		if err := writeHeader(file, "Sheet1"); err != nil {
			return err
		}
	}

	return file.Write(w)
}

func writeHeader(file *excelize.File, sheet string) error {
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}

	style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = file.SetCellStyle(sheet, startCell, endCell, style)
	}
	return nil
}

func writeRow(file *excelize.File, sheet string, rowNum int, a models.Appointment, loc *time.Location) error {
	localStart := a.StartTime.In(loc)
	localEnd := a.EndTime.In(loc)
	values := []any{
		a.Reference,
		a.ClientName,
		a.ClientPhone,
		localStart.Format("2006-01-02"),
		localStart.Format("15:04"),
		localEnd.Format("15:04"),
		a.Status,
		a.Notes,
	}
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, val); err != nil {
			return err
		}
	}
	return nil
}

// sheetName truncates to the 31-character Excel sheet name limit.
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
