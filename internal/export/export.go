// Package export renders the booking ledger as an xlsx workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"berserk/internal/models"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Bookings"

var headers = []string{
	"Booking ID", "Status", "Artist", "Customer", "Email", "Phone", "Date", "Time",
	"Placement", "Size", "Description", "Consultation", "Deposit", "Payment Intent", "Created At",
}

// BookingsWorkbook builds the workbook in memory. A zero from or to leaves that end open.
func BookingsWorkbook(bookings []*models.Booking, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		f.Close()
		return nil, err
	}

	_ = f.SetCellValue(SheetName, "A1", "Period: "+periodLabel(from, to))
	_ = f.MergeCell(SheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(SheetName, "A1", "A1", titleStyle)

	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A3", &headerRow); err != nil {
		f.Close()
		return nil, fmt.Errorf("error writing header: %w", err)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCEBF7"}, Pattern: 1},
	})
	_ = f.SetCellStyle(SheetName, "A3", lastCol+"3", headerStyle)

	confirmed, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"#C8F0CF"}, Pattern: 1}})
	failed, _ := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1}})

	for i, b := range bookings {
		row := i + 4
		cell := fmt.Sprintf("A%d", row)
		values := []interface{}{
			b.ID, string(b.Status), b.DisplayArtist(), b.CustomerName(), b.Email, b.Phone,
			b.AppointmentDate, b.AppointmentTime, b.Placement, b.Size, b.Description,
			b.ConsultationType, b.Deposit.String(), b.PaymentIntentID, createdAt(b.CreatedAt),
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}

		switch b.Status {
		case models.StatusConfirmed:
			_ = f.SetCellStyle(SheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("B%d", row), confirmed)
		case models.StatusPaymentFailed:
			_ = f.SetCellStyle(SheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("B%d", row), failed)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 30)
	_ = f.SetColWidth(SheetName, "B", lastCol, 18)
	_ = f.SetColWidth(SheetName, "K", "K", 40)
	return f, nil
}

// WriteBookings streams the workbook to w.
func WriteBookings(w io.Writer, bookings []*models.Booking, from, to time.Time) error {
	f, err := BookingsWorkbook(bookings, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// FileName names an export for the given range.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", dateOr(from, "start"), dateOr(to, "now"))
}

func periodLabel(from, to time.Time) string {
	return dateOr(from, "start") + " - " + dateOr(to, "now")
}

func dateOr(t time.Time, fallback string) string {
	if t.IsZero() {
		return fallback
	}
	return t.Format("2006-01-02")
}

func createdAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
