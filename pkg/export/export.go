// Package export renders a built report as a spreadsheet or a PDF.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/raterudder/powerstats/pkg/metrics"
	"github.com/raterudder/powerstats/pkg/report"
)

// Format is an export file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

const (
	powerSheet = "power"
	dailySheet = "daily"
)

// ParseFormat accepts "xlsx" and "pdf", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format: %q", report.ErrInvalidRequest, s)
	}
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Render renders r in format f.
func Render(r report.Report, f Format) ([]byte, error) {
	start := time.Now()
	var (
		out []byte
		err error
	)
	switch f {
	case FormatXLSX:
		out, err = XLSX(r)
	case FormatPDF:
		out, err = PDF(r)
	default:
		err = fmt.Errorf("%w: unsupported export format: %q", report.ErrInvalidRequest, f)
	}
	metrics.ObserveExport(string(f), metrics.Result(err), time.Since(start))
	return out, err
}

// XLSX renders the power curve and the daily energy on separate sheets.
func XLSX(r report.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", powerSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(dailySheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(powerSheet, "A1", "Time")
	_ = f.SetCellValue(powerSheet, "B1", "Category")
	_ = f.SetCellValue(powerSheet, "C1", "Power")
	_ = f.SetCellValue(powerSheet, "D1", "Headroom")
	for i, p := range r.PowerRecords {
		row := i + 2
		_ = f.SetCellValue(powerSheet, fmt.Sprintf("A%d", row), p.Time)
		_ = f.SetCellValue(powerSheet, fmt.Sprintf("B%d", row), string(p.Category))
		_ = f.SetCellValue(powerSheet, fmt.Sprintf("C%d", row), p.Value)
		if p.Headroom != nil {
			_ = f.SetCellValue(powerSheet, fmt.Sprintf("D%d", row), *p.Headroom)
		}
	}

	_ = f.SetCellValue(dailySheet, "A1", "Date")
	_ = f.SetCellValue(dailySheet, "B1", "Morning Peak Energy")
	_ = f.SetCellValue(dailySheet, "C1", "Noon Peak Energy")
	for i, w := range r.WorkRecords {
		row := i + 2
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", row), w.Date)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", row), w.MorningPeak)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("C%d", row), w.NoonPeak)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF renders a summary and the daily energy table. The power curve is too
// long to be useful on paper so it is only summarized.
func PDF(r report.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Peak Window Energy")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Tariff scheme: %s", r.Scheme))
	pdf.Ln(5)
	if n := len(r.PowerRecords); n > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Samples: %d (%s to %s)", n, r.PowerRecords[0].Time, r.PowerRecords[n-1].Time))
		pdf.Ln(5)
	}

	var morning, noon float64
	for _, w := range r.WorkRecords {
		morning += w.MorningPeak
		noon += w.NoonPeak
	}
	pdf.Cell(0, 6, fmt.Sprintf("Total morning peak energy: %.3f", morning))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total noon peak energy: %.3f", noon))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Morning Peak", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Noon Peak", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, w := range r.WorkRecords {
		pdf.CellFormat(40, 6, w.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", w.MorningPeak), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.3f", w.NoonPeak), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
