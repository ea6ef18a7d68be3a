package record

import (
	"context"
	"fmt"
	"io"

	"github.com/raterudder/powerstats/pkg/types"
	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads the first sheet of a workbook. The first row is the header
// and the remaining rows are handled exactly like CSV rows.
func (p *Parser) ParseXLSX(ctx context.Context, r io.Reader) (types.SparseSeries, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, types.ErrEmptyInput
	}
	// formatted values, so a timestamp cell reads back as it is displayed
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(cells) == 0 {
		return nil, types.ErrEmptyInput
	}

	rows := make([]row, 0, len(cells)-1)
	for i, fields := range cells[1:] {
		if isBlank(fields) {
			continue
		}
		rows = append(rows, row{line: i + 2, fields: fields})
	}
	return p.collect(ctx, cells[0], rows)
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
