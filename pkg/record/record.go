// Package record parses meter export tables into a sparse power series.
package record

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/types"
)

const (
	fieldTime  = "time"
	fieldPower = "active_power"
)

// headerAliases maps every accepted header to its field. Matching is exact.
var headerAliases = map[string]string{
	"time":         fieldTime,
	"日期":           fieldTime,
	"active_power": fieldPower,
	"瞬时有功":         fieldPower,
}

// Parser converts tabular meter exports into a types.SparseSeries.
type Parser struct {
	rejectDuplicates bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithRejectDuplicates makes a repeated timestamp a MalformedRecordError
// instead of letting the later row win.
func WithRejectDuplicates() Option {
	return func(p *Parser) {
		p.rejectDuplicates = true
	}
}

// NewParser constructs a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// row is a single data row along with where it came from.
type row struct {
	line   int
	fields []string
}

// Parse reads comma-delimited text with a header row.
func (p *Parser) Parse(ctx context.Context, text string) (types.SparseSeries, error) {
	reader := csv.NewReader(strings.NewReader(text))
	// the power column may be missing entirely on some rows
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.ErrEmptyInput
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var rows []row
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &types.MalformedRecordError{Line: line, Field: "row", Reason: err.Error()}
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, row{line: line, fields: fields})
	}

	return p.collect(ctx, header, rows)
}

func (p *Parser) collect(ctx context.Context, header []string, rows []row) (types.SparseSeries, error) {
	timeIdx, powerIdx, err := columns(header)
	if err != nil {
		return nil, err
	}

	series := make(types.SparseSeries, len(rows))
	var duplicates int
	for _, r := range rows {
		ts, power, err := parseRow(r, timeIdx, powerIdx)
		if err != nil {
			return nil, err
		}
		if _, ok := series[ts]; ok {
			if p.rejectDuplicates {
				return nil, &types.MalformedRecordError{
					Line:   r.line,
					Field:  fieldTime,
					Value:  ts.Format(types.RecordTimeLayout),
					Reason: "duplicate timestamp",
				}
			}
			duplicates++
		}
		// rows are visited in file order so the last one wins
		series[ts] = power
	}
	if len(series) == 0 {
		return nil, types.ErrEmptyInput
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"parsed records",
		slog.Int("rows", len(rows)),
		slog.Int("samples", len(series)),
		slog.Int("duplicates", duplicates),
	)
	return series, nil
}

// columns locates the time and power columns. The power column is optional
// since every power value may be blank.
func columns(header []string) (int, int, error) {
	timeIdx, powerIdx := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch headerAliases[h] {
		case fieldTime:
			if timeIdx < 0 {
				timeIdx = i
			}
		case fieldPower:
			if powerIdx < 0 {
				powerIdx = i
			}
		}
	}
	if timeIdx < 0 {
		return 0, 0, &types.MalformedRecordError{Line: 1, Field: "header", Reason: "missing time column"}
	}
	return timeIdx, powerIdx, nil
}

func parseRow(r row, timeIdx, powerIdx int) (time.Time, float64, error) {
	get := func(idx int) string {
		if idx >= 0 && idx < len(r.fields) {
			return strings.TrimSpace(r.fields[idx])
		}
		return ""
	}

	tsStr := get(timeIdx)
	if tsStr == "" {
		return time.Time{}, 0, &types.MalformedRecordError{Line: r.line, Field: fieldTime, Reason: "missing timestamp"}
	}
	ts, err := time.Parse(types.RecordTimeLayout, tsStr)
	if err != nil {
		return time.Time{}, 0, &types.MalformedRecordError{
			Line:   r.line,
			Field:  fieldTime,
			Value:  tsStr,
			Reason: "expected YYYY-MM-DD HH:MM:SS",
		}
	}

	powerStr := get(powerIdx)
	if powerStr == "" {
		return ts, 0, nil
	}
	power, err := strconv.ParseFloat(powerStr, 64)
	if err != nil {
		return time.Time{}, 0, &types.MalformedRecordError{
			Line:   r.line,
			Field:  fieldPower,
			Value:  powerStr,
			Reason: "not a number",
		}
	}
	// ParseFloat accepts NaN and Inf, which can't be charted or encoded
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return time.Time{}, 0, &types.MalformedRecordError{
			Line:   r.line,
			Field:  fieldPower,
			Value:  powerStr,
			Reason: "not a finite number",
		}
	}
	return ts, power, nil
}
