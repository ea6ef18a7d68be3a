// Package report runs the whole pipeline: scaling validation, parsing,
// regularization and aggregation into the power curve and daily energy.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/powerstats/pkg/aggregate"
	"github.com/raterudder/powerstats/pkg/decode"
	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/metrics"
	"github.com/raterudder/powerstats/pkg/record"
	"github.com/raterudder/powerstats/pkg/tariff"
	"github.com/raterudder/powerstats/pkg/timeaxis"
	"github.com/raterudder/powerstats/pkg/types"
)

// ErrInvalidRequest wraps errors caused by request parameters rather than by
// the input data.
var ErrInvalidRequest = errors.New("invalid request")

// Format is the encoding of an input file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" and "xlsx", case-insensitively. An empty string
// is csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: unsupported input format: %q", ErrInvalidRequest, s)
	}
}

// FormatFromPath guesses the input format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// Request holds the parameters of one build.
type Request struct {
	RatedCapacity float64  `json:"ratedCapacity"`
	IsPrimaryLoad bool     `json:"isPrimaryLoad"`
	Factor        *float64 `json:"factor,omitempty"`
	// Scheme is the tariff scheme name, empty for the default.
	Scheme string `json:"scheme,omitempty"`
	// Month is "all" or "01" through "12".
	Month string `json:"month,omitempty"`
}

// PowerRecord is one power curve sample on the wire.
type PowerRecord struct {
	Time     string         `json:"time"`
	Category types.Category `json:"category"`
	Value    float64        `json:"value"`
	Headroom *float64       `json:"headroom,omitempty"`
}

// WorkRecord is one day of peak-window energy on the wire.
type WorkRecord struct {
	Date        string  `json:"date"`
	MorningPeak float64 `json:"morningPeakEnergy"`
	NoonPeak    float64 `json:"noonPeakEnergy"`
}

// Report is the result of a build.
type Report struct {
	Scheme       string          `json:"scheme"`
	PowerRecords []PowerRecord   `json:"powerRecords"`
	WorkRecords  []WorkRecord    `json:"workRecords"`
	Chart        aggregate.Chart `json:"chart"`
}

// Builder builds reports. It holds no per-build state and is safe for
// concurrent use.
type Builder struct {
	schemes  *tariff.Map
	parser   *record.Parser
	maxSlots int
}

// NewBuilder returns a Builder classifying with schemes and parsing with the
// given record options.
func NewBuilder(schemes *tariff.Map, opts ...record.Option) *Builder {
	return &Builder{
		schemes:  schemes,
		parser:   record.NewParser(opts...),
		maxSlots: timeaxis.DefaultMaxSlots,
	}
}

// Configured returns a Builder whose parser options come from flags.
func Configured(schemes *tariff.Map) *Builder {
	b := NewBuilder(schemes)
	rejectDuplicates := lflag.Bool("reject-duplicate-timestamps", false, "Fail on repeated timestamps instead of keeping the last row")
	maxSlots := lflag.Int("max-slots", timeaxis.DefaultMaxSlots, "Maximum number of 15 minute slots an input may span")

	lflag.Do(func() {
		if *rejectDuplicates {
			b.parser = record.NewParser(record.WithRejectDuplicates())
		}
		if *maxSlots <= 0 {
			panic(fmt.Sprintf("max-slots must be positive, got %d", *maxSlots))
		}
		b.maxSlots = *maxSlots
	})
	return b
}

// prepared is what a request resolves to before any input is read.
type prepared struct {
	factor float64
	scheme *tariff.Scheme
	month  time.Month
}

func (b *Builder) prepare(req Request) (prepared, error) {
	factor, err := EffectiveFactor(req.IsPrimaryLoad, req.Factor)
	if err != nil {
		return prepared{}, err
	}
	if !isFinite(req.RatedCapacity) {
		return prepared{}, fmt.Errorf("%w: ratedCapacity must be a finite number", ErrInvalidRequest)
	}
	scheme, err := b.schemes.Scheme(req.Scheme)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	month, err := aggregate.ParseMonth(req.Month)
	if err != nil {
		return prepared{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return prepared{factor: factor, scheme: scheme, month: month}, nil
}

// BuildText builds a report from already decoded comma-delimited text.
func (b *Builder) BuildText(ctx context.Context, text string, req Request) (Report, error) {
	start := time.Now()
	r, err := b.buildText(ctx, text, req)
	metrics.ObserveBuild(string(FormatCSV), metrics.Result(err), time.Since(start))
	return r, err
}

func (b *Builder) buildText(ctx context.Context, text string, req Request) (Report, error) {
	p, err := b.prepare(req)
	if err != nil {
		return Report{}, err
	}
	sparse, err := b.parser.Parse(ctx, text)
	if err != nil {
		return Report{}, err
	}
	return b.assemble(ctx, sparse, req, p)
}

// BuildBytes decodes raw in the given format and builds a report from it.
func (b *Builder) BuildBytes(ctx context.Context, raw []byte, format Format, req Request) (Report, error) {
	start := time.Now()
	r, err := b.buildBytes(ctx, raw, format, req)
	metrics.ObserveBuild(string(format), metrics.Result(err), time.Since(start))
	return r, err
}

func (b *Builder) buildBytes(ctx context.Context, raw []byte, format Format, req Request) (Report, error) {
	p, err := b.prepare(req)
	if err != nil {
		return Report{}, err
	}

	var sparse types.SparseSeries
	switch format {
	case FormatXLSX:
		sparse, err = b.parser.ParseXLSX(ctx, bytes.NewReader(raw))
	case FormatCSV, "":
		var text string
		text, err = decode.Bytes(raw)
		if err != nil {
			return Report{}, err
		}
		sparse, err = b.parser.Parse(ctx, text)
	default:
		return Report{}, fmt.Errorf("%w: unsupported input format: %q", ErrInvalidRequest, format)
	}
	if err != nil {
		return Report{}, err
	}
	return b.assemble(ctx, sparse, req, p)
}

func (b *Builder) assemble(ctx context.Context, sparse types.SparseSeries, req Request, p prepared) (Report, error) {
	metrics.AddRowsParsed(len(sparse))

	dense, err := timeaxis.Regularize(sparse, timeaxis.Interval, p.factor, timeaxis.WithMaxSlots(b.maxSlots))
	if err != nil {
		return Report{}, err
	}
	metrics.AddSamplesRegularized(dense.Len())
	log.Ctx(ctx).DebugContext(
		ctx,
		"regularized series",
		slog.Time("start", dense.Start),
		slog.Int("slots", dense.Len()),
		slog.Float64("factor", p.factor),
	)

	points := aggregate.FilterMonth(aggregate.PowerCurve(dense, p.scheme, req.RatedCapacity), p.month)
	days := aggregate.FilterDaysMonth(aggregate.DailyEnergy(dense), p.month)

	r := Report{
		Scheme:       p.scheme.Name,
		PowerRecords: make([]PowerRecord, len(points)),
		WorkRecords:  make([]WorkRecord, len(days)),
		Chart:        aggregate.Split(points, days, p.scheme.Categories()),
	}
	for i, pt := range points {
		r.PowerRecords[i] = PowerRecord{
			Time:     pt.Time.Format(types.CurveTimeLayout),
			Category: pt.Category,
			Value:    pt.Value,
			Headroom: pt.Headroom,
		}
	}
	for i, d := range days {
		r.WorkRecords[i] = WorkRecord{
			Date:        d.Date.Format(types.DateLayout),
			MorningPeak: d.MorningPeak,
			NoonPeak:    d.NoonPeak,
		}
	}

	log.Ctx(ctx).InfoContext(
		ctx,
		"built report",
		slog.String("scheme", r.Scheme),
		slog.Int("powerRecords", len(r.PowerRecords)),
		slog.Int("workRecords", len(r.WorkRecords)),
	)
	return r, nil
}

// BuildFile reads path, guessing the format from its extension, and builds a
// report from it.
func (b *Builder) BuildFile(ctx context.Context, path string, req Request) (Report, error) {
	// a bad request fails before the file is read
	if _, err := b.prepare(req); err != nil {
		return Report{}, err
	}
	if FormatFromPath(path) == FormatXLSX {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Report{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return b.BuildBytes(ctx, raw, FormatXLSX, req)
	}
	text, err := decode.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	return b.BuildText(ctx, text, req)
}
