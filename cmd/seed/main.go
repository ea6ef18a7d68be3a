package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/types"
)

const (
	BaseLoadKW    = 40.0
	ShiftLoadKW   = 120.0
	SolarOffsetKW = 35.0
)

type options struct {
	start   time.Time
	days    int
	chinese bool
	gapRate float64
	rng     *rand.Rand
}

// seed writes a synthetic meter export for local testing of the server and
// the export tool.
func main() {
	output := lflag.String("output", "-", "File to write, - for stdout")
	startDate := lflag.String("start", "2024-01-01", "First day to generate (YYYY-MM-DD)")
	days := lflag.Int("days", 7, "Number of days to generate")
	chinese := lflag.Bool("chinese-headers", false, "Use the localized column headers")
	var gapRate float64
	lflag.JSON(&gapRate, "gap-rate", 0.02, "Fraction of samples to drop, between 0 and 1")
	lflag.Configure()

	level, err := log.SlogLevel(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	// stdout may carry the records
	log.Configure(os.Stderr, level)

	ctx := log.WithAttrs(context.Background(), slog.String("output", *output))

	start, err := time.Parse(types.DateLayout, *startDate)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid start date", slog.Any("error", err))
		os.Exit(1)
	}
	if math.IsNaN(gapRate) || gapRate < 0 || gapRate > 1 {
		log.Ctx(ctx).ErrorContext(ctx, "invalid gap rate", slog.Float64("gapRate", gapRate))
		os.Exit(1)
	}

	opts := options{
		start:   start,
		days:    *days,
		chinese: *chinese,
		gapRate: gapRate,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	written, err := writeOutput(*output, opts)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed records", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, fmt.Sprintf("seeded %d records", written))
}

// writeOutput generates into path, or stdout for "-". The file is closed
// before returning so a failed close is reported like a failed write.
func writeOutput(path string, opts options) (n int, err error) {
	if path == "-" {
		return generate(os.Stdout, opts)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return generate(f, opts)
}

func generate(w io.Writer, opts options) (int, error) {
	cw := csv.NewWriter(w)
	header := []string{"time", "active_power"}
	if opts.chinese {
		header = []string{"日期", "瞬时有功"}
	}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	var written int
	end := opts.start.AddDate(0, 0, opts.days)
	for t := opts.start; t.Before(end); t = t.Add(15 * time.Minute) {
		if opts.rng.Float64() < opts.gapRate {
			continue
		}
		hour := float64(t.Hour()) + float64(t.Minute())/60

		// 1. Plant load follows the working shift
		kw := BaseLoadKW
		if hour >= 8 && hour < 17 && t.Weekday() != time.Sunday {
			kw += ShiftLoadKW
		}

		// 2. Rooftop solar offsets the load around noon (bell curve)
		if hour > 6 && hour < 19 {
			dist := math.Abs(hour - 12.5)
			kw -= SolarOffsetKW * math.Exp(-(dist*dist)/8.0)
		}

		// Jitter
		kw += (opts.rng.Float64() * 10.0) - 5.0

		value := strconv.FormatFloat(math.Round(kw*100)/100, 'f', -1, 64)
		if err := cw.Write([]string{t.Format(types.RecordTimeLayout), value}); err != nil {
			return written, fmt.Errorf("failed to write record: %w", err)
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("failed to flush records: %w", err)
	}
	return written, nil
}
