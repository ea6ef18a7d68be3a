package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/raterudder/powerstats/pkg/export"
	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/report"
	"github.com/raterudder/powerstats/pkg/tariff"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	schemes := tariff.Configured()
	builder := report.Configured(schemes)

	input := lflag.RequiredString("input", "Meter export to read (.csv or .xlsx)")
	output := lflag.String("output", "-", "File to write, - for stdout")
	format := lflag.String("format", "json", "Output format: json, xlsx or pdf")
	var req report.Request
	lflag.JSON(&req.RatedCapacity, "rated-capacity", 0.0, "Rated capacity used for headroom")
	isPrimaryLoad := lflag.Bool("primary-load", false, "Scale the series by --factor")
	lflag.JSON(&req.Factor, "factor", req.Factor, "Scaling factor for a primary load series")
	scheme := lflag.String("scheme", "", "Tariff scheme, empty for the default")
	month := lflag.String("month", "all", "Month to keep: all or 01-12")

	lflag.Configure()

	level, err := log.SlogLevel(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	// stdout may carry the report
	log.Configure(os.Stderr, level)

	req.IsPrimaryLoad = *isPrimaryLoad
	req.Scheme = *scheme
	req.Month = *month

	ctx := log.WithAttrs(context.Background(), slog.String("input", *input))
	rep, err := builder.BuildFile(ctx, *input, req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build report", slog.Any("error", err))
		os.Exit(1)
	}

	var out []byte
	if *format == "json" {
		out, err = json.MarshalIndent(rep, "", "  ")
	} else {
		var f export.Format
		f, err = export.ParseFormat(*format)
		if err == nil {
			out, err = export.Render(rep, f)
		}
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to render report", slog.String("format", *format), slog.Any("error", err))
		os.Exit(1)
	}

	if *output == "-" {
		_, err = os.Stdout.Write(out)
	} else {
		err = os.WriteFile(*output, out, 0o644)
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write report", slog.String("output", *output), slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "wrote report", slog.String("output", *output), slog.Int("bytes", len(out)))
}
