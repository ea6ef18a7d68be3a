package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/report"
	"github.com/raterudder/powerstats/pkg/server"
	"github.com/raterudder/powerstats/pkg/tariff"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	schemes := tariff.Configured()
	builder := report.Configured(schemes)

	// init server
	srv := server.Configured(schemes, builder)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.SlogLevel(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	log.Configure(os.Stdout, level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
