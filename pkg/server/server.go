package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raterudder/powerstats/pkg/common"
	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/metrics"
	"github.com/raterudder/powerstats/pkg/report"
	"github.com/raterudder/powerstats/pkg/tariff"
)

const requestIDHeader = "X-Request-ID"

// tokenVerifier validates an OIDC ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server exposes report building over HTTP. Every request is handled on its
// own; nothing is cached or persisted between requests.
type Server struct {
	schemes *tariff.Map
	builder *report.Builder

	listenAddr string
	httpServer *http.Server

	maxUploadBytes int64
	dataDir        string
	tokenVerifier  tokenVerifier
	metrics        bool
	serverName     string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(schemes *tariff.Map, builder *report.Builder) *Server {
	srv := &Server{
		schemes:    schemes,
		builder:    builder,
		serverName: "powerstats",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	maxUploadMB := lflag.Int("max-upload-mb", 32, "Maximum size of an uploaded meter export in megabytes")
	dataDir := lflag.String("data-dir", "", "Directory that JSON requests may reference files in by relative path. Empty disables file paths.")
	oidcIssuer := lflag.String("oidc-issuer", "https://accounts.google.com", "Issuer of the ID tokens accepted as bearer tokens")
	oidcAudience := lflag.String("oidc-audience", "", "Audience to validate bearer ID tokens against. Empty disables authentication.")
	enableMetrics := lflag.Bool("metrics", true, "Expose prometheus metrics on /metrics")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.maxUploadBytes = int64(*maxUploadMB) << 20
		srv.dataDir = *dataDir
		srv.metrics = *enableMetrics

		if *oidcAudience != "" {
			ctx := oidc.ClientContext(context.Background(), common.HTTPClient(10*time.Second))
			provider, err := oidc.NewProvider(ctx, *oidcIssuer)
			if err != nil {
				log.Ctx(ctx).Error("failed to initialize OIDC provider", slog.String("issuer", *oidcIssuer), slog.Any("error", err))
				os.Exit(1)
			}
			srv.tokenVerifier = provider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify
		}
		if srv.metrics {
			metrics.Init()
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/series", s.handleSeries)
	apiMux.HandleFunc("POST /api/export", s.handleExport)
	apiMux.HandleFunc("GET /api/schemes", s.handleListSchemes)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return s.revisionMiddleware(s.requestIDMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: s.setupHandler(),
		// uploads can be large
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// writeJSON encodes v before writing anything so an unencodable value still
// gets a proper error response.
func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
		writeJSONError(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(append(b, '\n')); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags the request logger with the caller's request ID,
// or a new one, and echoes it back.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := log.WithAttrs(r.Context(), slog.String("requestID", id), slog.String("reqPath", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
