package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/raterudder/powerstats/pkg/export"
	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/report"
	"github.com/raterudder/powerstats/pkg/types"
)

const xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// fileRequest is the JSON body of a request that references a file under the
// data directory instead of uploading it.
type fileRequest struct {
	report.Request
	Filepath string `json:"filepath"`
}

// input is a parsed request along with where its data comes from. Exactly one
// of raw and path is set.
type input struct {
	req    report.Request
	raw    []byte
	format report.Format
	path   string
}

// readInput parses the request. A JSON body references a file in the data
// directory. Any other body is the meter export itself with the parameters
// in the query string. It writes the error response itself and returns false
// on failure.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (input, bool) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var fr fileRequest
		if err := json.NewDecoder(r.Body).Decode(&fr); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to decode request body", slog.Any("error", err))
			writeJSONError(w, "invalid request body", http.StatusBadRequest)
			return input{}, false
		}
		path, err := s.resolvePath(fr.Filepath)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid file path", slog.String("filepath", fr.Filepath), slog.Any("error", err))
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return input{}, false
		}
		return input{req: fr.Request, path: path}, true
	}

	req, err := parseQuery(r.URL.Query())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return input{}, false
	}
	format := report.FormatCSV
	if v := r.URL.Query().Get("input"); v != "" {
		format, err = report.ParseFormat(v)
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return input{}, false
		}
	} else if mediaType == xlsxMediaType {
		format = report.FormatXLSX
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return input{}, false
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to read request body", slog.Any("error", err))
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return input{}, false
	}
	return input{req: req, raw: raw, format: format}, true
}

// parseQuery reads report parameters from a query string.
func parseQuery(q url.Values) (report.Request, error) {
	var req report.Request

	rated := q.Get("ratedCapacity")
	if rated == "" {
		return req, errors.New("ratedCapacity is required")
	}
	var err error
	req.RatedCapacity, err = strconv.ParseFloat(rated, 64)
	if err != nil || !finite(req.RatedCapacity) {
		return req, fmt.Errorf("invalid ratedCapacity: %q", rated)
	}
	if v := q.Get("isPrimaryLoad"); v != "" {
		req.IsPrimaryLoad, err = strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid isPrimaryLoad: %q", v)
		}
	}
	if v := q.Get("factor"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !finite(f) {
			return req, fmt.Errorf("invalid factor: %q", v)
		}
		req.Factor = &f
	}
	req.Scheme = q.Get("scheme")
	req.Month = q.Get("month")
	return req, nil
}

// finite reports whether f can be computed with and encoded as JSON.
// ParseFloat accepts NaN and Inf.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// resolvePath maps a request file path onto the data directory. Only local
// paths are accepted so a request cannot escape it.
func (s *Server) resolvePath(p string) (string, error) {
	if s.dataDir == "" {
		return "", errors.New("file paths are disabled on this server")
	}
	if p == "" {
		return "", errors.New("filepath is required")
	}
	p = filepath.FromSlash(strings.TrimPrefix(p, "/"))
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("filepath must be inside the data directory: %q", p)
	}
	return filepath.Join(s.dataDir, p), nil
}

func (s *Server) build(ctx context.Context, in input) (report.Report, error) {
	if in.path != "" {
		return s.builder.BuildFile(ctx, in.path, in.req)
	}
	return s.builder.BuildBytes(ctx, in.raw, in.format, in.req)
}

// writeBuildError maps a build failure onto a status code. Problems with the
// request are 400, problems with the data are 422.
func writeBuildError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrMissingFactor), errors.Is(err, report.ErrInvalidRequest):
		log.Ctx(ctx).InfoContext(ctx, "invalid request", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, types.ErrDecode),
		errors.Is(err, types.ErrEmptyInput),
		errors.Is(err, types.ErrMalformedRecord),
		errors.Is(err, types.ErrSpanTooLarge):
		log.Ctx(ctx).InfoContext(ctx, "unprocessable input", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, fs.ErrNotExist):
		writeJSONError(w, "file not found", http.StatusNotFound)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "failed to build report", slog.Any("error", err))
		writeJSONError(w, "failed to build report", http.StatusInternalServerError)
	}
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	rep, err := s.build(r.Context(), in)
	if err != nil {
		writeBuildError(r.Context(), w, err)
		return
	}
	writeJSON(w, rep)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	rep, err := s.build(ctx, in)
	if err != nil {
		writeBuildError(ctx, w, err)
		return
	}
	out, err := export.Render(rep, format)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to export report", slog.String("format", string(format)), slog.Any("error", err))
		writeJSONError(w, "failed to export report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="powerstats.%s"`, format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		panic(http.ErrAbortHandler)
	}
}
