package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/raterudder/powerstats/pkg/log"
	"github.com/raterudder/powerstats/pkg/report"
	"github.com/raterudder/powerstats/pkg/tariff"
	"github.com/raterudder/powerstats/pkg/types"
)

const sampleCSV = "time,active_power\n2024-01-01 08:00:00,100\n2024-01-01 08:15:00,200\n"

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	schemes := tariff.NewMap()
	return &Server{
		schemes:        schemes,
		builder:        report.NewBuilder(schemes),
		maxUploadBytes: 1 << 20,
		dataDir:        t.TempDir(),
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestHandleSeries(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupHandler()

	post := func(query url.Values, contentType string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/series?"+query.Encode(), bytes.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("csv upload", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}}, "text/csv", []byte(sampleCSV))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var rep report.Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
		assert.Equal(t, []report.PowerRecord{
			{Time: "2024-01-01 08:00:00", Category: types.CategoryMorningPeak, Value: 100},
			{Time: "2024-01-01 08:15:00", Category: types.CategoryMorningPeak, Value: 200},
		}, rep.PowerRecords)
		assert.Equal(t, []report.WorkRecord{{Date: "2024-01-01", MorningPeak: 25}}, rep.WorkRecords)
		require.Contains(t, rep.Chart.Power, types.CategoryMorningPeak)
		assert.Equal(t, []float64{100, 200}, rep.Chart.Power[types.CategoryMorningPeak].Y)
	})

	t.Run("headroom on the wire", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"200"}}, "", []byte("time,active_power\n2024-03-01 03:00:00,50\n"))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"headroom":150`)
	})

	t.Run("xlsx upload", func(t *testing.T) {
		f := excelize.NewFile()
		defer f.Close()
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"time", "active_power"}))
		require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"2024-01-01 08:00:00", "100"}))
		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))

		rr := post(url.Values{"ratedCapacity": {"500"}}, xlsxMediaType, buf.Bytes())
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var rep report.Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
		assert.Len(t, rep.PowerRecords, 1)
	})

	t.Run("missing rated capacity", func(t *testing.T) {
		rr := post(url.Values{}, "text/csv", []byte(sampleCSV))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "ratedCapacity is required", decodeError(t, rr))
	})

	t.Run("missing factor", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}, "isPrimaryLoad": {"true"}}, "text/csv", []byte(sampleCSV))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, types.ErrMissingFactor.Error(), decodeError(t, rr))
	})

	t.Run("factor applied", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}, "isPrimaryLoad": {"true"}, "factor": {"2"}}, "text/csv", []byte(sampleCSV))
		require.Equal(t, http.StatusOK, rr.Code)
		var rep report.Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
		assert.Equal(t, 200.0, rep.PowerRecords[0].Value)
		assert.Equal(t, 50.0, rep.WorkRecords[0].MorningPeak)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}, "scheme": {"nope"}}, "text/csv", []byte(sampleCSV))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty input", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}}, "text/csv", []byte("time,active_power\n"))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, types.ErrEmptyInput.Error(), decodeError(t, rr))
	})

	t.Run("malformed", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}}, "text/csv", []byte("time,active_power\n2024-01-01 08:00:00,lots\n"))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, decodeError(t, rr), "line 2")
	})

	t.Run("non-finite power", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}}, "text/csv", []byte("time,active_power\n2024-01-01 08:00:00,NaN\n"))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, decodeError(t, rr), "not a finite number")
	})

	t.Run("non-finite parameters", func(t *testing.T) {
		for _, q := range []url.Values{
			{"ratedCapacity": {"NaN"}},
			{"ratedCapacity": {"-Inf"}},
			{"ratedCapacity": {"500"}, "isPrimaryLoad": {"true"}, "factor": {"Inf"}},
			{"ratedCapacity": {"500"}, "isPrimaryLoad": {"true"}, "factor": {"nan"}},
		} {
			rr := post(q, "text/csv", []byte(sampleCSV))
			assert.Equal(t, http.StatusBadRequest, rr.Code, q.Encode())
			assert.Contains(t, decodeError(t, rr), "invalid", q.Encode())
		}
	})

	t.Run("factor overflows a value", func(t *testing.T) {
		rr := post(url.Values{"ratedCapacity": {"500"}, "isPrimaryLoad": {"true"}, "factor": {"1e308"}}, "text/csv", []byte(sampleCSV))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, decodeError(t, rr), "not a finite number")
	})

	t.Run("span too large", func(t *testing.T) {
		body := "time,active_power\n2024-01-01 00:00:00,1\n2100-01-01 00:00:00,1\n"
		rr := post(url.Values{"ratedCapacity": {"500"}}, "text/csv", []byte(body))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(t, types.ErrSpanTooLarge.Error(), strings.SplitN(decodeError(t, rr), ":", 2)[0])
	})

	t.Run("too large", func(t *testing.T) {
		big := strings.Repeat("x", 2<<20)
		rr := post(url.Values{"ratedCapacity": {"500"}}, "text/csv", []byte(big))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, map[string]float64{"value": math.Inf(1)})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "failed to encode response", decodeError(t, rr))

	rr = httptest.NewRecorder()
	writeJSON(rr, map[string]float64{"value": 1.5})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"value":1.5}`, rr.Body.String())
}

func TestHandleSeriesFile(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupHandler()
	require.NoError(t, os.WriteFile(filepath.Join(srv.dataDir, "meter.csv"), []byte(sampleCSV), 0o600))

	post := func(body map[string]any) *httptest.ResponseRecorder {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/series", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("file in data dir", func(t *testing.T) {
		rr := post(map[string]any{"ratedCapacity": 500, "filepath": "meter.csv", "month": "01"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var rep report.Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
		assert.Len(t, rep.PowerRecords, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		rr := post(map[string]any{"ratedCapacity": 500, "filepath": "other.csv"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("escape", func(t *testing.T) {
		rr := post(map[string]any{"ratedCapacity": 500, "filepath": "../meter.csv"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("month filter excludes everything", func(t *testing.T) {
		rr := post(map[string]any{"ratedCapacity": 500, "filepath": "meter.csv", "month": "02"})
		require.Equal(t, http.StatusOK, rr.Code)
		var rep report.Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
		assert.Empty(t, rep.PowerRecords)
		assert.Empty(t, rep.WorkRecords)
	})

	t.Run("disabled", func(t *testing.T) {
		srv := newTestServer(t)
		srv.dataDir = ""
		req := httptest.NewRequest(http.MethodPost, "/api/series", strings.NewReader(`{"ratedCapacity":1,"filepath":"meter.csv"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleExport(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.setupHandler()

	export := func(format string) *httptest.ResponseRecorder {
		q := url.Values{"ratedCapacity": {"500"}, "format": {format}}
		req := httptest.NewRequest(http.MethodPost, "/api/export?"+q.Encode(), strings.NewReader(sampleCSV))
		req.Header.Set("Content-Type", "text/csv")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	rr := export("pdf")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="powerstats.pdf"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")))

	rr = export("xlsx")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("daily")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "25", "0"}, rows[1])

	rr = export("docx")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleListSchemes(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/schemes", nil)
	rr := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Default string `json:"default"`
		Schemes []struct {
			Name     string `json:"name"`
			Fallback string `json:"fallback"`
		} `json:"schemes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, tariff.SchemeCanonical, resp.Default)
	require.Len(t, resp.Schemes, 2)
	assert.Equal(t, tariff.SchemeCanonical, resp.Schemes[0].Name)
	assert.Equal(t, tariff.SchemeLegacy, resp.Schemes[1].Name)
}

func TestMiddleware(t *testing.T) {
	srv := newTestServer(t)
	srv.serverName = "powerstats-test"
	handler := srv.setupHandler()

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
		assert.Equal(t, "powerstats-test", rr.Header().Get("Server"))
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
		assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", rr.Header().Get("Content-Security-Policy"))
		assert.Contains(t, rr.Header().Get("Strict-Transport-Security"), "max-age=")
		assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	})

	t.Run("request id echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, "0b8e5c3e-7a3c-4f7e-9a55-2f6f0d1d4a10")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, "0b8e5c3e-7a3c-4f7e-9a55-2f6f0d1d4a10", rr.Header().Get(requestIDHeader))

		req.Header.Set(requestIDHeader, "not a uuid")
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.NotEqual(t, "not a uuid", rr.Header().Get(requestIDHeader))
	})

	t.Run("gzip", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("time,active_power\n")
		for i := range 96 {
			fmt.Fprintf(&sb, "2024-01-01 %02d:%02d:00,%d\n", i/4, (i%4)*15, i)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/series?ratedCapacity=500", strings.NewReader(sb.String()))
		req.Header.Set("Accept-Encoding", "gzip")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
	})

	t.Run("metrics disabled", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("metrics enabled", func(t *testing.T) {
		srv := newTestServer(t)
		srv.metrics = true
		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
