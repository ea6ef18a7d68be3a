package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T) map[string]float64 {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestObserveBeforeInit(t *testing.T) {
	// nothing is registered yet so these must not panic
	ObserveBuild("csv", ResultSuccess, time.Millisecond)
	ObserveExport("pdf", ResultError, time.Millisecond)
	AddRowsParsed(10)
	AddSamplesRegularized(10)
}

func TestObserve(t *testing.T) {
	Init()
	Init()

	before := gathered(t)
	ObserveBuild("csv", ResultSuccess, 10*time.Millisecond)
	ObserveBuild("", "", time.Millisecond)
	AddRowsParsed(96)
	AddRowsParsed(-1)
	AddSamplesRegularized(97)
	ObserveExport("xlsx", Result(errors.New("boom")), time.Millisecond)
	after := gathered(t)

	assert.Equal(t, 2.0, after["powerstats_build_total"]-before["powerstats_build_total"])
	assert.Equal(t, 2.0, after["powerstats_build_latency_seconds"]-before["powerstats_build_latency_seconds"])
	assert.Equal(t, 96.0, after["powerstats_rows_parsed_total"]-before["powerstats_rows_parsed_total"])
	assert.Equal(t, 97.0, after["powerstats_samples_regularized_total"]-before["powerstats_samples_regularized_total"])
	assert.Equal(t, 1.0, after["powerstats_export_total"]-before["powerstats_export_total"])
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultError, Result(errors.New("x")))
}
