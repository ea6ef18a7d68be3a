// Package metrics exposes prometheus counters and histograms for report
// builds and exports. Every Observe function is a no-op until Init is called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "powerstats_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	buildTotal   *prometheus.CounterVec
	buildLatency *prometheus.HistogramVec

	rowsParsed         prometheus.Counter
	samplesRegularized prometheus.Counter

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers the metrics with the default prometheus registry. It is safe
// to call more than once.
func Init() {
	registerOnce.Do(func() {
		buildTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "build_total",
				Help: "Total report builds by input format and result",
			},
			[]string{"format", "result"},
		)
		buildLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "build_latency_seconds",
				Help:    "Report build latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		rowsParsed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_parsed_total",
				Help: "Total distinct timestamps parsed from input files",
			},
		)
		samplesRegularized = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_regularized_total",
				Help: "Total slots produced on the regular time axis",
			},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			buildTotal,
			buildLatency,
			rowsParsed,
			samplesRegularized,
			exportTotal,
			exportLatency,
		)
	})
}

// Result returns ResultError if err is set, otherwise ResultSuccess.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// ObserveBuild records the duration and result of one report build.
func ObserveBuild(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if buildTotal != nil {
		buildTotal.WithLabelValues(format, result).Inc()
	}
	if buildLatency != nil {
		buildLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddRowsParsed counts parsed timestamps.
func AddRowsParsed(n int) {
	if rowsParsed == nil || n <= 0 {
		return
	}
	rowsParsed.Add(float64(n))
}

// AddSamplesRegularized counts regularized slots.
func AddSamplesRegularized(n int) {
	if samplesRegularized == nil || n <= 0 {
		return
	}
	samplesRegularized.Add(float64(n))
}

// ObserveExport records the duration and result of one report export.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}
