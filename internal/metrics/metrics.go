// Package metrics exposes the Prometheus collectors shared by the analysis pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mstruct_analysis_total",
			Help: "Tool requests by tool and result status",
		},
		[]string{"tool", "status"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mstruct_analysis_duration_seconds",
			Help:    "Wall time of one tool request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mstruct_fetch_duration_seconds",
			Help:    "Upstream bar fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "timeframe"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mstruct_fetch_errors_total",
			Help: "Upstream bar fetch failures",
		},
		[]string{"provider"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mstruct_cache_requests_total",
			Help: "Bar cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mstruct_stream_clients",
			Help: "Connected event stream clients",
		},
	)
)

// ObserveAnalysis records one finished tool request.
func ObserveAnalysis(tool, status string, started time.Time) {
	AnalysisTotal.WithLabelValues(tool, status).Inc()
	AnalysisDuration.WithLabelValues(tool).Observe(time.Since(started).Seconds())
}

// ObserveFetch records one upstream fetch.
func ObserveFetch(provider, timeframe string, started time.Time, err error) {
	FetchDuration.WithLabelValues(provider, timeframe).Observe(time.Since(started).Seconds())
	if err != nil {
		FetchErrors.WithLabelValues(provider).Inc()
	}
}
