// Package metrics provides Prometheus metrics for the shell.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplic_jobs_started_total",
			Help: "Total number of external process jobs started",
		},
		[]string{"kind"},
	)

	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplic_jobs_finished_total",
			Help: "Total number of tracked jobs that reached a terminal state",
		},
		[]string{"kind", "state"},
	)

	jobsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simplic_jobs_running",
			Help: "Number of tracked jobs currently running",
		},
		[]string{"kind"},
	)

	outputBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplic_output_bytes_total",
			Help: "Bytes of process output captured",
		},
		[]string{"kind"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simplic_build_duration_seconds",
			Help:    "Wall time of packager invocations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	openTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simplic_open_tabs",
			Help: "Number of open editor tabs in the current session",
		},
	)

	treeMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplic_tree_mutations_total",
			Help: "File tree create/delete/rename operations",
		},
		[]string{"op", "status"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// JobStarted records a spawned job.
func JobStarted(kind string, tracked bool) {
	jobsStarted.WithLabelValues(kind).Inc()
	if tracked {
		jobsRunning.WithLabelValues(kind).Inc()
	}
}

// JobFinished records a tracked job reaching a terminal state.
func JobFinished(kind, state string) {
	jobsFinished.WithLabelValues(kind, state).Inc()
	jobsRunning.WithLabelValues(kind).Dec()
}

// OutputCaptured counts captured output bytes.
func OutputCaptured(kind string, n int) {
	outputBytes.WithLabelValues(kind).Add(float64(n))
}

// ObserveBuild records a packager run duration.
func ObserveBuild(d time.Duration) {
	buildDuration.Observe(d.Seconds())
}

// SetOpenTabs sets the open tab gauge.
func SetOpenTabs(n int) {
	openTabs.Set(float64(n))
}

// TreeMutation records a tree mutation outcome.
func TreeMutation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	treeMutations.WithLabelValues(op, status).Inc()
}
