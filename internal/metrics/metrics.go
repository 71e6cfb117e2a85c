// Package metrics defines the pipeline's Prometheus instrumentation
// (C10), using github.com/prometheus/client_golang the way
// _examples/other_examples/yz666-12-ImageFlow wires counters and
// histograms around an image pipeline's stages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DownloadsTotal counts per-URL download results (one per URL,
	// retries included) by outcome: "success", or the failure's ErrorKind
	// (DOWNLOAD_TIMEOUT, HTTP_ERROR, FILE_TOO_LARGE, REQUEST_ERROR, ...).
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imgpipeline",
		Name:      "downloads_total",
		Help:      "Total image downloads attempted, by outcome.",
	}, []string{"outcome"})

	// StageErrorsTotal counts StageError occurrences by stage and kind.
	StageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imgpipeline",
		Name:      "stage_errors_total",
		Help:      "Pipeline stage failures, by stage and error kind.",
	}, []string{"stage", "kind"})

	// StageDuration observes how long each pipeline stage takes per
	// image, in seconds.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "imgpipeline",
		Name:      "stage_duration_seconds",
		Help:      "Per-stage processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// RunDuration observes total wall-clock time for a full pipeline
	// run across all input URLs.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "imgpipeline",
		Name:      "run_duration_seconds",
		Help:      "Total duration of a pipeline run across all URLs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// SelectedImages observes how many images a run selects, per run.
	SelectedImages = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "imgpipeline",
		Name:      "selected_images",
		Help:      "Number of images selected per pipeline run.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
	})

	// CacheHitsTotal counts cache lookups by level (l1, l2) and outcome
	// (hit, miss).
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imgpipeline",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups, by level and outcome.",
	}, []string{"level", "outcome"})
)

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
