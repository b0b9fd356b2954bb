// Package metrics exposes Prometheus instrumentation for the parse
// pipeline and model delivery, mirroring the teacher's server-side
// metrics package but renamed to the document-engine's own stage and
// outcome vocabulary.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	parseRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docreader_parse_requests_total",
			Help: "Total number of parse() invocations, by outcome.",
		},
		[]string{"status"}, // status: ok, error
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docreader_stage_duration_seconds",
			Help:    "Wall-clock duration of one parse pipeline stage.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 25, 50},
		},
		[]string{"stage"}, // page_load, layout_preprocess, layout_inference, layout_postprocess, ocr_preprocess, ocr_inference, ocr_postprocess, total
	)

	regionsPerPage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docreader_regions_per_page",
			Help:    "Number of layout regions produced per page.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{},
	)

	recognitionWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docreader_recognition_warnings_total",
			Help: "Total number of per-region crop/recognition warnings emitted.",
		},
		[]string{"kind"}, // kind: crop_failed, recognition_failed
	)

	modelDeliveryOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docreader_model_delivery_outcomes_total",
			Help: "Total number of model delivery attempts, by model id and outcome.",
		},
		[]string{"model_id", "outcome"}, // outcome: ready, fetch_failed, checksum_mismatch, verify_failed
	)
)

// ObserveParseOutcome records one parse() call's success/failure.
func ObserveParseOutcome(err error) {
	if err != nil {
		parseRequestsTotal.WithLabelValues("error").Inc()
		return
	}
	parseRequestsTotal.WithLabelValues("ok").Inc()
}

// ObserveStageTimingsMS records a completed parse's per-stage timings, as
// produced by the pipeline's DiagnosticBundle.TimingsMS (spec §4.1).
func ObserveStageTimingsMS(timingsMS map[string]int64) {
	for stage, ms := range timingsMS {
		stageDurationSeconds.WithLabelValues(stage).Observe(float64(ms) / 1000)
	}
}

// ObserveRegionsDetected records one page's layout region count.
func ObserveRegionsDetected(n int) {
	regionsPerPage.WithLabelValues().Observe(float64(n))
}

// ObserveWarning increments the counter for one diagnostic warning kind
// ("crop_failed" or "recognition_failed").
func ObserveWarning(kind string) {
	recognitionWarningsTotal.WithLabelValues(kind).Inc()
}

// ObserveModelDelivery records a model delivery attempt's outcome.
func ObserveModelDelivery(modelID, outcome string) {
	modelDeliveryOutcomesTotal.WithLabelValues(modelID, outcome).Inc()
}

// Handler returns the HTTP handler that serves the process's registered
// metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
