// Package metrics
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lda_documents_processed_total",
			Help: "Documents handled by the pipeline, labeled by outcome and extraction mode.",
		},
		[]string{"outcome", "mode"},
	)
	DocumentFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lda_document_failures_total",
			Help: "Failed or deferred documents, labeled by reason code.",
		},
		[]string{"reason"},
	)
	PagesExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lda_pages_extracted_total",
			Help: "Pages extracted, labeled by source (machine or recognized).",
		},
		[]string{"source"},
	)
	ExtractionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lda_extraction_duration_seconds",
			Help:    "Time to extract one document, by extraction mode.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600},
		},
		[]string{"mode"},
	)
	TagAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lda_tag_assignments_total",
			Help: "Topic assignments written, labeled by topic.",
		},
		[]string{"topic"},
	)
	Downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lda_downloads_total",
			Help: "PDF downloads, labeled by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(DocumentFailures)
	prometheus.MustRegister(PagesExtracted)
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(TagAssignments)
	prometheus.MustRegister(Downloads)
}

// ExposeMetrics serves /metrics on addr. It blocks; run it in a goroutine.
func ExposeMetrics(addr string) {
	slog.Info("Exposing Prometheus metrics", "address", addr)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Failed to start Prometheus metrics server", "error", err)
	}
}
