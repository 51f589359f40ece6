// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to
// Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the common ingestion labels (job, status, kind) onto
//     Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance
//     instead of exposing an HTTP scrape endpoint, which suits a
//     run-to-completion command.
//
// All Prometheus-specific dependencies live here so the rest of the
// project can swap to alternative backends (e.g. Datadog) without
// changes to the core pipeline.
package prompush

import (
	"fmt"

	"foodfacts/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	pageCounter  *prometheus.CounterVec // "ingest_pages_total"
	pageDuration *prometheus.SummaryVec // "ingest_page_duration_seconds"

	productCounter *prometheus.CounterVec // "ingest_products_total"
	batchCounter   prometheus.Counter     // "ingest_batches_total"

	httpCounter  *prometheus.CounterVec // "ingest_http_requests_total"
	httpDuration *prometheus.SummaryVec // "ingest_http_request_duration_seconds"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often same as pipeline job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "catalog"
	}

	reg := prometheus.NewRegistry()

	pageCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_pages_total",
			Help: "Total number of ingested catalog pages, partitioned by status.",
		},
		[]string{"status"},
	)
	pageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "ingest_page_duration_seconds",
			Help:       "Duration of one fetch+persist page cycle, partitioned by status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"status"},
	)
	productCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_products_total",
			Help: "Product-level counts per kind (fetched, dropped, inserted).",
		},
		[]string{"kind"},
	)
	batchCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Total number of persisted batches for this run.",
		},
	)
	httpCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_http_requests_total",
			Help: "Upstream API requests, partitioned by status class.",
		},
		[]string{"status"},
	)
	httpDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "ingest_http_request_duration_seconds",
			Help:       "Upstream API request duration, partitioned by status class.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"status"},
	)

	for _, c := range []prometheus.Collector{
		pageCounter, pageDuration, productCounter, batchCounter, httpCounter, httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		pageCounter:    pageCounter,
		pageDuration:   pageDuration,
		productCounter: productCounter,
		batchCounter:   batchCounter,
		httpCounter:    httpCounter,
		httpDuration:   httpDuration,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "ingest_pages_total":
		b.pageCounter.WithLabelValues(labels["status"]).Add(delta)

	case "ingest_products_total":
		b.productCounter.WithLabelValues(labels["kind"]).Add(delta)

	case "ingest_batches_total":
		b.batchCounter.Add(delta)

	case "ingest_http_requests_total":
		b.httpCounter.WithLabelValues(labels["status"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case "ingest_page_duration_seconds":
		b.pageDuration.WithLabelValues(labels["status"]).Observe(value)

	case "ingest_http_request_duration_seconds":
		b.httpDuration.WithLabelValues(labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
