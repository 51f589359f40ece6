// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the catalog ingestion pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and
//     timing data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no
//     real backend is configured.
//   - It mirrors the storage abstraction pattern: the rest of the
//     codebase depends only on this interface while concrete metric
//     systems stay isolated in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordPage measures one ingested catalog page: latency plus a
// success/failure counter.
func RecordPage(job string, page int, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"status": status,
	}

	backend.IncCounter("ingest_pages_total", 1, lbls)
	backend.ObserveHistogram("ingest_page_duration_seconds", d.Seconds(), lbls)
}

// RecordProducts increments a product-level counter for the given job
// and kind.
//
// Typical kinds mirror the per-page summary fields:
//   - "fetched"
//   - "dropped"
//   - "inserted"
func RecordProducts(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_products_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments the persisted-batch counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_batches_total", float64(delta), Labels{
		"job": job,
	})
}

// RecordHTTPRequest counts one upstream API request by status class and
// records its duration.
func RecordHTTPRequest(job, status string, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"status": status,
	}
	backend.IncCounter("ingest_http_requests_total", 1, lbls)
	backend.ObserveHistogram("ingest_http_request_duration_seconds", d.Seconds(), lbls)
}
