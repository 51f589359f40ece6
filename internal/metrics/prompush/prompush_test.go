package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"foodfacts/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend("catalog", ""); err == nil {
		t.Fatalf("NewBackend with empty gateway URL: error = nil, want non-nil")
	}

	b, err := NewBackend("", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.jobName != "catalog" {
		t.Fatalf("jobName = %q, want default %q", b.jobName, "catalog")
	}

	b, err = NewBackend("catalog-fr", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.jobName != "catalog-fr" || b.gatewayURL != "http://pushgateway:9091" {
		t.Fatalf("backend = %+v", b)
	}
}

func TestIncCounter_RoutesByName(t *testing.T) {
	b, err := NewBackend("catalog", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter("ingest_pages_total", 3, metrics.Labels{"status": "success"})
	b.IncCounter("ingest_products_total", 5, metrics.Labels{"kind": "inserted"})
	b.IncCounter("ingest_batches_total", 2, metrics.Labels{})
	b.IncCounter("ingest_http_requests_total", 1, metrics.Labels{"status": "5xx"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	if got := readCounterValue(t, b.pageCounter.WithLabelValues("success")); got != 3 {
		t.Fatalf("pageCounter = %v, want 3", got)
	}
	if got := readCounterValue(t, b.productCounter.WithLabelValues("inserted")); got != 5 {
		t.Fatalf("productCounter = %v, want 5", got)
	}
	if got := readCounterValue(t, b.batchCounter); got != 2 {
		t.Fatalf("batchCounter = %v, want 2", got)
	}
	if got := readCounterValue(t, b.httpCounter.WithLabelValues("5xx")); got != 1 {
		t.Fatalf("httpCounter = %v, want 1", got)
	}
}

func TestObserveHistogram_RecordsDurations(t *testing.T) {
	b, err := NewBackend("catalog", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.ObserveHistogram("ingest_page_duration_seconds", 1.5, metrics.Labels{"status": "success"})
	b.ObserveHistogram("ingest_http_request_duration_seconds", 0.25, metrics.Labels{"status": "2xx"})
	b.ObserveHistogram("other_metric", 9, metrics.Labels{"status": "success"})

	count, sum := readSummaryCountSum(t, b.pageDuration, "success")
	if count != 1 || sum != 1.5 {
		t.Fatalf("pageDuration count=%d sum=%v, want 1/1.5", count, sum)
	}
	count, sum = readSummaryCountSum(t, b.httpDuration, "2xx")
	if count != 1 || sum != 0.25 {
		t.Fatalf("httpDuration count=%d sum=%v, want 1/0.25", count, sum)
	}
}

func TestFlush_PushesToGateway(t *testing.T) {
	type pushInfo struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushInfo{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("catalog-fr", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter("ingest_pages_total", 1, metrics.Labels{"status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not reach the Pushgateway")
	}
	if got.bodyLen == 0 {
		t.Fatalf("push body is empty")
	}
}
