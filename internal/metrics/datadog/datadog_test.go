package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"foodfacts/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// newTestBackend constructs a backend with all seams stubbed: fake
// submitter, fixed clock, and a slow ticker so only explicit
// Flush()/Close() submit.
func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()

	b, err := NewBackend(context.Background(), Options{
		JobName:    "catalog",
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		newTicker:  func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

// TestResolveEnvTag verifies environment-tag precedence and defaults.
//
// Edge cases:
//   - ENV wins over DD_ENV.
//   - Whitespace-only env vars are ignored.
//   - If neither is set, "env:unknown" is returned.
func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFlush_BuildsSeriesAndResetsBuffers(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer func() { _ = b.Close() }()

	b.IncCounter("ingest_pages_total", 1, metrics.Labels{"status": "success"})
	b.IncCounter("ingest_products_total", 20, metrics.Labels{"kind": "fetched"})
	b.IncCounter("ingest_products_total", 18, metrics.Labels{"kind": "inserted"})
	b.IncCounter("ingest_batches_total", 1, nil)
	b.ObserveHistogram("ingest_page_duration_seconds", 0.25, metrics.Labels{"status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	payload, ok := sub.last()
	if !ok {
		t.Fatalf("no payload submitted")
	}

	var names []string
	for _, s := range payload.Series {
		names = append(names, s.Metric)
	}
	sort.Strings(names)

	for _, want := range []string{
		"catalog.batches.total",
		"catalog.page.duration_seconds.p50",
		"catalog.page.duration_seconds.samples",
		"catalog.pages.total",
		"catalog.products.total",
	} {
		if !containsString(names, want) {
			t.Fatalf("series %q missing from %v", want, names)
		}
	}

	// Buffers were reset: a second flush has nothing to submit.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("empty flush still submitted: %d payloads", sub.count())
	}
}

func TestFlush_EmptyIsNoSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("expected no submission, got %d", sub.count())
	}
}

func TestClose_FlushesTail(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("ingest_http_requests_total", 1, metrics.Labels{"status": "2xx"})

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("tail flush missing: %d payloads", sub.count())
	}
}

func TestIncCounter_IgnoresUnknownAndNonPositive(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer func() { _ = b.Close() }()

	b.IncCounter("some_other_metric", 5, nil)
	b.IncCounter("ingest_pages_total", 0, metrics.Labels{"status": "success"})
	b.IncCounter("ingest_products_total", 3, nil) // no kind label

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("expected nothing buffered, got %d payloads", sub.count())
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:catalog ,, ")
	want := []string{"env:prod", "service:catalog"}
	if len(got) != len(want) {
		t.Fatalf("ParseTagsCSV = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ParseTagsCSV[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if ParseTagsCSV("") != nil {
		t.Fatalf("ParseTagsCSV(\"\") should be nil")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentileNearestRank(s, 0.5); got != 6 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentileNearestRank(s, 1.0); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
