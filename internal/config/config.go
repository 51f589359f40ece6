// Package config defines the canonical, JSON-serializable configuration
// model for the catalog ingestion pipeline. It is intentionally small,
// explicit, and dependency-free so that pipelines can be loaded from
// disk and passed through the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":     "catalog-fr",
//	  "source":  { "base_url": "https://fr.openfoodfacts.org/cgi/search.pl", "page_size": 20, "pages": 5, "locale": "fr" },
//	  "storage": { "kind": "sqlite", "dsn": "catalog.db" },
//	  "runtime": { "max_retries": 3, "retry_backoff_ms": 250 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline describes one full ingestion run. It is the top-level object
// decoded from a pipeline file (e.g., configs/pipelines/*.json).
type Pipeline struct {
	// Job identifies the run; it is used for metrics labeling.
	Job string `json:"job"`

	// Source describes the upstream catalog API.
	Source Source `json:"source"`

	// Storage describes where entities are persisted.
	Storage Storage `json:"storage"`

	Runtime RuntimeConfig `json:"runtime"`
	Metrics MetricsConfig `json:"metrics"`
}

// Source identifies the upstream product API.
type Source struct {
	// BaseURL is the search endpoint of the catalog API.
	BaseURL string `json:"base_url"`

	// PageSize is the number of products requested per page.
	PageSize int `json:"page_size"`

	// Pages is the number of pages to ingest. Zero means one page.
	Pages int `json:"pages"`

	// Locale filters products to those whose category language matches
	// (e.g. "fr"). Empty disables the filter.
	Locale string `json:"locale"`

	// CategoriesURL optionally points at the HTML category index for the
	// category scraper. Empty disables scraping.
	CategoriesURL string `json:"categories_url"`
}

// Storage selects the persistence backend.
type Storage struct {
	// Kind selects the backend implementation: "postgres", "sqlite",
	// "mssql".
	Kind string `json:"kind"`

	// DSN is the backend connection string (a file path for sqlite).
	DSN string `json:"dsn"`
}

// RuntimeConfig controls retry and timeout behavior of the API client.
type RuntimeConfig struct {
	// MaxRetries caps retry attempts per HTTP request.
	MaxRetries int `json:"max_retries"`

	// RetryBackoffMS is the base backoff between retries, in milliseconds.
	RetryBackoffMS int `json:"retry_backoff_ms"`

	// RequestTimeoutMS bounds one HTTP request, in milliseconds.
	RequestTimeoutMS int `json:"request_timeout_ms"`
}

// MetricsConfig selects an optional metrics backend.
type MetricsConfig struct {
	// Backend selects the implementation: "" or "none" for no-op,
	// "datadog" for the Datadog backend, "prompush" for the Prometheus
	// Pushgateway backend.
	Backend string `json:"backend"`

	// Tags are extra backend tags like "env:prod,service:catalog".
	// Datadog only.
	Tags string `json:"tags"`

	// GatewayURL is the Pushgateway base URL. Prompush only.
	GatewayURL string `json:"gateway_url"`
}

// Load reads and decodes a pipeline file.
func Load(path string) (Pipeline, error) {
	var p Pipeline

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return p, nil
}
