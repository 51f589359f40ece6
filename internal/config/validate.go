// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of
// issues (errors and warnings) that callers can surface in a CLI or
// tests.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be
	// surfaced to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind"). Message
// is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue carries SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline.
//
// It does not mutate the pipeline. Callers decide whether to treat
// warnings as fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateMetrics(p.Metrics)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.BaseURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.base_url",
			Message:  "source.base_url must not be empty",
		})
	} else if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.base_url",
			Message:  fmt.Sprintf("source.base_url %q is not an absolute URL", s.BaseURL),
		})
	}

	if s.PageSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.page_size",
			Message:  "source.page_size must not be negative",
		})
	}
	if s.PageSize > 1000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.page_size",
			Message:  "source.page_size above 1000 is unlikely to be honored upstream",
		})
	}
	if s.Pages < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.pages",
			Message:  "source.pages must not be negative",
		})
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	// Known backend kinds. Unknown kinds are warnings, since backends
	// register themselves and a build may carry extra ones.
	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
		"mssql":    {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_retries",
			Message:  "runtime.max_retries must not be negative",
		})
	}
	if r.RetryBackoffMS < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.retry_backoff_ms",
			Message:  "runtime.retry_backoff_ms must not be negative",
		})
	}
	if r.RequestTimeoutMS < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.request_timeout_ms",
			Message:  "runtime.request_timeout_ms must not be negative",
		})
	}

	return issues
}

func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none", "datadog":
	case "prompush":
		if strings.TrimSpace(m.GatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.gateway_url",
				Message:  "metrics.gateway_url is required for the prompush backend",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; falling back to no-op", m.Backend),
		})
	}

	return issues
}
