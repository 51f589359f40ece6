// Package ingest fetches product pages from the catalog API and turns
// the raw payloads into entities.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"foodfacts/internal/entity"
	"foodfacts/internal/metrics"
)

// Logger is the minimal logging interface used by the client.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Client pages through the product search API.
//
// Retry model: attempts are retried on network errors, 429 and 5xx
// responses with exponential backoff (base * 2^(attempt-1), clamped),
// honoring Retry-After on 429. A 4xx other than 429 fails immediately:
// retrying a bad request cannot help.
type Client struct {
	BaseURL  string
	PageSize int

	// Locale keeps only products whose categories_lc matches. Empty
	// disables the filter.
	Locale string

	// Job labels metrics emitted by this client.
	Job string

	HTTP   *http.Client
	Logger Logger

	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Sleep is a seam for tests. Nil means context-aware sleeping.
	Sleep func(ctx context.Context, d time.Duration) bool
}

// PageStats summarizes one fetched page.
type PageStats struct {
	// Fetched counts raw product payloads in the page.
	Fetched int
	// Dropped counts candidates discarded by the locale filter or by
	// entity validation.
	Dropped int
}

// searchResponse is the subset of the API payload the pipeline uses.
// Product payloads stay raw maps: field presence varies per product and
// the factory owns validation.
type searchResponse struct {
	Products []map[string]any `json:"products"`
}

// FetchPage requests one page of products and converts each payload
// into a Product entity.
//
// Edge cases:
//   - A candidate missing required fields is dropped individually; one
//     bad payload never fails the page.
//   - Products whose categories_lc does not match Locale are dropped.
func (c *Client) FetchPage(ctx context.Context, page int) ([]entity.Entity, PageStats, error) {
	var stats PageStats

	if c.BaseURL == "" {
		return nil, stats, errors.New("ingest: BaseURL is required")
	}
	if page < 1 {
		page = 1
	}

	body, err := c.get(ctx, c.pageURL(page))
	if err != nil {
		return nil, stats, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, stats, fmt.Errorf("ingest: decode page %d: %w", page, err)
	}

	var out []entity.Entity
	for _, raw := range resp.Products {
		stats.Fetched++

		e, ok := c.toProduct(raw)
		if !ok {
			stats.Dropped++
			continue
		}
		out = append(out, e)
	}

	metrics.RecordProducts(c.Job, "fetched", int64(stats.Fetched))
	metrics.RecordProducts(c.Job, "dropped", int64(stats.Dropped))
	return out, stats, nil
}

// pageURL renders the search URL for one page. The parameter set
// matches the upstream search contract.
func (c *Client) pageURL(page int) string {
	size := c.PageSize
	if size <= 0 {
		size = 20
	}

	q := url.Values{}
	q.Set("action", "process")
	q.Set("sort_by", "unique_scans_n")
	q.Set("json", "true")
	q.Set("page_size", strconv.Itoa(size))
	q.Set("page", strconv.Itoa(page))

	return c.BaseURL + "?" + q.Encode()
}

// toProduct maps one raw payload onto the factory's attribute contract.
// The locale-suffixed name field wins; the plain one is the fallback.
func (c *Client) toProduct(raw map[string]any) (entity.Entity, bool) {
	if c.Locale != "" {
		lc, _ := raw["categories_lc"].(string)
		if lc != c.Locale {
			return nil, false
		}
	}

	name := raw["product_name"]
	if c.Locale != "" {
		if v, ok := raw["product_name_"+c.Locale]; ok && v != nil {
			name = v
		}
	}

	attrs := map[string]any{
		"name":       name,
		"nutriscore": raw["nutriscore_score"],
		"url":        raw["url"],
		"category":   raw["categories"],
		"store":      raw["stores"],
	}

	e, err := entity.New(entity.KindProduct, attrs)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidEntity) {
			return nil, false
		}
		// Unknown-kind cannot happen here; treat anything else as a drop
		// too, but make it visible.
		c.logger()("stage=to_product drop err=%v", err)
		return nil, false
	}
	return e, true
}

// get performs one GET with retries.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	maxAttempts := c.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		body, status, retryAfter, err := doAttempt(ctx, client, rawURL)

		metrics.RecordHTTPRequest(c.Job, statusClass(status, err), time.Since(start))

		if err == nil && status == http.StatusOK {
			return body, nil
		}

		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("ingest: GET %s: status %d", rawURL, status)
		default:
			// Other 4xx: not retryable.
			return nil, fmt.Errorf("ingest: GET %s: status %d", rawURL, status)
		}

		if attempt == maxAttempts {
			break
		}

		wait := c.nextRetryDelay(attempt, status, retryAfter)
		c.logger()("stage=http_retry attempt=%d wait=%s err=%v", attempt, wait, lastErr)
		if !c.sleep(ctx, wait) {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("ingest: retries exhausted: %w", lastErr)
}

func doAttempt(ctx context.Context, client *http.Client, rawURL string) (body []byte, status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}
	return b, resp.StatusCode, parseRetryAfter(resp.Header), nil
}

func (c *Client) nextRetryDelay(attempt, status int, retryAfter time.Duration) time.Duration {
	if status == http.StatusTooManyRequests && retryAfter > 0 {
		return retryAfter
	}

	base := c.BaseBackoff
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	max := c.MaxBackoff
	if max <= 0 {
		max = 30 * time.Second
	}

	// Exponential: base * 2^(attempt-1), clamped.
	d := base << uint(attempt-1)
	if d > max {
		d = max
	}
	return d
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return 0
	}

	// delta-seconds
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	// HTTP-date
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

func statusClass(status int, err error) string {
	switch {
	case err != nil:
		return "error"
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func (c *Client) logger() func(format string, v ...any) {
	if c.Logger == nil {
		return func(string, ...any) {}
	}
	return c.Logger.Printf
}
