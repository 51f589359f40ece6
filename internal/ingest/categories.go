package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"foodfacts/internal/entity"
)

// categorySelector matches the per-category anchors of the HTML
// category index page.
const categorySelector = "table#tagstable td a"

// ScrapeCategories downloads the category index page and returns the
// category names found there. It backfills the category table with
// names the product payloads never mention.
func ScrapeCategories(ctx context.Context, client *http.Client, rawURL string) ([]entity.Category, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ingest: GET %s: status %d", rawURL, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseCategories(string(b))
}

// ParseCategories extracts category names from the index page HTML.
//
// Edge cases:
//   - Anchor text is trimmed; empty anchors are skipped.
//   - Duplicate names are collapsed, keeping first occurrence order.
func ParseCategories(html string) ([]entity.Category, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("ingest: parse categories html: %w", err)
	}

	seen := make(map[string]bool)
	var out []entity.Category

	doc.Find(categorySelector).Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Text())
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, entity.Category{CategoryName: name})
	})

	return out, nil
}
