// Package scrapers holds the collection callables the scheduler drives: page
// fetching with retry, shallow table extraction, and upserts into the domain
// tables.
package scrapers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	maxRetries = 3
	retryDelay = time.Second
	userAgent  = "justicetracker/1.0 (public-interest data collection)"
)

// Fetcher retrieves and parses pages with basic retry and backoff.
type Fetcher struct {
	client *http.Client
	log    *zap.Logger
}

func NewFetcher(log *zap.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

// Get fetches a URL, retrying transient failures with linear backoff.
func (f *Fetcher) Get(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		doc, err := f.fetchOnce(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		f.log.Warn("fetch failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}
	}
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", url, maxRetries, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// Table is one extracted HTML table.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ExtractTables pulls every table out of a document as trimmed text cells.
func ExtractTables(doc *goquery.Document) []Table {
	var tables []Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		var t Table
		sel.Find("th").Each(func(_ int, th *goquery.Selection) {
			t.Headers = append(t.Headers, strings.TrimSpace(th.Text()))
		})
		sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var row []string
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				row = append(row, strings.TrimSpace(td.Text()))
			})
			if len(row) > 0 {
				t.Rows = append(t.Rows, row)
			}
		})
		if len(t.Rows) > 0 {
			tables = append(tables, t)
		}
	})
	return tables
}

// ParseAmount converts strings like "$312.5 million" or "1,234,000" to a
// dollar amount.
func ParseAmount(s string) (float64, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	multiplier := 1.0
	if strings.Contains(cleaned, "million") || strings.HasSuffix(cleaned, "m") {
		multiplier = 1_000_000
	}
	cleaned = strings.NewReplacer("$", "", ",", "", "million", "", "m", "").Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return val * multiplier, true
}

// ParseCount converts strings like "1,023" to an integer.
func ParseCount(s string) (int, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	val, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, false
	}
	return val, true
}
