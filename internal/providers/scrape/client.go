// Package scrape wraps the content-source scraping API consumed by the
// batch orchestrator.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Page is the normalized scrape result for one source URL.
type Page struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

// Client fetches product/page content for batch items.
type Client interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// Options configures the HTTP scraper client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// HTTPClient calls the scraping service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient constructs a scraper client.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("scrape: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: baseURL, httpClient: httpClient}, nil
}

// Fetch scrapes one page. The orchestrator rate-limits calls; this client
// only does the HTTP work.
func (c *HTTPClient) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, errors.New("scrape: page url is required")
	}
	endpoint := fmt.Sprintf("%s/scrape?url=%s", c.baseURL, url.QueryEscape(pageURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("scrape: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: service error %d for %s", resp.StatusCode, pageURL)
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("scrape: decode response: %w", err)
	}
	if page.Title == "" && len(page.Images) == 0 {
		return nil, fmt.Errorf("scrape: empty result for %s", pageURL)
	}
	return &page, nil
}

var _ Client = (*HTTPClient)(nil)
