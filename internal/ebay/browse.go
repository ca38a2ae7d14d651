package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/donaldgifford/listing-watcher/internal/metrics"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

const (
	defaultBrowseURL   = "https://api.ebay.com/buy/browse/v1/item_summary/search"
	defaultMarketplace = "EBAY_US"
	defaultPageSize    = 200
	newestFirst        = "newlyListed"
)

// BrowseClient implements Fetcher using the eBay Browse API.
type BrowseClient struct {
	browseURL   string
	marketplace string
	pageSize    int
	client      *http.Client
	rateLimiter *RateLimiter
	log         *slog.Logger
}

// BrowseOption configures the BrowseClient.
type BrowseOption func(*BrowseClient)

// WithBrowseURL overrides the default Browse API endpoint.
func WithBrowseURL(u string) BrowseOption {
	return func(c *BrowseClient) {
		c.browseURL = u
	}
}

// WithMarketplace overrides the default marketplace.
func WithMarketplace(m string) BrowseOption {
	return func(c *BrowseClient) {
		c.marketplace = m
	}
}

// WithPageSize sets the result limit sent with every search.
func WithPageSize(n int) BrowseOption {
	return func(c *BrowseClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithBrowseHTTPClient overrides the default HTTP client.
func WithBrowseHTTPClient(hc *http.Client) BrowseOption {
	return func(c *BrowseClient) {
		c.client = hc
	}
}

// WithRateLimiter injects a rate limiter that controls per-second and daily
// API call limits. When set, every Fetch call goes through Wait() first.
func WithRateLimiter(r *RateLimiter) BrowseOption {
	return func(c *BrowseClient) {
		c.rateLimiter = r
	}
}

// WithBrowseLogger sets the logger.
func WithBrowseLogger(l *slog.Logger) BrowseOption {
	return func(c *BrowseClient) {
		c.log = l
	}
}

// NewBrowseClient creates a new eBay Browse API client.
func NewBrowseClient(opts ...BrowseOption) *BrowseClient {
	c := &BrowseClient{
		browseURL:   defaultBrowseURL,
		marketplace: defaultMarketplace,
		pageSize:    defaultPageSize,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RateLimiter returns the configured limiter, or nil.
func (c *BrowseClient) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// Fetch issues exactly one search request for query and returns the first
// page of items, newest first. Items whose id cannot be derived are logged
// and dropped.
func (c *BrowseClient) Fetch(
	ctx context.Context,
	query string,
	cred Credential,
) ([]domain.Item, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if errors.Is(err, ErrDailyLimitReached) {
				metrics.EbayDailyLimitHits.Inc()
			}
			metrics.FetchErrorsTotal.WithLabelValues("rate_limit").Inc()
			return nil, &FetchError{Query: query, Err: fmt.Errorf("rate limit: %w", err)}
		}
		metrics.EbayDailyUsage.Set(float64(c.rateLimiter.Usage().Count))
	}
	metrics.EbayAPICallsTotal.Inc()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(query), http.NoBody)
	if err != nil {
		return nil, &FetchError{Query: query, Err: fmt.Errorf("creating HTTP request: %w", err)}
	}

	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	httpReq.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplace)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("transport").Inc()
		return nil, &FetchError{Query: query, Err: fmt.Errorf("executing search request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("transport").Inc()
		return nil, &FetchError{
			Query:  query,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("reading response body: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		metrics.FetchErrorsTotal.WithLabelValues("status").Inc()
		return nil, &FetchError{Query: query, Status: resp.StatusCode, Body: string(body)}
	}

	var apiResp browseAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		metrics.FetchErrorsTotal.WithLabelValues("decode").Inc()
		return nil, &DecodeError{Query: query, Err: err}
	}

	items, skipped := ToItems(apiResp.ItemSummaries)
	for _, err := range skipped {
		c.log.Warn("skipping item", "query", query, "error", err)
	}
	metrics.ItemsSkippedTotal.Add(float64(len(skipped)))

	return items, nil
}

func (c *BrowseClient) searchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("sort", newestFirst)
	return c.browseURL + "?" + params.Encode()
}
