// Package main implements a mock eBay API server for local development.
// It issues fake OAuth tokens and serves a synthetic search catalog whose
// prices drift and whose listings grow over time, so a watcher pointed at it
// produces both new-listing and price-change events.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donaldgifford/listing-watcher/internal/ebay"
	"github.com/donaldgifford/listing-watcher/pkg/logger"
)

const (
	defaultCatalogSize = 10
	maxPageSize        = 200
	tokenLifetime      = 7200
)

type searchResponse struct {
	ItemSummaries []ebay.ItemSummary `json:"itemSummaries"`
	Total         int                `json:"total"`
	Limit         int                `json:"limit"`
}

func main() {
	port := flag.Int("port", 8089, "port to listen on")
	size := flag.Int("items", defaultCatalogSize, "initial listings per query")
	newEvery := flag.Int("new-every", 3, "add a listing every N searches of a query (0 disables)")
	logLevel := flag.String("log-level", "debug", "log level")
	flag.Parse()

	log := logger.New(*logLevel, "text")

	cat := newCatalog(*size, *newEvery, time.Now)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /identity/v1/oauth2/token", tokenHandler(log))
	mux.HandleFunc("GET /buy/browse/v1/item_summary/search", searchHandler(log, cat))

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting mock eBay server", "addr", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      requestLogger(log, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func requestLogger(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug("request", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,gosec // best-effort write to HTTP response in mock server
	json.NewEncoder(w).Encode(v)
}

func tokenHandler(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Basic Auth must be present; the credentials are not checked.
		if _, _, ok := r.BasicAuth(); !ok {
			log.Warn("token request missing Basic Auth header")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":             "invalid_client",
				"error_description": "client authentication failed",
			})
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "unsupported_grant_type",
				"error_description": "grant type in request is not supported by the authorization server",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "mock-token-v1-" + strconv.FormatInt(time.Now().UnixNano(), 16),
			"expires_in":   tokenLifetime,
			"token_type":   "Application Access Token",
		})
		log.Info("issued mock token")
	}
}

func searchHandler(log *slog.Logger, cat *catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"errors": []map[string]any{{"errorId": 1001, "message": "Invalid access token"}},
			})
			return
		}

		q := r.URL.Query().Get("q")
		limit := maxPageSize
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < maxPageSize {
			limit = v
		}

		items := cat.search(q)
		total := len(items)
		if len(items) > limit {
			items = items[:limit]
		}

		writeJSON(w, http.StatusOK, searchResponse{ItemSummaries: items, Total: total, Limit: limit})
		log.Info("search", "query", q, "total", total, "returned", len(items))
	}
}

// listing is one synthetic item. Auctions move their bid, fixed-price
// listings move their asking price.
type listing struct {
	num     int
	title   string
	price   decimal.Decimal
	auction bool
	endsAt  time.Time
}

// catalog holds per-query listings. Every search drifts one listing's price
// and every newEvery searches a listing is added.
type catalog struct {
	mu       sync.Mutex
	size     int
	newEvery int
	now      func() time.Time
	queries  map[string]*queryState
}

type queryState struct {
	listings []*listing
	searches int
	nextNum  int
}

func newCatalog(size, newEvery int, now func() time.Time) *catalog {
	return &catalog{size: size, newEvery: newEvery, now: now, queries: make(map[string]*queryState)}
}

func (c *catalog) search(q string) []ebay.ItemSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.queries[q]
	if !ok {
		st = c.seed(q)
		c.queries[q] = st
	} else {
		st.searches++
		c.step(q, st)
	}

	// Newest first, as with sort=newlyListed.
	out := make([]ebay.ItemSummary, 0, len(st.listings))
	for i := len(st.listings) - 1; i >= 0; i-- {
		out = append(out, st.listings[i].summary())
	}
	return out
}

func (c *catalog) seed(q string) *queryState {
	h := fnv.New32a()
	_, _ = h.Write([]byte(q))
	base := int(h.Sum32()%900_000) * 1000

	st := &queryState{nextNum: base}
	for range c.size {
		st.listings = append(st.listings, c.newListing(q, st))
	}
	return st
}

func (c *catalog) step(q string, st *queryState) {
	if len(st.listings) > 0 {
		l := st.listings[st.searches%len(st.listings)]
		if l.auction {
			l.price = l.price.Mul(decimal.RequireFromString("1.10")).Round(2)
		} else {
			l.price = l.price.Mul(decimal.RequireFromString("0.95")).Round(2)
		}
	}
	if c.newEvery > 0 && st.searches%c.newEvery == 0 {
		st.listings = append(st.listings, c.newListing(q, st))
	}
}

func (c *catalog) newListing(q string, st *queryState) *listing {
	st.nextNum++
	n := st.nextNum
	return &listing{
		num:     n,
		title:   fmt.Sprintf("%s #%d", q, n%1000),
		price:   decimal.NewFromInt(int64(50 + (n%20)*25)),
		auction: n%3 == 0,
		endsAt:  c.now().Add(time.Duration(1+n%7) * 24 * time.Hour).UTC(),
	}
}

func (l *listing) summary() ebay.ItemSummary {
	price := &ebay.ItemPrice{Value: l.price.StringFixed(2), Currency: "USD"}
	s := ebay.ItemSummary{
		ItemID:     fmt.Sprintf("v1|%d|0", l.num),
		Title:      l.title,
		ItemWebURL: fmt.Sprintf("https://www.ebay.com/itm/%d", l.num),
		Image:      &ebay.ItemImage{ImageURL: fmt.Sprintf("https://i.ebayimg.com/images/g/mock%d/s-l500.jpg", l.num)},
		Condition:  "Used",
	}
	if l.auction {
		s.CurrentBidPrice = price
		s.BuyingOptions = []string{"AUCTION"}
		s.ItemEndDate = l.endsAt.Format(time.RFC3339)
	} else {
		s.Price = price
		s.BuyingOptions = []string{"FIXED_PRICE", "BEST_OFFER"}
	}
	return s
}
