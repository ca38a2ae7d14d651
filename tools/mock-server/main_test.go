package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/listing-watcher/internal/ebay"
	"github.com/donaldgifford/listing-watcher/pkg/logger"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

var fixedNow = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

func tokenRequest(form url.Values, basic bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/identity/v1/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basic {
		req.SetBasicAuth("app-id", "cert-id")
	}
	return req
}

func TestTokenHandler(t *testing.T) {
	t.Parallel()

	grant := url.Values{"grant_type": {"client_credentials"}}

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantError  string
	}{
		{name: "issues token", req: tokenRequest(grant, true), wantStatus: http.StatusOK},
		{name: "missing basic auth", req: tokenRequest(grant, false), wantStatus: http.StatusUnauthorized, wantError: "invalid_client"},
		{
			name:       "wrong grant type",
			req:        tokenRequest(url.Values{"grant_type": {"password"}}, true),
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			tokenHandler(logger.Discard())(w, tt.req)
			require.Equal(t, tt.wantStatus, w.Code)

			var resp map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
				return
			}
			assert.NotEmpty(t, resp["access_token"])
			assert.Equal(t, "Application Access Token", resp["token_type"])
			assert.InDelta(t, float64(tokenLifetime), resp["expires_in"], 0)
		})
	}
}

func TestSearchHandler_RequiresBearer(t *testing.T) {
	t.Parallel()

	h := searchHandler(logger.Discard(), newCatalog(3, 0, fixedNow))
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/buy/browse/v1/item_summary/search?q=gpu", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSearchHandler_Limit(t *testing.T) {
	t.Parallel()

	h := searchHandler(logger.Discard(), newCatalog(5, 0, fixedNow))
	req := httptest.NewRequest(http.MethodGet, "/buy/browse/v1/item_summary/search?q=gpu&limit=2", http.NoBody)
	req.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	h(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp searchResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.ItemSummaries, 2)
	assert.Equal(t, 5, resp.Total)
	assert.Equal(t, 2, resp.Limit)
}

func TestCatalog_SeedIsStablePerQuery(t *testing.T) {
	t.Parallel()

	a := newCatalog(4, 0, fixedNow).search("rtx 3080")
	b := newCatalog(4, 0, fixedNow).search("rtx 3080")
	other := newCatalog(4, 0, fixedNow).search("thinkpad")

	require.Len(t, a, 4)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[0].ItemID, other[0].ItemID)
}

func TestCatalog_DriftsAndGrows(t *testing.T) {
	t.Parallel()

	c := newCatalog(4, 2, fixedNow)
	first := c.search("gpu")
	second := c.search("gpu")
	third := c.search("gpu")

	assert.Len(t, second, 4)
	assert.Len(t, third, 5, "a listing is added every second search")
	assert.Equal(t, first[0].ItemID, third[1].ItemID, "new listings appear first")

	changed := 0
	byID := make(map[string]ebay.ItemSummary, len(first))
	for _, s := range first {
		byID[s.ItemID] = s
	}
	for _, s := range second {
		if priceOf(s) != priceOf(byID[s.ItemID]) {
			changed++
		}
	}
	assert.Equal(t, 1, changed, "exactly one listing moves per search")
}

func priceOf(s ebay.ItemSummary) string {
	if s.CurrentBidPrice != nil {
		return "bid " + s.CurrentBidPrice.Value
	}
	if s.Price != nil {
		return "bin " + s.Price.Value
	}
	return ""
}

func TestCatalog_SummariesConvert(t *testing.T) {
	t.Parallel()

	items, errs := ebay.ToItems(newCatalog(6, 0, fixedNow).search("gpu"))
	require.Empty(t, errs)
	require.Len(t, items, 6)

	var auctions int
	for i := range items {
		if items[i].IsAuction() {
			auctions++
			assert.NotNil(t, items[i].BidPrice)
			assert.NotNil(t, items[i].EndTime)
		} else {
			assert.NotNil(t, items[i].SalePrice)
		}
	}
	assert.Positive(t, auctions)
}

// TestMockServer_EndToEnd drives the real credential manager and search
// client against the mock.
func TestMockServer_EndToEnd(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /identity/v1/oauth2/token", tokenHandler(logger.Discard()))
	mux.HandleFunc("GET /buy/browse/v1/item_summary/search", searchHandler(logger.Discard(), newCatalog(3, 1, fixedNow)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	creds := ebay.NewCredentialManager("app", "cert", ebay.WithTokenURL(srv.URL+"/identity/v1/oauth2/token"))
	cred, err := creds.EnsureValid(ctx, nil)
	require.NoError(t, err)

	browse := ebay.NewBrowseClient(ebay.WithBrowseURL(srv.URL + "/buy/browse/v1/item_summary/search"))
	first, err := browse.Fetch(ctx, "gpu", cred)
	require.NoError(t, err)
	second, err := browse.Fetch(ctx, "gpu", cred)
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Len(t, second, 4)
	assert.False(t, containsID(first, second[0].ID), "newest listing is new")
}

func containsID(items []domain.Item, id string) bool {
	for i := range items {
		if items[i].ID == id {
			return true
		}
	}
	return false
}
