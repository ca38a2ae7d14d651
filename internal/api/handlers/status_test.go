package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/listing-watcher/internal/api/handlers"
	"github.com/donaldgifford/listing-watcher/internal/engine"
	domain "github.com/donaldgifford/listing-watcher/pkg/types"
)

type fakeWatcher struct {
	status    engine.Status
	events    []domain.EventRecord
	lastLimit int
}

func (f *fakeWatcher) Status() engine.Status { return f.status }

func (f *fakeWatcher) RecentEvents(limit int) []domain.EventRecord {
	f.lastLimit = limit
	if limit > 0 && limit < len(f.events) {
		return f.events[:limit]
	}
	return f.events
}

func usd(s string) *domain.Price {
	return &domain.Price{Amount: decimal.RequireFromString(s), Currency: "USD"}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &fakeWatcher{status: engine.Status{
		State:         engine.StateCycling,
		Cycle:         7,
		Queries:       []string{"rtx 3080"},
		SnapshotMode:  "records",
		SnapshotSize:  120,
		LastCycleAt:   last,
		LastDuration:  1500 * time.Millisecond,
		LastCreated:   2,
		LastUpdated:   1,
		FailedQueries: []string{"rtx 3080"},
	}}

	_, api := humatest.New(t)
	handlers.RegisterStatusRoutes(api, handlers.NewStatusHandler(w))

	resp := api.Get("/api/v1/status")
	require.Equal(t, http.StatusOK, resp.Code)

	var got domain.StatusReport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "cycling", got.State)
	assert.Equal(t, uint64(7), got.Cycle)
	assert.Equal(t, 120, got.SnapshotSize)
	assert.Equal(t, int64(1500), got.LastDurationMS)
	assert.Equal(t, 2, got.LastCreated)
	assert.Equal(t, []string{"rtx 3080"}, got.FailedQueries)
	assert.True(t, last.Equal(got.LastCycleAt))
}

func TestListEvents(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	events := []domain.EventRecord{
		{
			Event: domain.Event{
				Kind:     domain.EventUpdated,
				Item:     domain.Item{ID: "v1|2|0", Title: "Card", SalePrice: usd("90")},
				Previous: &domain.Item{ID: "v1|2|0", Title: "Card", SalePrice: usd("100")},
			},
			Query:      "card",
			ObservedAt: now,
			Delivered:  true,
		},
		{
			Event: domain.Event{
				Kind: domain.EventCreated,
				Item: domain.Item{ID: "v1|1|0", Title: "Other", BidPrice: usd("5.50")},
			},
			Query:      "card",
			ObservedAt: now.Add(-time.Minute),
		},
	}

	tests := []struct {
		name      string
		path      string
		wantLimit int
		wantLen   int
	}{
		{name: "default limit", path: "/api/v1/events", wantLimit: 20, wantLen: 2},
		{name: "explicit limit", path: "/api/v1/events?limit=1", wantLimit: 1, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := &fakeWatcher{events: events}
			_, api := humatest.New(t)
			handlers.RegisterStatusRoutes(api, handlers.NewStatusHandler(w))

			resp := api.Get(tt.path)
			require.Equal(t, http.StatusOK, resp.Code)
			assert.Equal(t, tt.wantLimit, w.lastLimit)

			var got []domain.EventReport
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
			require.Len(t, got, tt.wantLen)
			assert.Equal(t, domain.EventUpdated, got[0].Kind)
			assert.Equal(t, "90 USD", got[0].Item.SalePrice)
			require.NotNil(t, got[0].Previous)
			assert.Equal(t, "100 USD", got[0].Previous.SalePrice)
			assert.True(t, got[0].Delivered)
		})
	}
}

func TestListEvents_EmptyIsArray(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	handlers.RegisterStatusRoutes(api, handlers.NewStatusHandler(&fakeWatcher{}))

	resp := api.Get("/api/v1/events")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `[]`, resp.Body.String())
}

func TestListEvents_LimitOutOfRange(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	handlers.RegisterStatusRoutes(api, handlers.NewStatusHandler(&fakeWatcher{}))

	resp := api.Get("/api/v1/events?limit=0")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
