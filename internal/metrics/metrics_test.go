package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	t.Parallel()

	// Verify all metrics are non-nil (registered via promauto on package init).
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, HTTPRequestsTotal)
	assert.NotNil(t, HealthzUp)
	assert.NotNil(t, ReadyzUp)
	assert.NotNil(t, CyclesTotal)
	assert.NotNil(t, CycleDuration)
	assert.NotNil(t, ItemsSeenTotal)
	assert.NotNil(t, EventsTotal)
	assert.NotNil(t, EngineState)
	assert.NotNil(t, SnapshotSize)
	assert.NotNil(t, SnapshotEvictedTotal)
	assert.NotNil(t, PersistFailuresTotal)
	assert.NotNil(t, EbayAPICallsTotal)
	assert.NotNil(t, EbayDailyUsage)
	assert.NotNil(t, EbayDailyLimitHits)
	assert.NotNil(t, FetchErrorsTotal)
	assert.NotNil(t, ItemsSkippedTotal)
	assert.NotNil(t, TokenRefreshesTotal)
	assert.NotNil(t, TokenExpiry)
	assert.NotNil(t, NotificationsSentTotal)
	assert.NotNil(t, NotificationFailuresTotal)
	assert.NotNil(t, NotificationDuration)
}

func TestEventsTotal_LabelsAreIndependent(t *testing.T) {
	t.Parallel()

	created := EventsTotal.WithLabelValues("test_created")
	updated := EventsTotal.WithLabelValues("test_updated")

	created.Inc()
	created.Inc()
	updated.Inc()

	assert.InDelta(t, 2, testutil.ToFloat64(created), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(updated), 0)
}

func TestSnapshotSize_Write(t *testing.T) {
	t.Parallel()

	SnapshotSize.Set(42)

	var m dto.Metric
	require.NoError(t, SnapshotSize.Write(&m))
	require.NotNil(t, m.GetGauge())
	assert.InDelta(t, 42, m.GetGauge().GetValue(), 0)
}
