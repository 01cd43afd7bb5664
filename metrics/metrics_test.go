package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcelsud/webhook-gateway/notify"
	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/marcelsud/webhook-gateway/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func seedStore(t *testing.T, now time.Time) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository()

	events := []webhook.Event{
		{Provider: "acme", EventID: "evt_1", Status: webhook.Completed, UpdatedAt: now.Add(-30 * time.Second)},
		{Provider: "acme", EventID: "evt_2", Status: webhook.Completed, UpdatedAt: now.Add(-3 * time.Minute)},
		{Provider: "acme", EventID: "evt_3", Status: webhook.Completed, UpdatedAt: now.Add(-time.Hour)},
		{Provider: "globex", EventID: "evt_1", Status: webhook.Failed, UpdatedAt: now},
		{Provider: "globex", EventID: "evt_2", Status: webhook.Processing, UpdatedAt: now},
	}
	for _, e := range events {
		require.NoError(t, repo.Insert(context.Background(), e))
	}
	return repo
}

func TestStoreCollector_Collect(t *testing.T) {
	now := time.Now()
	collector := NewStoreCollector(seedStore(t, now))
	collector.now = func() time.Time { return now }

	m, err := collector.Collect(context.Background())
	require.NoError(t, err)

	t.Run("status counts include every status", func(t *testing.T) {
		assert.Equal(t, map[string]int64{
			"received":   0,
			"processing": 1,
			"completed":  3,
			"failed":     1,
		}, m.StatusCounts)
	})

	t.Run("provider counts", func(t *testing.T) {
		assert.Equal(t, map[string]int64{"acme": 3, "globex": 2}, m.ProviderCounts)
	})

	t.Run("throughput windows", func(t *testing.T) {
		assert.Equal(t, ThroughputMetrics{
			LastMinute:         1,
			LastFiveMinutes:    2,
			LastFifteenMinutes: 2,
		}, m.Throughput)
	})

	assert.Equal(t, now, m.Timestamp)
}

func TestThroughputMetrics_countInWindows(t *testing.T) {
	now := time.Now()
	var tp ThroughputMetrics

	tp.countInWindows(now, now.Add(-10*time.Second))
	tp.countInWindows(now, now.Add(-4*time.Minute))
	tp.countInWindows(now, now.Add(-14*time.Minute))
	tp.countInWindows(now, now.Add(-20*time.Minute))

	assert.Equal(t, int64(1), tp.LastMinute)
	assert.Equal(t, int64(2), tp.LastFiveMinutes)
	assert.Equal(t, int64(3), tp.LastFifteenMinutes)
}

func TestObserver_Notify(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	observer, err := NewObserver(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	observer.Notify(ctx, notify.Notification{Kind: notify.WebhookReceived, Provider: "acme"})
	observer.Notify(ctx, notify.Notification{Kind: notify.WebhookReceived, Provider: "acme"})
	observer.Notify(ctx, notify.Notification{Kind: notify.ActionFailed, Provider: "acme", Handler: "ledger"})
	observer.Notify(ctx, notify.Notification{Kind: notify.ActionFailed, Provider: "acme", Handler: "ledger", Final: true})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := make(map[string]metricdata.Sum[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				sums[m.Name] = sum
			}
		}
	}

	t.Run("notifications by kind", func(t *testing.T) {
		sum, ok := sums["webhook.notifications"]
		require.True(t, ok)

		byKind := make(map[string]int64)
		for _, dp := range sum.DataPoints {
			kind, _ := dp.Attributes.Value(attribute.Key("webhook.kind"))
			byKind[kind.AsString()] = dp.Value
		}
		assert.Equal(t, int64(2), byKind["webhook_received"])
		assert.Equal(t, int64(2), byKind["action_failed"])
	})

	t.Run("only final failures count as handler failures", func(t *testing.T) {
		sum, ok := sums["webhook.handler.failures"]
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	})
}

func TestOTelExporter_ServeHTTP(t *testing.T) {
	collector := NewStoreCollector(seedStore(t, time.Now()))

	exporter, err := NewOTelExporter(collector)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exporter.Shutdown(context.Background()) })

	observer, err := exporter.Observer()
	require.NoError(t, err)
	observer.Notify(context.Background(), notify.Notification{Kind: notify.SignatureFailed, Provider: "acme"})

	rec := httptest.NewRecorder()
	exporter.ServeHTTP().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "webhook_status_count")
	assert.Contains(t, string(body), "webhook_throughput")
	assert.Contains(t, string(body), "webhook_notifications")
}

func TestCollector_Interface(t *testing.T) {
	var _ Collector = (*RedisCollector)(nil)
	var _ Collector = (*StoreCollector)(nil)
	var _ StatusSource = (*memory.Repository)(nil)
}
