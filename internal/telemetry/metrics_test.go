package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/WailSalutem-Health-Care/telemed-dashboard/internal/config"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordAPIRequest(ctx, "ListPatients", 200, 12.5, "ok")
	m.RecordAPIRequest(ctx, "GetPatient", 404, 3, "http")
	m.RecordPanelRefresh(ctx, "queue", "ok")
	m.RecordStaleDiscard(ctx, "history")
	m.RecordRefreshCycle(ctx, "timer")
	m.RecordAuthFailure(ctx, "role_fetch")

	sums := collect(t, reader)
	assert.Equal(t, int64(2), sums["api_client_requests_total"])
	assert.Equal(t, int64(1), sums["panel_refresh_total"])
	assert.Equal(t, int64(1), sums["panel_stale_discards_total"])
	assert.Equal(t, int64(1), sums["dashboard_refresh_cycles_total"])
	assert.Equal(t, int64(1), sums["auth_failures_total"])
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{Environment: "staging", OTLPEndpoint: "collector:4317", TracesSampler: "always_off"}

	tc := ConfigFrom(cfg, "1.2.3")

	assert.Equal(t, "telemed-dashboard", tc.ServiceName)
	assert.Equal(t, "collector:4317", tc.OTLPEndpoint)
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
	assert.NotZero(t, tc.MetricsInterval)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler("always_off").Description(), "AlwaysOff")
	assert.Contains(t, sampler("").Description(), "AlwaysOn")
	assert.Contains(t, sampler("traceidratio").Description(), "TraceIDRatioBased")
}
