package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/omeyang/toolhub/internal/catalog"
)

func collectInt64(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch d := m.Data.(type) {
			case metricdata.Sum[int64]:
				require.Len(t, d.DataPoints, 1, m.Name)
				out[m.Name] = d.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				require.Len(t, d.DataPoints, 1, m.Name)
				out[m.Name] = d.DataPoints[0].Value
			}
		}
	}
	return out
}

func TestRegisterMetrics(t *testing.T) {
	svc, _, _ := newService(t)
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { assert.NoError(t, provider.Shutdown(context.Background())) }()

	reg, err := catalog.RegisterMetrics(provider.Meter("catalog_test"), svc)
	require.NoError(t, err)
	defer func() { assert.NoError(t, reg.Unregister()) }()

	ctx := context.Background()
	_, err = svc.PopularTools(ctx, 3)
	require.NoError(t, err)
	_, err = svc.PopularTools(ctx, 3)
	require.NoError(t, err)

	got := collectInt64(t, reader)
	assert.Equal(t, int64(1), got[catalog.MetricCacheEntries])
	assert.Equal(t, int64(1), got[catalog.MetricCacheHits])
	assert.Equal(t, int64(1), got[catalog.MetricCacheMisses])
	assert.Contains(t, got, catalog.MetricCacheEvictions)
	assert.Contains(t, got, catalog.MetricCacheExpirations)
	assert.Contains(t, got, catalog.MetricViewsDropped)
	assert.Zero(t, got[catalog.MetricViewsDropped])
}
