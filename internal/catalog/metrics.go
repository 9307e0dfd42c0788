package catalog

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// 缓存与浏览上报指标名
const (
	MetricCacheEntries     = "toolhub.cache.entries"
	MetricCacheHits        = "toolhub.cache.hits"
	MetricCacheMisses      = "toolhub.cache.misses"
	MetricCacheEvictions   = "toolhub.cache.evictions"
	MetricCacheExpirations = "toolhub.cache.expirations"
	MetricViewsDropped     = "toolhub.views.dropped"
)

// RegisterMetrics 以 observable 指标导出 Service 的缓存与上报统计，采集时读取快照。
func RegisterMetrics(meter metric.Meter, s *Service) (metric.Registration, error) {
	entries, err := meter.Int64ObservableGauge(MetricCacheEntries,
		metric.WithDescription("cached entries"), metric.WithUnit("{entry}"))
	if err != nil {
		return nil, fmt.Errorf("catalog: create gauge: %w", err)
	}
	counters := make(map[string]metric.Int64ObservableCounter, 5)
	for _, name := range []string{
		MetricCacheHits, MetricCacheMisses, MetricCacheEvictions, MetricCacheExpirations, MetricViewsDropped,
	} {
		c, err := meter.Int64ObservableCounter(name)
		if err != nil {
			return nil, fmt.Errorf("catalog: create counter %s: %w", name, err)
		}
		counters[name] = c
	}

	instruments := []metric.Observable{entries}
	for _, c := range counters {
		instruments = append(instruments, c)
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := s.Stats()
		o.ObserveInt64(entries, int64(st.Len))
		o.ObserveInt64(counters[MetricCacheHits], int64(st.Hits))                  //nolint:gosec // 计数不会溢出
		o.ObserveInt64(counters[MetricCacheMisses], int64(st.Misses))              //nolint:gosec // 同上
		o.ObserveInt64(counters[MetricCacheEvictions], int64(st.Evictions))        //nolint:gosec // 同上
		o.ObserveInt64(counters[MetricCacheExpirations], int64(st.Expirations))    //nolint:gosec // 同上
		o.ObserveInt64(counters[MetricViewsDropped], int64(s.ViewStats().Dropped)) //nolint:gosec // 同上
		return nil
	}, instruments...)
}
