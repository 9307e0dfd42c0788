package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/catalog/catalogtest"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/observability/xmetrics"
	"github.com/omeyang/toolhub/pkg/resilience/xbreaker"
	"github.com/omeyang/toolhub/pkg/resilience/xretry"
)

func newResilient(t *testing.T, inner catalog.Store, cfg catalog.ResilienceConfig, opts ...catalog.ResilientOption) *catalog.ResilientStore {
	t.Helper()
	opts = append([]catalog.ResilientOption{
		catalog.WithStoreLogger(xlog.Discard()),
		catalog.WithRetryBackoff(xretry.NewFixedBackoff(0)),
	}, opts...)
	return catalog.NewResilientStore(inner, cfg, opts...)
}

func TestResilientStore_RetriesTransientErrors(t *testing.T) {
	inner := catalogtest.New(catalogtest.Fixture())
	inner.SetError(errors.New("connection reset"))
	s := newResilient(t, inner, catalog.ResilienceConfig{RetryAttempts: 3, BreakerFailures: 10})

	_, err := s.ListCategories(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, int64(3), inner.Calls("ListCategories"))

	inner.SetError(nil)
	cats, err := s.ListCategories(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, cats, 3)
}

func TestResilientStore_NotFoundIsPermanent(t *testing.T) {
	inner := catalogtest.New(catalogtest.Fixture())
	s := newResilient(t, inner, catalog.ResilienceConfig{RetryAttempts: 3, BreakerFailures: 1})

	for range 3 {
		_, err := s.ToolBySlug(context.Background(), "missing")
		require.ErrorIs(t, err, catalog.ErrNotFound)
		var pe *xretry.PermanentError
		assert.False(t, errors.As(err, &pe), "返回前剥离重试包装")
	}
	assert.Equal(t, int64(3), inner.Calls("ToolBySlug"), "不重试")
	assert.Equal(t, xbreaker.StateClosed, s.BreakerState(), "不计入熔断")
}

func TestResilientStore_BreakerOpens(t *testing.T) {
	inner := catalogtest.New(catalogtest.Fixture())
	inner.SetError(errors.New("503"))
	s := newResilient(t, inner, catalog.ResilienceConfig{
		RetryAttempts:   1,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	})
	ctx := context.Background()

	for range 2 {
		_, err := s.ToolSlugs(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, catalog.ErrUnavailable)
	}
	assert.Equal(t, xbreaker.StateOpen, s.BreakerState())

	_, err := s.ToolSlugs(ctx)
	require.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.True(t, xbreaker.IsOpen(err))
	assert.Equal(t, int64(2), inner.Calls("ToolSlugs"), "熔断打开后不再访问数据源")
}

type slowStore struct {
	*catalogtest.Store
}

func (s slowStore) ListTools(ctx context.Context, _ catalog.ToolQuery) ([]catalog.Tool, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResilientStore_TimeoutMapsToUnavailable(t *testing.T) {
	s := newResilient(t, slowStore{catalogtest.New(nil, nil)}, catalog.ResilienceConfig{
		Timeout:       5 * time.Millisecond,
		RetryAttempts: 2,
	})
	_, err := s.ListTools(context.Background(), catalog.ToolQuery{Limit: 5})
	require.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResilientStore_CallerCancel(t *testing.T) {
	inner := catalogtest.New(catalogtest.Fixture())
	s := newResilient(t, inner, catalog.ResilienceConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListTools(ctx, catalog.ToolQuery{})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, catalog.ErrUnavailable)
}

func TestResilientStore_SubmitNotRetried(t *testing.T) {
	inner := catalogtest.New(nil, nil)
	inner.SetError(errors.New("write failed"))
	s := newResilient(t, inner, catalog.ResilienceConfig{RetryAttempts: 5})

	_, err := s.SubmitTool(context.Background(), catalog.Submission{Name: "x"})
	require.EqualError(t, err, "write failed")
	assert.Equal(t, int64(1), inner.Calls("SubmitTool"))
}

func TestResilientStore_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	obs, err := xmetrics.NewOTelObserver(xmetrics.WithTracerProvider(tp))
	require.NoError(t, err)

	inner := catalogtest.New(catalogtest.Fixture())
	s := newResilient(t, inner, catalog.ResilienceConfig{}, catalog.WithObserver(obs))
	ctx := context.Background()

	require.NoError(t, s.IncrementViews(ctx, "t1"))
	_, err = s.ToolBySlug(ctx, "writebot")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	names := make([]string, 0, 2)
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	assert.Equal(t, []string{"catalog.store.increment_views", "catalog.store.tool_by_slug"}, names)
	assert.Equal(t, int64(1), inner.Views("t1"))

	_, err = s.ListTools(ctx, catalog.ToolQuery{})
	assert.ErrorIs(t, err, catalog.ErrStoreClosed)
}

func TestDefaultResilienceConfig(t *testing.T) {
	cfg := catalog.DefaultResilienceConfig()
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
}
