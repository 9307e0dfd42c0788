package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/catalog/catalogtest"
	"github.com/omeyang/toolhub/internal/catalog/sqlite"
	"github.com/omeyang/toolhub/pkg/lifecycle/xrun"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func writeSeed(t *testing.T, dir string) string {
	t.Helper()
	tools, cats := catalogtest.Fixture()
	raw, err := json.Marshal(sqlite.SeedData{Tools: tools, Categories: cats})
	require.NoError(t, err)
	path := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Store.SQLite.Path = filepath.Join(dir, "toolhub.db")
	cfg.Store.SQLite.SeedFile = writeSeed(t, dir)
	cfg.Site.BaseURL = "https://toolhub.example"
	cfg.Warmup.Schedule = "@every 1h"
	return cfg
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("TOOLHUB_CACHE__TTL", "5m")
	t.Setenv("TOOLHUB_SITE__BASE_URL", "https://env.example/")

	cfg, src, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, src.Path())
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, DefaultConfig().Cache.Capacity, cfg.Cache.Capacity)
	assert.Equal(t, "https://env.example", cfg.Site.BaseURL, "末尾斜杠被去掉")
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolhub.yaml")
	writeFile(t, path, `
server:
  addr: ":9090"
cache:
  capacity: 50
store:
  driver: rest
  rest:
    url: https://db.example
    api_key: anon
warmup:
  schedule: "*/10 * * * *"
log:
  level: debug
`)

	cfg, src, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Path())
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, DefaultConfig().Cache.TTL, cfg.Cache.TTL, "未出现的字段保留默认值")
	assert.Equal(t, DriverREST, cfg.Store.Driver)
	assert.Equal(t, "https://db.example", cfg.Store.REST.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Store.REST.Timeout)
	assert.Equal(t, "*/10 * * * *", cfg.Warmup.Schedule)
	assert.True(t, cfg.Warmup.RunOnStart)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "store:\n  driver: mongo\n")
	_, _, err = Load(path)
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Store.Driver = DriverREST
	assert.ErrorContains(t, cfg.Validate(), "store.rest.url")

	cfg = DefaultConfig()
	cfg.Cache.TTL = 0
	cfg.Server.Addr = ""
	err := cfg.Validate()
	assert.ErrorContains(t, err, "cache.capacity")
	assert.ErrorContains(t, err, "server.addr")
}

func TestNew_SQLiteSeeded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	a, err := New(context.Background(), testConfig(t),
		WithLogOutput(io.Discard), WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close(context.Background())) })

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool           `json:"success"`
		Data    []catalog.Tool `json:"data"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Data)
	assert.Equal(t, len(body.Data), body.Count)

	report, ran := a.Warmup().RunOnce(context.Background())
	assert.True(t, ran)
	assert.Zero(t, report.Failed)
	assert.Positive(t, a.Service().Stats().Len)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names[catalog.MetricCacheEntries])
	assert.True(t, names[catalog.MetricCacheHits])
}

func TestNew_InjectedStoreAndNoTelemetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.Enabled = false
	tools, cats := catalogtest.Fixture()
	store := catalogtest.New(tools, cats)

	a, err := New(context.Background(), cfg, WithStore(store), WithLogOutput(io.Discard))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(context.Background())) }()

	robots := a.Robots()
	assert.Contains(t, robots, "User-agent: *")
	assert.Contains(t, robots, "Sitemap: https://toolhub.example/sitemap.xml")

	xml, err := a.Sitemap(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(xml), "<?xml"))
	assert.Contains(t, string(xml), "https://toolhub.example/ai/writebot")
	assert.Positive(t, store.Calls("ListTools"))
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "mongo"
	_, err := New(context.Background(), cfg)
	require.ErrorIs(t, err, ErrUnknownDriver)

	cfg = testConfig(t)
	cfg.Store.SQLite.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = New(context.Background(), cfg, WithLogOutput(io.Discard))
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Log.Level = "loud"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Warmup.Schedule = "never"
	_, err = New(context.Background(), cfg, WithLogOutput(io.Discard))
	require.Error(t, err)
}

func TestNew_FailureClosesInjectedStore(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid config", func(c *Config) { c.Cache.Capacity = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad schedule", func(c *Config) { c.Warmup.Schedule = "never" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Telemetry.Enabled = false
			tt.mutate(&cfg)
			store := catalogtest.New(catalogtest.Fixture())

			_, err := New(context.Background(), cfg, WithStore(store), WithLogOutput(io.Discard))
			require.Error(t, err)
			assert.True(t, store.Closed(), "New 失败时注入的存储被关闭")
		})
	}
}

func TestApp_ConfigChangeUpdatesLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolhub.yaml")
	writeFile(t, path, "log:\n  level: info\n")
	_, src, err := Load(path)
	require.NoError(t, err)

	a, err := New(context.Background(), testConfig(t), WithSource(src), WithLogOutput(io.Discard))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(context.Background())) }()
	require.Equal(t, xlog.LevelInfo, a.Logger().GetLevel())

	writeFile(t, path, "log:\n  level: debug\n")
	require.NoError(t, src.Reload())
	a.onConfigChange(src, nil)
	assert.Equal(t, xlog.LevelDebug, a.Logger().GetLevel())

	writeFile(t, path, "log:\n  level: shouting\n")
	require.NoError(t, src.Reload())
	a.onConfigChange(src, nil)
	assert.Equal(t, xlog.LevelDebug, a.Logger().GetLevel(), "非法级别被忽略")

	a.onConfigChange(src, assert.AnError)
	assert.Equal(t, xlog.LevelDebug, a.Logger().GetLevel())
}

func TestApp_Run(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolhub.yaml")
	writeFile(t, path, "log:\n  level: info\n")
	_, src, err := Load(path)
	require.NoError(t, err)

	a, err := New(context.Background(), testConfig(t), WithSource(src), WithLogOutput(io.Discard))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(context.Background())) }()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx, xrun.WithoutSignalHandler()) }()

	require.Eventually(t, func() bool { return a.Warmup().Stats().Runs == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
