// Package app 组装 toolhub 进程：日志、遥测、目录存储、读穿缓存、
// HTTP 服务与定时预热，并提供配置文件热更新日志级别。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/catalog/rest"
	"github.com/omeyang/toolhub/internal/catalog/sqlite"
	"github.com/omeyang/toolhub/internal/seo"
	"github.com/omeyang/toolhub/internal/server"
	"github.com/omeyang/toolhub/internal/warmup"
	"github.com/omeyang/toolhub/pkg/config/xconf"
	"github.com/omeyang/toolhub/pkg/lifecycle/xrun"
	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/observability/xmetrics"
	"github.com/omeyang/toolhub/pkg/observability/xrotate"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

const configDebounce = 500 * time.Millisecond

// App 持有进程内所有组件，New 创建、Run 运行、Close 释放。
type App struct {
	cfg    Config
	source xconf.Config

	logger   xlog.LoggerWithLevel
	closeLog func() error

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsReg     metric.Registration
	observer       xmetrics.Observer

	store   catalog.Store
	cache   *xttl.Cache
	service *catalog.Service
	server  *server.Server
	warmup  *warmup.Scheduler
}

// Option App 选项
type Option func(*options)

type options struct {
	source       xconf.Config
	logOutput    io.Writer
	metricReader sdkmetric.Reader
	store        catalog.Store
}

// WithSource 设置配置来源，Run 时监视其文件变更以热更新日志级别
func WithSource(src xconf.Config) Option {
	return func(o *options) { o.source = src }
}

// WithLogOutput 日志输出到 w（未配置 log.file 时生效）
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithMetricReader 为 MeterProvider 挂载 Reader（导出器或测试用 ManualReader）
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// WithStore 使用外部存储替代按配置打开的存储，App 关闭时一并关闭
func WithStore(s catalog.Store) Option {
	return func(o *options) { o.store = s }
}

// New 按配置组装所有组件。失败时已创建的组件会被释放。
func New(ctx context.Context, cfg Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	// 注入的存储从这里起归 App 所有，之后任何一步失败都由 Close 释放
	a := &App{source: o.source, store: o.store}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close(context.Background()))
		}
	}()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Site = cfg.Site.Normalize()
	a.cfg = cfg

	if err = a.initLogger(o.logOutput); err != nil {
		return nil, err
	}
	if err = a.initTelemetry(o.metricReader); err != nil {
		return nil, err
	}

	if a.store == nil {
		var opened catalog.Store
		if opened, err = a.openStore(ctx); err != nil {
			return nil, err
		}
		a.store = opened
	}
	a.store = catalog.NewResilientStore(a.store, cfg.Store.Resilience,
		catalog.WithObserver(a.observer),
		catalog.WithStoreLogger(a.logger),
	)

	a.cache, err = xttl.New(cfg.Cache.ttlConfig(),
		xttl.WithLogger(a.logger),
		xttl.WithPreloadConcurrency(cfg.Cache.PreloadConcurrency),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create cache: %w", err)
	}

	a.service, err = catalog.NewService(a.store, a.cache,
		catalog.WithLogger(a.logger),
		catalog.WithViewConfig(cfg.Views),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create catalog service: %w", err)
	}
	if a.meterProvider != nil {
		meter := a.meterProvider.Meter(cfg.Telemetry.ServiceName)
		if a.metricsReg, err = catalog.RegisterMetrics(meter, a.service); err != nil {
			return nil, err
		}
	}

	a.server = server.New(cfg.Server, cfg.Site, a.service,
		server.WithLogger(a.logger),
		server.WithObserver(a.observer),
	)
	a.warmup, err = warmup.New(cfg.Warmup, a.service, warmup.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initLogger(out io.Writer) error {
	c := a.cfg.Log
	b := xlog.New().
		SetLevelString(c.Level).
		SetFormat(c.Format).
		SetAddSource(c.AddSource).
		SetEnrich(true)
	switch {
	case c.File != "":
		b = b.SetRotation(c.File,
			xrotate.WithMaxSize(c.MaxSizeMB),
			xrotate.WithMaxBackups(c.MaxBackups),
			xrotate.WithMaxAge(c.MaxAgeDays),
			xrotate.WithCompress(c.Compress),
		)
	case out != nil:
		b = b.SetOutput(out)
	}
	logger, closeLog, err := b.Build()
	if err != nil {
		return fmt.Errorf("app: build logger: %w", err)
	}
	a.logger, a.closeLog = logger, closeLog
	return nil
}

func (a *App) initTelemetry(reader sdkmetric.Reader) error {
	if !a.cfg.Telemetry.Enabled {
		a.observer = xmetrics.NoopObserver{}
		return nil
	}
	res := resource.NewSchemaless(attribute.String("service.name", a.cfg.Telemetry.ServiceName))
	a.tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mopts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		mopts = append(mopts, sdkmetric.WithReader(reader))
	}
	a.meterProvider = sdkmetric.NewMeterProvider(mopts...)

	obs, err := xmetrics.NewOTelObserver(
		xmetrics.WithInstrumentationName(a.cfg.Telemetry.ServiceName),
		xmetrics.WithTracerProvider(a.tracerProvider),
		xmetrics.WithMeterProvider(a.meterProvider),
	)
	if err != nil {
		return err
	}
	a.observer = obs
	return nil
}

func (a *App) openStore(ctx context.Context) (catalog.Store, error) {
	sc := a.cfg.Store
	switch sc.Driver {
	case DriverREST:
		s, err := rest.New(sc.REST)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := sqlite.Open(ctx, sc.SQLite.Path, sqlite.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		if sc.SQLite.SeedFile == "" {
			return s, nil
		}
		data, err := sqlite.LoadSeedFile(sc.SQLite.SeedFile)
		if err == nil {
			err = s.Seed(ctx, data)
		}
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		a.logger.Info(ctx, "catalog seeded",
			slog.String("file", sc.SQLite.SeedFile),
			slog.Int("tools", len(data.Tools)),
			slog.Int("categories", len(data.Categories)),
		)
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, sc.Driver)
	}
}

// Logger 返回应用日志
func (a *App) Logger() xlog.LoggerWithLevel { return a.logger }

// Service 返回目录服务
func (a *App) Service() *catalog.Service { return a.service }

// Server 返回 HTTP 服务
func (a *App) Server() *server.Server { return a.server }

// Warmup 返回预热调度器
func (a *App) Warmup() *warmup.Scheduler { return a.warmup }

// Sitemap 生成当前站点地图 XML
func (a *App) Sitemap(ctx context.Context) ([]byte, error) {
	gen := seo.NewSitemapGenerator(a.cfg.Site, a.service, seo.WithLogger(a.logger))
	return gen.Generate(ctx).XML()
}

// Robots 返回 robots.txt 内容
func (a *App) Robots() string {
	return seo.DefaultRobots(a.cfg.Site).String()
}

// Run 运行 HTTP 服务、定时预热和配置监视，阻塞到 ctx 取消、收到信号或任一服务失败。
// 收到信号时返回的错误满足 errors.Is(err, xrun.ErrSignal)。
func (a *App) Run(ctx context.Context, opts ...xrun.Option) error {
	services := map[string]func(ctx context.Context) error{
		"http":   xrun.HTTPServer(a.server.HTTPServer(), a.server.ShutdownTimeout()),
		"warmup": a.warmup.Run,
	}
	if a.source != nil && a.source.Path() != "" {
		w, err := xconf.Watch(a.source, a.onConfigChange, xconf.WithDebounce(configDebounce))
		if err != nil {
			a.logger.Warn(ctx, "config watch disabled", xlog.Err(err))
		} else {
			services["config-watch"] = w.Run
		}
	}

	a.logger.Info(ctx, "toolhub starting",
		slog.String("addr", a.cfg.Server.Addr),
		slog.String("store", a.cfg.Store.Driver),
		slog.String("site", a.cfg.Site.BaseURL),
	)
	runOpts := append([]xrun.Option{xrun.WithLogger(a.logger), xrun.WithName("toolhub")}, opts...)
	return xrun.Run(ctx, runOpts, services)
}

// onConfigChange 配置文件变更后只应用日志级别，其余字段需重启生效
func (a *App) onConfigChange(src xconf.Config, err error) {
	ctx := context.Background()
	if err != nil {
		a.logger.Warn(ctx, "config reload failed", xlog.Err(err))
		return
	}
	var lc LogConfig
	if err := src.Unmarshal("log", &lc); err != nil {
		a.logger.Warn(ctx, "config decode failed", xlog.Err(err))
		return
	}
	if lc.Level == "" {
		return
	}
	level, err := xlog.ParseLevel(lc.Level)
	if err != nil {
		a.logger.Warn(ctx, "invalid log level in config", slog.String("level", lc.Level), xlog.Err(err))
		return
	}
	if level != a.logger.GetLevel() {
		a.logger.SetLevel(level)
		a.logger.Info(ctx, "log level changed", slog.String("level", lc.Level))
	}
}

// Close 按依赖逆序释放组件：先排空浏览上报，再关闭存储、遥测和日志。
// 可在 New 失败的半初始化状态上调用。
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.service != nil {
		errs = append(errs, a.service.Close(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.metricsReg != nil {
		errs = append(errs, a.metricsReg.Unregister())
	}
	if a.meterProvider != nil {
		errs = append(errs, a.meterProvider.Shutdown(ctx))
	}
	if a.tracerProvider != nil {
		errs = append(errs, a.tracerProvider.Shutdown(ctx))
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
	}
	return errors.Join(errs...)
}
