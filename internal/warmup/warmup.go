// Package warmup 定时预热目录缓存。
//
// 基于 robfig/cron/v3 按 Schedule 周期调用 PreloadCritical，
// 同一时刻最多一个预热在执行（上一轮未结束则跳过本轮）。
// Run 阻塞到 ctx 取消，适合注册到 xrun.Group。
package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

// ErrNilTarget 预热目标为 nil
var ErrNilTarget = errors.New("warmup: nil target")

// Config 预热配置
type Config struct {
	// Enabled 为 false 时 Run 直接阻塞到 ctx 取消
	Enabled bool `koanf:"enabled"`
	// Schedule cron 表达式或 @every 描述符
	Schedule string `koanf:"schedule"`
	// Timeout 单次预热超时
	Timeout time.Duration `koanf:"timeout"`
	// RunOnStart 启动时立即预热一次
	RunOnStart bool `koanf:"run_on_start"`
}

// DefaultConfig 每 5 分钟预热一次，启动时立即执行
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Schedule:   "@every 5m",
		Timeout:    30 * time.Second,
		RunOnStart: true,
	}
}

// Preloader 预热目标，由 *catalog.Service 实现
type Preloader interface {
	PreloadCritical(ctx context.Context) xttl.PreloadReport
}

// Stats 预热统计
type Stats struct {
	Runs       uint64             `json:"runs"`
	Skipped    uint64             `json:"skipped"`
	LastRun    time.Time          `json:"last_run"`
	LastReport xttl.PreloadReport `json:"last_report"`
}

// Scheduler 定时预热器
type Scheduler struct {
	cfg      Config
	schedule cron.Schedule
	target   Preloader
	logger   xlog.Logger

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64

	mu         sync.Mutex
	lastRun    time.Time
	lastReport xttl.PreloadReport
}

// Option 预热器选项
type Option func(*Scheduler)

// WithLogger 设置日志
func WithLogger(l xlog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 创建预热器，Schedule 非法时返回错误。
func New(cfg Config, target Preloader, opts ...Option) (*Scheduler, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	def := DefaultConfig()
	if cfg.Schedule == "" {
		cfg.Schedule = def.Schedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("warmup: invalid schedule %q: %w", cfg.Schedule, err)
	}
	s := &Scheduler{
		cfg:      cfg,
		schedule: schedule,
		target:   target,
		logger:   xlog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// RunOnce 立即执行一次预热。上一轮仍在执行时跳过并返回 false。
func (s *Scheduler) RunOnce(ctx context.Context) (report xttl.PreloadReport, ran bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Debug(ctx, "warmup still running, skipped", xlog.Component("warmup"))
		return xttl.PreloadReport{}, false
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Stack(ctx, "warmup panic", xlog.Component("warmup"), slog.Any("panic", r))
			report, ran = xttl.PreloadReport{}, true
		}
	}()

	report = s.target.PreloadCritical(ctx)
	s.runs.Add(1)

	s.mu.Lock()
	s.lastRun = start
	s.lastReport = report
	s.mu.Unlock()

	attrs := []slog.Attr{
		xlog.Component("warmup"),
		slog.Int("requested", report.Requested),
		slog.Int("skipped", report.Skipped),
		slog.Int("loaded", report.Loaded),
		slog.Int("failed", report.Failed),
		xlog.Duration(time.Since(start)),
	}
	if report.Failed > 0 {
		s.logger.Warn(ctx, "warmup finished with failures", attrs...)
	} else {
		s.logger.Info(ctx, "warmup finished", attrs...)
	}
	return report, true
}

// Run 启动定时预热，阻塞到 ctx 取消；返回前等待正在执行的预热结束。
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithLogger(cronLogger{ctx: ctx, logger: s.logger}))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.RunOnce(ctx) }))

	var wg sync.WaitGroup
	if s.cfg.RunOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunOnce(ctx)
		}()
	}

	c.Start()
	s.logger.Info(ctx, "warmup scheduler started",
		xlog.Component("warmup"), slog.String("schedule", s.cfg.Schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	wg.Wait()
	return nil
}

// Stats 返回统计快照
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Runs:       s.runs.Load(),
		Skipped:    s.skipped.Load(),
		LastRun:    s.lastRun,
		LastReport: s.lastReport,
	}
}

// Next 返回 from 之后的下一次调度时间
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// cronLogger 将 cron.Logger 适配到 xlog
type cronLogger struct {
	ctx    context.Context
	logger xlog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(l.ctx, "cron: "+msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	attrs := append(kvAttrs(keysAndValues), xlog.Err(err))
	l.logger.Error(l.ctx, "cron: "+msg, attrs...)
}

func kvAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}
