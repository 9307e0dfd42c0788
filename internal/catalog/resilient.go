package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
	"github.com/omeyang/toolhub/pkg/observability/xmetrics"
	"github.com/omeyang/toolhub/pkg/resilience/xbreaker"
	"github.com/omeyang/toolhub/pkg/resilience/xretry"
)

const storeComponent = "catalog.store"

// ResilienceConfig 远端数据源调用的保护参数
type ResilienceConfig struct {
	// Timeout 单次调用超时，默认 5s
	Timeout time.Duration `koanf:"timeout"`
	// RetryAttempts 最大尝试次数（含首次），默认 3
	RetryAttempts int `koanf:"retry_attempts"`
	// BreakerFailures 连续失败多少次后熔断，默认 5
	BreakerFailures uint32 `koanf:"breaker_failures"`
	// BreakerCooldown 熔断打开持续时间，默认 30s
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
	// SlowThreshold 慢调用告警阈值，0 表示关闭
	SlowThreshold time.Duration `koanf:"slow_threshold"`
}

// DefaultResilienceConfig 返回默认保护参数
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Timeout:         5 * time.Second,
		RetryAttempts:   3,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
		SlowThreshold:   time.Second,
	}
}

func (c ResilienceConfig) withDefaults() ResilienceConfig {
	d := DefaultResilienceConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = d.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = d.BreakerCooldown
	}
	return c
}

// ResilientStore 为 Store 的每次调用加上超时、重试、熔断和观测。
//
// 重试在熔断内层：一次 Store 调用无论重试几次，只计一次熔断统计。
// ErrNotFound 等业务结果既不重试也不计入熔断失败。
// 熔断打开或调用超时时返回包装了 ErrUnavailable 的错误。
type ResilientStore struct {
	inner    Store
	cfg      ResilienceConfig
	retryer  *xretry.Retryer
	breaker  *xbreaker.Breaker
	observer xmetrics.Observer
	logger   xlog.Logger
}

// ResilientOption ResilientStore 配置选项
type ResilientOption func(*resilientOptions)

type resilientOptions struct {
	observer xmetrics.Observer
	logger   xlog.Logger
	backoff  xretry.BackoffPolicy
}

// WithObserver 设置观测器，默认不观测
func WithObserver(o xmetrics.Observer) ResilientOption {
	return func(opts *resilientOptions) {
		if o != nil {
			opts.observer = o
		}
	}
}

// WithStoreLogger 设置日志记录器
func WithStoreLogger(l xlog.Logger) ResilientOption {
	return func(opts *resilientOptions) {
		if l != nil {
			opts.logger = l
		}
	}
}

// WithRetryBackoff 覆盖重试退避策略
func WithRetryBackoff(p xretry.BackoffPolicy) ResilientOption {
	return func(opts *resilientOptions) {
		if p != nil {
			opts.backoff = p
		}
	}
}

// NewResilientStore 包装 inner
func NewResilientStore(inner Store, cfg ResilienceConfig, opts ...ResilientOption) *ResilientStore {
	cfg = cfg.withDefaults()
	o := resilientOptions{
		observer: xmetrics.NoopObserver{},
		logger:   xlog.Default(),
		backoff:  xretry.NewExponentialBackoff(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	logger := o.logger.With(xlog.Component(storeComponent))
	retryer := xretry.NewRetryer(
		xretry.WithMaxAttempts(cfg.RetryAttempts),
		xretry.WithBackoff(o.backoff),
		xretry.WithOnRetry(func(attempt int, err error) {
			logger.Debug(context.Background(), "retrying store call",
				slog.Int("attempt", attempt), xlog.Err(err))
		}),
	)
	breaker := xbreaker.NewBreaker(storeComponent,
		xbreaker.WithTripPolicy(xbreaker.ConsecutiveFailures(cfg.BreakerFailures)),
		xbreaker.WithTimeout(cfg.BreakerCooldown),
		xbreaker.WithExcludedErrors(isBusinessError),
		xbreaker.WithOnStateChange(func(name string, from, to xbreaker.State) {
			logger.Warn(context.Background(), "breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
	)

	return &ResilientStore{
		inner:    inner,
		cfg:      cfg,
		retryer:  retryer,
		breaker:  breaker,
		observer: o.observer,
		logger:   logger,
	}
}

// isBusinessError 业务结果或调用方取消，不代表数据源故障
func isBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidSlug) ||
		errors.Is(err, ErrInvalidSubmission) ||
		errors.Is(err, context.Canceled)
}

// BreakerState 返回熔断器当前状态，供健康检查使用
func (s *ResilientStore) BreakerState() xbreaker.State {
	return s.breaker.State()
}

func guard[T any](ctx context.Context, s *ResilientStore, op string, attrs []xmetrics.Attr,
	fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := xmetrics.Start(ctx, s.observer, xmetrics.SpanOptions{
		Component: storeComponent,
		Operation: op,
		Kind:      xmetrics.KindClient,
		Attrs:     attrs,
	})
	start := time.Now()

	v, err := xbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (T, error) {
		return xretry.DoWithResult(ctx, s.retryer, func(ctx context.Context) (T, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			v, err := fn(callCtx)
			if err != nil && (isBusinessError(err) || errors.Is(err, ErrStoreClosed)) {
				return v, xretry.NewPermanentError(err)
			}
			return v, err
		})
	})
	err = s.normalize(ctx, err)

	elapsed := time.Since(start)
	if s.cfg.SlowThreshold > 0 && elapsed >= s.cfg.SlowThreshold {
		s.logger.Warn(ctx, "slow store call", xlog.Operation(op), xlog.Duration(elapsed))
	}

	result := xmetrics.Result{Err: err}
	if errors.Is(err, ErrNotFound) {
		result.Status = xmetrics.StatusOK
	}
	span.End(result)
	return v, err
}

// normalize 剥离重试层的 PermanentError，并把熔断拒绝、调用超时统一为 ErrUnavailable。
func (s *ResilientStore) normalize(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	for {
		pe, ok := err.(*xretry.PermanentError) //nolint:errorlint // 只剥离最外层包装
		if !ok || pe.Err == nil {
			break
		}
		err = pe.Err
	}
	switch {
	case xbreaker.IsRejected(err):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}

func (s *ResilientStore) ListTools(ctx context.Context, q ToolQuery) ([]Tool, error) {
	attrs := []xmetrics.Attr{xmetrics.Int("limit", q.Limit)}
	if q.Category != "" {
		attrs = append(attrs, xmetrics.String("category", q.Category))
	}
	return guard(ctx, s, "list_tools", attrs, func(ctx context.Context) ([]Tool, error) {
		return s.inner.ListTools(ctx, q)
	})
}

func (s *ResilientStore) ToolBySlug(ctx context.Context, slug string) (Tool, error) {
	return guard(ctx, s, "tool_by_slug", []xmetrics.Attr{xmetrics.String("slug", slug)},
		func(ctx context.Context) (Tool, error) {
			return s.inner.ToolBySlug(ctx, slug)
		})
}

func (s *ResilientStore) ListCategories(ctx context.Context, limit int) ([]Category, error) {
	return guard(ctx, s, "list_categories", []xmetrics.Attr{xmetrics.Int("limit", limit)},
		func(ctx context.Context) ([]Category, error) {
			return s.inner.ListCategories(ctx, limit)
		})
}

func (s *ResilientStore) ToolSlugs(ctx context.Context) ([]string, error) {
	return guard(ctx, s, "tool_slugs", nil, s.inner.ToolSlugs)
}

func (s *ResilientStore) IncrementViews(ctx context.Context, toolID string) error {
	_, err := guard(ctx, s, "increment_views", nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.inner.IncrementViews(ctx, toolID)
	})
	return err
}

// SubmitTool 不重试：提交不是幂等操作。
func (s *ResilientStore) SubmitTool(ctx context.Context, sub Submission) (string, error) {
	return guard(ctx, s, "submit_tool", nil, func(ctx context.Context) (string, error) {
		id, err := s.inner.SubmitTool(ctx, sub)
		if err != nil {
			return "", xretry.NewPermanentError(err)
		}
		return id, nil
	})
}

func (s *ResilientStore) Close() error {
	return s.inner.Close()
}

var _ Store = (*ResilientStore)(nil)
