package xretry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Retryer 重试执行器，组合最大尝试次数与退避策略，底层使用 avast/retry-go/v5。
type Retryer struct {
	maxAttempts int
	backoff     BackoffPolicy
	onRetry     func(attempt int, err error)
}

// RetryerOption 执行器配置选项
type RetryerOption func(*Retryer)

// WithMaxAttempts 设置最大尝试次数（包含首次），最小为 1
func WithMaxAttempts(n int) RetryerOption {
	return func(r *Retryer) {
		r.maxAttempts = max(n, 1)
	}
}

// WithBackoff 设置退避策略
func WithBackoff(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoff = p
		}
	}
}

// WithOnRetry 设置重试回调，attempt 从 1 开始
func WithOnRetry(fn func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if fn != nil {
			r.onRetry = fn
		}
	}
}

// NewRetryer 创建重试执行器，默认 3 次尝试 + 指数退避
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		maxAttempts: 3,
		backoff:     NewExponentialBackoff(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// MaxAttempts 返回最大尝试次数
func (r *Retryer) MaxAttempts() int {
	return r.maxAttempts
}

// Do 执行带重试的操作。
//
// PermanentError、Unrecoverable 包装的错误以及 ctx 取消会立即终止重试，
// 返回最后一次错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(r.options(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult 执行带重试的操作（有返回值），语义同 Retryer.Do
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](r.options(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

func (r *Retryer) options(ctx context.Context) []retry.Option {
	backoff := r.backoff
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(max(r.maxAttempts, 1))), //nolint:gosec // 已保证为正数
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && IsRetryable(err)
		}),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return backoff.NextDelay(int(n)) //nolint:gosec // n 不超过 maxAttempts
		}),
		retry.LastErrorOnly(true),
	}
	if r.onRetry != nil {
		onRetry := r.onRetry
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			onRetry(int(n)+1, err) //nolint:gosec // n 不超过 maxAttempts
		}))
	}
	return opts
}
