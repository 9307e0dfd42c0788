package xbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State 熔断器状态（Closed / HalfOpen / Open）
type State = gobreaker.State

// Counts 熔断器统计计数
type Counts = gobreaker.Counts

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

const (
	defaultFailureThreshold = 5
	defaultTimeout          = 30 * time.Second
	defaultMaxRequests      = 1
)

// TripPolicy 根据统计计数判断是否应当熔断
type TripPolicy func(counts Counts) bool

// ConsecutiveFailures 连续失败 threshold 次后熔断，threshold < 1 时取 1
func ConsecutiveFailures(threshold uint32) TripPolicy {
	threshold = max(threshold, 1)
	return func(counts Counts) bool {
		return counts.ConsecutiveFailures >= threshold
	}
}

// FailureRatio 请求数达到 minRequests 且失败率不低于 ratio 时熔断
func FailureRatio(ratio float64, minRequests uint32) TripPolicy {
	return func(counts Counts) bool {
		if counts.Requests == 0 || counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// Breaker 熔断器，包装 gobreaker.CircuitBreaker。
type Breaker struct {
	name          string
	tripPolicy    TripPolicy
	timeout       time.Duration
	interval      time.Duration
	maxRequests   uint32
	isSuccessful  func(err error) bool
	onStateChange func(name string, from, to State)

	cb *gobreaker.CircuitBreaker[any]
}

// BreakerOption 熔断器配置选项
type BreakerOption func(*Breaker)

// WithTripPolicy 设置熔断策略，默认连续失败 5 次
func WithTripPolicy(p TripPolicy) BreakerOption {
	return func(b *Breaker) {
		if p != nil {
			b.tripPolicy = p
		}
	}
}

// WithTimeout 设置 Open 状态持续时间，到期后进入 HalfOpen
func WithTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval 设置 Closed 状态下清空计数的周期，0 表示不清空
func WithInterval(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d >= 0 {
			b.interval = d
		}
	}
}

// WithMaxRequests 设置 HalfOpen 状态允许通过的请求数
func WithMaxRequests(n uint32) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithExcludedErrors 设置不计入失败的判定函数。
//
// 例如"数据不存在"属于业务结果，不代表下游故障，不应触发熔断。
func WithExcludedErrors(excluded func(err error) bool) BreakerOption {
	return func(b *Breaker) {
		if excluded == nil {
			return
		}
		b.isSuccessful = func(err error) bool {
			return err == nil || excluded(err)
		}
	}
}

// WithOnStateChange 设置状态变化回调
func WithOnStateChange(fn func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// NewBreaker 创建熔断器
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:        name,
		tripPolicy:  ConsecutiveFailures(defaultFailureThreshold),
		timeout:     defaultTimeout,
		maxRequests: defaultMaxRequests,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	st := gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Interval:    b.interval,
		Timeout:     b.timeout,
		ReadyToTrip: b.tripPolicy,
	}
	if b.isSuccessful != nil {
		st.IsSuccessful = b.isSuccessful
	}
	if b.onStateChange != nil {
		st.OnStateChange = b.onStateChange
	}
	b.cb = gobreaker.NewCircuitBreaker[any](st)
	return b
}

// Do 执行受熔断器保护的操作。
//
// ctx 已取消时直接返回 ctx 错误，不计入统计。
// 熔断拒绝返回 *BreakerError，其 Retryable() 为 false。
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return wrapBreakerError(err, b.name)
}

// Execute 执行受熔断器保护的操作（有返回值），语义同 Breaker.Do
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return zero, ErrNilBreaker
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, wrapBreakerError(err, b.name)
	}
	typed, _ := result.(T)
	return typed, nil
}

// Name 返回熔断器名称
func (b *Breaker) Name() string { return b.name }

// State 返回当前状态
func (b *Breaker) State() State { return b.cb.State() }

// Counts 返回当前统计计数
func (b *Breaker) Counts() Counts { return b.cb.Counts() }
