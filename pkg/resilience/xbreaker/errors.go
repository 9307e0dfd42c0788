package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrNilBreaker 传入的 Breaker 为 nil
	ErrNilBreaker = errors.New("xbreaker: nil breaker")

	// ErrNilContext 传入的 context 为 nil
	ErrNilContext = errors.New("xbreaker: nil context")

	// ErrNilFunc 传入的操作函数为 nil
	ErrNilFunc = errors.New("xbreaker: nil function")
)

// BreakerError 熔断拒绝错误，包装 gobreaker.ErrOpenState 或 gobreaker.ErrTooManyRequests。
//
// 实现 Retryable() 返回 false，与 xretry 组合时不会继续退避重试。
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

func (e *BreakerError) Unwrap() error { return e.Err }

// Retryable 熔断拒绝不可重试
func (e *BreakerError) Retryable() bool { return false }

// wrapBreakerError 只包装当前熔断器直接返回的 sentinel，
// 已是 BreakerError 的错误（嵌套熔断器）原样返回。
// 状态从错误类型推导，不回查 State()，避免与并发状态迁移竞争。
func wrapBreakerError(err error, name string) error {
	if err == nil {
		return nil
	}
	var be *BreakerError
	if errors.As(err, &be) {
		return err
	}
	switch {
	case err == gobreaker.ErrOpenState: //nolint:errorlint // 只识别直接返回值
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case err == gobreaker.ErrTooManyRequests: //nolint:errorlint // 同上
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	default:
		return err
	}
}

// IsOpen 判断错误是否为熔断器打开导致的拒绝
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsTooManyRequests 判断错误是否为半开状态请求过多导致的拒绝
func IsTooManyRequests(err error) bool {
	return errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsRejected 判断错误是否为熔断器拒绝（Open 或 HalfOpen 限流）
func IsRejected(err error) bool {
	return IsOpen(err) || IsTooManyRequests(err)
}
