package xretry

import (
	"errors"

	retry "github.com/avast/retry-go/v5"
)

var (
	// ErrNilContext 传入的 context 为 nil
	ErrNilContext = errors.New("xretry: nil context")

	// ErrNilFunc 传入的执行函数为 nil
	ErrNilFunc = errors.New("xretry: nil function")
)

// RetryableError 可重试错误接口，实现此接口的错误按 Retryable() 判断
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 永久性错误（不应重试），如数据不存在、参数非法
type PermanentError struct {
	Err error
}

// NewPermanentError 创建永久性错误
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Retryable 永远返回 false
func (e *PermanentError) Retryable() bool { return false }

// IsRetryable 检查错误是否可重试
// 规则：
//   - nil 错误：不需要重试
//   - retry-go Unrecoverable 包装：不重试
//   - 实现 RetryableError 接口：根据 Retryable() 判断
//   - 其他错误：默认可重试
func IsRetryable(err error) bool {
	if err == nil || !retry.IsRecoverable(err) {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// Unrecoverable 将错误标记为不可恢复（retry-go 原生标记）
var Unrecoverable = retry.Unrecoverable
