package xttl

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity 表示容量配置无效。
	ErrInvalidCapacity = errors.New("xttl: capacity must be greater than 0")

	// ErrCapacityExceedsMax 表示容量超过上限 (16,777,216)。
	ErrCapacityExceedsMax = errors.New("xttl: capacity must not exceed 16777216")

	// ErrInvalidTTL 表示 TTL 配置无效。
	ErrInvalidTTL = errors.New("xttl: TTL must be greater than 0")
)

// panicError 将编码或拉取过程中恢复的 panic 转为错误，便于统一记录
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("xttl: recovered panic: %v", e.value)
}
