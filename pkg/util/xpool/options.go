package xpool

import (
	"context"
	"errors"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

var (
	ErrNilHandler       = errors.New("xpool: handler cannot be nil")
	ErrPoolStopped      = errors.New("xpool: pool is stopped")
	ErrQueueFull        = errors.New("xpool: queue is full")
	ErrInvalidWorkers   = errors.New("xpool: invalid worker count")
	ErrInvalidQueueSize = errors.New("xpool: invalid queue size")
	ErrNilContext       = errors.New("xpool: nil context")
)

// Option 定义 Pool 可选配置函数类型。
type Option func(*options)

type options struct {
	logger xlog.Logger
	name   string
	ctx    context.Context
}

func defaultOptions() options {
	return options{
		logger: xlog.Default(),
		ctx:    context.Background(),
	}
}

// WithLogger 设置日志记录器，nil 忽略
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 pool 名称，用于区分日志来源
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithContext 设置传给 handler 的基础 context。
//
// 任务在请求结束后才执行，不能沿用请求 ctx；需要超时的 handler 应自行派生。
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}
