package xttl

import (
	"github.com/jonboulle/clockwork"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

// EvictReason 条目被移出缓存的原因
type EvictReason string

const (
	// EvictCapacity 容量已满，淘汰最早插入的条目
	EvictCapacity EvictReason = "capacity"

	// EvictExpired 条目超过 TTL，被惰性删除
	EvictExpired EvictReason = "expired"
)

// Option 定义缓存可选配置函数类型。
type Option func(*options)

type options struct {
	clock              clockwork.Clock
	logger             xlog.Logger
	preloadConcurrency int
	onEvicted          func(key string, reason EvictReason)
}

func defaultOptions() *options {
	return &options{
		clock:  clockwork.NewRealClock(),
		logger: xlog.Default(),
	}
}

// WithClock 注入时钟，测试中使用 clockwork.NewFakeClock()。
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger 设置预加载失败等事件的日志输出。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPreloadConcurrency 限制 Preload 同时进行的拉取数量，n <= 0 表示不限制。
func WithPreloadConcurrency(n int) Option {
	return func(o *options) {
		o.preloadConcurrency = n
	}
}

// WithOnEvicted 设置条目因容量或过期被移出时的回调。
//
// 回调在释放锁之后同步执行，可以安全调用 Cache 的方法，但应避免耗时操作。
func WithOnEvicted(fn func(key string, reason EvictReason)) Option {
	return func(o *options) {
		o.onEvicted = fn
	}
}
