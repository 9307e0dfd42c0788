package xttl

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/toolhub/pkg/observability/xlog"
)

// Fetcher 按 key 从数据源拉取值。
type Fetcher func(ctx context.Context, key string) (any, error)

// PreloadReport 预加载结果汇总。
type PreloadReport struct {
	// Requested 去重后的键数量
	Requested int `json:"requested"`
	// Skipped 已存在且未过期、无需拉取的键数量
	Skipped int `json:"skipped"`
	// Loaded 拉取并成功写入的键数量
	Loaded int `json:"loaded"`
	// Failed 拉取失败、panic 或值不可表示的键数量
	Failed int `json:"failed"`
}

// Preload 为 keys 中当前不可命中的键并发调用 fetch，并写入成功的结果。
//
// 重复的键只拉取一次。单个键的失败（返回错误、panic、值不可表示）被记录后吞掉，
// 不影响其他键；兄弟任务之间不互相取消。所有拉取结束后才返回。
// 完成顺序不作保证。ctx 取消后尚未开始的拉取会被跳过并计为失败。
func (c *Cache) Preload(ctx context.Context, keys []string, fetch Fetcher) PreloadReport {
	var report PreloadReport
	if fetch == nil || len(keys) == 0 {
		return report
	}

	seen := make(map[string]struct{}, len(keys))
	pending := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if c.Contains(key) {
			report.Skipped++
			continue
		}
		pending = append(pending, key)
	}
	report.Requested = len(seen)

	// 设计决策: 使用零值 errgroup.Group 而非 WithContext，单个失败不取消兄弟任务。
	var g errgroup.Group
	if c.preloadConcurrency > 0 {
		g.SetLimit(c.preloadConcurrency)
	}

	var loaded, failed atomic.Int64
	for _, key := range pending {
		g.Go(func() error {
			if c.preloadOne(ctx, key, fetch) {
				loaded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // 任务从不返回错误

	report.Loaded = int(loaded.Load())
	report.Failed = int(failed.Load())
	c.logger.Debug(ctx, "xttl: preload finished",
		xlog.Count(int64(report.Requested)),
		xlog.Operation("preload"),
	)
	return report
}

func (c *Cache) preloadOne(ctx context.Context, key string, fetch Fetcher) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "xttl: preload fetcher panicked",
				xlog.Key(key), xlog.Err(&panicError{value: r}))
			ok = false
		}
	}()

	if err := ctx.Err(); err != nil {
		c.logger.Warn(ctx, "xttl: preload skipped", xlog.Key(key), xlog.Err(err))
		return false
	}

	value, err := fetch(ctx, key)
	if err != nil {
		c.logger.Warn(ctx, "xttl: preload fetch failed", xlog.Key(key), xlog.Err(err))
		return false
	}
	return c.Set(key, value)
}
