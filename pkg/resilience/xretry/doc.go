// Package xretry 提供带退避的重试执行器，基于 avast/retry-go/v5。
//
// 默认所有错误可重试；以下情况立即停止：
//   - [PermanentError] 或实现 [RetryableError] 且 Retryable() 为 false
//   - 使用 [Unrecoverable] 包装的错误
//   - context 已取消或超时
//
// 示例：
//
//	r := xretry.NewRetryer(xretry.WithMaxAttempts(3))
//	tools, err := xretry.DoWithResult(ctx, r, func(ctx context.Context) ([]Tool, error) {
//	    return store.ListTools(ctx, q)
//	})
package xretry
