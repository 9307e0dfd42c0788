// Package xbreaker 提供基于 sony/gobreaker/v2 的熔断器。
//
// 熔断拒绝以 *BreakerError 返回，Retryable() 为 false，
// 与 xretry 组合时外层先熔断、内层再重试：
//
//	err := breaker.Do(ctx, func(ctx context.Context) error {
//	    return retryer.Do(ctx, call)
//	})
//
// 业务层"不存在"之类的结果可通过 WithExcludedErrors 排除在失败统计之外。
package xbreaker
