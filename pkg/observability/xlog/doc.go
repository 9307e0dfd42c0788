// Package xlog 基于 log/slog 的结构化日志库。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式、轮转）
//   - 自动从 context 注入 request_id、trace_id（EnrichHandler，默认启用）
//   - 动态级别调整（配置热更新时调用 SetLevel）
//   - 全局 Logger 便利函数
//
// # 创建 Logger
//
// Builder 为 first-error-wins：遇到第一个配置错误后，Build 返回该错误。
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/toolhub/app.log").
//		Build()
//	defer cleanup()
//
// # 全局 Logger
//
// 适用于 CLI 子命令等简单场景，服务端组件通过依赖注入持有 [Logger]。
// [Default] 惰性初始化（stderr、Info、text），[SetDefault] 替换。
//
// # 便捷属性
//
// [Err]、[Duration]、[Component]、[Operation]、[Count]、[Key]、[StatusCode]、[Method]、[Path]。
package xlog
