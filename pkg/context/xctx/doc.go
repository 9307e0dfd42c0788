// Package xctx 管理请求级 context 字段（request_id、trace_id、span_id）。
//
// # 使用方式
//
// HTTP 中间件在入口处调用 [WithRequestID] 注入请求 ID，
// 下游通过 [RequestID] 读取，日志层通过 [AppendTraceAttrs] 自动注入。
//
// 所有 With* 函数在 ctx 为 nil 时返回 [ErrNilContext]；读取函数对 nil ctx 返回空字符串。
//
// # Require 模式
//
// [RequireRequestID]、[RequireTraceID] 在字段缺失时返回错误，
// 用于必须携带追踪信息的调用路径。
package xctx
