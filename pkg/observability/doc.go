// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，支持 lumberjack 文件轮转
//   - xmetrics: 统一观测接口（指标、追踪），默认实现基于 OpenTelemetry
//
// 日志自动从 context 中的 span 提取 trace_id / span_id。
package observability
