// Package xlog 基于 log/slog 的结构化日志。
//
// # 创建 Logger
//
// Builder 模式，first-error-wins：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xetcdctl.log", xlog.RotationConfig{MaxBackups: 3}).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// 轮转基于 lumberjack。库代码默认使用 [Discard]，不产生任何输出。
//
// # Trace 注入
//
// 默认启用 [EnrichHandler]：ctx 中有有效的 OpenTelemetry span 时，
// 每条日志自动带上 trace_id 和 span_id。
//
// # 便捷属性
//
// [Err]、[Duration]、[Component]、[Operation]、[Method]、[URL]、[Key]、[Server]、[Attempt]。
package xlog
