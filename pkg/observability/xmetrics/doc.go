// Package xmetrics 为 xetcdv2 提供最小化的观测接口（metrics + tracing）。
//
// 业务代码只依赖 Observer/Span/Attr 三个抽象，默认实现基于 OpenTelemetry。
// 未配置 Observer 时使用 NoopObserver，观测逻辑零开销。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xetcdv2",
//		Operation: "set",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标
//
//   - xetcdv2.operation.total（计数，单位 1）
//   - xetcdv2.operation.duration（直方图，单位 s）
//
// 两者都带 component / operation / status 三个属性。
package xmetrics
