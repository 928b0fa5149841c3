// Package xetcdv2 提供 etcd v2 HTTP keys API 客户端。
//
// xetcdv2 是一层很薄的封装，负责三件事：
//   - 路径计算：API 版本 + 沙箱根目录 + 键，得到请求路径和 URL
//   - 请求构造：GET/PUT/POST/DELETE，表单编码的请求体和查询条件
//   - 响应映射：JSON 解码，errorCode 映射为带类型的错误，目录树展开
//
// # 基本用法
//
//	client, err := xetcdv2.NewClient(xetcdv2.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	client.SetSandboxRoot("/app")
//
//	if _, err := client.Create(ctx, "config/mode", "blue", 0); xetcdv2.IsKeyExists(err) {
//		// 已有值，保持不变
//	}
//	values, err := client.GetKeyValueMap(ctx, "/", true, "")
//
// # 错误
//
// 所有 etcd 返回的错误都是 *APIError，满足 errors.Is(err, ErrEtcd)；
// 错误码 100 额外满足 ErrKeyNotFound，105 满足 ErrKeyExists。
// 传输层失败返回 *TransportError（ErrTransport）。配置错误为 ErrInvalidConfig，
// 在发起任何请求之前同步返回。客户端内部不做重试，重试由调用方决定。
//
// # 并发
//
// 请求方法并发安全；Set* 配置方法不是。需要不同命名空间时使用
// Clone 或 Sandboxed 得到独立实例，不要在多个 goroutine 中修改同一个实例的根目录。
//
// # 设计边界
//
// 不支持 v3 gRPC 协议、watch/长轮询、选主。
package xetcdv2
