// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xetcdv2: etcd v2 HTTP keys API 客户端
//   - xetcdv2/xetcdv2test: 测试用的内存 etcd v2 服务端
package storage
