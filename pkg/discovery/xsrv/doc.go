// Package xsrv 通过 DNS SRV 记录发现 etcd 服务地址。
//
// GetServers 查询一个完整的 SRV 记录名（例如 "_etcd-client._tcp.example.com"），
// PickServer 从结果中挑选一个：优先级数值最小的一组胜出，组内均匀随机。
// SRV 的 Weight 字段会被解析并保留，但挑选时不参与计算。
//
//	d := xsrv.NewDiscoverer()
//	srv, err := d.Discover(ctx, "_etcd-client._tcp.example.com")
//	if err != nil {
//		return err
//	}
//	err = client.SetServer(srv.URL("https"))
//
// 每次调用都重新查询 DNS，不缓存结果。
package xsrv
