package xsrv

import (
	"context"
	"net"
)

//go:generate mockgen -source=resolver.go -destination=mock_resolver_test.go -package=xsrv

// Resolver 查询 SRV 记录，*net.Resolver 满足此接口。
//
// service 和 proto 为空时，name 按完整记录名直接查询。
type Resolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

var _ Resolver = (*net.Resolver)(nil)
