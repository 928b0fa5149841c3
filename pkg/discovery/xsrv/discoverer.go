package xsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/observability/xmetrics"
)

// 观测常量。
const (
	MetricsComponent  = "xsrv"
	MetricsAttrDomain = "dns.srv.name"
	MetricsAttrCount  = "dns.srv.count"
	metricsOpLookup   = "lookup_srv"
)

// Discoverer 基于 SRV 记录的服务发现。并发安全，不缓存结果。
type Discoverer struct {
	resolver Resolver
	randIntN func(n int) int
	logger   xlog.Logger
	observer xmetrics.Observer
}

// NewDiscoverer 创建 Discoverer。
func NewDiscoverer(opts ...Option) *Discoverer {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Discoverer{
		resolver: o.resolver,
		randIntN: o.randIntN,
		logger:   o.logger,
		observer: o.observer,
	}
}

// GetServers 查询 domain 的 SRV 记录，按解析器返回的顺序转换为 Server。
//
// 记录不存在（NXDOMAIN 或无 SRV）返回空切片和 nil 错误；
// 解析器同时返回记录和错误时（例如过滤掉了名称非法的记录），保留有效记录；
// 其他解析失败包装后返回。
func (d *Discoverer) GetServers(ctx context.Context, domain string) (servers []Server, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if domain == "" {
		return nil, ErrEmptyDomain
	}

	ctx, span := xmetrics.Start(ctx, d.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: metricsOpLookup,
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String(MetricsAttrDomain, domain)},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(MetricsAttrCount, len(servers))}})
	}()

	// service、proto 为空：按完整记录名查询
	_, records, lookupErr := d.resolver.LookupSRV(ctx, "", "", domain)
	if lookupErr != nil && len(records) > 0 {
		d.logger.Debug(ctx, "srv lookup returned partial records",
			slog.String("record", domain), slog.Int("records", len(records)), xlog.Err(lookupErr))
		lookupErr = nil
	}
	if err = lookupErr; err != nil {
		if isNotFound(err) {
			d.logger.Debug(ctx, "srv record not found", slog.String("record", domain))
			return []Server{}, nil
		}
		return nil, fmt.Errorf("xsrv: lookup srv %q: %w", domain, err)
	}

	servers = make([]Server, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		servers = append(servers, Server{
			Target:   strings.TrimSuffix(r.Target, "."),
			Port:     r.Port,
			Priority: r.Priority,
			Weight:   r.Weight,
		})
	}
	return servers, nil
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// PickServer 挑选一个服务器：优先级数值最小的组胜出，组内均匀随机。
// Weight 不参与挑选。servers 为空时返回 false。
func (d *Discoverer) PickServer(servers []Server) (Server, bool) {
	if len(servers) == 0 {
		return Server{}, false
	}

	best := servers[0].Priority
	for _, s := range servers[1:] {
		best = min(best, s.Priority)
	}
	group := make([]Server, 0, len(servers))
	for _, s := range servers {
		if s.Priority == best {
			group = append(group, s)
		}
	}
	if len(group) == 1 {
		return group[0], true
	}
	return group[d.randIntN(len(group))], true
}

// Discover 查询并挑选一个服务器，没有记录时返回 ErrNoServers。
func (d *Discoverer) Discover(ctx context.Context, domain string) (Server, error) {
	servers, err := d.GetServers(ctx, domain)
	if err != nil {
		return Server{}, err
	}
	picked, ok := d.PickServer(servers)
	if !ok {
		return Server{}, fmt.Errorf("%w: %s", ErrNoServers, domain)
	}
	d.logger.Debug(ctx, "srv server picked",
		xlog.Server(picked.Addr()), slog.String("record", domain), slog.Int("candidates", len(servers)))
	return picked, nil
}
