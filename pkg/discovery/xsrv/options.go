package xsrv

import (
	"math/rand/v2"
	"net"

	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/observability/xmetrics"
)

type options struct {
	resolver Resolver
	randIntN func(n int) int
	logger   xlog.Logger
	observer xmetrics.Observer
}

func defaultOptions() *options {
	return &options{
		resolver: net.DefaultResolver,
		randIntN: rand.IntN,
		logger:   xlog.Discard(),
		observer: xmetrics.NoopObserver{},
	}
}

// Option 定义 Discoverer 配置选项。
type Option func(*options)

// WithResolver 替换 DNS 解析器，默认 net.DefaultResolver。
func WithResolver(r Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithRandIntN 替换随机源，fn(n) 需返回 [0, n) 内的整数。测试中用于固定挑选结果。
func WithRandIntN(fn func(n int) int) Option {
	return func(o *options) {
		if fn != nil {
			o.randIntN = fn
		}
	}
}

// WithLogger 设置日志器，默认丢弃。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置观测器，每次 DNS 查询产生一个跨度。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}
