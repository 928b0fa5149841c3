package xetcdv2

import (
	"time"

	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/observability/xmetrics"
)

// options 内部选项结构。
type options struct {
	doer            HTTPDoer
	observer        xmetrics.Observer
	logger          xlog.Logger
	connectTimeout  time.Duration
	maxResponseSize int64
}

func defaultOptions() *options {
	return &options{
		observer:        xmetrics.NoopObserver{},
		logger:          xlog.Discard(),
		connectTimeout:  DefaultConnectTimeout,
		maxResponseSize: DefaultMaxResponseSize,
	}
}

// Option 定义客户端配置选项。
type Option func(*options)

// WithHTTPClient 注入自定义 HTTP 执行器。
//
// 设计决策: 注入后 SetServer / SetVerifySSLPeer 不再重建传输层，
// TLS 与连接池完全由调用方负责。
func WithHTTPClient(doer HTTPDoer) Option {
	return func(o *options) {
		if doer != nil {
			o.doer = doer
		}
	}
}

// WithObserver 设置观测器，每次 HTTP 请求产生一个 Client 类型的跨度。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithLogger 设置日志器，默认丢弃。请求细节以 Debug 级别输出。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConnectTimeout 覆盖默认 15 秒的连接超时，仅对内置传输层生效。
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithMaxResponseSize 覆盖响应体上限。
func WithMaxResponseSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxResponseSize = n
		}
	}
}
