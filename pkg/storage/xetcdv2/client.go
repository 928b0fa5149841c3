package xetcdv2

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/observability/xmetrics"
)

// Client etcd v2 keys API 客户端。
//
// 请求方法可以被多个 goroutine 同时调用；Set* 系列修改配置的方法不是并发安全的，
// 需要隔离的命名空间请使用 Clone 或 Sandboxed 得到独立实例。
type Client struct {
	server        string
	isHTTPS       bool
	apiVersion    string
	sandboxRoot   string
	verifySSLPeer bool
	customCAFile  string
	username      string
	password      string

	doer           HTTPDoer
	customDoer     bool // 调用方注入的执行器，不随配置重建
	connectTimeout time.Duration
	maxBodySize    int64
	observer       xmetrics.Observer
	logger         xlog.Logger
}

// NewClient 创建客户端。
//
// 错误：
//   - ErrInvalidConfig: config 为 nil、服务地址不合法、CA 文件不可用，
//     或关闭证书校验的同时指定了 CA 文件
func NewClient(config *Config, opts ...Option) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	cfg := config.applyDefaults()

	c := &Client{
		apiVersion:     cfg.APIVersion,
		sandboxRoot:    normalizeRoot(cfg.SandboxRoot),
		username:       cfg.Username,
		password:       cfg.Password,
		doer:           o.doer,
		customDoer:     o.doer != nil,
		connectTimeout: o.connectTimeout,
		maxBodySize:    o.maxResponseSize,
		observer:       o.observer,
		logger:         o.logger,
	}
	if err := c.setServer(cfg.Server); err != nil {
		return nil, err
	}
	if err := c.SetVerifySSLPeer(*cfg.VerifySSLPeer, cfg.CustomCAFile); err != nil {
		return nil, err
	}
	return c, nil
}

// Server 返回服务地址（不含尾部 "/"）。
func (c *Client) Server() string { return c.server }

// IsHTTPS 服务地址是否为 https。
func (c *Client) IsHTTPS() bool { return c.isHTTPS }

// APIVersion 返回 API 版本段。
func (c *Client) APIVersion() string { return c.apiVersion }

// SandboxRoot 返回当前沙箱根目录。
func (c *Client) SandboxRoot() string { return c.sandboxRoot }

// VerifySSLPeer 是否校验服务端证书。
func (c *Client) VerifySSLPeer() bool { return c.verifySSLPeer }

// CustomCAFile 返回自定义 CA 文件路径。
func (c *Client) CustomCAFile() string { return c.customCAFile }

// SetServer 设置服务地址。
//
// 地址必须是带 scheme 和 host 的绝对 URL，否则返回 ErrInvalidConfig 且不修改任何状态。
// 成功后去掉尾部 "/"，并按 scheme（大小写不敏感）判断是否为 https。
func (c *Client) SetServer(server string) error {
	prevServer, prevHTTPS := c.server, c.isHTTPS
	if err := c.setServer(server); err != nil {
		return err
	}
	if err := c.rebuildTransport(); err != nil {
		c.server, c.isHTTPS = prevServer, prevHTTPS
		return err
	}
	return nil
}

func (c *Client) setServer(server string) error {
	u, err := parseServer(server)
	if err != nil {
		return err
	}
	c.server = strings.TrimRight(server, "/")
	c.isHTTPS = strings.EqualFold(u.Scheme, "https")
	return nil
}

// SetAPIVersion 设置 API 版本段，例如 "v2"。
func (c *Client) SetAPIVersion(version string) *Client {
	c.apiVersion = version
	return c
}

// SetSandboxRoot 设置沙箱根目录。"root"、"root/"、"/root/" 都归一为 "/root"。
func (c *Client) SetSandboxRoot(root string) *Client {
	c.sandboxRoot = normalizeRoot(root)
	return c
}

// SetVerifySSLPeer 设置证书校验策略。
//
// 指定了不存在的 caFile，或 verify 为 false 时指定 caFile，返回 ErrInvalidConfig，
// 原有设置保持不变。
func (c *Client) SetVerifySSLPeer(verify bool, caFile string) error {
	if caFile != "" {
		info, err := os.Stat(caFile)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: custom CA file %q does not exist", ErrInvalidConfig, caFile)
		}
		if !verify {
			return fmt.Errorf("%w: custom CA file must not be set when SSL peer verification is disabled", ErrInvalidConfig)
		}
	}
	prevVerify, prevCA := c.verifySSLPeer, c.customCAFile
	c.verifySSLPeer, c.customCAFile = verify, caFile
	if err := c.rebuildTransport(); err != nil {
		c.verifySSLPeer, c.customCAFile = prevVerify, prevCA
		return err
	}
	return nil
}

// rebuildTransport 按当前 TLS 设置重建内置传输层。
func (c *Client) rebuildTransport() error {
	if c.customDoer {
		return nil
	}
	tlsConfig, err := buildTLSConfig(c.isHTTPS, c.verifySSLPeer, c.customCAFile)
	if err != nil {
		return err
	}
	c.doer = newHTTPClient(tlsConfig, c.connectTimeout)
	return nil
}

// Clone 返回独立的副本，共享传输层、观测器和日志器。
func (c *Client) Clone() *Client {
	clone := *c
	return &clone
}

// Sandboxed 在以 path 为沙箱根目录的副本上执行 fn，c 本身不受影响。
//
// path 以 "./" 开头时相对于当前根目录，否则视为绝对路径：
//
//	// 当前根为 /app，fn 内的 Set("value", ...) 写入 /app/sub/value
//	err := c.Sandboxed("./sub", func(sc *xetcdv2.Client) error {
//		_, err := sc.Set(ctx, "value", "123", 0, nil)
//		return err
//	})
func (c *Client) Sandboxed(path string, fn func(*Client) error) error {
	root := path
	if rel, ok := strings.CutPrefix(path, "./"); ok {
		root = strings.TrimRight(c.sandboxRoot, "/") + "/" + rel
	}
	return fn(c.Clone().SetSandboxRoot(root))
}

// checkPreconditions 检查 ctx 和客户端状态。
func (c *Client) checkPreconditions(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if c.doer == nil {
		return ErrNotInitialized
	}
	return ctx.Err()
}
