package xetcdv2

import (
	"fmt"
	"strings"
	"time"
)

// 默认配置值。
const (
	DefaultServer      = "http://127.0.0.1:4001"
	DefaultAPIVersion  = "v2"
	DefaultSandboxRoot = "/"

	// DefaultConnectTimeout 建立 TCP 连接的超时。整个请求的超时由 ctx 控制。
	DefaultConnectTimeout = 15 * time.Second

	// DefaultMaxResponseSize 响应体上限（32MB），超过返回 ErrResponseTooLarge。
	DefaultMaxResponseSize int64 = 32 << 20
)

// Config etcd v2 客户端配置。
// 支持 koanf / JSON / YAML 反序列化。
//
// 推荐使用 DefaultConfig() 再按需覆盖：
//
//	cfg := xetcdv2.DefaultConfig()
//	cfg.Server = "https://etcd.internal:2379"
//	cfg.CustomCAFile = "/etc/ssl/etcd-ca.pem"
//	client, err := xetcdv2.NewClient(cfg)
type Config struct {
	// Server etcd 地址，必须是带 scheme 和 host 的绝对 URL。
	// 零值时使用 DefaultServer。
	Server string `koanf:"server" json:"server" yaml:"server"`

	// APIVersion 路径中的版本段，零值时为 "v2"。
	APIVersion string `koanf:"api_version" json:"apiVersion" yaml:"apiVersion"`

	// SandboxRoot 所有键的前缀目录，零值时为 "/"。
	SandboxRoot string `koanf:"sandbox_root" json:"sandboxRoot" yaml:"sandboxRoot"`

	// VerifySSLPeer 是否校验服务端证书，nil 视为 true。
	//
	// 使用指针是为了区分"未配置"和"显式关闭"。
	VerifySSLPeer *bool `koanf:"verify_ssl_peer" json:"verifySslPeer" yaml:"verifySslPeer"`

	// CustomCAFile 自定义 CA 证书（PEM）。仅在 VerifySSLPeer 为 true 时允许设置。
	CustomCAFile string `koanf:"custom_ca_file" json:"customCaFile" yaml:"customCaFile"`

	// Username / Password HTTP Basic 认证，Username 为空时不发送。
	Username string `koanf:"username" json:"username" yaml:"username"`
	Password string `koanf:"password" json:"password" yaml:"password"`
}

// DefaultConfig 返回带有默认值的配置。
func DefaultConfig() *Config {
	verify := true
	return &Config{
		Server:        DefaultServer,
		APIVersion:    DefaultAPIVersion,
		SandboxRoot:   DefaultSandboxRoot,
		VerifySSLPeer: &verify,
	}
}

// Validate 验证配置有效性。
//
// 零值字段视为使用默认值，不会报错。CA 文件是否存在在 NewClient 时检查。
func (c *Config) Validate() error {
	if c.Server != "" {
		if _, err := parseServer(c.Server); err != nil {
			return err
		}
	}
	if strings.ContainsAny(c.APIVersion, "/?#") {
		return fmt.Errorf("%w: api version %q must be a single path segment", ErrInvalidConfig, c.APIVersion)
	}
	if c.CustomCAFile != "" && !c.verifySSLPeer() {
		return fmt.Errorf("%w: custom CA file must not be set when SSL peer verification is disabled", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) verifySSLPeer() bool {
	return c.VerifySSLPeer == nil || *c.VerifySSLPeer
}

// applyDefaults 应用默认值，返回新的配置（不修改原配置）。
func (c *Config) applyDefaults() *Config {
	cfg := *c
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.SandboxRoot == "" {
		cfg.SandboxRoot = DefaultSandboxRoot
	}
	verify := c.verifySSLPeer()
	cfg.VerifySSLPeer = &verify
	return &cfg
}
