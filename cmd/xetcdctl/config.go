package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xetcdv2/pkg/config/xconf"
	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/storage/xetcdv2"
)

// 默认值。
const (
	defaultScheme    = "http"
	defaultLogLevel  = "warn"
	defaultLogFormat = "text"
)

// appConfig xetcdctl 的完整配置。
//
// 加载顺序：默认值 < 配置文件（按 --config 顺序合并）< 命令行 / 环境变量。
//
//	etcd:
//	  server: https://etcd.internal:2379
//	  sandbox_root: /app
//	  custom_ca_file: /etc/ssl/etcd-ca.pem
//	discover: _etcd-client._tcp.example.com
//	scheme: https
//	timeout: 10s
//	retries: 2
//	log:
//	  level: info
//	  file: /var/log/xetcdctl.log
//	  rotation:
//	    max_size_mb: 10
type appConfig struct {
	Etcd     xetcdv2.Config `koanf:"etcd"`
	Discover string         `koanf:"discover"`
	Scheme   string         `koanf:"scheme"`
	Timeout  time.Duration  `koanf:"timeout"`
	Retries  int            `koanf:"retries"`
	Log      logConfig      `koanf:"log"`
}

type logConfig struct {
	Level    string              `koanf:"level"`
	Format   string              `koanf:"format"`
	File     string              `koanf:"file"`
	Rotation xlog.RotationConfig `koanf:"rotation"`
}

func defaultAppConfig() *appConfig {
	return &appConfig{
		Etcd:    *xetcdv2.DefaultConfig(),
		Scheme:  defaultScheme,
		Timeout: defaultTimeout,
		Log: logConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// globalFlags 全局选项，子命令中同样可用。
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "配置文件（YAML/JSON），可重复指定",
			Sources: cli.EnvVars("XETCDCTL_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "etcd 地址",
			Value:   xetcdv2.DefaultServer,
			Sources: cli.EnvVars("XETCDCTL_SERVER"),
		},
		&cli.StringFlag{
			Name:  "api-version",
			Usage: "API 版本段",
			Value: xetcdv2.DefaultAPIVersion,
		},
		&cli.StringFlag{
			Name:    "root",
			Aliases: []string{"r"},
			Usage:   "沙箱根目录",
			Value:   xetcdv2.DefaultSandboxRoot,
			Sources: cli.EnvVars("XETCDCTL_ROOT"),
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "不校验服务端证书",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "自定义 CA 证书（PEM）",
		},
		&cli.StringFlag{
			Name:    "user",
			Usage:   "Basic 认证用户名",
			Sources: cli.EnvVars("XETCDCTL_USER"),
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "Basic 认证密码",
			Sources: cli.EnvVars("XETCDCTL_PASSWORD"),
		},
		&cli.StringFlag{
			Name:  "discover",
			Usage: "SRV 记录名，发现的服务器覆盖 --server",
		},
		&cli.StringFlag{
			Name:  "scheme",
			Usage: "发现的服务器使用的协议",
			Value: defaultScheme,
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "单个命令的超时时间",
			Value:   defaultTimeout,
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "传输错误的重试次数",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "日志级别 (debug/info/warn/error)",
			Value: defaultLogLevel,
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "日志格式 (text/json)",
			Value: defaultLogFormat,
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "日志文件，按大小轮转；为空时输出到 stderr",
		},
	}
}

// loadConfig 合并默认值、配置文件和命令行。
//
// 设计决策: 只有显式设置（命令行或环境变量）的 flag 覆盖配置文件，
// flag 的默认值不参与覆盖，否则配置文件永远不会生效。
func loadConfig(cmd *cli.Command) (*appConfig, error) {
	cfg := defaultAppConfig()
	if paths := cmd.StringSlice("config"); len(paths) > 0 {
		if err := xconf.Load(cfg, paths...); err != nil {
			return nil, err
		}
	}

	setString := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	setString("server", &cfg.Etcd.Server)
	setString("api-version", &cfg.Etcd.APIVersion)
	setString("root", &cfg.Etcd.SandboxRoot)
	setString("ca-file", &cfg.Etcd.CustomCAFile)
	setString("user", &cfg.Etcd.Username)
	setString("password", &cfg.Etcd.Password)
	setString("discover", &cfg.Discover)
	setString("scheme", &cfg.Scheme)
	setString("log-level", &cfg.Log.Level)
	setString("log-format", &cfg.Log.Format)
	setString("log-file", &cfg.Log.File)

	if cmd.IsSet("insecure") {
		verify := !cmd.Bool("insecure")
		cfg.Etcd.VerifySSLPeer = &verify
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("retries") {
		cfg.Retries = int(cmd.Int("retries"))
	}
	if cfg.Retries < 0 {
		return nil, newUsageError("--retries 不能为负数: %d", cfg.Retries)
	}
	return cfg, nil
}
