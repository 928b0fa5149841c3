package main

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xetcdv2/pkg/discovery/xsrv"
	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/observability/xmetrics"
	"github.com/omeyang/xetcdv2/pkg/storage/xetcdv2"
)

// retryDelay 重试的基础间隔，实际间隔按指数退避加抖动增长。
const retryDelay = 200 * time.Millisecond

// env 一次命令执行所需的依赖。
type env struct {
	cfg        *appConfig
	client     *xetcdv2.Client
	discoverer *xsrv.Discoverer
	logger     xlog.Logger
	cleanup    func() error
}

// newEnv 加载配置并创建日志器、观测器、发现器和客户端。
// 配置了 --discover 时，用挑选出的服务器替换 --server。
func newEnv(ctx context.Context, cmd *cli.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newEnvFromConfig(ctx, cmd, cfg)
}

func newEnvFromConfig(ctx context.Context, cmd *cli.Command, cfg *appConfig) (*env, error) {
	builder := xlog.New().
		SetOutput(cmd.Root().ErrWriter).
		SetLevelString(cfg.Log.Level).
		SetFormat(cfg.Log.Format)
	if cfg.Log.File != "" {
		builder.SetRotation(cfg.Log.File, cfg.Log.Rotation)
	}
	logger, cleanup, err := builder.Build()
	if err != nil {
		return nil, err
	}

	// 使用全局 TracerProvider / MeterProvider，未安装 SDK 时为空操作
	observer, err := xmetrics.NewOTelObserver()
	if err != nil {
		_ = cleanup() //nolint:errcheck // 初始化失败，优先返回原始错误
		return nil, err
	}

	client, err := xetcdv2.NewClient(&cfg.Etcd,
		xetcdv2.WithLogger(logger),
		xetcdv2.WithObserver(observer),
	)
	if err != nil {
		_ = cleanup() //nolint:errcheck // 初始化失败，优先返回原始错误
		return nil, err
	}

	e := &env{
		cfg:        cfg,
		client:     client,
		discoverer: xsrv.NewDiscoverer(xsrv.WithLogger(logger), xsrv.WithObserver(observer)),
		logger:     logger,
		cleanup:    cleanup,
	}
	if cfg.Discover != "" {
		if err := e.useDiscovered(ctx); err != nil {
			_ = cleanup() //nolint:errcheck // 初始化失败，优先返回原始错误
			return nil, err
		}
	}
	return e, nil
}

func (e *env) useDiscovered(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	server, err := e.discoverer.Discover(ctx, e.cfg.Discover)
	if err != nil {
		return err
	}
	url := server.URL(e.cfg.Scheme)
	if err := e.client.SetServer(url); err != nil {
		return err
	}
	e.logger.Info(ctx, "using discovered server", xlog.Server(url))
	return nil
}

func (e *env) close() {
	_ = e.cleanup() //nolint:errcheck // 日志文件关闭失败不影响命令结果
}

// withEnv 为命令动作准备 env，并在动作结束后释放。
func withEnv(action func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		e, err := newEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.close()

		ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		return action(ctx, cmd, e)
	}
}

// withRetry 执行 fn，传输错误按 --retries 重试，etcd 返回的错误不重试。
//
// 设计决策: 客户端内部不做重试，重试策略只存在于调用方。
// 非幂等操作（mk、CreateInOrder）在请求已到达服务端但响应丢失时重试，
// 可能得到 KeyExists 或重复的有序键，这是调用方主动选择 --retries 的代价。
func withRetry[T any](ctx context.Context, e *env, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.NewWithData[T](
		retry.Context(ctx),
		retry.Attempts(uint(e.cfg.Retries)+1),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return xetcdv2.IsTransport(err) && !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn(ctx, "etcd request failed, retrying", xlog.Attempt(n+1), xlog.Err(err))
		}),
	).Do(func() (T, error) {
		return fn(ctx)
	})
}
