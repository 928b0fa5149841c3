package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xetcdv2/pkg/discovery/xsrv"
	"github.com/omeyang/xetcdv2/pkg/storage/xetcdv2"
)

// healthConcurrency health 命令同时探测的服务器上限。
const healthConcurrency = 8

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createGetCommand(),
		createSetCommand(),
		createMkCommand(),
		createMkdirCommand(),
		createUpdateCommand(),
		createUpdateDirCommand(),
		createRmCommand(),
		createRmdirCommand(),
		createLsCommand(),
		createTreeCommand(),
		createExistsCommand(),
		createVersionCommand(),
		createDiscoverCommand(),
		createHealthCommand(),
	}
}

func ttlFlag() cli.Flag {
	return &cli.DurationFlag{Name: "ttl", Usage: "过期时间，向上取整到秒；0 表示不过期"}
}

func recursiveFlag() cli.Flag {
	return &cli.BoolFlag{Name: "recursive", Aliases: []string{"R"}, Usage: "递归"}
}

func out(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

// args 取出恰好 n 个位置参数。
func args(cmd *cli.Command, n int) ([]string, error) {
	got := cmd.Args().Slice()
	if len(got) != n {
		return nil, newUsageError("%s 需要 %d 个参数 (%s)，实际 %d 个", cmd.Name, n, cmd.ArgsUsage, len(got))
	}
	return got, nil
}

// optionalKey 取出 0 或 1 个位置参数，缺省为 "/"。
func optionalKey(cmd *cli.Command) (string, error) {
	switch cmd.Args().Len() {
	case 0:
		return "/", nil
	case 1:
		return cmd.Args().First(), nil
	default:
		return "", newUsageError("%s 最多接受 1 个参数", cmd.Name)
	}
}

func printValue(cmd *cli.Command, resp *xetcdv2.Response) {
	if resp != nil && resp.Node != nil {
		_, _ = fmt.Fprintln(out(cmd), resp.Node.StringValue()) //nolint:errcheck // stdout
	}
}

func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "读取值",
		ArgsUsage: "<key>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			v, err := withRetry(ctx, e, func(ctx context.Context) (string, error) {
				return e.client.Get(ctx, a[0], nil)
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out(cmd), v) //nolint:errcheck // stdout
			return nil
		}),
	}
}

func createSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "写入值",
		ArgsUsage: "<key> <value>",
		Flags:     []cli.Flag{ttlFlag()},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			resp, err := withRetry(ctx, e, func(ctx context.Context) (*xetcdv2.Response, error) {
				return e.client.Set(ctx, a[0], a[1], cmd.Duration("ttl"), nil)
			})
			if err != nil {
				return err
			}
			printValue(cmd, resp)
			return nil
		}),
	}
}

func createMkCommand() *cli.Command {
	return &cli.Command{
		Name:      "mk",
		Usage:     "仅当键不存在时写入",
		ArgsUsage: "<key> <value>",
		Flags: []cli.Flag{
			ttlFlag(),
			&cli.BoolFlag{Name: "in-order", Usage: "在目录 <key> 下创建自增键"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			resp, err := withRetry(ctx, e, func(ctx context.Context) (*xetcdv2.Response, error) {
				if cmd.Bool("in-order") {
					return e.client.CreateInOrder(ctx, a[0], a[1], cmd.Duration("ttl"))
				}
				return e.client.Create(ctx, a[0], a[1], cmd.Duration("ttl"))
			})
			if err != nil {
				return err
			}
			if cmd.Bool("in-order") {
				_, _ = fmt.Fprintln(out(cmd), resp.Node.Key) //nolint:errcheck // stdout
				return nil
			}
			printValue(cmd, resp)
			return nil
		}),
	}
}

func createMkdirCommand() *cli.Command {
	return &cli.Command{
		Name:      "mkdir",
		Usage:     "创建目录",
		ArgsUsage: "<key>",
		Flags:     []cli.Flag{ttlFlag()},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			_, err = withRetry(ctx, e, func(ctx context.Context) (*xetcdv2.Response, error) {
				return e.client.CreateDir(ctx, a[0], cmd.Duration("ttl"))
			})
			return err
		}),
	}
}

func createUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "仅当键存在时写入",
		ArgsUsage: "<key> <value>",
		Flags: []cli.Flag{
			ttlFlag(),
			&cli.StringFlag{Name: "prev-value", Usage: "仅当当前值等于此值时写入"},
			&cli.IntFlag{Name: "prev-index", Usage: "仅当当前 modifiedIndex 等于此值时写入"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			cond := xetcdv2.Params{}
			if cmd.IsSet("prev-value") {
				cond["prevValue"] = cmd.String("prev-value")
			}
			if cmd.IsSet("prev-index") {
				idx := int64(cmd.Int("prev-index"))
				if idx <= 0 {
					return newUsageError("--prev-index 必须为正数: %d", idx)
				}
				cond["prevIndex"] = strconv.FormatInt(idx, 10)
			}
			resp, err := withRetry(ctx, e, func(ctx context.Context) (*xetcdv2.Response, error) {
				return e.client.Update(ctx, a[0], a[1], cmd.Duration("ttl"), cond)
			})
			if err != nil {
				return err
			}
			printValue(cmd, resp)
			return nil
		}),
	}
}

func createUpdateDirCommand() *cli.Command {
	return &cli.Command{
		Name:      "updatedir",
		Usage:     "刷新目录的 TTL",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "ttl", Usage: "新的过期时间", Required: true},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			_, err = withRetry(ctx, e, func(ctx context.Context) (*xetcdv2.Response, error) {
				return e.client.UpdateDir(ctx, a[0], cmd.Duration("ttl"))
			})
			return err
		}),
	}
}

func createRmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "删除值",
		ArgsUsage: "<key>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			_, err = withRetry(ctx, e, func(ctx context.Context) (*xetcdv2.Response, error) {
				return e.client.Remove(ctx, a[0])
			})
			return err
		}),
	}
}

func createRmdirCommand() *cli.Command {
	return &cli.Command{
		Name:      "rmdir",
		Usage:     "删除目录",
		ArgsUsage: "<key>",
		Flags:     []cli.Flag{recursiveFlag()},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			_, err = withRetry(ctx, e, func(ctx context.Context) (*xetcdv2.Response, error) {
				return e.client.RemoveDir(ctx, a[0], cmd.Bool("recursive"))
			})
			return err
		}),
	}
}

func createLsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "列出目录下所有键（深度优先）",
		ArgsUsage: "[key]",
		Flags:     []cli.Flag{recursiveFlag()},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			key, err := optionalKey(cmd)
			if err != nil {
				return err
			}
			keys, err := withRetry(ctx, e, func(ctx context.Context) ([]string, error) {
				return e.client.ListDirs(ctx, key, cmd.Bool("recursive"))
			})
			if err != nil {
				return err
			}
			for _, k := range keys {
				_, _ = fmt.Fprintln(out(cmd), k) //nolint:errcheck // stdout
			}
			return nil
		}),
	}
}

func createTreeCommand() *cli.Command {
	return &cli.Command{
		Name:      "tree",
		Usage:     "输出目录下所有叶子节点 key=value",
		ArgsUsage: "[key]",
		Flags: []cli.Flag{
			recursiveFlag(),
			&cli.StringFlag{Name: "key", Usage: "只输出完整路径为此值的一项"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			root, err := optionalKey(cmd)
			if err != nil {
				return err
			}
			values, err := withRetry(ctx, e, func(ctx context.Context) (map[string]string, error) {
				return e.client.GetKeyValueMap(ctx, root, cmd.Bool("recursive"), cmd.String("key"))
			})
			if err != nil {
				return err
			}
			for _, k := range slices.Sorted(maps.Keys(values)) {
				_, _ = fmt.Fprintf(out(cmd), "%s=%s\n", k, values[k]) //nolint:errcheck // stdout
			}
			return nil
		}),
	}
}

func createExistsCommand() *cli.Command {
	return &cli.Command{
		Name:      "exists",
		Usage:     "检查键是否存在，不存在时退出码为 1",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dir", Usage: "检查目录"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			ok, err := withRetry(ctx, e, func(ctx context.Context) (bool, error) {
				if cmd.Bool("dir") {
					return e.client.DirExists(ctx, a[0])
				}
				return e.client.Exists(ctx, a[0])
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out(cmd), ok) //nolint:errcheck // stdout
			if !ok {
				return &exitError{code: exitFailure}
			}
			return nil
		}),
	}
}

func createVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "查看服务端版本",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, e *env) error {
			info, err := withRetry(ctx, e, e.client.Version)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out(cmd), "server:  %s\netcdserver:  %s\netcdcluster: %s\n", //nolint:errcheck // stdout
				e.client.Server(), info.EtcdServer, info.EtcdCluster)
			return nil
		}),
	}
}

func createDiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "查询 SRV 记录并挑选服务器",
		ArgsUsage: "[record]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			record := cmd.Args().First()
			if record == "" {
				record = cmd.String("discover")
			}
			if record == "" {
				return newUsageError("discover 需要 SRV 记录名（参数或 --discover）")
			}
			// 只需要日志和发现器，不连接 etcd
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Discover = ""
			e, err := newEnvFromConfig(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			servers, err := e.discoverer.GetServers(ctx, record)
			if err != nil {
				return err
			}
			picked, ok := e.discoverer.PickServer(servers)
			if !ok {
				return fmt.Errorf("%w: %s", xsrv.ErrNoServers, record)
			}
			w := out(cmd)
			for _, s := range servers {
				_, _ = fmt.Fprintf(w, "%d\t%d\t%s\n", s.Priority, s.Weight, s.Addr()) //nolint:errcheck // stdout
			}
			_, _ = fmt.Fprintf(w, "picked: %s\n", picked.URL(cfg.Scheme)) //nolint:errcheck // stdout
			return nil
		},
	}
}

type probe struct {
	url     string
	info    *xetcdv2.VersionInfo
	err     error
	latency time.Duration
}

func createHealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "并发探测所有 SRV 服务器（未配置 --discover 时只探测 --server）",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			record := cfg.Discover
			cfg.Discover = ""
			e, err := newEnvFromConfig(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			urls := []string{e.client.Server()}
			if record != "" {
				servers, err := e.discoverer.GetServers(ctx, record)
				if err != nil {
					return err
				}
				if len(servers) == 0 {
					return fmt.Errorf("%w: %s", xsrv.ErrNoServers, record)
				}
				urls = urls[:0]
				for _, s := range servers {
					urls = append(urls, s.URL(cfg.Scheme))
				}
			}

			probes := probeAll(ctx, e, urls)
			healthy := 0
			for _, p := range probes {
				if p.err != nil {
					_, _ = fmt.Fprintf(out(cmd), "%s\tunhealthy\t%v\n", p.url, p.err) //nolint:errcheck // stdout
					continue
				}
				healthy++
				_, _ = fmt.Fprintf(out(cmd), "%s\thealthy\t%s\t%s\n", //nolint:errcheck // stdout
					p.url, p.info.EtcdServer, p.latency.Round(time.Millisecond))
			}
			if healthy < len(probes) {
				return &exitError{code: exitFailure}
			}
			return nil
		},
	}
}

// probeAll 并发请求每个服务器的 /version，结果顺序与 urls 一致。
//
// 设计决策: 单个服务器失败不取消其他探测，goroutine 总是返回 nil，
// errgroup 只负责并发上限和等待。
func probeAll(ctx context.Context, e *env, urls []string) []probe {
	probes := make([]probe, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(healthConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			probes[i].url = u
			c := e.client.Clone()
			if err := c.SetServer(u); err != nil {
				probes[i].err = err
				return nil
			}
			start := time.Now()
			probes[i].info, probes[i].err = withRetry(gctx, e, c.Version)
			probes[i].latency = time.Since(start)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutine 不返回错误
	return probes
}
