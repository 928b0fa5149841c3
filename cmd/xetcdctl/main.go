// xetcdctl 是 etcd v2 keys API 的命令行客户端。
//
// 用法:
//
//	xetcdctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config     配置文件（YAML/JSON），可重复指定，后者覆盖前者
//	-s, --server     etcd 地址 (默认: http://127.0.0.1:4001)
//	-r, --root       沙箱根目录 (默认: /)
//	    --discover   SRV 记录名，发现的服务器覆盖 --server
//	    --retries    传输错误的重试次数 (默认: 0)
//	    --timeout    单个命令的超时时间 (默认: 30s)
//
// 命令:
//
//	get <key>                  读取值
//	set <key> <value>          写入值
//	mk <key> <value>           仅当不存在时写入
//	mkdir <key>                创建目录
//	update <key> <value>       仅当存在时写入，支持 --prev-value / --prev-index
//	updatedir <key> --ttl 30s  刷新目录 TTL
//	rm <key>                   删除值
//	rmdir <key>                删除目录
//	ls [key]                   列出目录下所有键
//	tree [key]                 输出叶子节点 key=value
//	exists <key>               键存在时退出码为 0
//	version                    查看服务端版本
//	discover [record]          查询 SRV 记录并挑选服务器
//	health                     并发探测所有服务器
//
// 退出码:
//
//	0: 成功
//	1: 操作失败（exists 命令: 键不存在）
//	2: 参数或配置错误
//	4: 键不存在
//	5: 键已存在
//
// 示例:
//
//	xetcdctl -s http://10.0.0.1:2379 set /app/mode blue --ttl 1m
//	xetcdctl -r /app tree --recursive
//	xetcdctl --discover _etcd-client._tcp.example.com --scheme https health
//	xetcdctl -c /etc/xetcdctl.yaml --retries 3 get /app/mode
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:           "xetcdctl",
		Usage:          "etcd v2 keys API 命令行客户端",
		Version:        fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags:          globalFlags(),
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 runApp 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, cmd *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				_, _ = fmt.Fprintln(cmd.Root().ErrWriter, err) //nolint:errcheck // stderr 写失败无处可报
			}
		},
	}
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	return runApp(ctx, os.Args, os.Stdout, os.Stderr)
}

// runApp 执行命令并把错误映射为退出码。
func runApp(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp()
	app.Writer = stdout
	app.ErrWriter = stderr

	err := app.Run(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	code := exitCode(err)
	switch {
	case code == exitUsage && isCLIUsageError(err):
		// flag 解析器已向 stderr 输出错误详情，此处仅设置退出码
	case code == exitUsage:
		_, _ = fmt.Fprintf(stderr, "参数错误: %v\n", err) //nolint:errcheck // stderr 写失败无处可报
	default:
		_, _ = fmt.Fprintf(stderr, "错误: %v\n", err) //nolint:errcheck // stderr 写失败无处可报
	}
	return code
}
