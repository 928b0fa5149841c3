package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/omeyang/xetcdv2/pkg/config/xconf"
	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/storage/xetcdv2"
)

// 退出码。
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitKeyNotFound = 4
	exitKeyExists   = 5
)

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCode 把错误映射为退出码。
func exitCode(err error) int {
	var usageErr *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usageErr),
		xetcdv2.IsInvalidConfig(err),
		errors.Is(err, xconf.ErrEmptyPath),
		errors.Is(err, xconf.ErrUnsupportedFormat),
		errors.Is(err, xconf.ErrLoadFailed),
		errors.Is(err, xconf.ErrParseFailed),
		errors.Is(err, xconf.ErrUnmarshalFailed),
		errors.Is(err, xlog.ErrUnknownLevel),
		errors.Is(err, xlog.ErrUnknownFormat),
		errors.Is(err, xlog.ErrEmptyFilename),
		errors.Is(err, xlog.ErrInvalidRotation),
		isCLIUsageError(err):
		return exitUsage
	case xetcdv2.IsKeyNotFound(err):
		return exitKeyNotFound
	case xetcdv2.IsKeyExists(err):
		return exitKeyExists
	default:
		return exitFailure
	}
}

// cliUsageMarkers urfave/cli 参数错误的消息特征。
var cliUsageMarkers = []string{
	"flag provided but not defined",
	"flag needs an argument",
	"invalid value",
	"Required flag",
	"No help topic for",
}

// isCLIUsageError 判断是否为 CLI 框架产生的参数错误（未知 flag、缺少必填 flag 等）。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, marker := range cliUsageMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// setupSignalHandler 设置信号处理。
// 设计决策: 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
