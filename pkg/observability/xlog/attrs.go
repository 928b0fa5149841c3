package xlog

import (
	"log/slog"
	"time"
)

// 常用字段名
const (
	KeyError     = "error"
	KeyDuration  = "duration"
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyMethod    = "method"
	KeyURL       = "url"
	KeyStatus    = "status"
	KeyKey       = "key"
	KeyServer    = "server"
	KeyAttempt   = "attempt"
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
)

// Err 创建错误属性，err 为 nil 时返回会被 slog 忽略的空属性。
//
//	if err != nil {
//	    logger.Error(ctx, "set failed", xlog.Err(err))
//	}
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 人类可读的耗时（如 "1.5s"）。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 组件名
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 操作名
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Method HTTP 方法
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// URL 请求地址。调用方负责去掉查询串。
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

// StatusCode HTTP 状态码，0 表示没有拿到响应。
func StatusCode(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Key etcd 键
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Server etcd 服务地址
func Server(s string) slog.Attr {
	return slog.String(KeyServer, s)
}

// Attempt 重试序号，从 1 开始。
func Attempt(n uint) slog.Attr {
	return slog.Uint64(KeyAttempt, uint64(n))
}
