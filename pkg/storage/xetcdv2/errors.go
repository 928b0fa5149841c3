package xetcdv2

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
)

// etcd v2 keys API 错误码（仅列出客户端关心的部分）。
const (
	// CodeKeyNotFound 键不存在。
	CodeKeyNotFound = 100
	// CodeTestFailed 条件比较失败（prevValue / prevIndex）。
	CodeTestFailed = 101
	// CodeNotFile 对目录执行了值操作。
	CodeNotFile = 102
	// CodeNotDir 对值执行了目录操作。
	CodeNotDir = 104
	// CodeKeyExists 键已存在。
	CodeKeyExists = 105
	// CodeDirNotEmpty 非递归删除非空目录。
	CodeDirNotEmpty = 108
	// CodeValueOrTTLRequired 缺少 value 或 ttl。
	CodeValueOrTTLRequired = 204
)

// 错误定义。
var (
	// ErrInvalidConfig 配置无效：服务地址不合法、CA 文件不存在、
	// 或者关闭了证书校验却又指定了 CA 文件。在任何网络调用之前同步返回。
	ErrInvalidConfig = errors.New("xetcdv2: invalid configuration")

	// ErrTransport 传输层失败（连接、超时、TLS 握手）。
	// 具体信息见 *TransportError。
	ErrTransport = errors.New("xetcdv2: transport failure")

	// ErrEtcd etcd 返回了错误，或者响应结构不符合预期。
	// 所有 *APIError 都满足 errors.Is(err, ErrEtcd)。
	ErrEtcd = errors.New("xetcdv2: etcd error")

	// ErrKeyNotFound 键不存在（errorCode 100）。
	ErrKeyNotFound = errors.New("xetcdv2: key not found")

	// ErrKeyExists 键已存在（errorCode 105）。
	ErrKeyExists = errors.New("xetcdv2: key already exists")

	// ErrNilContext 传入了 nil context。
	ErrNilContext = errors.New("xetcdv2: nil context")

	// ErrNotInitialized Client 未通过 NewClient 创建。
	ErrNotInitialized = errors.New("xetcdv2: client not initialized")

	// ErrResponseTooLarge 响应体超过上限。
	ErrResponseTooLarge = errors.New("xetcdv2: response body too large")
)

// APIError etcd 返回的错误。
//
// Message 已经拼接了 cause（"<message>. Cause: <cause>"），
// Cause 单独保留原始值。Code 为 0 表示客户端侧判定的结构错误。
type APIError struct {
	Code    int
	Message string
	Cause   string
	Index   uint64
}

func newAPIError(code int, message, cause string) *APIError {
	if cause != "" {
		message += ". Cause: " + cause
	}
	return &APIError{Code: code, Message: message, Cause: cause}
}

func (e *APIError) Error() string {
	if e.Code == 0 {
		return "xetcdv2: " + e.Message
	}
	return fmt.Sprintf("xetcdv2: etcd error %d: %s", e.Code, e.Message)
}

// Is 让 errors.Is 按错误码匹配哨兵错误。
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrEtcd:
		return true
	case ErrKeyNotFound:
		return e.Code == CodeKeyNotFound
	case ErrKeyExists:
		return e.Code == CodeKeyExists
	}
	return false
}

// 传输错误分类。
const (
	TransportTimeout    = "timeout"
	TransportCanceled   = "canceled"
	TransportTLS        = "tls"
	TransportConnection = "connection"
)

// TransportError 请求没有拿到完整响应。
type TransportError struct {
	URL  string
	Code string
	Err  error
}

func newTransportError(rawURL string, err error) *TransportError {
	return &TransportError{URL: sanitizeURL(rawURL), Code: classifyTransport(err), Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("xetcdv2: %s request failed (%s): %v", e.URL, e.Code, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrTransport) 成立，同时 Unwrap 保留原始错误链。
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func classifyTransport(err error) string {
	var (
		netErr    net.Error
		verifyErr *tls.CertificateVerificationError
		recordErr tls.RecordHeaderError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return TransportCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return TransportTimeout
	case errors.As(err, &verifyErr), errors.As(err, &recordErr):
		return TransportTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return TransportTimeout
	default:
		return TransportConnection
	}
}

// IsKeyNotFound 检查错误是否为键不存在。
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsKeyExists 检查错误是否为键已存在。
func IsKeyExists(err error) bool {
	return errors.Is(err, ErrKeyExists)
}

// IsTransport 检查错误是否发生在传输层。
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsEtcdError 检查错误是否来自 etcd（包括 KeyNotFound / KeyExists）。
func IsEtcdError(err error) bool {
	return errors.Is(err, ErrEtcd)
}

// IsInvalidConfig 检查错误是否为配置错误。
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
