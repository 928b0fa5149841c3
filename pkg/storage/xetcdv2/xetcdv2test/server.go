// Package xetcdv2test 提供内存版 etcd v2 HTTP 服务，用于单元测试。
//
// 只实现 xetcdv2 用到的 keys API 子集：GET（含 recursive）、PUT（值、目录、
// prevExist / prevValue / prevIndex 条件、ttl）、POST（有序键）、DELETE（dir、recursive）
// 以及 GET /version。错误响应使用 etcd 的 {errorCode, message, cause, index} 格式。
//
//	srv := xetcdv2test.Run(t)
//	cfg := xetcdv2.DefaultConfig()
//	cfg.Server = srv.URL()
package xetcdv2test

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// 默认版本信息。
const (
	DefaultServerVersion  = "2.3.8"
	DefaultClusterVersion = "2.3.0"
)

// Request 服务端收到的请求，供测试断言。
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Form     url.Values
	Username string
	Password string
}

type cannedResponse struct {
	status int
	body   string
}

// Server 内存 etcd v2 服务。并发安全。
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	root     *entry
	index    uint64
	offset   time.Duration // Advance 累积的时间偏移
	requests []Request
	canned   []cannedResponse
	user     string
	pass     string
	server   string
	cluster  string
}

func newServer() *Server {
	return &Server{
		root:    &entry{key: "/", dir: true, children: map[string]*entry{}},
		server:  DefaultServerVersion,
		cluster: DefaultClusterVersion,
	}
}

// New 启动 HTTP 服务，调用方负责 Close。
func New() *Server {
	s := newServer()
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// NewTLS 启动 HTTPS 服务，证书由 httptest 自签。
func NewTLS() *Server {
	s := newServer()
	s.srv = httptest.NewTLSServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// Run 启动 HTTP 服务并在测试结束时关闭。
func Run(t testing.TB) *Server {
	t.Helper()
	s := New()
	t.Cleanup(s.Close)
	return s
}

// RunTLS 启动 HTTPS 服务并在测试结束时关闭。
func RunTLS(t testing.TB) *Server {
	t.Helper()
	s := NewTLS()
	t.Cleanup(s.Close)
	return s
}

// URL 返回服务地址，例如 "http://127.0.0.1:53124"。
func (s *Server) URL() string {
	return s.srv.URL
}

// Close 关闭服务。
func (s *Server) Close() {
	s.srv.Close()
}

// CertificatePEM 返回 HTTPS 服务证书的 PEM 编码，可写入文件作为自定义 CA。
// HTTP 服务返回 nil。
func (s *Server) CertificatePEM() []byte {
	var cert *x509.Certificate
	if s.srv.TLS != nil {
		cert = s.srv.Certificate()
	}
	if cert == nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// RequireBasicAuth 要求所有请求携带指定的 Basic 认证。
func (s *Server) RequireBasicAuth(user, pass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.pass = user, pass
}

// SetVersion 设置 /version 返回的版本。
func (s *Server) SetVersion(server, cluster string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.server, s.cluster = server, cluster
}

// Advance 将服务端时钟向前拨动 d，用于触发 TTL 过期。
func (s *Server) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset += d
}

// Respond 让接下来的一个请求原样返回 status 和 body，不经过存储。
// 多次调用按顺序排队。
func (s *Server) Respond(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned = append(s.canned, cannedResponse{status: status, body: body})
}

// Requests 返回已收到的请求副本。
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest 返回最近一个请求，没有请求时 ok 为 false。
func (s *Server) LastRequest() (req Request, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Index 返回当前修改序号。
func (s *Server) Index() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Server) now() time.Time {
	return time.Now().Add(s.offset)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	// ParseForm 只为 PUT/POST 读取请求体
	_ = r.ParseForm() //nolint:errcheck // 非法表单按空值处理

	s.mu.Lock()
	defer s.mu.Unlock()

	user, pass, _ := r.BasicAuth()
	s.requests = append(s.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.Query(),
		Form:     r.PostForm,
		Username: user,
		Password: pass,
	})

	if len(s.canned) > 0 {
		c := s.canned[0]
		s.canned = s.canned[1:]
		w.WriteHeader(c.status)
		_, _ = w.Write([]byte(c.body)) //nolint:errcheck // 测试服务
		return
	}

	if s.user != "" && (user != s.user || pass != s.pass) {
		s.writeError(w, http.StatusUnauthorized, &etcdError{
			Code: codeUnauthorized, Message: "The request requires user authentication", Cause: "Insufficient credentials",
		})
		return
	}

	if r.URL.Path == "/version" {
		s.writeJSON(w, http.StatusOK, map[string]string{"etcdserver": s.server, "etcdcluster": s.cluster})
		return
	}

	key, ok := keyFromPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.expire()

	var (
		resp   *response
		status int
		err    *etcdError
	)
	switch r.Method {
	case http.MethodGet:
		resp, err = s.get(key, r.Form)
		status = http.StatusOK
	case http.MethodPut:
		resp, status, err = s.put(key, r.Form)
	case http.MethodPost:
		resp, err = s.post(key, r.Form)
		status = http.StatusCreated
	case http.MethodDelete:
		resp, err = s.remove(key, r.Form)
		status = http.StatusOK
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		s.writeError(w, err.status(), err)
		return
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Etcd-Index", formatUint(s.index))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // 测试服务
}

func (s *Server) writeError(w http.ResponseWriter, status int, e *etcdError) {
	e.Index = s.index
	s.writeJSON(w, status, e)
}
