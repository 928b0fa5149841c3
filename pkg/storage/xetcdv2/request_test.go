package xetcdv2

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/observability/xmetrics"
)

// =============================================================================
// 测试辅助函数
// =============================================================================

func newMockClient(t *testing.T, opts ...Option) (*Client, *MockHTTPDoer) {
	t.Helper()
	doer := NewMockHTTPDoer(gomock.NewController(t))
	c, err := NewClient(DefaultConfig(), append([]Option{WithHTTPClient(doer)}, opts...)...)
	require.NoError(t, err)
	return c, doer
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// =============================================================================
// 请求构造
// =============================================================================

func TestSend_EscapedKeyKeepsQuery(t *testing.T) {
	c, doer := newMockClient(t)
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v2/keys/a?b", req.URL.Path)
		assert.Equal(t, "/v2/keys/a%3Fb", req.URL.EscapedPath())
		assert.Equal(t, "dir=true&recursive=true", req.URL.RawQuery)
		return jsonResponse(http.StatusOK, `{"action":"delete","node":{"key":"/a?b","dir":true}}`), nil
	})

	resp, err := c.RemoveDir(context.Background(), "a?b", true)
	require.NoError(t, err)
	assert.Equal(t, "/a?b", resp.Node.Key)
}

func TestSend_BuildRequestFailureIsNotConfigError(t *testing.T) {
	c, _ := newMockClient(t)

	// 非法 method 让 http.NewRequestWithContext 失败，不会调用 Do
	_, _, err := c.send(context.Background(), "BAD METHOD", c.KeyURL("k"), nil)
	require.Error(t, err)
	assert.False(t, IsInvalidConfig(err))
	assert.True(t, IsEtcdError(err))
	assert.Contains(t, err.Error(), "build request")
}

func TestSend_RequestShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Username, cfg.Password = "root", "secret"
	doer := NewMockHTTPDoer(gomock.NewController(t))
	c, err := NewClient(cfg, WithHTTPClient(doer))
	require.NoError(t, err)
	c.SetSandboxRoot("/app")

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/v2/keys/app/k", req.URL.Path)
		assert.Equal(t, "false", req.URL.Query().Get("prevExist"))
		assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", req.Header.Get("Accept"))

		user, pass, ok := req.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "root", user)
		assert.Equal(t, "secret", pass)

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "ttl=5&value=a+b%26c", string(body))
		return jsonResponse(http.StatusCreated, `{"action":"create","node":{"key":"/app/k","value":"a b&c","ttl":5}}`), nil
	})

	resp, err := c.Create(context.Background(), "k", "a b&c", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "create", resp.Action)
	assert.Equal(t, "a b&c", resp.Node.StringValue())
	assert.Equal(t, int64(5), resp.Node.TTL)
}

func TestSend_GetHasNoBody(t *testing.T) {
	c, doer := newMockClient(t)

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Nil(t, req.Body)
		assert.Empty(t, req.Header.Get("Content-Type"))
		_, _, ok := req.BasicAuth()
		assert.False(t, ok)
		assert.Equal(t, "recursive=true", req.URL.RawQuery)
		return jsonResponse(http.StatusOK, `{"action":"get","node":{"key":"/d","dir":true}}`), nil
	})

	_, err := c.ListDir(context.Background(), "d", true)
	require.NoError(t, err)
}

// =============================================================================
// 前置检查
// =============================================================================

func TestSend_Preconditions(t *testing.T) {
	c, _ := newMockClient(t) // 没有 EXPECT：任何 Do 调用都会失败

	//nolint:staticcheck // SA1012: 测试 nil context
	_, err := c.Get(nil, "k", nil)
	assert.ErrorIs(t, err, ErrNilContext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Set(ctx, "k", "v", 0, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = (&Client{}).Remove(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = (&Client{}).Version(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// =============================================================================
// 传输错误
// =============================================================================

func TestSend_TransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "deadline", err: context.DeadlineExceeded, code: TransportTimeout},
		{name: "canceled", err: context.Canceled, code: TransportCanceled},
		{name: "net timeout", err: timeoutError{}, code: TransportTimeout},
		{name: "tls", err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}, code: TransportTLS},
		{name: "refused", err: errors.New("connect: connection refused"), code: TransportConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, doer := newMockClient(t)
			doer.EXPECT().Do(gomock.Any()).Return(nil, tt.err)

			_, err := c.Get(context.Background(), "k", nil)
			require.Error(t, err)
			assert.True(t, IsTransport(err))
			assert.False(t, IsEtcdError(err))
			assert.ErrorIs(t, err, tt.err)

			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, DefaultServer+"/v2/keys/k", te.URL)
		})
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSend_BodyReadError(t *testing.T) {
	c, doer := newMockClient(t)
	doer.EXPECT().Do(gomock.Any()).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(errReader{}),
	}, nil)

	_, err := c.Get(context.Background(), "k", nil)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSend_ResponseTooLarge(t *testing.T) {
	c, doer := newMockClient(t, WithMaxResponseSize(16))
	doer.EXPECT().Do(gomock.Any()).Return(
		jsonResponse(http.StatusOK, `{"action":"get","node":{"key":"/k","value":"0123456789"}}`), nil)

	_, err := c.Get(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestSend_ResponseAtLimit(t *testing.T) {
	body := `{"action":"get"}`
	c, doer := newMockClient(t, WithMaxResponseSize(int64(len(body))))
	doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, body), nil)

	resp, err := c.ListDir(context.Background(), "k", false)
	require.NoError(t, err)
	assert.Equal(t, "get", resp.Action)
}

// =============================================================================
// 响应解码
// =============================================================================

func TestDo_EmptyBody(t *testing.T) {
	c, doer := newMockClient(t)
	gomock.InOrder(
		doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, ""), nil),
		doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusNotFound, ""), nil),
	)

	resp, err := c.Remove(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, &Response{}, resp)

	_, err = c.Remove(context.Background(), "k")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.Code)
	assert.Contains(t, apiErr.Message, "HTTP 404 Not Found")
	assert.False(t, IsKeyNotFound(err))
}

func TestDo_ErrorBody(t *testing.T) {
	c, doer := newMockClient(t)
	doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusPreconditionFailed,
		`{"errorCode":105,"message":"Key already exists","cause":"/k","index":42}`), nil)

	_, err := c.Create(context.Background(), "k", "v", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeKeyExists, apiErr.Code)
	assert.Equal(t, "Key already exists. Cause: /k", apiErr.Message)
	assert.Equal(t, "/k", apiErr.Cause)
	assert.Equal(t, uint64(42), apiErr.Index)
	assert.Equal(t, "xetcdv2: etcd error 105: Key already exists. Cause: /k", err.Error())
	assert.True(t, IsKeyExists(err))
}

func TestVersion_InvalidBody(t *testing.T) {
	c, doer := newMockClient(t)
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/version", req.URL.Path)
		return jsonResponse(http.StatusOK, "etcd 2.3.8"), nil
	})

	_, err := c.Version(context.Background())
	assert.True(t, IsEtcdError(err))
	assert.Contains(t, err.Error(), "invalid version response (HTTP 200)")
}

// =============================================================================
// 观测
// =============================================================================

func TestSend_Observability(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	obs, err := xmetrics.NewOTelObserver(xmetrics.WithTracerProvider(tp), xmetrics.WithMeterProvider(mp))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&buf).SetLevel(xlog.LevelDebug).SetFormat("json").Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	c, doer := newMockClient(t, WithObserver(obs), WithLogger(logger))
	gomock.InOrder(
		doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `{"action":"delete","node":{"key":"/k"}}`), nil),
		doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusNotFound, `{"errorCode":100,"message":"Key not found"}`), nil),
	)

	_, err = c.RemoveDir(context.Background(), "k", true)
	require.NoError(t, err)
	_, err = c.Remove(context.Background(), "k")
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	first := spans[0]
	assert.Equal(t, "remove_dir", first.Name)
	assert.Equal(t, codes.Unset, first.Status.Code)
	attrs := attribute.NewSet(first.Attributes...)
	v, ok := attrs.Value(MetricsAttrHTTPPath)
	require.True(t, ok)
	assert.Equal(t, DefaultServer+"/v2/keys/k", v.AsString(), "query must be stripped")
	v, ok = attrs.Value(MetricsAttrHTTPMethod)
	require.True(t, ok)
	assert.Equal(t, http.MethodDelete, v.AsString())
	v, ok = attrs.Value(MetricsAttrHTTPStatus)
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), v.AsInt64())

	// HTTP 层成功，但调用结果是 etcd 错误
	assert.Equal(t, "remove", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)

	out := buf.String()
	assert.Contains(t, out, `"msg":"etcd request"`)
	assert.Contains(t, out, `"msg":"etcd request failed"`)
	assert.NotContains(t, out, "recursive=true")
}
