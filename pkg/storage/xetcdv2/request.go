package xetcdv2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omeyang/xetcdv2/pkg/observability/xlog"
	"github.com/omeyang/xetcdv2/pkg/observability/xmetrics"
)

// 观测常量。
const (
	MetricsComponent      = "xetcdv2"
	MetricsAttrHTTPMethod = "http.method"
	MetricsAttrHTTPPath   = "http.path"
	MetricsAttrHTTPStatus = "http.status_code"
	MetricsAttrAction     = "etcd.action"
)

// request 一次逻辑调用对应的 HTTP 请求。
type request struct {
	op     string // 观测用的操作名，如 "set"、"list_dir"
	method string
	url    string
	query  url.Values
	form   url.Values
}

func (r *request) fullURL() string {
	if len(r.query) == 0 {
		return r.url
	}
	return r.url + "?" + r.query.Encode()
}

// envelope 同时容纳成功和失败两种响应体。
type envelope struct {
	Response
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
	Cause     string `json:"cause"`
	Index     uint64 `json:"index"`
}

// do 发送 keys API 请求并解码响应。
func (c *Client) do(ctx context.Context, r *request) (*Response, error) {
	var resp *Response
	err := c.roundTrip(ctx, r, func(status int, body []byte) error {
		var err error
		resp, err = decodeResponse(status, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// decodeResponse 解码 JSON，把 errorCode 映射为 *APIError。
//
// HTTP 状态码不参与判断，以响应体为准；只有响应体为空时才看状态码。
func decodeResponse(status int, body []byte) (*Response, error) {
	if len(body) == 0 {
		if status >= http.StatusBadRequest {
			return nil, newAPIError(0, fmt.Sprintf("empty response body (HTTP %d %s)", status, http.StatusText(status)), "")
		}
		return &Response{}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newAPIError(0, fmt.Sprintf("invalid response body (HTTP %d %s): %v", status, http.StatusText(status), err), "")
	}
	if env.ErrorCode != 0 {
		apiErr := newAPIError(env.ErrorCode, env.Message, env.Cause)
		apiErr.Index = env.Index
		return nil, apiErr
	}
	resp := env.Response
	return &resp, nil
}

// roundTrip 唯一的请求出口：执行请求、读取完整响应体并交给 decode。
// 跨度和日志覆盖整个过程，decode 返回的错误同样记为失败。
func (c *Client) roundTrip(ctx context.Context, r *request, decode func(status int, body []byte) error) (err error) {
	if err := c.checkPreconditions(ctx); err != nil {
		return err
	}
	target := r.fullURL()
	status := 0

	ctx, span := xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: MetricsComponent,
		Operation: r.op,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String(MetricsAttrHTTPMethod, r.method),
			xmetrics.String(MetricsAttrHTTPPath, sanitizeURL(target)),
			xmetrics.String(MetricsAttrAction, r.op),
		},
	})
	start := time.Now()
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int(MetricsAttrHTTPStatus, status)}})
		if err != nil {
			c.logger.Debug(ctx, "etcd request failed",
				xlog.Method(r.method), xlog.URL(sanitizeURL(target)), xlog.StatusCode(status),
				xlog.Duration(time.Since(start)), xlog.Err(err))
			return
		}
		c.logger.Debug(ctx, "etcd request",
			xlog.Method(r.method), xlog.URL(sanitizeURL(target)), xlog.StatusCode(status),
			xlog.Duration(time.Since(start)))
	}()

	status, body, err := c.send(ctx, r.method, target, r.form)
	if err != nil {
		return err
	}
	return decode(status, body)
}

// send 执行 HTTP 请求，返回状态码和不超过上限的响应体。
func (c *Client) send(ctx context.Context, method, target string, form url.Values) (int, []byte, error) {
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return 0, nil, newAPIError(0, fmt.Sprintf("build request for %s: %v", sanitizeURL(target), err), "")
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return 0, nil, newTransportError(target, err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // Close 错误无法传播

	// 多读 1 字节用于检测截断
	lr := &io.LimitedReader{R: resp.Body, N: c.maxBodySize + 1}
	body, err := io.ReadAll(lr)
	if err != nil {
		return resp.StatusCode, nil, newTransportError(target, err)
	}
	if int64(len(body)) > c.maxBodySize {
		return resp.StatusCode, nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxBodySize)
	}
	return resp.StatusCode, body, nil
}
