package xetcdv2

import (
	"fmt"
	"net/url"
	"strings"
)

// KeyPath 返回 key 的请求路径："/<apiVersion>/keys<sandboxRoot>/<key>"。
//
// key 缺少前导 "/" 时自动补上；前缀部分去掉尾部 "/"，
// 因此 sandbox root 为 "/" 时不会出现 "//"。
//
//	c.KeyPath("key")                                  // "/v2/keys/key"
//	c.SetSandboxRoot("root/is/cool").KeyPath("key")   // "/v2/keys/root/is/cool/key"
func (c *Client) KeyPath(key string) string {
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return strings.TrimRight("/"+c.apiVersion+"/keys"+c.sandboxRoot, "/") + key
}

// KeyURL 返回 key 的完整地址。
//
// KeyPath 是逻辑路径，KeyURL 对其做路径转义："?"、"#"、"%"、空格等字符
// 属于键名的一部分，不会被解释为查询串或片段。
//
//	c.KeyURL("a?b") // "http://127.0.0.1:4001/v2/keys/a%3Fb"
func (c *Client) KeyURL(key string) string {
	return c.server + escapePath(c.KeyPath(key))
}

// escapePath 按 URL 路径规则转义，保留 "/" 分隔符。
func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

// normalizeRoot 补前导 "/"，去掉所有尾部 "/"；"/" 与 "" 都归一为 "/"。
func normalizeRoot(root string) string {
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	if root = strings.TrimRight(root, "/"); root == "" {
		return "/"
	}
	return root
}

// parseServer 校验服务地址：必须带 scheme 和 host。
func parseServer(server string) (*url.URL, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("%w: value %q is not a valid server URL: %w", ErrInvalidConfig, server, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: value %q is not a valid server URL", ErrInvalidConfig, server)
	}
	// 键路径直接拼接在服务地址之后，查询串和片段会吞掉路径
	if strings.ContainsAny(server, "?#") {
		return nil, fmt.Errorf("%w: server URL %q must not contain a query or fragment", ErrInvalidConfig, server)
	}
	return u, nil
}

// sanitizeURL 移除 URL 中的查询参数，避免观测指标高基数。
func sanitizeURL(rawURL string) string {
	if path, _, found := strings.Cut(rawURL, "?"); found {
		return path
	}
	return rawURL
}
