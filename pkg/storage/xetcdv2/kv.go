package xetcdv2

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ttlSeconds 向上取整为整秒，<= 0 表示不设置。
// 设计决策: 向上取整保证键不会比调用方预期更早过期，1.1s 发送为 2。
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64(math.Ceil(ttl.Seconds()))
}

func withTTL(form url.Values, ttl time.Duration) url.Values {
	if s := ttlSeconds(ttl); s > 0 {
		form.Set("ttl", strconv.FormatInt(s, 10))
	}
	return form
}

// Set 写入键值。ttl <= 0 表示不过期；conds 作为查询参数原样发送，
// 例如 {"prevValue": "old"}、{"prevIndex": "7"}。
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration, conds Params) (*Response, error) {
	return c.do(ctx, &request{
		op:     "set",
		method: http.MethodPut,
		url:    c.KeyURL(key),
		query:  conds.values(),
		form:   withTTL(url.Values{"value": {value}}, ttl),
	})
}

// Create 仅当键不存在时写入，已存在返回 ErrKeyExists。
func (c *Client) Create(ctx context.Context, key, value string, ttl time.Duration) (*Response, error) {
	return c.Set(ctx, key, value, ttl, Params{"prevExist": "false"})
}

// CreateDir 创建目录，已存在返回 ErrKeyExists。
func (c *Client) CreateDir(ctx context.Context, key string, ttl time.Duration) (*Response, error) {
	return c.do(ctx, &request{
		op:     "create_dir",
		method: http.MethodPut,
		url:    c.KeyURL(key),
		query:  url.Values{"prevExist": {"false"}},
		form:   withTTL(url.Values{"dir": {"true"}}, ttl),
	})
}

// CreateInOrder 在目录 dir 下创建自增键（etcd 分配键名），用于有序队列。
func (c *Client) CreateInOrder(ctx context.Context, dir, value string, ttl time.Duration) (*Response, error) {
	return c.do(ctx, &request{
		op:     "create_in_order",
		method: http.MethodPost,
		url:    c.KeyURL(dir),
		form:   withTTL(url.Values{"value": {value}}, ttl),
	})
}

// Update 仅当键存在时写入，不存在返回 ErrKeyNotFound。
// cond 与 prevExist=true 合并，同名时 cond 优先。
func (c *Client) Update(ctx context.Context, key, value string, ttl time.Duration, cond Params) (*Response, error) {
	extra := Params{"prevExist": "true"}
	maps.Copy(extra, cond)
	return c.Set(ctx, key, value, ttl, extra)
}

// UpdateDir 刷新目录的 TTL。ttl 必填，<= 0 时不发请求，
// 直接返回错误码为 CodeValueOrTTLRequired 的 *APIError。
func (c *Client) UpdateDir(ctx context.Context, key string, ttl time.Duration) (*Response, error) {
	if ttlSeconds(ttl) == 0 {
		return nil, &APIError{Code: CodeValueOrTTLRequired, Message: "TTL is required"}
	}
	return c.do(ctx, &request{
		op:     "update_dir",
		method: http.MethodPut,
		url:    c.KeyURL(key),
		query:  url.Values{"dir": {"true"}, "prevExist": {"true"}},
		form:   withTTL(url.Values{}, ttl),
	})
}

// GetNode 读取节点，flags 作为查询参数（如 {"recursive": "true"}）。
// 响应缺少 node 字段时返回通用 *APIError。
func (c *Client) GetNode(ctx context.Context, key string, flags Params) (*Node, error) {
	resp, err := c.do(ctx, &request{
		op:     "get",
		method: http.MethodGet,
		url:    c.KeyURL(key),
		query:  flags.values(),
	})
	if err != nil {
		return nil, err
	}
	if resp.Node == nil {
		return nil, &APIError{Message: "Node field expected in response"}
	}
	return resp.Node, nil
}

// Get 读取键值。目录返回 ""，不存在返回 ErrKeyNotFound。
func (c *Client) Get(ctx context.Context, key string, flags Params) (string, error) {
	node, err := c.GetNode(ctx, key, flags)
	if err != nil {
		return "", err
	}
	return node.StringValue(), nil
}

// Exists 键存在且不是目录时返回 true。
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	node, err := c.lookup(ctx, key)
	if node == nil || err != nil {
		return false, err
	}
	return !node.Dir, nil
}

// DirExists 目录存在时返回 true。
func (c *Client) DirExists(ctx context.Context, key string) (bool, error) {
	node, err := c.lookup(ctx, key)
	if node == nil || err != nil {
		return false, err
	}
	return node.Dir, nil
}

// lookup 键不存在时返回 (nil, nil)。
func (c *Client) lookup(ctx context.Context, key string) (*Node, error) {
	node, err := c.GetNode(ctx, key, nil)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	return node, err
}

// Remove 删除键。
func (c *Client) Remove(ctx context.Context, key string) (*Response, error) {
	return c.do(ctx, &request{
		op:     "remove",
		method: http.MethodDelete,
		url:    c.KeyURL(key),
	})
}

// RemoveDir 删除目录。recursive 为 false 时只能删除空目录。
func (c *Client) RemoveDir(ctx context.Context, key string, recursive bool) (*Response, error) {
	query := url.Values{"dir": {"true"}}
	if recursive {
		query.Set("recursive", "true")
	}
	return c.do(ctx, &request{
		op:     "remove_dir",
		method: http.MethodDelete,
		url:    c.KeyURL(key),
		query:  query,
	})
}

// ListDir 列出目录，返回原始节点树。
func (c *Client) ListDir(ctx context.Context, key string, recursive bool) (*Response, error) {
	var query url.Values
	if recursive {
		query = url.Values{"recursive": {"true"}}
	}
	return c.do(ctx, &request{
		op:     "list_dir",
		method: http.MethodGet,
		url:    c.KeyURL(key),
		query:  query,
	})
}

// ListDirs 列出目录树中所有键（深度优先、文档顺序），不包括根 "/"。
// 被列出的目录本身（非根时）排在第一位。
func (c *Client) ListDirs(ctx context.Context, key string, recursive bool) ([]string, error) {
	resp, err := c.ListDir(ctx, key, recursive)
	if err != nil {
		return nil, err
	}
	return collectKeys(resp.Node), nil
}

// GetKeyValueMap 返回 root 下所有叶子节点的 key → value，目录不计入。
//
// key 非空且存在于结果中时，只返回这一项；否则返回整个映射。
// 结果中的 key 是 etcd 返回的完整路径，包含沙箱前缀。
func (c *Client) GetKeyValueMap(ctx context.Context, root string, recursive bool, key string) (map[string]string, error) {
	resp, err := c.ListDir(ctx, root, recursive)
	if err != nil {
		return nil, err
	}
	values := collectValues(resp.Node)
	if v, ok := values[key]; ok && key != "" {
		return map[string]string{key: v}, nil
	}
	return values, nil
}

// GetValue 从 root 的目录树中取出完整路径为 key 的值。
func (c *Client) GetValue(ctx context.Context, root string, recursive bool, key string) (string, bool, error) {
	values, err := c.GetKeyValueMap(ctx, root, recursive, key)
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Version 读取 GET {server}/version。该接口不返回 errorCode，不做错误码映射。
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	err := c.roundTrip(ctx, &request{
		op:     "version",
		method: http.MethodGet,
		url:    c.server + "/version",
	}, func(status int, body []byte) error {
		if err := json.Unmarshal(body, &info); err != nil {
			return &APIError{Message: "invalid version response (HTTP " + strconv.Itoa(status) + "): " + err.Error()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}
