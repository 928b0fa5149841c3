package xetcdv2

import (
	"net/url"
	"time"
)

// Node 键或目录。
type Node struct {
	Key string `json:"key"`
	// Value 目录为 nil。
	Value *string `json:"value,omitempty"`
	Dir   bool    `json:"dir,omitempty"`
	// TTL 剩余秒数，0 表示不过期。
	TTL        int64      `json:"ttl,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
	// Nodes 子节点，只在目录且有内容时出现。
	Nodes         []*Node `json:"nodes,omitempty"`
	CreatedIndex  uint64  `json:"createdIndex,omitempty"`
	ModifiedIndex uint64  `json:"modifiedIndex,omitempty"`
}

// StringValue 返回值，目录返回 ""。
func (n *Node) StringValue() string {
	if n == nil || n.Value == nil {
		return ""
	}
	return *n.Value
}

// Response 一次键操作的结果。
type Response struct {
	Action   string `json:"action"`
	Node     *Node  `json:"node,omitempty"`
	PrevNode *Node  `json:"prevNode,omitempty"`
}

// VersionInfo GET /version 的结果。
type VersionInfo struct {
	EtcdServer  string `json:"etcdserver"`
	EtcdCluster string `json:"etcdcluster"`
}

// Params 查询参数或条件，例如 {"prevValue": "old"}。
type Params map[string]string

func (p Params) values() url.Values {
	if len(p) == 0 {
		return nil
	}
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

// walk 深度优先遍历：先当前节点，再依次进入子节点，子节点先于后续兄弟节点。
func walk(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, child := range n.Nodes {
		walk(child, visit)
	}
}

// collectKeys 按文档顺序收集所有 key，跳过根 "/"。
// 结果在每次调用内独立分配，不跨调用累积。
func collectKeys(n *Node) []string {
	keys := make([]string, 0)
	walk(n, func(node *Node) {
		if node.Key != "/" {
			keys = append(keys, node.Key)
		}
	})
	return keys
}

// collectValues 收集叶子节点的 key → value，目录不计入。
func collectValues(n *Node) map[string]string {
	values := make(map[string]string)
	walk(n, func(node *Node) {
		if node.Value != nil && !node.Dir {
			values[node.Key] = *node.Value
		}
	})
	return values
}
