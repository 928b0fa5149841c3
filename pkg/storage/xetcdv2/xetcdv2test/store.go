package xetcdv2test

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// etcd v2 错误码。
const (
	codeKeyNotFound   = 100
	codeTestFailed    = 101
	codeNotFile       = 102
	codeNotDir        = 104
	codeNodeExist     = 105
	codeRootReadOnly  = 107
	codeDirNotEmpty   = 108
	codeUnauthorized  = 110
	codeTTLNaN        = 202
	codeIndexNaN      = 203
	keysPrefix        = "/v2/keys"
	inOrderKeyPadding = 20
)

type etcdError struct {
	Code    int    `json:"errorCode"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
	Index   uint64 `json:"index"`
}

func (e *etcdError) status() int {
	switch e.Code {
	case codeKeyNotFound:
		return http.StatusNotFound
	case codeTestFailed, codeNodeExist:
		return http.StatusPreconditionFailed
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeNotFile, codeNotDir, codeDirNotEmpty, codeRootReadOnly:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func errKeyNotFound(key string) *etcdError {
	return &etcdError{Code: codeKeyNotFound, Message: "Key not found", Cause: key}
}

type node struct {
	Key           string     `json:"key"`
	Value         *string    `json:"value,omitempty"`
	Dir           bool       `json:"dir,omitempty"`
	Expiration    *time.Time `json:"expiration,omitempty"`
	TTL           int64      `json:"ttl,omitempty"`
	Nodes         []*node    `json:"nodes,omitempty"`
	ModifiedIndex uint64     `json:"modifiedIndex"`
	CreatedIndex  uint64     `json:"createdIndex"`
}

type response struct {
	Action   string `json:"action"`
	Node     *node  `json:"node"`
	PrevNode *node  `json:"prevNode,omitempty"`
}

type entry struct {
	key           string
	value         string
	dir           bool
	expiration    *time.Time
	children      map[string]*entry
	createdIndex  uint64
	modifiedIndex uint64
}

// keyFromPath 把 "/v2/keys/a/b/" 转为 "/a/b"。
func keyFromPath(p string) (string, bool) {
	rest, ok := strings.CutPrefix(p, keysPrefix)
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return "", false
	}
	return path.Clean("/" + rest), true
}

func splitKey(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool { return r == '/' })
}

func (s *Server) find(key string) *entry {
	cur := s.root
	for _, part := range splitKey(key) {
		if !cur.dir {
			return nil
		}
		next, ok := cur.children[part]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// parent 返回 key 的父目录，create 为 true 时自动创建中间目录。
func (s *Server) parent(key string, create bool) (*entry, *etcdError) {
	parts := splitKey(key)
	cur := s.root
	for i, part := range parts[:len(parts)-1] {
		next, ok := cur.children[part]
		if !ok {
			if !create {
				return nil, errKeyNotFound(key)
			}
			s.index++
			next = &entry{
				key:           "/" + strings.Join(parts[:i+1], "/"),
				dir:           true,
				children:      map[string]*entry{},
				createdIndex:  s.index,
				modifiedIndex: s.index,
			}
			cur.children[part] = next
		}
		if !next.dir {
			return nil, &etcdError{Code: codeNotDir, Message: "Not a directory", Cause: next.key}
		}
		cur = next
	}
	return cur, nil
}

func baseName(key string) string {
	parts := splitKey(key)
	return parts[len(parts)-1]
}

// expire 删除所有已过期的节点。
func (s *Server) expire() {
	now := s.now()
	var sweep func(e *entry)
	sweep = func(e *entry) {
		for name, child := range e.children {
			if child.expiration != nil && !child.expiration.After(now) {
				delete(e.children, name)
				continue
			}
			if child.dir {
				sweep(child)
			}
		}
	}
	sweep(s.root)
}

// render 转为响应节点。depth < 0 表示递归全部，0 表示不展开子节点。
func (s *Server) render(e *entry, depth int) *node {
	n := &node{
		Key:           e.key,
		Dir:           e.dir,
		CreatedIndex:  e.createdIndex,
		ModifiedIndex: e.modifiedIndex,
	}
	if !e.dir {
		v := e.value
		n.Value = &v
	}
	if e.expiration != nil {
		exp := *e.expiration
		n.Expiration = &exp
		n.TTL = int64(math.Ceil(exp.Sub(s.now()).Seconds()))
	}
	if e.dir && depth != 0 && len(e.children) > 0 {
		names := make([]string, 0, len(e.children))
		for name := range e.children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			n.Nodes = append(n.Nodes, s.render(e.children[name], depth-1))
		}
	}
	return n
}

func (s *Server) get(key string, form url.Values) (*response, *etcdError) {
	e := s.find(key)
	if e == nil {
		return nil, errKeyNotFound(key)
	}
	depth := 1
	if form.Get("recursive") == "true" {
		depth = -1
	}
	return &response{Action: "get", Node: s.render(e, depth)}, nil
}

func parseTTL(form url.Values) (int64, bool, *etcdError) {
	raw, ok := form["ttl"]
	if !ok || raw[0] == "" {
		return 0, false, nil
	}
	ttl, err := strconv.ParseInt(raw[0], 10, 64)
	if err != nil || ttl < 0 {
		return 0, false, &etcdError{Code: codeTTLNaN, Message: "The given TTL in POST form is not a number"}
	}
	return ttl, true, nil
}

func (s *Server) applyTTL(e *entry, ttl int64, has bool) {
	if !has || ttl == 0 {
		e.expiration = nil
		return
	}
	exp := s.now().Add(time.Duration(ttl) * time.Second)
	e.expiration = &exp
}

func (s *Server) put(key string, form url.Values) (*response, int, *etcdError) {
	if key == "/" {
		return nil, 0, &etcdError{Code: codeRootReadOnly, Message: "Root is read only", Cause: "/"}
	}
	ttl, hasTTL, terr := parseTTL(form)
	if terr != nil {
		return nil, 0, terr
	}
	prevExist := form.Get("prevExist")
	prevValue, hasPrevValue := form["prevValue"]
	prevIndexRaw, hasPrevIndex := form["prevIndex"]
	isDir := form.Get("dir") == "true"

	existing := s.find(key)
	if existing == nil {
		if prevExist == "true" || hasPrevValue || hasPrevIndex {
			return nil, 0, errKeyNotFound(key)
		}
		parent, perr := s.parent(key, true)
		if perr != nil {
			return nil, 0, perr
		}
		s.index++
		e := &entry{key: key, dir: isDir, createdIndex: s.index, modifiedIndex: s.index}
		if isDir {
			e.children = map[string]*entry{}
		} else {
			e.value = form.Get("value")
		}
		s.applyTTL(e, ttl, hasTTL)
		parent.children[baseName(key)] = e
		action := "set"
		if prevExist == "false" {
			action = "create"
		}
		return &response{Action: action, Node: s.render(e, 0)}, http.StatusCreated, nil
	}

	if prevExist == "false" {
		return nil, 0, &etcdError{Code: codeNodeExist, Message: "Key already exists", Cause: key}
	}
	if existing.dir && !isDir {
		return nil, 0, &etcdError{Code: codeNotFile, Message: "Not a file", Cause: key}
	}
	if !existing.dir && isDir {
		return nil, 0, &etcdError{Code: codeNotDir, Message: "Not a directory", Cause: key}
	}
	if existing.dir && prevExist != "true" {
		return nil, 0, &etcdError{Code: codeNotFile, Message: "Not a file", Cause: key}
	}
	if hasPrevIndex {
		idx, err := strconv.ParseUint(prevIndexRaw[0], 10, 64)
		if err != nil {
			return nil, 0, &etcdError{Code: codeIndexNaN, Message: "The given index in POST form is not a number"}
		}
		if idx != existing.modifiedIndex {
			return nil, 0, &etcdError{Code: codeTestFailed, Message: "Compare failed",
				Cause: fmt.Sprintf("[%d != %d]", idx, existing.modifiedIndex)}
		}
	}
	if hasPrevValue && prevValue[0] != existing.value {
		return nil, 0, &etcdError{Code: codeTestFailed, Message: "Compare failed",
			Cause: fmt.Sprintf("[%s != %s]", prevValue[0], existing.value)}
	}

	prev := s.render(existing, 0)
	s.index++
	existing.modifiedIndex = s.index
	if !existing.dir {
		existing.value = form.Get("value")
	}
	s.applyTTL(existing, ttl, hasTTL)

	action := "set"
	switch {
	case hasPrevValue || hasPrevIndex:
		action = "compareAndSwap"
	case prevExist == "true":
		action = "update"
	}
	return &response{Action: action, Node: s.render(existing, 0), PrevNode: prev}, http.StatusOK, nil
}

func (s *Server) post(key string, form url.Values) (*response, *etcdError) {
	ttl, hasTTL, terr := parseTTL(form)
	if terr != nil {
		return nil, terr
	}
	dir := s.find(key)
	if dir == nil {
		if key == "/" {
			dir = s.root
		} else {
			parent, perr := s.parent(key, true)
			if perr != nil {
				return nil, perr
			}
			s.index++
			dir = &entry{key: key, dir: true, children: map[string]*entry{}, createdIndex: s.index, modifiedIndex: s.index}
			parent.children[baseName(key)] = dir
		}
	}
	if !dir.dir {
		return nil, &etcdError{Code: codeNotDir, Message: "Not a directory", Cause: key}
	}
	s.index++
	name := fmt.Sprintf("%0*d", inOrderKeyPadding, s.index)
	e := &entry{
		key:           strings.TrimRight(dir.key, "/") + "/" + name,
		value:         form.Get("value"),
		createdIndex:  s.index,
		modifiedIndex: s.index,
	}
	s.applyTTL(e, ttl, hasTTL)
	dir.children[name] = e
	return &response{Action: "create", Node: s.render(e, 0)}, nil
}

func (s *Server) remove(key string, form url.Values) (*response, *etcdError) {
	if key == "/" {
		return nil, &etcdError{Code: codeRootReadOnly, Message: "Root is read only", Cause: "/"}
	}
	e := s.find(key)
	if e == nil {
		return nil, errKeyNotFound(key)
	}
	recursive := form.Get("recursive") == "true"
	isDir := form.Get("dir") == "true" || recursive
	if e.dir {
		if !isDir {
			return nil, &etcdError{Code: codeNotFile, Message: "Not a file", Cause: key}
		}
		if len(e.children) > 0 && !recursive {
			return nil, &etcdError{Code: codeDirNotEmpty, Message: "Directory not empty", Cause: key}
		}
	}

	parent, perr := s.parent(key, false)
	if perr != nil {
		return nil, perr
	}
	prev := s.render(e, 0)
	delete(parent.children, baseName(key))
	s.index++

	deleted := &node{Key: key, Dir: e.dir, CreatedIndex: e.createdIndex, ModifiedIndex: s.index}
	return &response{Action: "delete", Node: deleted, PrevNode: prev}, nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
