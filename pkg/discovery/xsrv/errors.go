package xsrv

import "errors"

var (
	// ErrNilContext 传入了 nil context。
	ErrNilContext = errors.New("xsrv: nil context")

	// ErrEmptyDomain 记录名为空。
	ErrEmptyDomain = errors.New("xsrv: empty domain")

	// ErrNoServers SRV 记录不存在或为空。
	ErrNoServers = errors.New("xsrv: no servers found")
)
