package xsrv

import (
	"net"
	"strconv"
)

// Server 一条 SRV 记录。
type Server struct {
	// Target 主机名，已去掉尾部 "."。
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Addr 返回 "host:port"，IPv6 地址会加方括号。
func (s Server) Addr() string {
	return net.JoinHostPort(s.Target, strconv.Itoa(int(s.Port)))
}

// URL 返回 "scheme://host:port"，可直接交给 xetcdv2.Client.SetServer。
func (s Server) URL(scheme string) string {
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + s.Addr()
}
