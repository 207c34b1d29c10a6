package types

import (
	"fmt"
	"net"
	"strconv"
)

// EphemeralHostPort 未监听进程在握手中使用的占位地址
//
// 携带该地址的连接无法被回拨。
const EphemeralHostPort = "0.0.0.0:0"

// ParseHostPort 校验并规范化 host:port
func ParseHostPort(s string) (string, error) {
	if s == "" {
		return "", ErrEmptyHostPort
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidHostPort, s, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrInvalidHostPort, s)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return "", fmt.Errorf("%w: %q: bad port", ErrInvalidHostPort, s)
	}
	return net.JoinHostPort(host, strconv.Itoa(n)), nil
}

// IsEphemeral 判断地址是否为不可回拨的占位地址
func IsEphemeral(hostPort string) bool {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return true
	}
	if port == "0" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}
