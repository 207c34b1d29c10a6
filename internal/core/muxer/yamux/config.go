// Package yamux 提供基于 yamux 的连接多路复用
//
// 每个 Connection 在其 socket 之上建立一个 yamux 会话：
// 第一条流用于识别握手，之后每次调用占用一条独立的流，
// 因此同一连接上的请求可以并行进行、互不阻塞。
package yamux

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"
)

// Config 会话配置
type Config struct {
	// AcceptBacklog 未被接受的入站流上限
	AcceptBacklog int

	// EnableKeepAlive 是否启用保活
	EnableKeepAlive bool

	// KeepAliveInterval 保活间隔
	KeepAliveInterval time.Duration

	// ConnectionWriteTimeout 写超时
	ConnectionWriteTimeout time.Duration

	// MaxStreamWindowSize 单流最大窗口
	MaxStreamWindowSize uint32

	// StreamOpenTimeout 打开流等待对端确认的超时
	StreamOpenTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024, // 256 KB
		StreamOpenTimeout:      75 * time.Second,
	}
}

// ToYamux 转换为 yamux 原生配置
//
// 以 yamux.DefaultConfig 为基础，零值字段保持 yamux 默认值。
func (c Config) ToYamux() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard // 禁用日志输出

	if c.AcceptBacklog > 0 {
		cfg.AcceptBacklog = c.AcceptBacklog
	}
	cfg.EnableKeepAlive = c.EnableKeepAlive
	if c.KeepAliveInterval > 0 {
		cfg.KeepAliveInterval = c.KeepAliveInterval
	}
	if c.ConnectionWriteTimeout > 0 {
		cfg.ConnectionWriteTimeout = c.ConnectionWriteTimeout
	}
	if c.MaxStreamWindowSize > 0 {
		cfg.MaxStreamWindowSize = c.MaxStreamWindowSize
	}
	if c.StreamOpenTimeout > 0 {
		cfg.StreamOpenTimeout = c.StreamOpenTimeout
	}
	return cfg
}

// Validate 验证配置
func (c Config) Validate() error {
	return yamux.VerifyConfig(c.ToYamux())
}
