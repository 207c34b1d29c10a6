package config

import (
	"errors"
	"time"
)

// ChannelConfig 通道与连接配置
type ChannelConfig struct {
	// ProcessName 进程名前缀，为空时使用 "relaymesh"
	ProcessName string `json:"process_name,omitempty"`

	// HandlerTimeout 入站调用没有 TTL 时的处理器超时
	HandlerTimeout Duration `json:"handler_timeout"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// IdentifyTimeout 识别握手超时
	IdentifyTimeout Duration `json:"identify_timeout"`

	// MaxFrameSize 单帧最大字节数
	MaxFrameSize int `json:"max_frame_size"`

	// KeepAliveInterval yamux 心跳间隔
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// StrictUnhandledErrors 无监听器的 error 事件是否 panic
	StrictUnhandledErrors bool `json:"strict_unhandled_errors"`
}

// DefaultChannelConfig 返回默认通道配置
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		HandlerTimeout:        Duration(30 * time.Second),
		DialTimeout:           Duration(5 * time.Second),
		IdentifyTimeout:       Duration(10 * time.Second),
		MaxFrameSize:          4 << 20,
		KeepAliveInterval:     Duration(30 * time.Second),
		StrictUnhandledErrors: true,
	}
}

// Validate 验证通道配置
func (c ChannelConfig) Validate() error {
	if c.HandlerTimeout <= 0 {
		return errors.New("channel: handler_timeout must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("channel: dial_timeout must be positive")
	}
	if c.IdentifyTimeout <= 0 {
		return errors.New("channel: identify_timeout must be positive")
	}
	if c.MaxFrameSize < 1024 {
		return errors.New("channel: max_frame_size must be >= 1024")
	}
	if c.KeepAliveInterval <= 0 {
		return errors.New("channel: keep_alive_interval must be positive")
	}
	return nil
}
