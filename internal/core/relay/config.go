package relay

import (
	"fmt"
	"time"

	"github.com/dep2p/go-relaymesh/config"
)

// 默认值
const (
	// DefaultExitCacheSize 出口集合缓存容量（服务数）
	DefaultExitCacheSize = 256

	// DefaultForwardBurst 限流突发量
	DefaultForwardBurst = 64
)

// Config 中继节点配置
type Config struct {
	// ForwardRate 每个服务每秒允许转发的调用数（0 = 不限制）
	ForwardRate float64

	// ForwardBurst 限流突发量
	ForwardBurst int

	// ForwardTimeout 转发超时（0 = 继承上游 TTL）
	ForwardTimeout time.Duration

	// ExitCacheSize ExitTable 缓存容量
	ExitCacheSize int
}

// DefaultConfig 返回默认配置（不限流）
func DefaultConfig() *Config {
	return &Config{
		ForwardRate:   0,
		ForwardBurst:  DefaultForwardBurst,
		ExitCacheSize: DefaultExitCacheSize,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ForwardRate < 0 {
		return fmt.Errorf("%w: forward rate must be >= 0", ErrInvalidConfig)
	}
	if c.ForwardRate > 0 && c.ForwardBurst < 1 {
		return fmt.Errorf("%w: forward burst must be >= 1", ErrInvalidConfig)
	}
	if c.ForwardTimeout < 0 {
		return fmt.Errorf("%w: forward timeout must be >= 0", ErrInvalidConfig)
	}
	if c.ExitCacheSize < 1 {
		return fmt.Errorf("%w: exit cache size must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// Option 配置选项函数
type Option func(*Config)

// WithForwardRate 设置按服务的转发限流
func WithForwardRate(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.ForwardRate = perSecond
		c.ForwardBurst = burst
	}
}

// WithForwardTimeout 设置转发超时
func WithForwardTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ForwardTimeout = d
	}
}

// WithExitCacheSize 设置出口集合缓存容量
func WithExitCacheSize(n int) Option {
	return func(c *Config) {
		c.ExitCacheSize = n
	}
}

// ConfigFromUnified 从统一配置创建中继配置
func ConfigFromUnified(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.ForwardRate = cfg.Relay.ForwardRate
	out.ForwardBurst = cfg.Relay.ForwardBurst
	out.ForwardTimeout = cfg.Relay.ForwardTimeout.Duration()
	out.ExitCacheSize = cfg.Relay.ExitCacheSize
	return out
}
