package swarm

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/internal/core/eventbus"
	"github.com/dep2p/go-relaymesh/internal/core/metrics"
	"github.com/dep2p/go-relaymesh/internal/core/muxer/yamux"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
)

// Config 连接与 Peer 配置
type Config struct {
	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// IdentifyTimeout 识别握手超时，超时后连接以 ErrIdentifyTimeout 关闭
	IdentifyTimeout time.Duration

	// MaxFrameSize 单帧最大字节数
	MaxFrameSize int

	// Yamux 多路复用配置
	Yamux yamux.Config

	// UnhandledPolicy 事件发射器对无监听器 error 事件的处理策略
	UnhandledPolicy eventbus.UnhandledPolicy

	// Clock 时钟（识别时间戳与超时）
	Clock clock.Clock

	// Metrics 指标，可以为 nil
	Metrics *metrics.Metrics
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:     5 * time.Second,
		IdentifyTimeout: 10 * time.Second,
		MaxFrameSize:    messaging.DefaultMaxFrameSize,
		Yamux:           yamux.DefaultConfig(),
		UnhandledPolicy: eventbus.RaiseUnhandled,
		Clock:           clock.New(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout must be positive", ErrInvalidConfig)
	}
	if c.IdentifyTimeout <= 0 {
		return fmt.Errorf("%w: identify timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("%w: max frame size must be positive", ErrInvalidConfig)
	}
	if c.Clock == nil {
		return fmt.Errorf("%w: clock is nil", ErrInvalidConfig)
	}
	if err := c.Yamux.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Apply 应用选项并返回新配置
func (c *Config) Apply(opts ...Option) *Config {
	out := *c
	for _, opt := range opts {
		opt(&out)
	}
	return &out
}

// Option 配置选项函数
type Option func(*Config)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithDialTimeout 设置拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithIdentifyTimeout 设置识别超时
func WithIdentifyTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.IdentifyTimeout = d
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithUnhandledPolicy 设置 error 事件处理策略
func WithUnhandledPolicy(p eventbus.UnhandledPolicy) Option {
	return func(c *Config) {
		c.UnhandledPolicy = p
	}
}

// ConfigFromUnified 从统一配置创建连接配置
func ConfigFromUnified(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}

	c := cfg.Channel
	out.DialTimeout = c.DialTimeout.Duration()
	out.IdentifyTimeout = c.IdentifyTimeout.Duration()
	out.MaxFrameSize = c.MaxFrameSize
	out.Yamux.KeepAliveInterval = c.KeepAliveInterval.Duration()
	if !c.StrictUnhandledErrors {
		out.UnhandledPolicy = eventbus.LogUnhandled
	}
	return out
}
