package channel

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// Config Channel 配置
type Config struct {
	// ProcessName 识别握手中交换的进程名，为空时自动生成
	ProcessName string

	// RequestDefaults 所有 SubChannel 共享的请求默认值
	RequestDefaults RequestDefaults

	// HandlerTimeout 入站调用没有 TTL 时等待处理器响应的上限
	HandlerTimeout time.Duration

	// Swarm 连接与 Peer 配置
	Swarm *swarm.Config
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		HandlerTimeout: 30 * time.Second,
		Swarm:          swarm.DefaultConfig(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("%w: handler timeout must be positive", ErrInvalidConfig)
	}
	if c.Swarm == nil {
		return fmt.Errorf("%w: swarm config is nil", ErrInvalidConfig)
	}
	return c.Swarm.Validate()
}

// ConfigFromUnified 从统一配置创建 Channel 配置
//
// ProcessName 作为前缀生成唯一进程名。
func ConfigFromUnified(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	if cfg.Channel.ProcessName != "" {
		out.ProcessName = NewProcessName(cfg.Channel.ProcessName)
	}
	out.HandlerTimeout = cfg.Channel.HandlerTimeout.Duration()
	out.Swarm = swarm.ConfigFromUnified(cfg)
	return out
}

// WithConfig 用 cfg 整体替换配置
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		*c = *cfg
	}
}

// NewProcessName 生成进程名
func NewProcessName(prefix string) string {
	if prefix == "" {
		prefix = "relaymesh"
	}
	return prefix + "-" + uuid.NewString()
}

// Option Channel 选项函数
type Option func(*Config)

// WithProcessName 设置进程名
func WithProcessName(name string) Option {
	return func(c *Config) {
		c.ProcessName = name
	}
}

// WithRequestDefaults 设置 Channel 级请求默认值
func WithRequestDefaults(d RequestDefaults) Option {
	return func(c *Config) {
		c.RequestDefaults = d
	}
}

// WithHandlerTimeout 设置处理器超时
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandlerTimeout = d
	}
}

// WithSwarmConfig 设置连接配置
func WithSwarmConfig(cfg *swarm.Config) Option {
	return func(c *Config) {
		c.Swarm = cfg
	}
}

// WithSwarmOptions 在当前连接配置上应用选项
func WithSwarmOptions(opts ...swarm.Option) Option {
	return func(c *Config) {
		if c.Swarm == nil {
			c.Swarm = swarm.DefaultConfig()
		}
		c.Swarm = c.Swarm.Apply(opts...)
	}
}

// ============================================================================
//                              请求默认值
// ============================================================================

// RequestDefaults 请求默认值
type RequestDefaults struct {
	// ServiceName 目标服务名，为空时使用 SubChannel 的服务名
	ServiceName string

	// Headers 传输头
	Headers types.Headers

	// HasNoParent 请求没有上游调用
	HasNoParent bool

	// Timeout 请求超时
	Timeout time.Duration

	// WaitForIdentified 没有已识别连接时等待
	WaitForIdentified bool
}

// Merge 返回合并结果
//
// child 的非零字段覆盖 d，头部按键合并。
func (d RequestDefaults) Merge(child RequestDefaults) RequestDefaults {
	out := d
	out.Headers = d.Headers.Merge(child.Headers)
	if child.ServiceName != "" {
		out.ServiceName = child.ServiceName
	}
	if child.HasNoParent {
		out.HasNoParent = true
	}
	if child.Timeout > 0 {
		out.Timeout = child.Timeout
	}
	if child.WaitForIdentified {
		out.WaitForIdentified = true
	}
	return out
}
