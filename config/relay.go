package config

import "errors"

// RelayConfig 中继节点配置
type RelayConfig struct {
	// ForwardRate 每个服务每秒允许转发的调用数（0 = 不限制）
	ForwardRate float64 `json:"forward_rate"`

	// ForwardBurst 限流突发量
	ForwardBurst int `json:"forward_burst"`

	// ForwardTimeout 转发超时（0 = 继承上游 TTL）
	ForwardTimeout Duration `json:"forward_timeout"`

	// ExitCacheSize 出口集合缓存容量
	ExitCacheSize int `json:"exit_cache_size"`
}

// DefaultRelayConfig 返回默认中继配置（不限流）
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ForwardBurst:  64,
		ExitCacheSize: 256,
	}
}

// Validate 验证中继配置
func (c RelayConfig) Validate() error {
	if c.ForwardRate < 0 {
		return errors.New("relay: forward_rate must be >= 0")
	}
	if c.ForwardRate > 0 && c.ForwardBurst < 1 {
		return errors.New("relay: forward_burst must be >= 1 when forward_rate is set")
	}
	if c.ForwardTimeout < 0 {
		return errors.New("relay: forward_timeout must be >= 0")
	}
	if c.ExitCacheSize < 1 {
		return errors.New("relay: exit_cache_size must be >= 1")
	}
	return nil
}
