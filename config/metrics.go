package config

import "errors"

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 是否注册 Prometheus 指标
	Enable bool `json:"enable"`

	// ListenAddr /metrics 监听地址，为空时不导出
	ListenAddr string `json:"listen_addr,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enable: true}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.ListenAddr != "" && !c.Enable {
		return errors.New("metrics: listen_addr requires enable")
	}
	return nil
}
