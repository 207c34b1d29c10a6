// Package config 提供 relaymesh 的统一配置
//
// 主 Config 结构体包含所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 文件加载：
//
//	cfg := config.NewConfig()
//	cfg.Network.NumRelays = 5
//
//	cfg, err := config.LoadFile("relaymesh.json")
//
// 各内部包通过 ConfigFromUnified 把统一配置转换为自己的 Config。
package config

// Config relaymesh 的完整配置
//
//   - Channel: 进程级通道与连接
//   - Relay: 中继节点转发
//   - Network: 中继网络规模与出口计算
//   - Log: 日志
//   - Metrics: 指标导出
type Config struct {
	// Channel 通道与连接配置
	Channel ChannelConfig `json:"channel"`

	// Relay 中继节点配置
	Relay RelayConfig `json:"relay"`

	// Network 中继网络配置
	Network NetworkConfig `json:"network"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Channel: DefaultChannelConfig(),
		Relay:   DefaultRelayConfig(),
		Network: DefaultNetworkConfig(),
		Log:     DefaultLogConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}

// Validate 验证全部子配置
func (c *Config) Validate() error {
	if err := c.Channel.Validate(); err != nil {
		return err
	}
	if err := c.Relay.Validate(); err != nil {
		return err
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return nil
}
