package config

import (
	"errors"
	"fmt"
)

// NetworkConfig 中继网络配置
type NetworkConfig struct {
	// NumRelays 中继数量
	NumRelays int `json:"num_relays"`

	// NumInstancesPerService 每个服务的实例数量
	NumInstancesPerService int `json:"num_instances_per_service"`

	// KValue 每个中继每个服务的最大出口数
	KValue int `json:"k_value"`

	// ServiceNames 服务名
	ServiceNames []string `json:"service_names"`

	// Host 监听主机
	Host string `json:"host"`
}

// DefaultNetworkConfig 返回默认网络配置
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		NumRelays:              3,
		NumInstancesPerService: 1,
		KValue:                 5,
		ServiceNames:           []string{"bob", "steve", "mary"},
		Host:                   "127.0.0.1",
	}
}

// Validate 验证网络配置
func (c NetworkConfig) Validate() error {
	if c.NumRelays < 1 {
		return errors.New("network: num_relays must be >= 1")
	}
	if c.NumInstancesPerService < 1 {
		return errors.New("network: num_instances_per_service must be >= 1")
	}
	if c.KValue < 1 {
		return errors.New("network: k_value must be >= 1")
	}
	if len(c.ServiceNames) == 0 {
		return errors.New("network: service_names is empty")
	}
	seen := make(map[string]bool, len(c.ServiceNames))
	for _, name := range c.ServiceNames {
		if name == "" {
			return errors.New("network: empty service name")
		}
		if seen[name] {
			return fmt.Errorf("network: duplicate service name %q", name)
		}
		seen[name] = true
	}
	return nil
}
