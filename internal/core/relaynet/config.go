package relaynet

import (
	"context"
	"fmt"
	"net"

	"github.com/dep2p/go-relaymesh/internal/core/channel"
	"github.com/dep2p/go-relaymesh/internal/core/metrics"
	"github.com/dep2p/go-relaymesh/internal/core/relay"
)

// Role 集群中的组件角色
type Role string

const (
	// RoleRelay 中继节点
	RoleRelay Role = "relay"
	// RoleInstance 服务实例
	RoleInstance Role = "instance"
)

// Component 描述一个待启动的组件
type Component struct {
	Role    Role
	Service string // 仅 RoleInstance
	Index   int
}

// ID 返回组件的稳定标识（relay-0、steve-1）
func (c Component) ID() string {
	if c.Role == RoleRelay {
		return fmt.Sprintf("relay-%d", c.Index)
	}
	return fmt.Sprintf("%s-%d", c.Service, c.Index)
}

// ListenFunc 启动组件监听
type ListenFunc func(ctx context.Context, ch *channel.Channel, c Component) error

// ClusterOptions 集群选项
type ClusterOptions struct {
	// Host 监听主机，端口总是由系统分配
	Host string

	// Listen 覆盖默认监听行为，为 nil 时监听 Host:0
	Listen ListenFunc

	// ChannelOptions 应用到每个 Channel
	ChannelOptions []channel.Option

	// Relay 中继节点配置
	Relay *relay.Config

	// Metrics 所有 Channel 共享的指标，可以为 nil
	Metrics *metrics.Metrics
}

// Config 中继网络配置
type Config struct {
	// NumRelays 中继数量
	NumRelays int

	// NumInstancesPerService 每个服务的实例数量
	NumInstancesPerService int

	// KValue 每个中继每个服务的最大出口数，可以超过实例数
	KValue int

	// ServiceNames 服务名
	ServiceNames []string

	// Cluster 集群选项
	Cluster ClusterOptions
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		NumRelays:              3,
		NumInstancesPerService: 1,
		KValue:                 5,
		ServiceNames:           []string{"bob", "steve", "mary"},
		Cluster: ClusterOptions{
			Host:  "127.0.0.1",
			Relay: relay.DefaultConfig(),
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.NumRelays < 1 {
		return fmt.Errorf("%w: num relays must be >= 1", ErrInvalidConfig)
	}
	if c.NumInstancesPerService < 1 {
		return fmt.Errorf("%w: num instances per service must be >= 1", ErrInvalidConfig)
	}
	if c.KValue < 1 {
		return fmt.Errorf("%w: k value must be >= 1", ErrInvalidConfig)
	}
	if len(c.ServiceNames) == 0 {
		return fmt.Errorf("%w: no service names", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.ServiceNames))
	for _, name := range c.ServiceNames {
		if name == "" {
			return fmt.Errorf("%w: empty service name", ErrInvalidConfig)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate service name %q", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	if c.Cluster.Relay != nil {
		if err := c.Cluster.Relay.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func (o ClusterOptions) listen(ctx context.Context, ch *channel.Channel, c Component) error {
	if o.Listen != nil {
		return o.Listen(ctx, ch, c)
	}
	host := o.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return ch.Listen(ctx, net.JoinHostPort(host, "0"))
}
