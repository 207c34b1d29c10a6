package relaynet

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/internal/core/channel"
	"github.com/dep2p/go-relaymesh/internal/core/metrics"
	"github.com/dep2p/go-relaymesh/internal/core/relay"
)

// NetworkParams Network 依赖参数
type NetworkParams struct {
	fx.In

	UnifiedCfg *config.Config    `optional:"true"`
	Metrics    *metrics.Metrics  `optional:"true"`
	Listen     ListenFunc        `optional:"true"`
	Lifecycle  fx.Lifecycle
}

// NetworkOutput Network 模块输出
type NetworkOutput struct {
	fx.Out

	Network *Network
}

// Module 中继网络 Fx 模块
//
// OnStart 启动网络，OnStop 关闭网络。
var Module = fx.Module("relaynet",
	fx.Provide(provideNetwork),
)

func provideNetwork(params NetworkParams) (NetworkOutput, error) {
	cfg := ConfigFromUnified(params.UnifiedCfg)
	cfg.Cluster.Metrics = params.Metrics
	cfg.Cluster.Listen = params.Listen

	n, err := New(cfg)
	if err != nil {
		return NetworkOutput{}, err
	}

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return n.Bootstrap(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return n.Close(ctx)
		},
	})
	return NetworkOutput{Network: n}, nil
}

// ConfigFromUnified 从统一配置创建网络配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}

	n := cfg.Network
	out.NumRelays = n.NumRelays
	out.NumInstancesPerService = n.NumInstancesPerService
	out.KValue = n.KValue
	out.ServiceNames = append([]string(nil), n.ServiceNames...)
	out.Cluster.Host = n.Host
	out.Cluster.Relay = relay.ConfigFromUnified(cfg)
	out.Cluster.ChannelOptions = []channel.Option{
		channel.WithConfig(channel.ConfigFromUnified(cfg)),
	}
	return out
}
