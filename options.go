package relaymesh

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/internal/core/relaynet"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 统一配置，选项按顺序修改它
	config *config.Config

	// listen 覆盖组件监听行为（测试用）
	listen relaynet.ListenFunc

	// fxOptions 附加的 Fx 选项
	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithPreset 使用预设拓扑
//
// 预设在默认配置上修改，应放在其他选项之前。
func WithPreset(preset *Preset) Option {
	return func(o *options) error {
		if preset == nil {
			return errors.New("preset is nil")
		}
		preset.Apply(o.config)
		return nil
	}
}

// WithConfig 使用完整配置替换当前配置
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              网络拓扑
// ════════════════════════════════════════════════════════════════════════════

// WithRelays 设置中继数量
func WithRelays(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("invalid relay count: %d", n)
		}
		o.config.Network.NumRelays = n
		return nil
	}
}

// WithInstancesPerService 设置每个服务的实例数量
func WithInstancesPerService(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("invalid instance count: %d", n)
		}
		o.config.Network.NumInstancesPerService = n
		return nil
	}
}

// WithKValue 设置每个中继每个服务的出口数
func WithKValue(k int) Option {
	return func(o *options) error {
		if k < 1 {
			return fmt.Errorf("invalid k value: %d", k)
		}
		o.config.Network.KValue = k
		return nil
	}
}

// WithServices 设置服务名
func WithServices(names ...string) Option {
	return func(o *options) error {
		if len(names) == 0 {
			return errors.New("no service names")
		}
		o.config.Network.ServiceNames = append([]string(nil), names...)
		return nil
	}
}

// WithHost 设置监听主机
func WithHost(host string) Option {
	return func(o *options) error {
		o.config.Network.Host = host
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              中继与通道
// ════════════════════════════════════════════════════════════════════════════

// WithForwardRate 设置中继按服务的转发限流（0 = 不限制）
func WithForwardRate(perSecond float64, burst int) Option {
	return func(o *options) error {
		o.config.Relay.ForwardRate = perSecond
		o.config.Relay.ForwardBurst = burst
		return nil
	}
}

// WithHandlerTimeout 设置处理器超时
func WithHandlerTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.config.Channel.HandlerTimeout = config.Duration(d)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              可观测性
// ════════════════════════════════════════════════════════════════════════════

// WithLogLevel 设置日志级别（debug/info/warn/error）
func WithLogLevel(level string) Option {
	return func(o *options) error {
		o.config.Log.Level = level
		return nil
	}
}

// WithLogFile 设置日志文件，按大小轮转
func WithLogFile(path string) Option {
	return func(o *options) error {
		o.config.Log.File = path
		return nil
	}
}

// WithMetrics 设置是否启用指标以及 /metrics 监听地址
//
// addr 为空时只注册指标，不启动 HTTP 服务。
func WithMetrics(enable bool, addr string) Option {
	return func(o *options) error {
		o.config.Metrics.Enable = enable
		o.config.Metrics.ListenAddr = addr
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              扩展
// ════════════════════════════════════════════════════════════════════════════

// WithListenFunc 覆盖组件的监听行为
func WithListenFunc(fn relaynet.ListenFunc) Option {
	return func(o *options) error {
		o.listen = fn
		return nil
	}
}

// WithFxOptions 附加 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
