package relaymesh

import (
	"time"

	"github.com/dep2p/go-relaymesh/config"
)

// ════════════════════════════════════════════════════════════════════════════
//                              预设拓扑
// ════════════════════════════════════════════════════════════════════════════

// 预设名称常量
const (
	// PresetNameLocal 本地开发预设名称
	PresetNameLocal = "local"

	// PresetNameTest 测试预设名称
	PresetNameTest = "test"

	// PresetNameServer 服务器预设名称
	PresetNameServer = "server"
)

// Preset 预设拓扑
type Preset struct {
	// Name 预设名称
	Name string

	// Apply 修改配置
	Apply func(cfg *config.Config)
}

// PresetLocal 本地开发：3 个中继、每服务 1 个实例、k=5
var PresetLocal = &Preset{
	Name:  PresetNameLocal,
	Apply: func(*config.Config) {},
}

// PresetTest 测试：单中继、关闭指标、较短超时
var PresetTest = &Preset{
	Name: PresetNameTest,
	Apply: func(cfg *config.Config) {
		cfg.Network.NumRelays = 1
		cfg.Network.KValue = 1
		cfg.Channel.HandlerTimeout = config.Duration(5 * time.Second)
		cfg.Channel.DialTimeout = config.Duration(time.Second)
		cfg.Channel.IdentifyTimeout = config.Duration(2 * time.Second)
		cfg.Metrics.Enable = false
		cfg.Metrics.ListenAddr = ""
		cfg.Log.Level = "warn"
	},
}

// PresetServer 服务器：多中继、多实例、按服务限流并导出指标
var PresetServer = &Preset{
	Name: PresetNameServer,
	Apply: func(cfg *config.Config) {
		cfg.Network.NumRelays = 5
		cfg.Network.NumInstancesPerService = 4
		cfg.Network.KValue = 2
		cfg.Network.Host = "0.0.0.0"
		cfg.Relay.ForwardRate = 1000
		cfg.Relay.ForwardBurst = 200
		cfg.Metrics.Enable = true
		cfg.Metrics.ListenAddr = ":9464"
	},
}

// PresetByName 按名称查找预设
func PresetByName(name string) (*Preset, bool) {
	switch name {
	case PresetNameLocal:
		return PresetLocal, true
	case PresetNameTest:
		return PresetTest, true
	case PresetNameServer:
		return PresetServer, true
	default:
		return nil, false
	}
}
