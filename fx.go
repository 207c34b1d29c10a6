package relaymesh

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/internal/core/metrics"
	"github.com/dep2p/go-relaymesh/internal/core/relaynet"
	"github.com/dep2p/go-relaymesh/pkg/lib/log"
)

var fxLogger = log.Logger("relaymesh/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 统一配置
//  2. Metrics：Registry 与指标，可选的 /metrics 服务
//  3. RelayNet：OnStart 启动实例与中继，OnStop 关闭
func buildFxApp(o *options, m *Mesh) (*fx.App, error) {
	if err := config.ValidateAll(o.config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.Supply(o.config),
		metrics.Module,
		relaynet.Module,
	}

	if o.listen != nil {
		listen := o.listen
		modules = append(modules, fx.Provide(func() relaynet.ListenFunc { return listen }))
	}

	modules = append(modules, o.fxOptions...)
	modules = append(modules, fx.Populate(&m.network, &m.registry))

	fxLogger.Debug("构建 Fx 应用",
		"relays", o.config.Network.NumRelays,
		"services", o.config.Network.ServiceNames,
		"metrics", o.config.Metrics.Enable)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}
