package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool

	// ListenAddr /metrics 监听地址，为空时不启动 HTTP 服务
	ListenAddr string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled: true,
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled:    cfg.Metrics.Enable,
		ListenAddr: cfg.Metrics.ListenAddr,
	}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Lifecycle  fx.Lifecycle
}

// Output Metrics 模块输出
//
// 未启用时 Metrics 与 Registry 均为 nil，使用方按 nil 处理。
type Output struct {
	fx.Out

	Metrics  *Metrics
	Registry *prometheus.Registry
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(provideMetrics),
)

func provideMetrics(p Params) Output {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		return Output{}
	}

	reg := prometheus.NewRegistry()
	m := New(reg)

	if cfg.ListenAddr != "" {
		srv := NewServer(cfg.ListenAddr, reg)
		p.Lifecycle.Append(fx.Hook{
			OnStart: srv.Start,
			OnStop:  srv.Stop,
		})
	}
	return Output{Metrics: m, Registry: reg}
}

// ============================================================================
//                              HTTP 服务
// ============================================================================

// Server 暴露 /metrics 的 HTTP 服务
type Server struct {
	addr string
	srv  *http.Server
	ln   net.Listener
}

// NewServer 创建指标 HTTP 服务
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{
		addr: addr,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start 开始监听
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	logger.Info("指标服务已启动", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "error", err)
		}
	}()
	return nil
}

// Addr 返回实际监听地址，未启动时返回配置地址
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop 关闭服务
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
