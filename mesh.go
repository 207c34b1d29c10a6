package relaymesh

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/internal/core/relaynet"
	"github.com/dep2p/go-relaymesh/pkg/lib/log"
)

var logger = log.Logger("relaymesh")

// closeTimeout Close 等待组件关闭的时间
const closeTimeout = 10 * time.Second

// Mesh 中继网格
//
// 持有一个 relaynet.Network 及其指标，由 Fx 应用管理生命周期。
type Mesh struct {
	opts *options
	app  *fx.App

	// 由 Fx 填充
	network  *relaynet.Network
	registry *prometheus.Registry

	logCloser io.Closer

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建中继网格（不启动）
func New(opts ...Option) (*Mesh, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	m := &Mesh{opts: o}

	var err error
	m.app, err = buildFxApp(o, m)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}

	m.applyLogConfig(o.config.Log)
	return m, nil
}

// Start 创建并启动中继网格
func Start(ctx context.Context, opts ...Option) (*Mesh, error) {
	m, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Start(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("start mesh: %w", err)
	}
	return m, nil
}

func (m *Mesh) applyLogConfig(cfg config.LogConfig) {
	log.SetLevel(log.ParseLevel(cfg.Level))
	if cfg.File != "" {
		m.logCloser = log.SetFileOutput(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动全部实例与中继
//
// 失败时已启动的组件全部关闭，网格不可再启动。
func (m *Mesh) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMeshClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}

	logger.Info("正在启动中继网格")
	if err := m.app.Start(ctx); err != nil {
		logger.Error("中继网格启动失败", "error", err)
		return err
	}
	m.started = true
	logger.Info("中继网格已启动", "relays", m.network.RelayHostPorts())
	return nil
}

// Stop 停止网格
func (m *Mesh) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMeshClosed
	}
	if !m.started {
		return ErrNotStarted
	}
	return m.stopLocked(ctx)
}

func (m *Mesh) stopLocked(ctx context.Context) error {
	m.closed = true
	m.started = false
	if err := m.app.Stop(ctx); err != nil {
		logger.Error("停止中继网格失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("中继网格已停止")
	return nil
}

// Close 关闭网格并释放资源（幂等）
func (m *Mesh) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	var err error
	if m.started {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		err = m.stopLocked(ctx)
		cancel()
	} else {
		m.closed = true
		// 未启动的网络也需要进入关闭状态
		err = m.network.Close(context.Background())
	}

	if m.logCloser != nil {
		log.SetOutput(os.Stderr)
		_ = m.logCloser.Close()
		m.logCloser = nil
	}
	return err
}

// ════════════════════════════════════════════════════════════════════════════
//                              访问器
// ════════════════════════════════════════════════════════════════════════════

// Network 返回底层中继网络
func (m *Mesh) Network() *relaynet.Network {
	return m.network
}

// Config 返回配置副本
func (m *Mesh) Config() *config.Config {
	return config.CloneConfig(m.opts.config)
}

// Registry 返回指标注册表，未启用指标时为 nil
func (m *Mesh) Registry() *prometheus.Registry {
	return m.registry
}

// IsRunning 是否运行中
func (m *Mesh) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.closed
}

// RelayHostPorts 返回中继监听地址
func (m *Mesh) RelayHostPorts() []string {
	return m.network.RelayHostPorts()
}

// Remotes 为每个服务的第一个实例创建经由中继通信的 Remote
func (m *Mesh) Remotes(services ...string) (map[string]*relaynet.Remote, error) {
	if !m.IsRunning() {
		return nil, ErrNotStarted
	}
	return m.network.Remotes(services...)
}
