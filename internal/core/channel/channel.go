package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/lib/log"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

var logger = log.Logger("core/channel")

// Channel 进程级通道
//
// 实现 swarm.Local：握手时提供本端身份，入站调用按服务名分派。
type Channel struct {
	cfg         *Config
	processName string

	mu       sync.RWMutex
	hostPort string
	listener net.Listener
	subs     map[string]*SubChannel
	pending  map[*swarm.Connection]struct{}

	peers *swarm.PeerList

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// New 创建 Channel
func New(opts ...Option) (*Channel, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name := cfg.ProcessName
	if name == "" {
		name = NewProcessName("")
	}

	ch := &Channel{
		cfg:         cfg,
		processName: name,
		hostPort:    types.EphemeralHostPort,
		subs:        make(map[string]*SubChannel),
		pending:     make(map[*swarm.Connection]struct{}),
	}
	ch.peers = swarm.NewPeerList(ch, cfg.Swarm)
	ch.peers.OnPeerAdded(func(p *swarm.Peer) {
		p.ErrorEvent.On(func(_ any, err error) {
			logger.Debug("peer 错误", "channel", ch.processName, "peer", p.HostPort(), "error", err)
		})
	})
	return ch, nil
}

// ============================================================================
//                              swarm.Local
// ============================================================================

// Identity 返回本端身份，未监听时 HostPort 为临时地址
func (ch *Channel) Identity() types.Identity {
	return types.Identity{HostPort: ch.HostPort(), ProcessName: ch.processName}
}

// HandleCall 按服务名分派入站调用
func (ch *Channel) HandleCall(ctx context.Context, conn *swarm.Connection, call *messaging.CallRequest) *messaging.CallResponse {
	sub, ok := ch.SubChannel(call.Service)
	if !ok {
		logger.Debug("未知服务", "channel", ch.processName, "service", call.Service, "endpoint", call.Endpoint())
		return &messaging.CallResponse{
			Code:      messaging.CodeError,
			ErrorCode: messaging.ErrCodeBadRequest,
			Message:   fmt.Sprintf("no such service %q", call.Service),
		}
	}
	return sub.handle(ctx, conn, call)
}

// ============================================================================
//                              访问器
// ============================================================================

// HostPort 返回监听地址
func (ch *Channel) HostPort() string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.hostPort
}

// ProcessName 返回进程名
func (ch *Channel) ProcessName() string {
	return ch.processName
}

// Peers 返回根 PeerList
func (ch *Channel) Peers() *swarm.PeerList {
	return ch.peers
}

// Config 返回配置
func (ch *Channel) Config() *Config {
	return ch.cfg
}

// IsClosed 是否已关闭
func (ch *Channel) IsClosed() bool {
	return ch.closed.Load()
}

// SubChannel 按服务名查找
func (ch *Channel) SubChannel(service string) (*SubChannel, bool) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	s, ok := ch.subs[service]
	return s, ok
}

// SubChannelNames 返回排序后的服务名
func (ch *Channel) SubChannelNames() []string {
	ch.mu.RLock()
	names := make([]string, 0, len(ch.subs))
	for name := range ch.subs {
		names = append(names, name)
	}
	ch.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ============================================================================
//                              SubChannel
// ============================================================================

// MakeSubChannel 创建服务级视图
func (ch *Channel) MakeSubChannel(opts SubChannelOptions) (*SubChannel, error) {
	if opts.ServiceName == "" {
		return nil, ErrEmptyServiceName
	}
	if ch.closed.Load() {
		return nil, ErrChannelClosed
	}

	ch.mu.Lock()
	if _, exists := ch.subs[opts.ServiceName]; exists {
		ch.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSubChannelExists, opts.ServiceName)
	}
	sub := newSubChannel(ch, opts)
	ch.subs[opts.ServiceName] = sub
	ch.mu.Unlock()

	sub.ErrorEvent.On(func(_ any, err error) {
		logger.Warn("sub-channel 错误", "channel", ch.processName, "service", sub.serviceName, "error", err)
	})

	logger.Debug("创建 sub-channel", "channel", ch.processName, "service", opts.ServiceName,
		"peers", len(opts.Peers), "autoCreate", sub.peers.AutoCreate())
	return sub, nil
}

// ============================================================================
//                              监听
// ============================================================================

// Listen 监听地址并开始接受连接
func (ch *Channel) Listen(ctx context.Context, addr string) error {
	if ch.closed.Load() {
		return ErrChannelClosed
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	ch.mu.Lock()
	if ch.listener != nil {
		ch.mu.Unlock()
		_ = ln.Close()
		return ErrAlreadyListening
	}
	ch.listener = ln
	ch.hostPort = ln.Addr().String()
	ch.mu.Unlock()

	ch.wg.Add(1)
	go ch.acceptLoop(ln)

	logger.Info("开始监听", "channel", ch.processName, "hostPort", ch.HostPort())
	return nil
}

func (ch *Channel) acceptLoop(ln net.Listener) {
	defer ch.wg.Done()

	for {
		sock, err := ln.Accept()
		if err != nil {
			if ch.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("接受连接失败", "channel", ch.processName, "error", err)
			return
		}
		ch.acceptConn(sock)
	}
}

// acceptConn 包装入站连接，识别完成后挂到对应的 Peer
func (ch *Channel) acceptConn(sock net.Conn) {
	conn, err := swarm.NewInConnection(sock, ch, ch.cfg.Swarm)
	if err != nil {
		logger.Warn("创建入站连接失败", "channel", ch.processName, "error", err)
		return
	}

	ch.mu.Lock()
	if ch.closed.Load() {
		ch.mu.Unlock()
		_ = conn.Close()
		return
	}
	ch.pending[conn] = struct{}{}
	ch.mu.Unlock()

	conn.ErrorEvent.On(func(_ any, err error) {
		logger.Debug("入站连接错误", "channel", ch.processName, "remoteAddr", conn.RemoteAddr(), "error", err)
	})
	conn.ClosedEvent.On(func(_ any, _ error) {
		ch.untrackPending(conn)
	})
	conn.IdentifiedEvent.On(func(_ any, remote types.Identity) {
		ch.untrackPending(conn)
		if ch.closed.Load() {
			_ = conn.Close()
			return
		}
		peer := ch.peers.Add(remote.HostPort)
		if err := peer.AddConnection(conn); err != nil {
			logger.Debug("挂载入站连接失败", "peer", remote.HostPort, "error", err)
		}
	})
	conn.Start()
}

func (ch *Channel) untrackPending(conn *swarm.Connection) {
	ch.mu.Lock()
	delete(ch.pending, conn)
	ch.mu.Unlock()
}

// WaitForIdentified 等待与 hostPort 的连接完成识别，必要时发起连接
func (ch *Channel) WaitForIdentified(ctx context.Context, hostPort string) (*swarm.Connection, error) {
	if ch.closed.Load() {
		return nil, ErrChannelClosed
	}
	return ch.peers.Add(hostPort).WaitForIdentified(ctx)
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭监听、全部 SubChannel 与 Peer（幂等）
func (ch *Channel) Close() error {
	ch.closeOnce.Do(func() {
		ch.closed.Store(true)

		ch.mu.Lock()
		ln := ch.listener
		subs := make([]*SubChannel, 0, len(ch.subs))
		for _, s := range ch.subs {
			subs = append(subs, s)
		}
		pending := make([]*swarm.Connection, 0, len(ch.pending))
		for c := range ch.pending {
			pending = append(pending, c)
		}
		ch.mu.Unlock()

		var err error
		if ln != nil {
			err = multierr.Append(err, ignoreClosed(ln.Close()))
		}
		for _, s := range subs {
			s.close()
		}
		for _, c := range pending {
			err = multierr.Append(err, c.Close())
		}
		err = multierr.Append(err, ch.peers.Close())

		ch.wg.Wait()
		ch.closeErr = err
		logger.Debug("channel 已关闭", "channel", ch.processName, "hostPort", ch.HostPort())
	})
	return ch.closeErr
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
