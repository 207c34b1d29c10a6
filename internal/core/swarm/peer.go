package swarm

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-relaymesh/internal/core/eventbus"
	"github.com/dep2p/go-relaymesh/internal/core/metrics"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// Peer 按 host:port 标识的远端主机
//
// 出站与入站连接分开保存。连接集合只由 Peer 自己修改，
// 首选连接的选择在 mu 内串行完成。
type Peer struct {
	hostPort string
	local    Local
	cfg      *Config

	mu       sync.Mutex
	outgoing []*Connection
	incoming []*Connection
	changed  chan struct{}
	lastErr  error
	closed   bool

	events               *eventbus.Emitter
	ConnectionAddedEvent *eventbus.Event[*Connection]
	ErrorEvent           *eventbus.Event[error]
}

// NewPeer 创建 Peer
func NewPeer(hostPort string, local Local, cfg *Config) *Peer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Peer{
		hostPort: hostPort,
		local:    local,
		cfg:      cfg,
		changed:  make(chan struct{}),
	}
	p.events = eventbus.New(p,
		eventbus.WithName("peer "+hostPort),
		eventbus.WithUnhandledPolicy(cfg.UnhandledPolicy),
	)
	p.ConnectionAddedEvent = eventbus.Define[*Connection](p.events, EventConnectionAdded)
	p.ErrorEvent = eventbus.Define[error](p.events, eventbus.ErrorEvent)
	return p
}

// HostPort 返回远端地址
func (p *Peer) HostPort() string {
	return p.hostPort
}

// Events 返回 Peer 的事件发射器
func (p *Peer) Events() *eventbus.Emitter {
	return p.events
}

func (p *Peer) String() string {
	return "peer(" + p.hostPort + ")"
}

// ============================================================================
//                              连接管理
// ============================================================================

// MakeOutSocket 拨号远端地址
func (p *Peer) MakeOutSocket(ctx context.Context) (net.Conn, error) {
	return dial(ctx, p.hostPort, p.cfg)
}

// MakeOutConnection 将 socket 包装为未识别的出站连接，不注册到 Peer
func (p *Peer) MakeOutConnection(socket net.Conn) (*Connection, error) {
	return NewOutConnection(socket, p.local, p.cfg)
}

// AddConnection 注册连接并启动其识别握手
//
// 连接的 error 事件转发为 Peer 的 error 事件，连接关闭后自动移除。
func (p *Peer) AddConnection(conn *Connection) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		return ErrPeerClosed
	}
	if p.indexLocked(conn) >= 0 {
		p.mu.Unlock()
		return nil
	}
	if conn.Direction() == types.DirOutbound {
		p.outgoing = append(p.outgoing, conn)
	} else {
		p.incoming = append(p.incoming, conn)
	}
	p.mu.Unlock()

	conn.IdentifiedEvent.On(func(_ any, _ types.Identity) {
		p.mu.Lock()
		p.lastErr = nil
		p.mu.Unlock()
		p.notify()
	})
	conn.ErrorEvent.On(func(_ any, err error) {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.ErrorEvent.Emit(err)
	})
	conn.ClosedEvent.On(func(_ any, _ error) {
		p.removeConnection(conn)
	})

	// 注册监听器前已关闭的连接不会再发射 closed
	if conn.State() == types.ConnClosed {
		p.removeConnection(conn)
	}

	logger.Debug("添加连接", "peer", p.hostPort, "conn", conn.ID(), "dir", conn.Direction())
	p.ConnectionAddedEvent.Emit(conn)
	p.notify()

	conn.Start()
	return nil
}

// Connect 建立新的出站连接并注册
func (p *Peer) Connect(ctx context.Context) (*Connection, error) {
	socket, err := p.MakeOutSocket(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := p.MakeOutConnection(socket)
	if err != nil {
		return nil, err
	}
	if err := p.AddConnection(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Connections 返回全部连接（出站在前）
func (p *Peer) Connections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, 0, len(p.outgoing)+len(p.incoming))
	out = append(out, p.outgoing...)
	out = append(out, p.incoming...)
	return out
}

// IdentifiedCount 返回已识别的连接数
func (p *Peer) IdentifiedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.outgoing {
		if c.IsIdentified() {
			n++
		}
	}
	for _, c := range p.incoming {
		if c.IsIdentified() {
			n++
		}
	}
	return n
}

// Preferred 返回当前首选连接，没有已识别连接时返回 nil
func (p *Peer) Preferred() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preferredLocked()
}

// preferredLocked 最近识别的连接优先，时间相同时出站优先
func (p *Peer) preferredLocked() *Connection {
	var (
		best   *Connection
		bestAt time.Time
	)
	// 出站先遍历，时间相同不替换
	for _, list := range [][]*Connection{p.outgoing, p.incoming} {
		for _, c := range list {
			if !c.IsIdentified() {
				continue
			}
			at := c.IdentifiedAt()
			if best == nil || at.After(bestAt) {
				best, bestAt = c, at
			}
		}
	}
	return best
}

func (p *Peer) indexLocked(conn *Connection) int {
	for i, c := range p.outgoing {
		if c == conn {
			return i
		}
	}
	for i, c := range p.incoming {
		if c == conn {
			return i
		}
	}
	return -1
}

func (p *Peer) removeConnection(conn *Connection) {
	p.mu.Lock()
	p.outgoing = removeConn(p.outgoing, conn)
	p.incoming = removeConn(p.incoming, conn)
	p.mu.Unlock()

	logger.Debug("移除连接", "peer", p.hostPort, "conn", conn.ID())
	p.notify()
}

func removeConn(list []*Connection, conn *Connection) []*Connection {
	for i, c := range list {
		if c == conn {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// notify 唤醒所有等待连接集合变化的调用方
func (p *Peer) notify() {
	p.mu.Lock()
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

// ============================================================================
//                              等待识别
// ============================================================================

// WaitForIdentified 等待出现已识别的连接并返回它
//
// 没有存活连接时先发起连接；所有连接都在识别前关闭时返回最后的错误。
func (p *Peer) WaitForIdentified(ctx context.Context) (*Connection, error) {
	attempted := false
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPeerClosed
		}
		if c := p.preferredLocked(); c != nil {
			p.mu.Unlock()
			return c, nil
		}
		pending := len(p.outgoing) + len(p.incoming)
		changed := p.changed
		lastErr := p.lastErr
		if pending == 0 && !attempted {
			p.lastErr = nil
		}
		p.mu.Unlock()

		if pending == 0 {
			// 本次发起的连接在识别前关闭
			if attempted {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, ErrConnectionClosed
			}
			attempted = true
			if _, err := p.Connect(ctx); err != nil {
				return nil, err
			}
			continue
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ============================================================================
//                              请求
// ============================================================================

// RequestOptions 请求选项
type RequestOptions struct {
	// ServiceName 目标服务名
	ServiceName string

	// Headers 传输头，as/cn 原样转发
	Headers types.Headers

	// HasNoParent 标记请求没有上游调用（不影响是否等待识别）
	HasNoParent bool

	// Parent 上游入站调用，用于继承超时
	Parent *messaging.CallRequest

	// Timeout 请求超时，为 0 时继承 Parent 的 TTL
	Timeout time.Duration

	// WaitForIdentified 没有已识别连接时先建立连接并等待识别
	WaitForIdentified bool

	// Connection 显式指定的连接
	Connection *Connection
}

// Request 选择连接并创建出站请求
//
// 没有已识别连接时立即返回 ErrNotIdentified，除非设置了 WaitForIdentified；
// 等待识别是请求创建过程中唯一的挂起点。
func (p *Peer) Request(ctx context.Context, opts RequestOptions) (*OutRequest, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPeerClosed
	}
	var conn *Connection
	if opts.Connection != nil {
		if opts.Connection.IsIdentified() {
			conn = opts.Connection
		}
	} else {
		conn = p.preferredLocked()
	}
	p.mu.Unlock()

	if conn == nil {
		if !opts.WaitForIdentified {
			return nil, ErrNotIdentified
		}

		var err error
		if opts.Connection != nil {
			err = opts.Connection.WaitIdentified(ctx)
			conn = opts.Connection
		} else {
			conn, err = p.WaitForIdentified(ctx)
		}
		if err != nil {
			return nil, err
		}
	}

	return &OutRequest{peer: p, conn: conn, opts: opts}, nil
}

// Close 关闭全部连接
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*Connection, 0, len(p.outgoing)+len(p.incoming))
	conns = append(conns, p.outgoing...)
	conns = append(conns, p.incoming...)
	p.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	p.notify()
	return err
}

// ============================================================================
//                              OutRequest
// ============================================================================

// OutRequest 已选定连接的出站请求
type OutRequest struct {
	peer *Peer
	conn *Connection
	opts RequestOptions
}

// Connection 返回选定的连接
func (r *OutRequest) Connection() *Connection {
	return r.conn
}

// Peer 返回所属 Peer
func (r *OutRequest) Peer() *Peer {
	return r.peer
}

// CallResult 调用结果
//
// OK 为 false 表示对端处理器调用了 SendNotOk。
type CallResult struct {
	OK      bool
	Headers types.Headers
	Arg2    []byte
	Arg3    []byte
}

// Send 发送请求
//
// arg1 为端点名。对端返回错误响应时返回 *CallError。
func (r *OutRequest) Send(ctx context.Context, arg1, arg2, arg3 []byte) (*CallResult, error) {
	ttl := r.opts.Timeout
	if ttl <= 0 && r.opts.Parent != nil {
		ttl = r.opts.Parent.TTL
	}
	if ttl > 0 {
		var cancel context.CancelFunc
		ctx, cancel = r.peer.cfg.Clock.WithTimeout(ctx, ttl)
		defer cancel()
	}

	req := &messaging.CallRequest{
		Service: r.opts.ServiceName,
		Headers: r.opts.Headers.Clone(),
		TTL:     ttl,
		Arg1:    arg1,
		Arg2:    arg2,
		Arg3:    arg3,
	}

	res, err := r.conn.Send(ctx, req, SendOptions{})
	if err != nil {
		r.peer.cfg.Metrics.Request(req.Service, metrics.OutcomeError)
		return nil, err
	}

	switch res.Code {
	case messaging.CodeOK, messaging.CodeNotOK:
		outcome := metrics.OutcomeOK
		if !res.OK() {
			outcome = metrics.OutcomeNotOK
		}
		r.peer.cfg.Metrics.Request(req.Service, outcome)
		return &CallResult{
			OK:      res.OK(),
			Headers: res.Headers,
			Arg2:    res.Arg2,
			Arg3:    res.Arg3,
		}, nil
	default:
		r.peer.cfg.Metrics.Request(req.Service, metrics.OutcomeError)
		return nil, &CallError{
			Service:  req.Service,
			Endpoint: req.Endpoint(),
			Code:     res.ErrorCode,
			Message:  res.Message,
		}
	}
}

// String 返回请求描述
func (r *OutRequest) String() string {
	return fmt.Sprintf("request(%s via %s)", r.opts.ServiceName, r.conn)
}
