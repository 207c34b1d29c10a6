package swarm

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-relaymesh/internal/core/eventbus"
	"github.com/dep2p/go-relaymesh/internal/core/muxer/yamux"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/lib/log"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

var logger = log.Logger("core/swarm")

// 事件名
const (
	EventIdentified      = "identified"
	EventClosed          = "closed"
	EventConnectionAdded = "connection-added"
)

// Local 本端信息
//
// 由拥有连接的进程（通常是 channel.Channel）实现。
type Local interface {
	// Identity 返回识别握手时发送给对端的身份
	Identity() types.Identity

	// HandleCall 处理对端发来的调用，返回 nil 时回复 unexpected 错误
	HandleCall(ctx context.Context, conn *Connection, req *messaging.CallRequest) *messaging.CallResponse
}

var connIDs atomic.Uint64

// ============================================================================
//                              Connection
// ============================================================================

// Connection 一条 socket 级链路
//
// 状态机 unidentified → identified → closed。socket 之上运行 yamux 会话，
// 第一条流用于识别握手，之后每次调用一条流。
type Connection struct {
	id      uint64
	dir     types.Direction
	socket  net.Conn
	session *yamux.Session
	local   Local
	cfg     *Config
	clock   clock.Clock

	state     atomic.Int32
	createdAt time.Time

	mu            sync.Mutex
	remote        types.Identity
	identifiedAt  time.Time
	inflight      map[uint64]net.Conn
	closeReason   error
	identifyTimer *clock.Timer

	identifiedCh chan struct{}
	closedCh     chan struct{}
	startOnce    sync.Once
	closeOnce    sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	nextReqID atomic.Uint64

	events          *eventbus.Emitter
	IdentifiedEvent *eventbus.Event[types.Identity]
	ErrorEvent      *eventbus.Event[error]
	ClosedEvent     *eventbus.Event[error]
}

// NewOutConnection 将已拨通的 socket 包装为出站连接
//
// 连接处于 unidentified 状态，调用 Start 后开始识别握手。
func NewOutConnection(socket net.Conn, local Local, cfg *Config) (*Connection, error) {
	return newConnection(socket, types.DirOutbound, local, cfg)
}

// NewInConnection 将已接受的 socket 包装为入站连接
func NewInConnection(socket net.Conn, local Local, cfg *Config) (*Connection, error) {
	return newConnection(socket, types.DirInbound, local, cfg)
}

func newConnection(socket net.Conn, dir types.Direction, local Local, cfg *Config) (*Connection, error) {
	if socket == nil {
		return nil, fmt.Errorf("socket is nil")
	}
	if local == nil {
		return nil, fmt.Errorf("local is nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	session, err := yamux.NewSession(socket, dir == types.DirInbound, cfg.Yamux)
	if err != nil {
		_ = socket.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           connIDs.Add(1),
		dir:          dir,
		socket:       socket,
		session:      session,
		local:        local,
		cfg:          cfg,
		clock:        cfg.Clock,
		createdAt:    cfg.Clock.Now(),
		inflight:     make(map[uint64]net.Conn),
		identifiedCh: make(chan struct{}),
		closedCh:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	c.events = eventbus.New(c,
		eventbus.WithName(fmt.Sprintf("connection %d", c.id)),
		eventbus.WithUnhandledPolicy(cfg.UnhandledPolicy),
	)
	c.IdentifiedEvent = eventbus.Define[types.Identity](c.events, EventIdentified)
	c.ErrorEvent = eventbus.Define[error](c.events, eventbus.ErrorEvent)
	c.ClosedEvent = eventbus.Define[error](c.events, EventClosed)

	cfg.Metrics.ConnOpened(dir)
	logger.Debug("创建连接", "id", c.id, "dir", dir, "remoteAddr", c.RemoteAddr())
	return c, nil
}

// Start 开始识别握手（幂等）
//
// 调用方应在 Start 之前注册 error 监听器。
func (c *Connection) Start() {
	c.startOnce.Do(func() {
		if c.State() == types.ConnClosed {
			return
		}
		c.mu.Lock()
		c.identifyTimer = c.clock.AfterFunc(c.cfg.IdentifyTimeout, func() {
			if c.State() == types.ConnUnidentified {
				c.closeWithError(&IdentifyError{HostPort: c.RemoteAddr(), Err: ErrIdentifyTimeout})
			}
		})
		c.mu.Unlock()
		go c.identify()
	})
}

// ============================================================================
//                              访问器
// ============================================================================

// ID 返回进程内唯一的连接编号
func (c *Connection) ID() uint64 { return c.id }

// Direction 返回连接方向
func (c *Connection) Direction() types.Direction { return c.dir }

// State 返回当前状态
func (c *Connection) State() types.ConnState {
	return types.ConnState(c.state.Load())
}

// IsIdentified 是否已完成识别
func (c *Connection) IsIdentified() bool {
	return c.State() == types.ConnIdentified
}

// Remote 返回对端身份（识别前为零值）
func (c *Connection) Remote() types.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// IdentifiedAt 返回识别完成的时间（识别前为零值）
func (c *Connection) IdentifiedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifiedAt
}

// InFlight 返回在途请求数
func (c *Connection) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// RemoteAddr 返回 socket 远端地址
func (c *Connection) RemoteAddr() string {
	if addr := c.socket.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// LocalAddr 返回 socket 本地地址
func (c *Connection) LocalAddr() string {
	if addr := c.socket.LocalAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Done 返回连接关闭时关闭的 channel
func (c *Connection) Done() <-chan struct{} {
	return c.closedCh
}

// Events 返回连接的事件发射器
func (c *Connection) Events() *eventbus.Emitter {
	return c.events
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn(%d %s %s %s)", c.id, c.dir, c.RemoteAddr(), c.State())
}

// ============================================================================
//                              请求
// ============================================================================

// SendOptions 发送选项
type SendOptions struct {
	// Queue 连接未识别时等待识别完成，而不是返回 ErrNotIdentified
	Queue bool
}

// Send 发送调用请求并等待响应
//
// 识别前返回 ErrNotIdentified（除非 opts.Queue），关闭后返回 ErrConnectionClosed。
// 关闭时仍在途的请求同样以 ErrConnectionClosed 失败。
func (c *Connection) Send(ctx context.Context, req *messaging.CallRequest, opts SendOptions) (*messaging.CallResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", messaging.ErrInvalidMessage)
	}

	switch c.State() {
	case types.ConnClosed:
		return nil, ErrConnectionClosed
	case types.ConnUnidentified:
		if !opts.Queue {
			return nil, ErrNotIdentified
		}
		if err := c.WaitIdentified(ctx); err != nil {
			return nil, err
		}
	}

	if req.ID == 0 {
		req.ID = c.nextReqID.Add(1)
	}

	stream, err := c.session.Open(ctx)
	if err != nil {
		return nil, c.sendError(ctx, err)
	}
	defer stream.Close()

	if !c.track(req.ID, stream) {
		return nil, ErrConnectionClosed
	}
	defer c.untrack(req.ID)

	stop := context.AfterFunc(ctx, func() {
		_ = stream.SetDeadline(time.Now())
	})
	defer stop()

	if err := messaging.WriteFrame(stream, req); err != nil {
		return nil, c.sendError(ctx, err)
	}
	f, err := messaging.ReadFrame(stream, c.cfg.MaxFrameSize)
	if err != nil {
		return nil, c.sendError(ctx, err)
	}

	res, ok := f.(*messaging.CallResponse)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedResponse, f.Type())
	}
	if res.ID != req.ID {
		return nil, fmt.Errorf("%w: id %d != %d", ErrUnexpectedResponse, res.ID, req.ID)
	}
	return res, nil
}

// WaitIdentified 阻塞直到识别完成、连接关闭或 ctx 结束
func (c *Connection) WaitIdentified(ctx context.Context) error {
	select {
	case <-c.identifiedCh:
		if c.State() == types.ConnClosed {
			return c.closedError()
		}
		return nil
	case <-c.closedCh:
		return c.closedError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) sendError(ctx context.Context, err error) error {
	if c.State() == types.ConnClosed {
		return ErrConnectionClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("send on %s: %w", c, err)
}

func (c *Connection) closedError() error {
	c.mu.Lock()
	reason := c.closeReason
	c.mu.Unlock()
	if reason != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, reason)
	}
	return ErrConnectionClosed
}

func (c *Connection) track(id uint64, stream net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == types.ConnClosed {
		return false
	}
	c.inflight[id] = stream
	return true
}

func (c *Connection) untrack(id uint64) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// ============================================================================
//                              入站调用
// ============================================================================

// serve 识别完成后接受对端打开的流
func (c *Connection) serve() {
	for {
		stream, err := c.session.Accept()
		if err != nil {
			// 对端挂断或本端关闭
			_ = c.closeWithError(nil)
			return
		}
		go c.handleStream(stream)
	}
}

func (c *Connection) handleStream(stream net.Conn) {
	defer stream.Close()

	f, err := messaging.ReadFrame(stream, c.cfg.MaxFrameSize)
	if err != nil {
		logger.Debug("读取请求失败", "conn", c.id, "error", err)
		return
	}

	req, ok := f.(*messaging.CallRequest)
	if !ok {
		_ = messaging.WriteFrame(stream, &messaging.CallResponse{
			Code:      messaging.CodeError,
			ErrorCode: messaging.ErrCodeProtocol,
			Message:   fmt.Sprintf("unexpected frame %s", f.Type()),
		})
		return
	}

	ctx := c.ctx
	if req.TTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = c.clock.WithTimeout(c.ctx, req.TTL)
		defer cancel()
	}

	res := c.local.HandleCall(ctx, c, req)
	if res == nil {
		res = &messaging.CallResponse{
			Code:      messaging.CodeError,
			ErrorCode: messaging.ErrCodeUnexpected,
			Message:   "no response",
		}
	}
	res.ID = req.ID

	if err := messaging.WriteFrame(stream, res); err != nil {
		logger.Debug("写入响应失败", "conn", c.id, "id", req.ID, "error", err)
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭连接（幂等）
//
// 在途请求以 ErrConnectionClosed 失败，closed 事件只发射一次。
func (c *Connection) Close() error {
	return c.closeWithError(nil)
}

func (c *Connection) closeWithError(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(types.ConnClosed))
		// 监听器执行完之后再唤醒等待方
		defer close(c.closedCh)

		c.mu.Lock()
		if c.identifyTimer != nil {
			c.identifyTimer.Stop()
		}
		c.closeReason = reason
		pending := len(c.inflight)
		c.mu.Unlock()

		c.cancel()
		// 会话关闭会同时关闭底层 socket 并唤醒所有流上的读
		err = c.session.Close()

		c.cfg.Metrics.ConnClosed(c.dir)
		logger.Debug("连接已关闭", "id", c.id, "dir", c.dir, "remoteAddr", c.RemoteAddr(),
			"inflight", pending, "reason", reason)

		if reason != nil {
			c.ErrorEvent.Emit(reason)
		}
		c.ClosedEvent.Emit(reason)
	})
	return err
}
