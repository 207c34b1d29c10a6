package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-relaymesh/internal/core/eventbus"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// SubChannelOptions SubChannel 选项
type SubChannelOptions struct {
	// ServiceName 服务名（必填）
	ServiceName string

	// Peers 种子地址，非空时默认为客户端角色
	Peers []string

	// Role 未知地址查找策略
	Role PeerRole

	// RequestDefaults 请求默认值，覆盖 Channel 级默认值
	RequestDefaults RequestDefaults

	// RequireParent 请求必须带 Parent 或 HasNoParent
	RequireParent bool
}

// RequestOptions 单次请求选项
type RequestOptions struct {
	// ServiceName 覆盖目标服务名
	ServiceName string

	// Host 指定 Peer 地址，为空时由 Peers.Choose 选择
	Host string

	// Headers 传输头，与默认值按键合并
	Headers types.Headers

	// HasNoParent 请求没有上游调用
	HasNoParent bool

	// Parent 上游入站调用
	Parent *InRequest

	// Timeout 请求超时
	Timeout time.Duration

	// WaitForIdentified 没有已识别连接时等待
	WaitForIdentified bool
}

// SubChannel 服务级视图
type SubChannel struct {
	ch            *Channel
	serviceName   string
	peers         *Peers
	defaults      RequestDefaults
	requireParent bool
	handlers      *handlerRegistry

	events     *eventbus.Emitter
	ErrorEvent *eventbus.Event[error]
}

func newSubChannel(ch *Channel, opts SubChannelOptions) *SubChannel {
	s := &SubChannel{
		ch:            ch,
		serviceName:   opts.ServiceName,
		defaults:      ch.cfg.RequestDefaults.Merge(opts.RequestDefaults),
		requireParent: opts.RequireParent,
		handlers:      newHandlerRegistry(),
	}
	s.events = eventbus.New(s,
		eventbus.WithName("sub-channel "+opts.ServiceName),
		eventbus.WithUnhandledPolicy(ch.cfg.Swarm.UnhandledPolicy),
	)
	s.ErrorEvent = eventbus.Define[error](s.events, eventbus.ErrorEvent)

	autoCreate := len(opts.Peers) > 0
	switch opts.Role {
	case RoleClient:
		autoCreate = true
	case RoleServer:
		autoCreate = false
	}
	s.peers = newPeers(s, ch.peers, autoCreate)
	for _, hostPort := range opts.Peers {
		s.peers.Add(hostPort)
	}
	return s
}

// ServiceName 返回服务名
func (s *SubChannel) ServiceName() string { return s.serviceName }

// Channel 返回所属 Channel
func (s *SubChannel) Channel() *Channel { return s.ch }

// Peers 返回 Peer 视图
func (s *SubChannel) Peers() *Peers { return s.peers }

// RequestDefaults 返回合并后的请求默认值
func (s *SubChannel) RequestDefaults() RequestDefaults { return s.defaults }

// Events 返回事件发射器
func (s *SubChannel) Events() *eventbus.Emitter { return s.events }

// Register 注册端点处理器
func (s *SubChannel) Register(endpoint string, h Handler) error {
	return s.handlers.register(endpoint, h)
}

// SetDefaultHandler 设置兜底处理器，处理所有未注册的端点
func (s *SubChannel) SetDefaultHandler(h Handler) {
	s.handlers.setDefault(h)
}

// Endpoints 返回已注册的端点
func (s *SubChannel) Endpoints() []string {
	return s.handlers.list()
}

// ============================================================================
//                              出站请求
// ============================================================================

// Request 选择 Peer 并创建出站请求
func (s *SubChannel) Request(ctx context.Context, opts RequestOptions) (*swarm.OutRequest, error) {
	merged := s.defaults.Merge(RequestDefaults{
		ServiceName:       opts.ServiceName,
		Headers:           opts.Headers,
		HasNoParent:       opts.HasNoParent,
		Timeout:           opts.Timeout,
		WaitForIdentified: opts.WaitForIdentified,
	})
	if s.requireParent && opts.Parent == nil && !merged.HasNoParent {
		return nil, ErrNoParent
	}

	var peer *swarm.Peer
	if opts.Host != "" {
		p, ok := s.peers.Get(opts.Host)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, opts.Host)
		}
		peer = p
	} else {
		peer = s.peers.Choose(nil)
		if peer == nil {
			return nil, fmt.Errorf("%w: service %s", swarm.ErrNoPeers, s.serviceName)
		}
	}

	service := merged.ServiceName
	if service == "" {
		service = s.serviceName
	}
	var parent *messaging.CallRequest
	if opts.Parent != nil {
		parent = opts.Parent.Call()
	}

	return peer.Request(ctx, swarm.RequestOptions{
		ServiceName:       service,
		Headers:           merged.Headers,
		HasNoParent:       merged.HasNoParent,
		Parent:            parent,
		Timeout:           merged.Timeout,
		WaitForIdentified: merged.WaitForIdentified,
	})
}

// Call 创建请求并发送
func (s *SubChannel) Call(ctx context.Context, opts RequestOptions, endpoint string, arg2, arg3 []byte) (*swarm.CallResult, error) {
	req, err := s.Request(ctx, opts)
	if err != nil {
		return nil, err
	}
	return req.Send(ctx, []byte(endpoint), arg2, arg3)
}

// ============================================================================
//                              入站调用
// ============================================================================

// handle 分派入站调用并等待响应
func (s *SubChannel) handle(ctx context.Context, conn *swarm.Connection, call *messaging.CallRequest) *messaging.CallResponse {
	h, ok := s.handlers.get(call.Endpoint())
	if !ok {
		return &messaging.CallResponse{
			Code:      messaging.CodeError,
			ErrorCode: messaging.ErrCodeBadRequest,
			Message:   fmt.Sprintf("no such endpoint %q on service %q", call.Endpoint(), s.serviceName),
		}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = s.ch.cfg.Swarm.Clock.WithTimeout(ctx, s.ch.cfg.HandlerTimeout)
		defer cancel()
	}

	req := &InRequest{ctx: ctx, conn: conn, call: call}
	res := newResponse(s, req)
	h(req, res, call.Arg2, call.Arg3)
	return res.wait(ctx)
}

func (s *SubChannel) close() {
	s.peers.close()
}
