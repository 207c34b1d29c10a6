package relay

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-relaymesh/internal/core/channel"
	"github.com/dep2p/go-relaymesh/internal/core/metrics"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/lib/log"
)

var logger = log.Logger("core/relay")

// Node 中继节点
type Node struct {
	ch      *channel.Channel
	cfg     *Config
	limiter *Limiter
	metrics *metrics.Metrics

	mu       sync.RWMutex
	services map[string]*channel.SubChannel
	closed   bool
}

// NewNode 在 Channel 上创建中继节点
func NewNode(ch *channel.Channel, cfg *Config, opts ...Option) (*Node, error) {
	if ch == nil {
		return nil, fmt.Errorf("%w: channel is nil", ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &Node{
		ch:       ch,
		cfg:      &c,
		limiter:  NewLimiter(c.ForwardRate, c.ForwardBurst),
		metrics:  ch.Config().Swarm.Metrics,
		services: make(map[string]*channel.SubChannel),
	}, nil
}

// Channel 返回顶层 Channel
func (n *Node) Channel() *channel.Channel {
	return n.ch
}

// HostPort 返回监听地址
func (n *Node) HostPort() string {
	return n.ch.HostPort()
}

// Limiter 返回转发限流器
func (n *Node) Limiter() *Limiter {
	return n.limiter
}

// AddService 为服务创建转发 SubChannel
//
// SubChannel 只包含 egress 中的地址，查找未知地址返回未找到。
func (n *Node) AddService(service string, egress []string) (*channel.SubChannel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrNodeClosed
	}

	sub, err := n.ch.MakeSubChannel(channel.SubChannelOptions{
		ServiceName: service,
		Peers:       egress,
		Role:        channel.RoleServer,
	})
	if err != nil {
		return nil, err
	}
	sub.SetDefaultHandler(n.forward(sub))
	n.services[service] = sub

	logger.Debug("添加中继服务", "relay", n.ch.HostPort(), "service", service, "egress", len(egress))
	return sub, nil
}

// ApplyExits 按出口表为其中每个服务创建转发 SubChannel
func (n *Node) ApplyExits(table *ExitTable) error {
	for _, svc := range table.Services() {
		if _, err := n.AddService(svc, table.ExitsFor(svc)); err != nil {
			return fmt.Errorf("add service %s: %w", svc, err)
		}
	}
	return nil
}

// Services 返回中继的服务名（排序）
func (n *Node) Services() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]string, 0, len(n.services))
	for svc := range n.services {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}

// SubChannel 返回服务的转发 SubChannel
func (n *Node) SubChannel(service string) (*channel.SubChannel, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	sub, ok := n.services[service]
	return sub, ok
}

// ExitsFor 返回服务当前的出口地址（排序）
func (n *Node) ExitsFor(service string) []string {
	sub, ok := n.SubChannel(service)
	if !ok {
		return nil
	}
	return sub.Peers().Keys()
}

// Close 关闭节点与其 Channel（幂等）
func (n *Node) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	return n.ch.Close()
}

// ============================================================================
//                              转发
// ============================================================================

// forward 返回服务的转发处理器
func (n *Node) forward(sub *channel.SubChannel) channel.Handler {
	service := sub.ServiceName()

	return func(req *channel.InRequest, res *channel.Response, arg2, arg3 []byte) {
		if err := n.limiter.Allow(service); err != nil {
			n.metrics.Forward(service, metrics.OutcomeLimited)
			_ = res.SendError(messaging.ErrCodeBusy, err.Error())
			return
		}

		ctx := req.Context()
		out, err := sub.Request(ctx, channel.RequestOptions{
			Parent:            req,
			Headers:           req.Headers(),
			Timeout:           n.cfg.ForwardTimeout,
			WaitForIdentified: true,
		})
		if err != nil {
			logger.Debug("选择出口失败", "service", service, "endpoint", req.Endpoint(), "error", err)
			n.metrics.Forward(service, metrics.OutcomeError)
			_ = res.SendError(messaging.ErrCodeDeclined, err.Error())
			return
		}

		result, err := out.Send(ctx, []byte(req.Endpoint()), arg2, arg3)
		if err != nil {
			n.metrics.Forward(service, metrics.OutcomeError)
			if ctx.Err() != nil {
				// 超时响应已由 SubChannel 发出
				return
			}

			var callErr *swarm.CallError
			if errors.As(err, &callErr) {
				_ = res.SendError(callErr.Code, callErr.Message)
				return
			}
			logger.Debug("转发失败", "service", service, "endpoint", req.Endpoint(),
				"exit", out.Peer().HostPort(), "error", err)
			_ = res.SendError(messaging.ErrCodeNetwork, err.Error())
			return
		}

		res.Headers = result.Headers
		if result.OK {
			n.metrics.Forward(service, metrics.OutcomeOK)
			_ = res.SendOk(result.Arg2, result.Arg3)
			return
		}
		n.metrics.Forward(service, metrics.OutcomeNotOK)
		_ = res.SendNotOk(result.Arg2, result.Arg3)
	}
}
