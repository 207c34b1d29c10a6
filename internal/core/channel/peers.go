package channel

import (
	"sync"

	"github.com/dep2p/go-relaymesh/internal/core/eventbus"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
)

// PeerRole SubChannel 查找未知地址时的策略
type PeerRole int

const (
	// RoleAuto 构造时给了 Peers 种子列表即为客户端角色，否则为服务端角色
	RoleAuto PeerRole = iota
	// RoleClient 查找未知地址时自动创建 Peer
	RoleClient
	// RoleServer 查找未知地址时返回未找到
	RoleServer
)

// String 返回角色名
func (r PeerRole) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "auto"
	}
}

// Peers SubChannel 的 Peer 视图
//
// 加入视图的 Peer 的 error 事件会转发为 SubChannel 的 error 事件。
type Peers struct {
	sub        *SubChannel
	list       *swarm.PeerList
	autoCreate bool

	mu   sync.Mutex
	subs map[string]*eventbus.Subscription
}

func newPeers(sub *SubChannel, root *swarm.PeerList, autoCreate bool) *Peers {
	return &Peers{
		sub:        sub,
		list:       root.Scoped(),
		autoCreate: autoCreate,
		subs:       make(map[string]*eventbus.Subscription),
	}
}

// AutoCreate 返回 Get 是否自动创建 Peer
func (p *Peers) AutoCreate() bool {
	return p.autoCreate
}

// Add 加入地址（幂等）
func (p *Peers) Add(hostPort string) *swarm.Peer {
	peer, added := p.list.GetOrAdd(hostPort)
	if added {
		s := peer.ErrorEvent.On(func(_ any, err error) {
			p.sub.ErrorEvent.Emit(err)
		})
		p.mu.Lock()
		p.subs[hostPort] = s
		p.mu.Unlock()
	}
	return peer
}

// Get 查找 Peer，客户端角色下未知地址会被创建
func (p *Peers) Get(hostPort string) (*swarm.Peer, bool) {
	if peer, ok := p.list.Get(hostPort); ok {
		return peer, true
	}
	if !p.autoCreate {
		return nil, false
	}
	return p.Add(hostPort), true
}

// Remove 从视图中移除地址
func (p *Peers) Remove(hostPort string) bool {
	_, ok := p.list.Remove(hostPort)
	p.mu.Lock()
	if s, exists := p.subs[hostPort]; exists {
		s.Close()
		delete(p.subs, hostPort)
	}
	p.mu.Unlock()
	return ok
}

// Keys 返回排序后的地址
func (p *Peers) Keys() []string {
	return p.list.Keys()
}

// Len 返回 Peer 数量
func (p *Peers) Len() int {
	return p.list.Len()
}

// Values 按地址顺序返回 Peer
func (p *Peers) Values() []*swarm.Peer {
	return p.list.Values()
}

// Choose 选择一个 Peer，见 swarm.PeerList.Choose
func (p *Peers) Choose(filter func(*swarm.Peer) bool) *swarm.Peer {
	return p.list.Choose(filter)
}

func (p *Peers) close() {
	p.mu.Lock()
	for hostPort, s := range p.subs {
		s.Close()
		delete(p.subs, hostPort)
	}
	p.mu.Unlock()
	_ = p.list.Close()
}
