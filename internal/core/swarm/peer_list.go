package swarm

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// PeerList host:port → Peer 映射
//
// 根列表拥有 Peer；视图（Scoped）通过根列表创建 Peer，只维护自己的键集合，
// 因此同一地址在进程内只有一个 Peer。
type PeerList struct {
	local Local
	cfg   *Config
	root  *PeerList

	mu    sync.RWMutex
	peers map[string]*Peer

	onAdd []func(*Peer)
	rr    atomic.Uint64
}

// NewPeerList 创建根列表
func NewPeerList(local Local, cfg *Config) *PeerList {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &PeerList{
		local: local,
		cfg:   cfg,
		peers: make(map[string]*Peer),
	}
}

// Scoped 创建共享本根列表 Peer 的视图
func (l *PeerList) Scoped() *PeerList {
	root := l.Root()
	return &PeerList{
		local: root.local,
		cfg:   root.cfg,
		root:  root,
		peers: make(map[string]*Peer),
	}
}

// Root 返回根列表
func (l *PeerList) Root() *PeerList {
	if l.root != nil {
		return l.root
	}
	return l
}

// OnPeerAdded 注册新建 Peer 的回调（只在根列表上触发）
//
// 用于在 Peer 发射任何事件之前挂上 error 监听器。
func (l *PeerList) OnPeerAdded(fn func(*Peer)) {
	root := l.Root()
	root.mu.Lock()
	root.onAdd = append(root.onAdd, fn)
	root.mu.Unlock()
}

// Add 添加地址并返回对应的 Peer（幂等）
func (l *PeerList) Add(hostPort string) *Peer {
	p, _ := l.GetOrAdd(hostPort)
	return p
}

// GetOrAdd 返回已有 Peer 或新建一个，added 表示本列表是否新增了该键
func (l *PeerList) GetOrAdd(hostPort string) (*Peer, bool) {
	l.mu.RLock()
	p, ok := l.peers[hostPort]
	l.mu.RUnlock()
	if ok {
		return p, false
	}

	if l.root != nil {
		p = l.root.Add(hostPort)
		l.mu.Lock()
		if existing, ok := l.peers[hostPort]; ok {
			l.mu.Unlock()
			return existing, false
		}
		l.peers[hostPort] = p
		l.mu.Unlock()
		return p, true
	}

	l.mu.Lock()
	if existing, ok := l.peers[hostPort]; ok {
		l.mu.Unlock()
		return existing, false
	}
	p = NewPeer(hostPort, l.local, l.cfg)
	l.peers[hostPort] = p
	hooks := append([]func(*Peer){}, l.onAdd...)
	l.mu.Unlock()

	for _, fn := range hooks {
		fn(p)
	}
	logger.Debug("添加 Peer", "hostPort", hostPort)
	return p, true
}

// Get 查找 Peer
func (l *PeerList) Get(hostPort string) (*Peer, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.peers[hostPort]
	return p, ok
}

// Remove 从列表中移除并返回 Peer，不关闭它
func (l *PeerList) Remove(hostPort string) (*Peer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.peers[hostPort]
	if ok {
		delete(l.peers, hostPort)
	}
	return p, ok
}

// Keys 返回排序后的地址列表
func (l *PeerList) Keys() []string {
	l.mu.RLock()
	keys := make([]string, 0, len(l.peers))
	for k := range l.peers {
		keys = append(keys, k)
	}
	l.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len 返回 Peer 数量
func (l *PeerList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.peers)
}

// Values 按地址顺序返回全部 Peer
func (l *PeerList) Values() []*Peer {
	keys := l.Keys()
	out := make([]*Peer, 0, len(keys))
	l.mu.RLock()
	for _, k := range keys {
		if p, ok := l.peers[k]; ok {
			out = append(out, p)
		}
	}
	l.mu.RUnlock()
	return out
}

// Choose 选择一个 Peer
//
// 优先有已识别连接的 Peer，同类之间轮询；filter 为 nil 时不过滤。
// 没有候选时返回 nil。
func (l *PeerList) Choose(filter func(*Peer) bool) *Peer {
	var identified, others []*Peer
	for _, p := range l.Values() {
		if filter != nil && !filter(p) {
			continue
		}
		if p.IdentifiedCount() > 0 {
			identified = append(identified, p)
		} else {
			others = append(others, p)
		}
	}

	candidates := identified
	if len(candidates) == 0 {
		candidates = others
	}
	if len(candidates) == 0 {
		return nil
	}
	n := l.rr.Add(1) - 1
	return candidates[n%uint64(len(candidates))]
}

// Close 关闭列表中的全部 Peer
//
// 视图只清空自己的键集合，Peer 由根列表关闭。
func (l *PeerList) Close() error {
	l.mu.Lock()
	peers := make([]*Peer, 0, len(l.peers))
	for _, p := range l.peers {
		peers = append(peers, p)
	}
	l.peers = make(map[string]*Peer)
	l.mu.Unlock()

	if l.root != nil {
		return nil
	}

	var err error
	for _, p := range peers {
		err = multierr.Append(err, p.Close())
	}
	return err
}
