package relaynet

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-relaymesh/internal/core/channel"
	"github.com/dep2p/go-relaymesh/internal/core/relay"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/pkg/lib/log"
)

var logger = log.Logger("core/relaynet")

type state int

const (
	stateIdle state = iota
	stateRunning
	stateClosed
)

// Network 中继网络
//
// 启动后不可变，关闭幂等。
type Network struct {
	cfg Config
	sel *relay.Selector

	mu        sync.RWMutex
	state     state
	relays    []*relay.Node
	exits     []*relay.ExitTable
	instances map[string][]*channel.Channel
	subs      map[string][]*channel.SubChannel

	// started 记录已创建的全部 Channel，用于回滚与关闭
	started []*channel.Channel

	closeOnce sync.Once
	closeErr  error
}

// New 创建中继网络
func New(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ServiceNames = append([]string(nil), cfg.ServiceNames...)
	if cfg.Cluster.Relay == nil {
		cfg.Cluster.Relay = relay.DefaultConfig()
	}
	return &Network{
		cfg:       cfg,
		sel:       relay.NewSelector(),
		instances: make(map[string][]*channel.Channel),
		subs:      make(map[string][]*channel.SubChannel),
	}, nil
}

// Config 返回配置
func (n *Network) Config() Config {
	return n.cfg
}

// ============================================================================
//                              启动
// ============================================================================

// Bootstrap 启动全部实例与中继并连接出口集合
//
// 任何组件失败都会关闭已启动的组件，返回 *BootstrapError。
func (n *Network) Bootstrap(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case stateRunning:
		n.mu.Unlock()
		return ErrAlreadyBootstrapped
	case stateClosed:
		n.mu.Unlock()
		return ErrNetworkClosed
	}
	n.state = stateRunning
	n.mu.Unlock()

	logger.Info("启动中继网络",
		"relays", n.cfg.NumRelays,
		"instancesPerService", n.cfg.NumInstancesPerService,
		"k", n.cfg.KValue,
		"services", n.cfg.ServiceNames)

	if err := n.startInstances(ctx); err != nil {
		return n.rollback(StageInstances, err)
	}
	relayChannels, err := n.startRelays(ctx)
	if err != nil {
		return n.rollback(StageRelays, err)
	}
	if err := n.wireEgress(relayChannels); err != nil {
		return n.rollback(StageEgress, err)
	}

	logger.Info("中继网络已启动", "relays", n.RelayHostPorts())
	return nil
}

// newChannel 创建组件的 Channel，创建成功即登记以便回滚
func (n *Network) newChannel(c Component) (*channel.Channel, error) {
	opts := append([]channel.Option(nil), n.cfg.Cluster.ChannelOptions...)
	opts = append(opts, channel.WithProcessName(c.ID()))
	if n.cfg.Cluster.Metrics != nil {
		opts = append(opts, channel.WithSwarmOptions(swarm.WithMetrics(n.cfg.Cluster.Metrics)))
	}

	ch, err := channel.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.ID(), err)
	}

	n.mu.Lock()
	if n.state == stateClosed {
		n.mu.Unlock()
		_ = ch.Close()
		return nil, ErrNetworkClosed
	}
	n.started = append(n.started, ch)
	n.mu.Unlock()
	return ch, nil
}

func (n *Network) startInstances(ctx context.Context) error {
	per := n.cfg.NumInstancesPerService
	chans := make(map[string][]*channel.Channel, len(n.cfg.ServiceNames))
	subs := make(map[string][]*channel.SubChannel, len(n.cfg.ServiceNames))
	for _, svc := range n.cfg.ServiceNames {
		chans[svc] = make([]*channel.Channel, per)
		subs[svc] = make([]*channel.SubChannel, per)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range n.cfg.ServiceNames {
		for i := 0; i < per; i++ {
			c := Component{Role: RoleInstance, Service: svc, Index: i}
			ch, err := n.newChannel(c)
			if err != nil {
				return err
			}
			sub, err := ch.MakeSubChannel(channel.SubChannelOptions{ServiceName: svc})
			if err != nil {
				return fmt.Errorf("%s: %w", c.ID(), err)
			}
			chans[svc][i] = ch
			subs[svc][i] = sub

			g.Go(func() error {
				if err := n.cfg.Cluster.listen(gctx, ch, c); err != nil {
					return fmt.Errorf("%s: %w", c.ID(), err)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	n.mu.Lock()
	n.instances = chans
	n.subs = subs
	n.mu.Unlock()
	return nil
}

func (n *Network) startRelays(ctx context.Context) ([]*channel.Channel, error) {
	chans := make([]*channel.Channel, n.cfg.NumRelays)

	g, gctx := errgroup.WithContext(ctx)
	for i := range chans {
		c := Component{Role: RoleRelay, Index: i}
		ch, err := n.newChannel(c)
		if err != nil {
			return nil, err
		}
		chans[i] = ch

		g.Go(func() error {
			if err := n.cfg.Cluster.listen(gctx, ch, c); err != nil {
				return fmt.Errorf("%s: %w", c.ID(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chans, nil
}

// wireEgress 计算出口集合并创建中继节点
func (n *Network) wireEgress(relayChannels []*channel.Channel) error {
	relayIDs := make([]string, len(relayChannels))
	for i := range relayChannels {
		relayIDs[i] = Component{Role: RoleRelay, Index: i}.ID()
	}

	n.mu.RLock()
	instances := make(map[string][]relay.Instance, len(n.instances))
	for svc, chans := range n.instances {
		list := make([]relay.Instance, len(chans))
		for i, ch := range chans {
			list[i] = relay.Instance{
				ID:       Component{Role: RoleInstance, Service: svc, Index: i}.ID(),
				HostPort: ch.HostPort(),
			}
		}
		instances[svc] = list
	}
	n.mu.RUnlock()

	relayCfg := n.cfg.Cluster.Relay
	nodes := make([]*relay.Node, len(relayChannels))
	tables := make([]*relay.ExitTable, len(relayChannels))
	for i, ch := range relayChannels {
		table, err := relay.NewExitTable(relayIDs[i], relayIDs, n.cfg.KValue, n.sel, relayCfg.ExitCacheSize)
		if err != nil {
			return fmt.Errorf("%s: %w", relayIDs[i], err)
		}
		for _, svc := range n.cfg.ServiceNames {
			table.SetInstances(svc, instances[svc])
		}

		node, err := relay.NewNode(ch, relayCfg)
		if err != nil {
			return fmt.Errorf("%s: %w", relayIDs[i], err)
		}
		if err := node.ApplyExits(table); err != nil {
			return fmt.Errorf("%s: %w", relayIDs[i], err)
		}

		nodes[i] = node
		tables[i] = table
		logger.Debug("中继出口已连接", "relay", relayIDs[i], "hostPort", ch.HostPort())
	}

	n.mu.Lock()
	n.relays = nodes
	n.exits = tables
	n.mu.Unlock()
	return nil
}

// rollback 关闭已启动的组件
func (n *Network) rollback(stage Stage, cause error) error {
	n.mu.Lock()
	started := n.started
	n.started = nil
	n.relays = nil
	n.exits = nil
	n.instances = make(map[string][]*channel.Channel)
	n.subs = make(map[string][]*channel.SubChannel)
	n.state = stateClosed
	n.mu.Unlock()

	rbErr := closeAll(context.Background(), started)
	logger.Warn("中继网络启动失败，已回滚", "stage", stage, "error", cause, "closed", len(started))
	return &BootstrapError{Stage: stage, Err: cause, Rollback: rbErr}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭全部中继与实例（幂等）
//
// 等待所有组件关闭后返回聚合错误，ctx 结束时提前返回 ctx.Err()。
func (n *Network) Close(ctx context.Context) error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		started := n.started
		n.started = nil
		n.state = stateClosed
		n.mu.Unlock()

		n.closeErr = closeAll(ctx, started)
		logger.Info("中继网络已关闭", "components", len(started), "error", n.closeErr)
	})
	return n.closeErr
}

func closeAll(ctx context.Context, chans []*channel.Channel) error {
	var (
		mu  sync.Mutex
		err error
		g   errgroup.Group
	)
	for _, ch := range chans {
		g.Go(func() error {
			if cerr := ch.Close(); cerr != nil {
				mu.Lock()
				err = multierr.Append(err, fmt.Errorf("close %s: %w", ch.ProcessName(), cerr))
				mu.Unlock()
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		mu.Lock()
		defer mu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              访问器
// ============================================================================

// Relays 返回中继节点
func (n *Network) Relays() []*relay.Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*relay.Node(nil), n.relays...)
}

// RelayChannels 返回中继的顶层 Channel
func (n *Network) RelayChannels() []*channel.Channel {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*channel.Channel, len(n.relays))
	for i, node := range n.relays {
		out[i] = node.Channel()
	}
	return out
}

// RelayHostPorts 返回中继监听地址
func (n *Network) RelayHostPorts() []string {
	chans := n.RelayChannels()
	out := make([]string, len(chans))
	for i, ch := range chans {
		out[i] = ch.HostPort()
	}
	return out
}

// Instances 返回服务的实例 Channel
func (n *Network) Instances(service string) []*channel.Channel {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*channel.Channel(nil), n.instances[service]...)
}

// InstanceHostPorts 返回服务的实例地址
func (n *Network) InstanceHostPorts(service string) []string {
	chans := n.Instances(service)
	out := make([]string, len(chans))
	for i, ch := range chans {
		out[i] = ch.HostPort()
	}
	return out
}

// SubChannelsByName 返回服务实例上的服务 SubChannel
func (n *Network) SubChannelsByName(service string) []*channel.SubChannel {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*channel.SubChannel(nil), n.subs[service]...)
}

// EgressNodesForRelay 返回第 i 个中继的出口表，越界返回 nil
func (n *Network) EgressNodesForRelay(i int) *relay.ExitTable {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if i < 0 || i >= len(n.exits) {
		return nil
	}
	return n.exits[i]
}

// ServiceNames 返回服务名
func (n *Network) ServiceNames() []string {
	return append([]string(nil), n.cfg.ServiceNames...)
}
