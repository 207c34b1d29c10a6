package relay

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Instance 服务实例
type Instance struct {
	// ID 稳定标识，参与出口计算
	ID string

	// HostPort 监听地址
	HostPort string
}

// ExitTable 单个中继的出口表
//
// 保存出口计算的输入（中继列表、k、各服务实例），
// 按服务缓存计算结果（地址列表）。
type ExitTable struct {
	relayID string
	relays  []string
	k       int
	sel     *Selector

	mu        sync.RWMutex
	instances map[string][]Instance

	cache *lru.Cache[string, []string]
}

// NewExitTable 创建出口表
//
// relays 为参与计算的全部中继标识，relayID 必须在其中。
func NewExitTable(relayID string, relays []string, k int, sel *Selector, cacheSize int) (*ExitTable, error) {
	if k <= 0 {
		return nil, ErrInvalidKValue
	}
	found := false
	for _, r := range relays {
		if r == relayID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelay, relayID)
	}
	if sel == nil {
		sel = NewSelector()
	}
	if cacheSize < 1 {
		cacheSize = DefaultExitCacheSize
	}

	cache, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create exit cache: %w", err)
	}

	return &ExitTable{
		relayID:   relayID,
		relays:    append([]string(nil), relays...),
		k:         k,
		sel:       sel,
		instances: make(map[string][]Instance),
		cache:     cache,
	}, nil
}

// RelayID 返回中继标识
func (t *ExitTable) RelayID() string {
	return t.relayID
}

// K 返回扇出上限
func (t *ExitTable) K() int {
	return t.k
}

// SetInstances 设置服务的实例集合并使缓存失效
func (t *ExitTable) SetInstances(service string, instances []Instance) {
	t.mu.Lock()
	t.instances[service] = append([]Instance(nil), instances...)
	t.mu.Unlock()
	t.cache.Remove(service)
}

// Services 返回已知服务名（排序）
func (t *ExitTable) Services() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.instances))
	for svc := range t.instances {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}

// ExitsFor 返回服务的出口地址（按地址排序），未知服务返回 nil
func (t *ExitTable) ExitsFor(service string) []string {
	if exits, ok := t.cache.Get(service); ok {
		return append([]string(nil), exits...)
	}

	t.mu.RLock()
	instances, ok := t.instances[service]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	ids := make([]string, len(instances))
	addrs := make(map[string]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
		addrs[inst.ID] = inst.HostPort
	}

	selected := t.sel.Assign(t.relays, service, ids, t.k)[t.relayID]
	exits := make([]string, 0, len(selected))
	for _, id := range selected {
		exits = append(exits, addrs[id])
	}
	sort.Strings(exits)

	t.cache.Add(service, exits)
	logger.Debug("计算出口集合", "relay", t.relayID, "service", service, "exits", len(exits))
	return append([]string(nil), exits...)
}

// ExitIDsFor 返回服务的出口实例标识（按标识排序）
func (t *ExitTable) ExitIDsFor(service string) []string {
	t.mu.RLock()
	instances, ok := t.instances[service]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	return t.sel.Assign(t.relays, service, ids, t.k)[t.relayID]
}
