package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-relaymesh/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// Listener 事件监听器
//
// owner 为发射器所属组件，payload 为 Emit 传入的负载。
type Listener func(owner any, payload any)

// listener 已注册的监听器
type listener struct {
	id   uint64
	fn   Listener
	once bool
}

// ============================================================================
// Emitter 实现
// ============================================================================

// Emitter 同步事件发射器
type Emitter struct {
	owner  any
	name   string
	policy UnhandledPolicy

	mu     sync.Mutex
	events map[string][]*listener

	nextID atomic.Uint64
}

// New 创建绑定到 owner 的发射器
func New(owner any, opts ...Option) *Emitter {
	e := &Emitter{
		owner:  owner,
		policy: RaiseUnhandled,
		events: make(map[string][]*listener),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Owner 返回所属组件
func (e *Emitter) Owner() any {
	return e.owner
}

// Policy 返回 error 事件处理策略
func (e *Emitter) Policy() UnhandledPolicy {
	return e.policy
}

// Define 定义事件并返回无类型句柄
func (e *Emitter) Define(name string) *Event[any] {
	return Define[any](e, name)
}

// On 注册持久监听器
func (e *Emitter) On(name string, fn Listener) *Subscription {
	return e.add(name, fn, false)
}

// Once 注册单次监听器
func (e *Emitter) Once(name string, fn Listener) *Subscription {
	return e.add(name, fn, true)
}

// ListenerCount 返回事件当前的监听器数量
func (e *Emitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events[name])
}

// RemoveAll 移除事件的全部监听器
func (e *Emitter) RemoveAll(name string) {
	e.mu.Lock()
	delete(e.events, name)
	e.mu.Unlock()
}

// Emit 发射事件
//
// 按注册顺序调用监听器。Once 监听器在任何监听器执行之前移除。
// name 为 "error" 且无监听器时按 UnhandledPolicy 处理。
func (e *Emitter) Emit(name string, payload any) {
	e.mu.Lock()
	current := e.events[name]
	if len(current) == 0 {
		e.mu.Unlock()
		if name == ErrorEvent {
			e.unhandled(payload)
		}
		return
	}

	snapshot := make([]*listener, len(current))
	copy(snapshot, current)

	kept := make([]*listener, 0, len(current))
	for _, l := range current {
		if !l.once {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(e.events, name)
	} else {
		e.events[name] = kept
	}
	e.mu.Unlock()

	for _, l := range snapshot {
		l.fn(e.owner, payload)
	}
}

// ============================================================================
// 内部方法
// ============================================================================

func (e *Emitter) add(name string, fn Listener, once bool) *Subscription {
	l := &listener{
		id:   e.nextID.Add(1),
		fn:   fn,
		once: once,
	}

	e.mu.Lock()
	e.events[name] = append(e.events[name], l)
	e.mu.Unlock()

	return &Subscription{emitter: e, name: name, id: l.id}
}

func (e *Emitter) remove(name string, id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.events[name]
	for i, l := range current {
		if l.id != id {
			continue
		}
		kept := make([]*listener, 0, len(current)-1)
		kept = append(kept, current[:i]...)
		kept = append(kept, current[i+1:]...)
		if len(kept) == 0 {
			delete(e.events, name)
		} else {
			e.events[name] = kept
		}
		return true
	}
	return false
}

func (e *Emitter) unhandled(payload any) {
	switch e.policy {
	case IgnoreUnhandled:
	case LogUnhandled:
		logger.Error("未处理的 error 事件", "emitter", e.name, "error", payload)
	default:
		panic(&UnhandledError{Emitter: e.name, Payload: payload})
	}
}

// ============================================================================
// Subscription
// ============================================================================

// Subscription 监听器注册句柄
type Subscription struct {
	emitter *Emitter
	name    string
	id      uint64
}

// Event 返回订阅的事件名
func (s *Subscription) Event() string {
	return s.name
}

// Close 取消订阅
//
// 对已触发的 Once 监听器或重复调用均为空操作。
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.emitter.remove(s.name, s.id)
}
