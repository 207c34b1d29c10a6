package eventbus

// Event 强类型事件句柄
//
// 与 Emitter 的无类型 On/Once 共享同一个有序监听器列表。
type Event[T any] struct {
	emitter *Emitter
	name    string
}

// Define 在发射器上定义强类型事件
func Define[T any](e *Emitter, name string) *Event[T] {
	return &Event[T]{emitter: e, name: name}
}

// Name 返回事件名
func (ev *Event[T]) Name() string {
	return ev.name
}

// On 注册持久监听器
func (ev *Event[T]) On(fn func(owner any, v T)) *Subscription {
	return ev.emitter.On(ev.name, wrap(fn))
}

// Once 注册单次监听器
func (ev *Event[T]) Once(fn func(owner any, v T)) *Subscription {
	return ev.emitter.Once(ev.name, wrap(fn))
}

// Emit 发射事件
func (ev *Event[T]) Emit(v T) {
	ev.emitter.Emit(ev.name, v)
}

// ListenerCount 返回当前监听器数量
func (ev *Event[T]) ListenerCount() int {
	return ev.emitter.ListenerCount(ev.name)
}

func wrap[T any](fn func(owner any, v T)) Listener {
	return func(owner any, payload any) {
		v, _ := payload.(T)
		fn(owner, v)
	}
}
