// Package eventbus 实现组件内的同步事件通道
//
// 每个有状态组件（Connection、Peer、SubChannel）持有一个 Emitter，
// 并通过 Define 暴露强类型的事件句柄：
//
//	type Conn struct {
//	    events     *eventbus.Emitter
//	    identified *eventbus.Event[types.Identity]
//	}
//
//	c.events = eventbus.New(c)
//	c.identified = eventbus.Define[types.Identity](c.events, "identified")
//
//	c.identified.On(func(owner any, id types.Identity) { ... })
//	c.identified.Emit(id)
//
// # 语义
//
//   - 同一次 Emit 中监听器按注册顺序同步执行
//   - Once 监听器在本次 Emit 的任何监听器执行前被移除，
//     监听器内部重入 Emit 不会再次触发它
//   - 监听器的 owner 参数为 New 传入的组件本身
//   - "error" 事件在没有监听器时按 UnhandledPolicy 处理，
//     默认 RaiseUnhandled 直接 panic；其他事件无监听器时静默丢弃
//
// # 并发安全
//
// 注册与发射可在任意 goroutine 进行。执行监听器时不持有锁，
// 因此监听器可以安全地注册新监听器或重入 Emit。
package eventbus
