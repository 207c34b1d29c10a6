package eventbus

// UnhandledPolicy 无监听器的 error 事件处理策略
type UnhandledPolicy int

const (
	// RaiseUnhandled panic（默认）
	RaiseUnhandled UnhandledPolicy = iota
	// LogUnhandled 记录错误日志后丢弃
	LogUnhandled
	// IgnoreUnhandled 静默丢弃
	IgnoreUnhandled
)

// String 返回策略的字符串表示
func (p UnhandledPolicy) String() string {
	switch p {
	case RaiseUnhandled:
		return "raise"
	case LogUnhandled:
		return "log"
	case IgnoreUnhandled:
		return "ignore"
	default:
		return "unknown"
	}
}

// Option Emitter 选项函数
type Option func(*Emitter)

// WithUnhandledPolicy 设置 error 事件无监听器时的处理策略
func WithUnhandledPolicy(p UnhandledPolicy) Option {
	return func(e *Emitter) {
		e.policy = p
	}
}

// WithName 设置发射器名称（用于日志与 UnhandledError）
func WithName(name string) Option {
	return func(e *Emitter) {
		e.name = name
	}
}
