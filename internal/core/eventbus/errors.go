package eventbus

import "fmt"

// ErrorEvent 保留事件名：无监听器时按 UnhandledPolicy 处理
const ErrorEvent = "error"

// UnhandledError 未处理的 error 事件
//
// RaiseUnhandled 策略下作为 panic 值抛出，Unwrap 返回原始负载。
type UnhandledError struct {
	// Emitter 发射器名称（可能为空）
	Emitter string
	// Payload 原始负载
	Payload any
}

func (e *UnhandledError) Error() string {
	if e.Emitter != "" {
		return fmt.Sprintf("unhandled error event on %s: %v", e.Emitter, e.Payload)
	}
	return fmt.Sprintf("unhandled error event: %v", e.Payload)
}

// Unwrap 返回原始错误（负载不是 error 时返回 nil）
func (e *UnhandledError) Unwrap() error {
	if err, ok := e.Payload.(error); ok {
		return err
	}
	return nil
}
