package relaynet

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrBootstrapFailure 有组件启动失败，已启动的组件均已关闭
	ErrBootstrapFailure = errors.New("relaynet: bootstrap failure")

	// ErrAlreadyBootstrapped 重复启动
	ErrAlreadyBootstrapped = errors.New("relaynet: already bootstrapped")

	// ErrNetworkClosed 网络已关闭
	ErrNetworkClosed = errors.New("relaynet: network closed")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("relaynet: invalid config")
)

// Stage 启动阶段
type Stage string

const (
	// StageInstances 启动服务实例
	StageInstances Stage = "instances"
	// StageRelays 启动中继
	StageRelays Stage = "relays"
	// StageEgress 计算并连接出口集合
	StageEgress Stage = "egress"
)

// BootstrapError 启动失败
//
// errors.Is(err, ErrBootstrapFailure) 总是成立，Err 为首个失败原因，
// Rollback 为回滚关闭时的错误（可能为 nil）。
type BootstrapError struct {
	Stage    Stage
	Err      error
	Rollback error
}

func (e *BootstrapError) Error() string {
	msg := fmt.Sprintf("%v: %s: %v", ErrBootstrapFailure, e.Stage, e.Err)
	if e.Rollback != nil {
		msg += fmt.Sprintf(" (rollback: %v)", e.Rollback)
	}
	return msg
}

// Unwrap 返回 ErrBootstrapFailure 与失败原因
func (e *BootstrapError) Unwrap() []error {
	return []error{ErrBootstrapFailure, e.Err}
}
