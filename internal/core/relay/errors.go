package relay

import "errors"

// Sentinel errors
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("relay: invalid config")

	// ErrRateLimited 转发被限流
	ErrRateLimited = errors.New("relay: rate limited")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("relay: node closed")

	// ErrUnknownRelay 中继不在参与计算的中继列表中
	ErrUnknownRelay = errors.New("relay: unknown relay")

	// ErrInvalidKValue k 必须为正数
	ErrInvalidKValue = errors.New("relay: k must be positive")
)
