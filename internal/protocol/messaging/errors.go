package messaging

import "errors"

// 错误定义
var (
	// ErrInvalidMessage 无效的消息格式
	ErrInvalidMessage = errors.New("messaging: invalid message format")

	// ErrUnknownFrame 未知帧类型
	ErrUnknownFrame = errors.New("messaging: unknown frame type")

	// ErrFrameTooLarge 帧超过大小限制
	ErrFrameTooLarge = errors.New("messaging: frame too large")

	// ErrUnexpectedFrame 收到非预期类型的帧
	ErrUnexpectedFrame = errors.New("messaging: unexpected frame")
)
