package channel

import "errors"

var (
	// ErrDoubleResponse 处理器重复发送响应
	ErrDoubleResponse = errors.New("channel: response already sent")

	// ErrChannelClosed Channel 已关闭
	ErrChannelClosed = errors.New("channel: closed")

	// ErrAlreadyListening 已经在监听
	ErrAlreadyListening = errors.New("channel: already listening")

	// ErrSubChannelExists 同名 SubChannel 已存在
	ErrSubChannelExists = errors.New("channel: sub-channel already exists")

	// ErrEmptyServiceName 服务名为空
	ErrEmptyServiceName = errors.New("channel: empty service name")

	// ErrHandlerAlreadyRegistered 端点已注册
	ErrHandlerAlreadyRegistered = errors.New("channel: handler already registered")

	// ErrPeerNotFound 服务端角色的 SubChannel 中没有该地址
	ErrPeerNotFound = errors.New("channel: peer not found")

	// ErrNoParent 要求上游调用但请求既没有 Parent 也没有 HasNoParent
	ErrNoParent = errors.New("channel: request requires parent or hasNoParent")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("channel: invalid config")
)
