package swarm

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
)

var (
	// ErrNotIdentified 连接尚未完成识别握手
	ErrNotIdentified = errors.New("swarm: connection not identified")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("swarm: connection closed")

	// ErrPeerClosed Peer 已关闭
	ErrPeerClosed = errors.New("swarm: peer closed")

	// ErrVersionMismatch 协议版本不一致
	ErrVersionMismatch = errors.New("swarm: protocol version mismatch")

	// ErrIdentifyTimeout 识别握手超时
	ErrIdentifyTimeout = errors.New("swarm: identify timeout")

	// ErrUnexpectedResponse 响应与请求不匹配
	ErrUnexpectedResponse = errors.New("swarm: unexpected response")

	// ErrEphemeralPeer 临时地址无法拨号
	ErrEphemeralPeer = errors.New("swarm: cannot dial ephemeral host port")

	// ErrNoPeers 没有可用的 Peer
	ErrNoPeers = errors.New("swarm: no peers available")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("swarm: invalid config")
)

// CallError 远端返回的错误响应
type CallError struct {
	Service  string
	Endpoint string
	Code     messaging.ErrorCode
	Message  string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s::%s failed: %s: %s", e.Service, e.Endpoint, e.Code, e.Message)
}

// IdentifyError 识别握手失败
type IdentifyError struct {
	HostPort string
	Err      error
}

func (e *IdentifyError) Error() string {
	return fmt.Sprintf("identify %s: %v", e.HostPort, e.Err)
}

// Unwrap 返回底层错误
func (e *IdentifyError) Unwrap() error {
	return e.Err
}
