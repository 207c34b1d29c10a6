package messaging

import (
	"fmt"
	"time"

	"github.com/dep2p/go-relaymesh/pkg/types"
)

// ProtocolVersion 当前协议版本，识别握手时双方必须一致
const ProtocolVersion uint32 = 2

// FrameType 帧类型
type FrameType uint8

const (
	// FrameInitRequest 识别握手请求
	FrameInitRequest FrameType = 0x01
	// FrameInitResponse 识别握手响应
	FrameInitResponse FrameType = 0x02
	// FrameCallRequest 调用请求
	FrameCallRequest FrameType = 0x03
	// FrameCallResponse 调用响应
	FrameCallResponse FrameType = 0x04
)

// String 返回帧类型的字符串表示
func (t FrameType) String() string {
	switch t {
	case FrameInitRequest:
		return "init-req"
	case FrameInitResponse:
		return "init-res"
	case FrameCallRequest:
		return "call-req"
	case FrameCallResponse:
		return "call-res"
	default:
		return fmt.Sprintf("frame(0x%02x)", uint8(t))
	}
}

// Frame 线路帧
type Frame interface {
	// Type 返回帧类型
	Type() FrameType
}

// ============================================================================
//                              识别握手
// ============================================================================

// InitRequest 识别握手请求（由出站方发送）
type InitRequest struct {
	Version     uint32
	HostPort    string
	ProcessName string
}

// Type 实现 Frame
func (*InitRequest) Type() FrameType { return FrameInitRequest }

// Identity 返回请求方身份
func (r *InitRequest) Identity() types.Identity {
	return types.Identity{HostPort: r.HostPort, ProcessName: r.ProcessName}
}

// InitResponse 识别握手响应（由入站方发送）
type InitResponse struct {
	Version     uint32
	HostPort    string
	ProcessName string

	// Error 非空表示拒绝握手
	Error string
}

// Type 实现 Frame
func (*InitResponse) Type() FrameType { return FrameInitResponse }

// Identity 返回响应方身份
func (r *InitResponse) Identity() types.Identity {
	return types.Identity{HostPort: r.HostPort, ProcessName: r.ProcessName}
}

// ============================================================================
//                              调用
// ============================================================================

// CallRequest 调用请求
//
// Arg1 为端点名，Arg2/Arg3 为应用载荷（通常为头部与正文）。
type CallRequest struct {
	ID      uint64
	Service string
	Headers types.Headers
	TTL     time.Duration
	Arg1    []byte
	Arg2    []byte
	Arg3    []byte
}

// Type 实现 Frame
func (*CallRequest) Type() FrameType { return FrameCallRequest }

// Endpoint 返回端点名
func (r *CallRequest) Endpoint() string {
	return string(r.Arg1)
}

// ResponseCode 调用响应码
type ResponseCode uint8

const (
	// CodeOK 处理成功
	CodeOK ResponseCode = 0x00
	// CodeNotOK 应用层失败（处理器调用 SendNotOk）
	CodeNotOK ResponseCode = 0x01
	// CodeError 传输层或框架错误，详见 ErrorCode
	CodeError ResponseCode = 0x02
)

// String 返回响应码的字符串表示
func (c ResponseCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeNotOK:
		return "not-ok"
	case CodeError:
		return "error"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// ErrorCode 错误响应的类别
type ErrorCode uint8

const (
	ErrCodeNone        ErrorCode = 0x00
	ErrCodeTimeout     ErrorCode = 0x01
	ErrCodeCancelled   ErrorCode = 0x02
	ErrCodeBusy        ErrorCode = 0x03
	ErrCodeDeclined    ErrorCode = 0x04
	ErrCodeUnexpected  ErrorCode = 0x05
	ErrCodeBadRequest  ErrorCode = 0x06
	ErrCodeNetwork     ErrorCode = 0x07
	ErrCodeUnhealthy   ErrorCode = 0x08
	ErrCodeProtocol    ErrorCode = 0xff
)

// String 返回错误类别名
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNone:
		return "none"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeCancelled:
		return "cancelled"
	case ErrCodeBusy:
		return "busy"
	case ErrCodeDeclined:
		return "declined"
	case ErrCodeUnexpected:
		return "unexpected"
	case ErrCodeBadRequest:
		return "bad-request"
	case ErrCodeNetwork:
		return "network"
	case ErrCodeUnhealthy:
		return "unhealthy"
	case ErrCodeProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("error-code(%d)", uint8(c))
	}
}

// CallResponse 调用响应
type CallResponse struct {
	ID        uint64
	Code      ResponseCode
	ErrorCode ErrorCode
	Message   string
	Headers   types.Headers
	Arg2      []byte
	Arg3      []byte
}

// Type 实现 Frame
func (*CallResponse) Type() FrameType { return FrameCallResponse }

// OK 返回响应是否成功
func (r *CallResponse) OK() bool {
	return r.Code == CodeOK
}
