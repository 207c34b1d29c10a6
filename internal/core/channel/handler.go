package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// Handler 端点处理器
//
// 必须对 res 调用且只调用一次 SendOk / SendNotOk / SendError，
// 可以在返回之后从其他 goroutine 调用。
type Handler func(req *InRequest, res *Response, arg2, arg3 []byte)

// ============================================================================
//                              处理器注册表
// ============================================================================

// handlerRegistry 端点 → 处理器
type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		handlers: make(map[string]Handler),
	}
}

func (r *handlerRegistry) register(endpoint string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[endpoint]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, endpoint)
	}
	r.handlers[endpoint] = h
	return nil
}

func (r *handlerRegistry) setDefault(h Handler) {
	r.mu.Lock()
	r.fallback = h
	r.mu.Unlock()
}

// get 查找处理器，找不到时返回默认处理器
func (r *handlerRegistry) get(endpoint string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[endpoint]; ok {
		return h, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

func (r *handlerRegistry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
//                              InRequest
// ============================================================================

// InRequest 入站调用
type InRequest struct {
	ctx  context.Context
	conn *swarm.Connection
	call *messaging.CallRequest
}

// Context 返回调用上下文（随 TTL 或连接关闭取消）
func (r *InRequest) Context() context.Context { return r.ctx }

// Connection 返回承载调用的连接
func (r *InRequest) Connection() *swarm.Connection { return r.conn }

// Call 返回原始调用帧
func (r *InRequest) Call() *messaging.CallRequest { return r.call }

// Service 返回目标服务名
func (r *InRequest) Service() string { return r.call.Service }

// Endpoint 返回端点名
func (r *InRequest) Endpoint() string { return r.call.Endpoint() }

// Headers 返回传输头
func (r *InRequest) Headers() types.Headers { return r.call.Headers }

// Caller 返回调用方服务名（cn 头）
func (r *InRequest) Caller() string { return r.call.Headers[types.HeaderCallerName] }

// TTL 返回调用超时
func (r *InRequest) TTL() time.Duration { return r.call.TTL }

// Remote 返回调用方身份
func (r *InRequest) Remote() types.Identity {
	if r.conn == nil {
		return types.Identity{}
	}
	return r.conn.Remote()
}

// ============================================================================
//                              Response
// ============================================================================

// Response 入站调用的响应
type Response struct {
	sub *SubChannel
	req *InRequest

	// Headers 响应头，默认为请求头副本
	Headers types.Headers

	mu   sync.Mutex
	sent bool
	res  *messaging.CallResponse
	done chan struct{}
}

func newResponse(sub *SubChannel, req *InRequest) *Response {
	return &Response{
		sub:     sub,
		req:     req,
		Headers: req.call.Headers.Clone(),
		done:    make(chan struct{}),
	}
}

// SendOk 发送成功响应
func (r *Response) SendOk(arg2, arg3 []byte) error {
	return r.send(&messaging.CallResponse{Code: messaging.CodeOK, Arg2: arg2, Arg3: arg3})
}

// SendNotOk 发送应用层失败响应
func (r *Response) SendNotOk(arg2, arg3 []byte) error {
	return r.send(&messaging.CallResponse{Code: messaging.CodeNotOK, Arg2: arg2, Arg3: arg3})
}

// SendError 发送错误响应
func (r *Response) SendError(code messaging.ErrorCode, message string) error {
	return r.send(&messaging.CallResponse{Code: messaging.CodeError, ErrorCode: code, Message: message})
}

// Sent 是否已发送
func (r *Response) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

func (r *Response) send(res *messaging.CallResponse) error {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s::%s", ErrDoubleResponse, r.req.Service(), r.req.Endpoint())
		logger.Error("重复发送响应", "service", r.req.Service(), "endpoint", r.req.Endpoint())
		r.sub.ErrorEvent.Emit(err)
		return err
	}
	r.sent = true
	if res.Code != messaging.CodeError {
		res.Headers = r.Headers
	}
	r.res = res
	r.mu.Unlock()

	close(r.done)
	return nil
}

// wait 等待处理器响应或 ctx 结束
func (r *Response) wait(ctx context.Context) *messaging.CallResponse {
	select {
	case <-r.done:
		return r.res
	case <-ctx.Done():
	}

	// 超时后占用响应，迟到的发送视为重复响应
	code := messaging.ErrCodeTimeout
	if ctx.Err() == context.Canceled {
		code = messaging.ErrCodeCancelled
	}
	timeout := &messaging.CallResponse{Code: messaging.CodeError, ErrorCode: code, Message: ctx.Err().Error()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		return r.res
	}
	r.sent = true
	r.res = timeout
	close(r.done)
	return timeout
}
