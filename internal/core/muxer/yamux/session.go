package yamux

import (
	"context"
	"fmt"
	"net"

	"github.com/hashicorp/yamux"
)

// Session 封装 yamux.Session
type Session struct {
	session  *yamux.Session
	isServer bool
}

// NewSession 在 conn 上建立会话
//
// isServer 为 true 时作为入站方。
func NewSession(conn net.Conn, isServer bool, cfg Config) (*Session, error) {
	if conn == nil {
		return nil, fmt.Errorf("连接不能为 nil")
	}

	var (
		s   *yamux.Session
		err error
	)
	if isServer {
		s, err = yamux.Server(conn, cfg.ToYamux())
	} else {
		s, err = yamux.Client(conn, cfg.ToYamux())
	}
	if err != nil {
		return nil, fmt.Errorf("创建 yamux session 失败: %w", err)
	}

	return &Session{session: s, isServer: isServer}, nil
}

// Open 打开新流
//
// yamux 的 OpenStream 不支持 context，在单独的 goroutine 中执行，
// ctx 取消后到达的流会被关闭以防泄漏。
func (s *Session) Open(ctx context.Context) (net.Conn, error) {
	if s.IsClosed() {
		return nil, yamux.ErrSessionShutdown
	}

	type result struct {
		stream *yamux.Stream
		err    error
	}
	resultCh := make(chan result, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		st, err := s.session.OpenStream()
		select {
		case resultCh <- result{stream: st, err: err}:
		case <-done:
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return nil, fmt.Errorf("创建流失败: %w", r.err)
		}
		return r.stream, nil
	}
}

// Accept 接受入站流
func (s *Session) Accept() (net.Conn, error) {
	st, err := s.session.AcceptStream()
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Close 关闭会话及其全部流
func (s *Session) Close() error {
	return s.session.Close()
}

// IsClosed 检查是否已关闭
func (s *Session) IsClosed() bool {
	return s.session.IsClosed()
}

// CloseChan 返回会话关闭时关闭的 channel
func (s *Session) CloseChan() <-chan struct{} {
	return s.session.CloseChan()
}

// NumStreams 返回当前流数量
func (s *Session) NumStreams() int {
	return s.session.NumStreams()
}

// IsServer 返回是否是入站方
func (s *Session) IsServer() bool {
	return s.isServer
}

// LocalAddr 返回本地地址
func (s *Session) LocalAddr() net.Addr {
	return s.session.LocalAddr()
}

// RemoteAddr 返回远端地址
func (s *Session) RemoteAddr() net.Addr {
	return s.session.RemoteAddr()
}
