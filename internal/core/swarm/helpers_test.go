package swarm

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// testLocal 测试用本端，默认回显 arg2/arg3 与 headers
type testLocal struct {
	id      types.Identity
	handler func(ctx context.Context, conn *Connection, req *messaging.CallRequest) *messaging.CallResponse
}

func (l *testLocal) Identity() types.Identity { return l.id }

func (l *testLocal) HandleCall(ctx context.Context, conn *Connection, req *messaging.CallRequest) *messaging.CallResponse {
	if l.handler != nil {
		return l.handler(ctx, conn, req)
	}
	return &messaging.CallResponse{
		Code:    messaging.CodeOK,
		Headers: req.Headers,
		Arg2:    req.Arg2,
		Arg3:    req.Arg3,
	}
}

func clientLocal() *testLocal {
	return &testLocal{id: types.Identity{HostPort: types.EphemeralHostPort, ProcessName: "client"}}
}

// testServer 接受连接并包装为入站 Connection
type testServer struct {
	ln    net.Listener
	local *testLocal
	cfg   *Config

	mu    sync.Mutex
	conns []*Connection
	errs  []error
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &testServer{
		ln:    ln,
		local: &testLocal{id: types.Identity{HostPort: ln.Addr().String(), ProcessName: "server"}},
		cfg:   cfg,
	}
	go s.acceptLoop()
	t.Cleanup(s.close)
	return s
}

func (s *testServer) addr() string {
	return s.ln.Addr().String()
}

func (s *testServer) acceptLoop() {
	for {
		sock, err := s.ln.Accept()
		if err != nil {
			return
		}
		conn, err := NewInConnection(sock, s.local, s.cfg)
		if err != nil {
			continue
		}
		conn.ErrorEvent.On(func(_ any, err error) {
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		})
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		conn.Start()
	}
}

func (s *testServer) connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Connection(nil), s.conns...)
}

func (s *testServer) errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *testServer) close() {
	_ = s.ln.Close()
	for _, c := range s.connections() {
		_ = c.Close()
	}
}

// tcpPair 返回一对已连通的回环 socket
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	in, ok := <-accepted
	require.True(t, ok)

	t.Cleanup(func() {
		_ = dialed.Close()
		_ = in.Close()
	})
	return dialed, in
}

func ignoreErrors(c *Connection) {
	c.ErrorEvent.On(func(_ any, _ error) {})
}
