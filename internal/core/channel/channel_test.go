package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relaymesh/internal/core/eventbus"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

func newChannel(t *testing.T, name string, listen bool, opts ...Option) *Channel {
	t.Helper()
	ch, err := New(append([]Option{WithProcessName(name)}, opts...)...)
	require.NoError(t, err)
	if listen {
		require.NoError(t, ch.Listen(context.Background(), "127.0.0.1:0"))
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func echoHandler(_ *InRequest, res *Response, arg2, arg3 []byte) {
	_ = res.SendOk(arg2, arg3)
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestChannel_PeerUsesIdentifiedConnection 测试识别后新增未识别连接不影响请求
func TestChannel_PeerUsesIdentifiedConnection(t *testing.T) {
	server := newChannel(t, "server", true)
	client := newChannel(t, "client", true)
	ctx := testCtx(t)

	_, err := server.MakeSubChannel(SubChannelOptions{ServiceName: "server"})
	require.NoError(t, err)
	subClient, err := client.MakeSubChannel(SubChannelOptions{
		ServiceName: "server",
		Peers:       []string{server.HostPort()},
	})
	require.NoError(t, err)

	_, err = client.WaitForIdentified(ctx, server.HostPort())
	require.NoError(t, err)

	peer, ok := subClient.Peers().Get(server.HostPort())
	require.True(t, ok)

	socket, err := peer.MakeOutSocket(ctx)
	require.NoError(t, err)
	conn, err := peer.MakeOutConnection(socket)
	require.NoError(t, err)
	require.NoError(t, peer.AddConnection(conn))

	assert.NotPanics(t, func() {
		_, err = peer.Request(ctx, swarm.RequestOptions{HasNoParent: true})
	})
	assert.NoError(t, err, "should use the identified connection")
}

// TestChannel_Echo 测试端到端调用与头部透传
func TestChannel_Echo(t *testing.T) {
	server := newChannel(t, "server", true)
	client := newChannel(t, "client", false)
	ctx := testCtx(t)

	svc, err := server.MakeSubChannel(SubChannelOptions{ServiceName: "steve"})
	require.NoError(t, err)
	var gotCaller string
	require.NoError(t, svc.Register("echo", func(req *InRequest, res *Response, arg2, arg3 []byte) {
		gotCaller = req.Caller()
		assert.Equal(t, "steve", req.Service())
		assert.Equal(t, "echo", req.Endpoint())
		_ = res.SendOk(arg2, arg3)
	}))

	sub, err := client.MakeSubChannel(SubChannelOptions{
		ServiceName: "steve",
		Peers:       []string{server.HostPort()},
		RequestDefaults: RequestDefaults{
			HasNoParent:       true,
			Headers:           types.Headers{types.HeaderArgScheme: "raw", types.HeaderCallerName: "bob"},
			WaitForIdentified: true,
		},
	})
	require.NoError(t, err)

	res, err := sub.Call(ctx, RequestOptions{}, "echo", []byte("head"), []byte("body"))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []byte("head"), res.Arg2)
	assert.Equal(t, []byte("body"), res.Arg3)
	assert.Equal(t, "raw", res.Headers[types.HeaderArgScheme])
	assert.Equal(t, "bob", res.Headers[types.HeaderCallerName])
	assert.Equal(t, "bob", gotCaller)

	// 未监听的客户端以 socket 地址挂到服务端根列表
	require.Eventually(t, func() bool { return server.Peers().Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, types.EphemeralHostPort, server.Peers().Keys()[0])
}

// TestChannel_BidirectionalReuse 测试入站连接被反向请求复用
func TestChannel_BidirectionalReuse(t *testing.T) {
	a := newChannel(t, "a", true)
	b := newChannel(t, "b", true)
	ctx := testCtx(t)

	subA, err := a.MakeSubChannel(SubChannelOptions{ServiceName: "alpha"})
	require.NoError(t, err)
	require.NoError(t, subA.Register("echo", echoHandler))

	subB, err := b.MakeSubChannel(SubChannelOptions{ServiceName: "beta"})
	require.NoError(t, err)
	require.NoError(t, subB.Register("echo", echoHandler))

	// a → b
	toB, err := a.MakeSubChannel(SubChannelOptions{ServiceName: "beta", Peers: []string{b.HostPort()}})
	require.NoError(t, err)
	_, err = toB.Call(ctx, RequestOptions{HasNoParent: true, WaitForIdentified: true}, "echo", nil, []byte("x"))
	require.NoError(t, err)

	// b 的根列表中 a 的 Peer 已有入站连接
	var peerA *swarm.Peer
	require.Eventually(t, func() bool {
		p, ok := b.Peers().Get(a.HostPort())
		if ok && p.IdentifiedCount() == 1 {
			peerA = p
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.DirInbound, peerA.Connections()[0].Direction())

	// b → a 不需要等待
	toA, err := b.MakeSubChannel(SubChannelOptions{ServiceName: "alpha", Peers: []string{a.HostPort()}})
	require.NoError(t, err)
	res, err := toA.Call(ctx, RequestOptions{HasNoParent: true}, "echo", nil, []byte("y"))
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), res.Arg3)
	assert.Len(t, peerA.Connections(), 1)
}

// TestSubChannel_PeerRoles 测试客户端/服务端角色
func TestSubChannel_PeerRoles(t *testing.T) {
	ch := newChannel(t, "x", false)

	client, err := ch.MakeSubChannel(SubChannelOptions{ServiceName: "c", Peers: []string{"127.0.0.1:1"}})
	require.NoError(t, err)
	assert.True(t, client.Peers().AutoCreate())
	p, ok := client.Peers().Get("127.0.0.1:2")
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:2", p.HostPort())
	assert.Equal(t, []string{"127.0.0.1:1", "127.0.0.1:2"}, client.Peers().Keys())

	server, err := ch.MakeSubChannel(SubChannelOptions{ServiceName: "s"})
	require.NoError(t, err)
	assert.False(t, server.Peers().AutoCreate())
	_, ok = server.Peers().Get("127.0.0.1:3")
	assert.False(t, ok)

	// 显式服务端角色，带种子也不自动创建
	fixed, err := ch.MakeSubChannel(SubChannelOptions{ServiceName: "f", Peers: []string{"127.0.0.1:1"}, Role: RoleServer})
	require.NoError(t, err)
	_, ok = fixed.Peers().Get("127.0.0.1:4")
	assert.False(t, ok)
	_, err = fixed.Request(context.Background(), RequestOptions{Host: "127.0.0.1:4", HasNoParent: true})
	assert.ErrorIs(t, err, ErrPeerNotFound)

	// 同一地址在不同视图中共享 Peer
	pf, _ := fixed.Peers().Get("127.0.0.1:1")
	pc, _ := client.Peers().Get("127.0.0.1:1")
	assert.Same(t, pf, pc)

	assert.True(t, client.Peers().Remove("127.0.0.1:2"))
	assert.Equal(t, 1, client.Peers().Len())
}

// TestSubChannel_RequestErrors 测试请求错误
func TestSubChannel_RequestErrors(t *testing.T) {
	server := newChannel(t, "server", true)
	ch := newChannel(t, "x", false)

	empty, err := ch.MakeSubChannel(SubChannelOptions{ServiceName: "empty"})
	require.NoError(t, err)
	_, err = empty.Request(context.Background(), RequestOptions{HasNoParent: true})
	assert.ErrorIs(t, err, swarm.ErrNoPeers)

	sub, err := ch.MakeSubChannel(SubChannelOptions{ServiceName: "svc", Peers: []string{server.HostPort()}, RequireParent: true})
	require.NoError(t, err)
	_, err = sub.Request(context.Background(), RequestOptions{})
	assert.ErrorIs(t, err, ErrNoParent)

	// 没有等待策略时立即失败
	_, err = sub.Request(context.Background(), RequestOptions{HasNoParent: true})
	assert.ErrorIs(t, err, swarm.ErrNotIdentified)

	_, err = ch.MakeSubChannel(SubChannelOptions{ServiceName: "svc"})
	assert.ErrorIs(t, err, ErrSubChannelExists)
	_, err = ch.MakeSubChannel(SubChannelOptions{})
	assert.ErrorIs(t, err, ErrEmptyServiceName)
}

// TestSubChannel_UnknownServiceAndEndpoint 测试未知服务与端点
func TestSubChannel_UnknownServiceAndEndpoint(t *testing.T) {
	server := newChannel(t, "server", true)
	client := newChannel(t, "client", false)
	ctx := testCtx(t)

	svc, err := server.MakeSubChannel(SubChannelOptions{ServiceName: "steve"})
	require.NoError(t, err)
	require.NoError(t, svc.Register("echo", echoHandler))
	assert.ErrorIs(t, svc.Register("echo", echoHandler), ErrHandlerAlreadyRegistered)

	for _, tc := range []struct {
		service, endpoint, msg string
	}{
		{"steve", "nope", "no such endpoint"},
		{"mary", "echo", "no such service"},
	} {
		sub, err := client.MakeSubChannel(SubChannelOptions{ServiceName: tc.service, Peers: []string{server.HostPort()}})
		require.NoError(t, err)

		_, err = sub.Call(ctx, RequestOptions{HasNoParent: true, WaitForIdentified: true}, tc.endpoint, nil, nil)
		var callErr *swarm.CallError
		require.ErrorAs(t, err, &callErr)
		assert.Equal(t, messaging.ErrCodeBadRequest, callErr.Code)
		assert.Contains(t, callErr.Message, tc.msg)
	}
}

// TestSubChannel_DefaultHandler 测试兜底处理器
func TestSubChannel_DefaultHandler(t *testing.T) {
	server := newChannel(t, "server", true)
	client := newChannel(t, "client", false)
	ctx := testCtx(t)

	svc, err := server.MakeSubChannel(SubChannelOptions{ServiceName: "steve"})
	require.NoError(t, err)
	require.NoError(t, svc.Register("echo", echoHandler))
	svc.SetDefaultHandler(func(req *InRequest, res *Response, _, _ []byte) {
		_ = res.SendNotOk(nil, []byte("fallback:"+req.Endpoint()))
	})
	assert.Equal(t, []string{"echo"}, svc.Endpoints())

	sub, err := client.MakeSubChannel(SubChannelOptions{ServiceName: "steve", Peers: []string{server.HostPort()}})
	require.NoError(t, err)

	res, err := sub.Call(ctx, RequestOptions{HasNoParent: true, WaitForIdentified: true}, "anything", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []byte("fallback:anything"), res.Arg3)
}

// TestResponse_DoubleResponse 测试重复响应
func TestResponse_DoubleResponse(t *testing.T) {
	server := newChannel(t, "server", true)
	client := newChannel(t, "client", false)
	ctx := testCtx(t)

	svc, err := server.MakeSubChannel(SubChannelOptions{ServiceName: "steve"})
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		secondErr error
		emitted   []error
	)
	svc.ErrorEvent.On(func(_ any, err error) {
		mu.Lock()
		emitted = append(emitted, err)
		mu.Unlock()
	})
	require.NoError(t, svc.Register("twice", func(_ *InRequest, res *Response, _, _ []byte) {
		require.NoError(t, res.SendOk(nil, []byte("first")))
		err := res.SendNotOk(nil, []byte("second"))
		mu.Lock()
		secondErr = err
		mu.Unlock()
	}))

	sub, err := client.MakeSubChannel(SubChannelOptions{ServiceName: "steve", Peers: []string{server.HostPort()}})
	require.NoError(t, err)
	res, err := sub.Call(ctx, RequestOptions{HasNoParent: true, WaitForIdentified: true}, "twice", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []byte("first"), res.Arg3)

	mu.Lock()
	defer mu.Unlock()
	assert.ErrorIs(t, secondErr, ErrDoubleResponse)
	require.Len(t, emitted, 1)
	assert.ErrorIs(t, emitted[0], ErrDoubleResponse)
}

// TestResponse_AsyncAndTimeout 测试异步响应与处理器超时
func TestResponse_AsyncAndTimeout(t *testing.T) {
	server := newChannel(t, "server", true, WithHandlerTimeout(100*time.Millisecond))
	client := newChannel(t, "client", false)
	ctx := testCtx(t)

	svc, err := server.MakeSubChannel(SubChannelOptions{ServiceName: "steve"})
	require.NoError(t, err)
	require.NoError(t, svc.Register("async", func(_ *InRequest, res *Response, _, arg3 []byte) {
		go func() { _ = res.SendOk(nil, arg3) }()
	}))
	require.NoError(t, svc.Register("never", func(_ *InRequest, _ *Response, _, _ []byte) {}))

	sub, err := client.MakeSubChannel(SubChannelOptions{ServiceName: "steve", Peers: []string{server.HostPort()}})
	require.NoError(t, err)

	res, err := sub.Call(ctx, RequestOptions{HasNoParent: true, WaitForIdentified: true}, "async", nil, []byte("later"))
	require.NoError(t, err)
	assert.Equal(t, []byte("later"), res.Arg3)

	_, err = sub.Call(ctx, RequestOptions{HasNoParent: true}, "never", nil, nil)
	var callErr *swarm.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, messaging.ErrCodeTimeout, callErr.Code)
}

// TestChannel_Close 测试关闭幂等
func TestChannel_Close(t *testing.T) {
	server := newChannel(t, "server", true)
	client := newChannel(t, "client", false)
	ctx := testCtx(t)

	_, err := server.MakeSubChannel(SubChannelOptions{ServiceName: "steve"})
	require.NoError(t, err)
	conn, err := client.WaitForIdentified(ctx, server.HostPort())
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.True(t, client.IsClosed())
	assert.Equal(t, types.ConnClosed, conn.State())

	_, err = client.MakeSubChannel(SubChannelOptions{ServiceName: "late"})
	assert.ErrorIs(t, err, ErrChannelClosed)
	_, err = client.WaitForIdentified(ctx, server.HostPort())
	assert.ErrorIs(t, err, ErrChannelClosed)

	require.NoError(t, server.Close())
	assert.ErrorIs(t, server.Listen(ctx, "127.0.0.1:0"), ErrChannelClosed)
}

// TestChannel_Listen 测试重复监听
func TestChannel_Listen(t *testing.T) {
	ch := newChannel(t, "x", false)
	assert.Equal(t, types.EphemeralHostPort, ch.Identity().HostPort)
	assert.Equal(t, "x", ch.Identity().ProcessName)

	require.NoError(t, ch.Listen(context.Background(), "127.0.0.1:0"))
	assert.NotEqual(t, types.EphemeralHostPort, ch.HostPort())
	assert.ErrorIs(t, ch.Listen(context.Background(), "127.0.0.1:0"), ErrAlreadyListening)
}

// TestSubChannel_PeerErrorForwarded 测试 Peer 错误转发到 SubChannel
func TestSubChannel_PeerErrorForwarded(t *testing.T) {
	ch := newChannel(t, "x", false, WithSwarmOptions(swarm.WithUnhandledPolicy(eventbus.RaiseUnhandled)))
	sub, err := ch.MakeSubChannel(SubChannelOptions{ServiceName: "s", Peers: []string{"127.0.0.1:1"}})
	require.NoError(t, err)

	got := make(chan error, 1)
	sub.ErrorEvent.On(func(owner any, err error) {
		assert.Same(t, sub, owner)
		got <- err
	})

	p, ok := sub.Peers().Get("127.0.0.1:1")
	require.True(t, ok)
	boom := errors.New("boom")
	p.ErrorEvent.Emit(boom)

	select {
	case err := <-got:
		assert.ErrorIs(t, err, boom)
	default:
		t.Fatal("sub-channel error not emitted")
	}
}

// TestRequestDefaults_Merge 测试默认值合并
func TestRequestDefaults_Merge(t *testing.T) {
	parent := RequestDefaults{
		Headers: types.Headers{"as": "json", "cn": "parent"},
		Timeout: time.Second,
	}
	child := RequestDefaults{
		Headers:     types.Headers{"as": "raw"},
		HasNoParent: true,
	}
	got := parent.Merge(child)

	assert.Equal(t, types.Headers{"as": "raw", "cn": "parent"}, got.Headers)
	assert.True(t, got.HasNoParent)
	assert.Equal(t, time.Second, got.Timeout)
	assert.Equal(t, types.Headers{"as": "json", "cn": "parent"}, parent.Headers, "parent must not be mutated")
}
