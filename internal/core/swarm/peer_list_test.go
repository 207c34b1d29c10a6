package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPeerList_AddGetRemove 测试基本增删查
func TestPeerList_AddGetRemove(t *testing.T) {
	l := NewPeerList(clientLocal(), nil)

	p1 := l.Add("127.0.0.1:2000")
	p2 := l.Add("127.0.0.1:1000")
	assert.Same(t, p1, l.Add("127.0.0.1:2000"), "Add must be idempotent")
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []string{"127.0.0.1:1000", "127.0.0.1:2000"}, l.Keys())

	got, ok := l.Get("127.0.0.1:1000")
	require.True(t, ok)
	assert.Same(t, p2, got)

	_, ok = l.Get("127.0.0.1:3000")
	assert.False(t, ok)

	removed, ok := l.Remove("127.0.0.1:1000")
	require.True(t, ok)
	assert.Same(t, p2, removed)
	assert.Equal(t, 1, l.Len())

	_, added := l.GetOrAdd("127.0.0.1:2000")
	assert.False(t, added)
}

// TestPeerList_Scoped 测试视图共享根列表的 Peer
func TestPeerList_Scoped(t *testing.T) {
	root := NewPeerList(clientLocal(), nil)

	var hooked []string
	root.OnPeerAdded(func(p *Peer) {
		hooked = append(hooked, p.HostPort())
	})

	a := root.Scoped()
	b := a.Scoped()
	assert.Same(t, root, b.Root())

	pa := a.Add("127.0.0.1:1")
	pb := b.Add("127.0.0.1:1")
	assert.Same(t, pa, pb)
	assert.Equal(t, []string{"127.0.0.1:1"}, hooked, "hook fires once per created peer")
	assert.Equal(t, 1, root.Len())

	// 视图之间的键集合独立
	a.Add("127.0.0.1:2")
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, root.Len())

	require.NoError(t, a.Close())
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 2, root.Len(), "closing a view must not drop root peers")
}

// TestPeerList_Choose 测试选择策略
func TestPeerList_Choose(t *testing.T) {
	srv := newTestServer(t, nil)
	l := NewPeerList(clientLocal(), nil)
	l.OnPeerAdded(func(p *Peer) {
		p.ErrorEvent.On(func(_ any, _ error) {})
	})
	defer l.Close()

	assert.Nil(t, l.Choose(nil))

	// 未识别之间轮询
	l.Add("127.0.0.1:1")
	l.Add("127.0.0.1:2")
	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		seen[l.Choose(nil).HostPort()]++
	}
	assert.Equal(t, map[string]int{"127.0.0.1:1": 2, "127.0.0.1:2": 2}, seen)

	// 有已识别连接的 Peer 优先
	live := l.Add(srv.addr())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := live.WaitForIdentified(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Same(t, live, l.Choose(nil))
	}

	// 过滤
	p := l.Choose(func(p *Peer) bool { return p.HostPort() == "127.0.0.1:2" })
	require.NotNil(t, p)
	assert.Equal(t, "127.0.0.1:2", p.HostPort())
}

// TestPeerList_Close 测试根列表关闭全部 Peer
func TestPeerList_Close(t *testing.T) {
	srv := newTestServer(t, nil)
	l := NewPeerList(clientLocal(), nil)
	l.OnPeerAdded(func(p *Peer) {
		p.ErrorEvent.On(func(_ any, _ error) {})
	})

	p := l.Add(srv.addr())
	conn, err := p.WaitForIdentified(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	assert.Equal(t, 0, l.Len())
	assert.False(t, conn.IsIdentified())

	_, err = p.Request(context.Background(), RequestOptions{})
	assert.ErrorIs(t, err, ErrPeerClosed)
}
