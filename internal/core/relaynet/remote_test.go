package relaynet

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relaymesh/internal/core/channel"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// TestRemote_EchoThroughRelay 测试 bob 经由中继调用 steve 的 echo
func TestRemote_EchoThroughRelay(t *testing.T) {
	n := bootstrap(t, DefaultConfig())

	remotes, err := n.Remotes("bob", "steve")
	require.NoError(t, err)
	bob, steve := remotes["bob"], remotes["steve"]
	require.NotNil(t, bob)
	require.NotNil(t, steve)

	assert.Equal(t, "bob", bob.ServiceName())
	assert.Equal(t, n.Instances("bob")[0], bob.Channel())
	assert.Equal(t, n.RelayHostPorts(), bob.ClientChannel.Peers().Keys())
	assert.Equal(t, []string{"echo"}, steve.ServerChannel.Endpoints())

	ctx := testCtx(t)
	res, err := bob.Call(ctx, "steve", "echo", []byte("head"), []byte("body"))
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []byte("head"), res.Arg2)
	assert.Equal(t, []byte("body"), res.Arg3)
	assert.Equal(t, "raw", res.Headers[types.HeaderArgScheme])
	assert.Equal(t, "bob", res.Headers[types.HeaderCallerName])

	// 反方向
	res, err = steve.Call(ctx, "bob", "echo", nil, []byte("back"))
	require.NoError(t, err)
	assert.Equal(t, []byte("back"), res.Arg3)
	assert.Equal(t, "steve", res.Headers[types.HeaderCallerName])

	t.Log("✅ 经由中继的 echo 测试通过")
}

// TestRemote_CallerVisibleToInstance 测试实例看到调用方服务名
func TestRemote_CallerVisibleToInstance(t *testing.T) {
	n := bootstrap(t, smallConfig(2, 1, 1, "bob", "mary"))

	remotes, err := n.Remotes("bob", "mary")
	require.NoError(t, err)

	var calls atomic.Int32
	var caller atomic.Value
	require.NoError(t, remotes["mary"].ServerChannel.Register("whoami", func(req *channel.InRequest, res *channel.Response, _, _ []byte) {
		calls.Add(1)
		caller.Store(req.Caller())
		_ = res.SendOk(nil, []byte(req.Service()))
	}))

	ctx := testCtx(t)
	for i := 0; i < 4; i++ {
		res, err := remotes["bob"].Call(ctx, "mary", "whoami", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("mary"), res.Arg3)
	}
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, "bob", caller.Load())
}

// TestRemote_Errors 测试经由中继的错误传递
func TestRemote_Errors(t *testing.T) {
	n := bootstrap(t, smallConfig(1, 1, 1, "bob", "steve"))

	remotes, err := n.Remotes("bob")
	require.NoError(t, err)
	ctx := testCtx(t)

	_, err = remotes["bob"].Call(ctx, "steve", "missing", nil, nil)
	var ce *swarm.CallError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, messaging.ErrCodeBadRequest, ce.Code)
	assert.Contains(t, ce.Message, "no such endpoint")

	_, err = remotes["bob"].Call(ctx, "nobody", "echo", nil, nil)
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, messaging.ErrCodeBadRequest, ce.Code)
	assert.Contains(t, ce.Message, "no such service")

	_, err = n.Remotes("carol")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
