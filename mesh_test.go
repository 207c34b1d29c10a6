package relaymesh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-relaymesh/config"
	"github.com/dep2p/go-relaymesh/internal/core/channel"
	"github.com/dep2p/go-relaymesh/internal/core/relaynet"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestStart_Echo 测试默认拓扑下经由中继的调用
func TestStart_Echo(t *testing.T) {
	mesh, err := Start(testCtx(t),
		WithPreset(PresetLocal),
		WithServices("bob", "steve"),
		WithMetrics(true, ""),
		WithLogLevel("warn"),
	)
	require.NoError(t, err)
	defer mesh.Close()

	assert.True(t, mesh.IsRunning())
	assert.Len(t, mesh.RelayHostPorts(), 3)
	require.NotNil(t, mesh.Registry())

	remotes, err := mesh.Remotes("bob", "steve")
	require.NoError(t, err)
	res, err := remotes["bob"].Call(testCtx(t), "steve", "echo", []byte("k"), []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), res.Arg3)
	assert.Equal(t, "bob", res.Headers[types.HeaderCallerName])

	families, err := mesh.Registry().Gather()
	require.NoError(t, err)
	var forwards float64
	for _, f := range families {
		if f.GetName() != "relaymesh_relay_forwards_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			forwards += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, forwards)

	t.Log("✅ Start + echo 测试通过")
}

// TestMesh_Lifecycle 测试状态转换
func TestMesh_Lifecycle(t *testing.T) {
	mesh, err := New(WithPreset(PresetTest), WithServices("bob"))
	require.NoError(t, err)

	assert.False(t, mesh.IsRunning())
	assert.ErrorIs(t, mesh.Stop(testCtx(t)), ErrNotStarted)
	_, err = mesh.Remotes("bob")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, mesh.Registry())

	require.NoError(t, mesh.Start(testCtx(t)))
	assert.ErrorIs(t, mesh.Start(testCtx(t)), ErrAlreadyStarted)

	relays := mesh.Network().RelayChannels()
	require.NoError(t, mesh.Stop(testCtx(t)))
	for _, ch := range relays {
		assert.True(t, ch.IsClosed())
	}

	assert.ErrorIs(t, mesh.Start(testCtx(t)), ErrMeshClosed)
	assert.ErrorIs(t, mesh.Stop(testCtx(t)), ErrMeshClosed)
	assert.NoError(t, mesh.Close())
	assert.NoError(t, mesh.Close())
}

// TestMesh_CloseWithoutStart 测试未启动直接关闭
func TestMesh_CloseWithoutStart(t *testing.T) {
	mesh, err := New(WithPreset(PresetTest))
	require.NoError(t, err)
	require.NoError(t, mesh.Close())
	assert.ErrorIs(t, mesh.Start(testCtx(t)), ErrMeshClosed)
}

// TestStart_BootstrapFailure 测试组件启动失败时返回错误
func TestStart_BootstrapFailure(t *testing.T) {
	refuse := func(ctx context.Context, ch *channel.Channel, c relaynet.Component) error {
		if c.Role == relaynet.RoleRelay {
			return errors.New("port unavailable")
		}
		return ch.Listen(ctx, "127.0.0.1:0")
	}

	_, err := Start(testCtx(t), WithPreset(PresetTest), WithListenFunc(refuse))
	require.Error(t, err)
	assert.ErrorIs(t, err, relaynet.ErrBootstrapFailure)
	assert.ErrorContains(t, err, "port unavailable")
}

// TestNew_InvalidOptions 测试无效选项与配置
func TestNew_InvalidOptions(t *testing.T) {
	cases := []struct {
		name string
		opt  Option
	}{
		{"Relays", WithRelays(0)},
		{"Instances", WithInstancesPerService(0)},
		{"KValue", WithKValue(0)},
		{"Services", WithServices()},
		{"Preset", WithPreset(nil)},
		{"Config", WithConfig(nil)},
		{"LogLevel", WithLogLevel("loud")},
		{"ForwardRate", WithForwardRate(-1, 1)},
		{"ConfigFile", WithConfigFile(filepath.Join(t.TempDir(), "missing.json"))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opt)
			assert.Error(t, err)
		})
	}
}

// TestNew_ConfigFile 测试从文件加载配置
func TestNew_ConfigFile(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Network.NumRelays = 2
	cfg.Network.ServiceNames = []string{"alpha"}
	cfg.Metrics.Enable = false
	data, err := cfg.ToJSON()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "relaymesh.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	mesh, err := Start(testCtx(t), WithConfigFile(path), WithLogLevel("warn"))
	require.NoError(t, err)
	defer mesh.Close()

	assert.Len(t, mesh.RelayHostPorts(), 2)
	assert.Equal(t, []string{"alpha"}, mesh.Network().ServiceNames())

	got := mesh.Config()
	got.Network.ServiceNames[0] = "changed"
	assert.Equal(t, []string{"alpha"}, mesh.Config().Network.ServiceNames)
}

// TestPresetByName 测试预设查找
func TestPresetByName(t *testing.T) {
	for _, name := range []string{PresetNameLocal, PresetNameTest, PresetNameServer} {
		p, ok := PresetByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, p.Name)

		cfg := config.NewConfig()
		p.Apply(cfg)
		assert.NoError(t, cfg.Validate(), name)
	}
	_, ok := PresetByName("mobile")
	assert.False(t, ok)
}

// TestVersionInfo 测试版本信息
func TestVersionInfo(t *testing.T) {
	assert.Equal(t, "relaymesh "+Version, VersionInfo())

	GitCommit = "0123456789abcdef"
	defer func() { GitCommit = "" }()
	assert.Contains(t, VersionInfo(), "(01234567)")
}
