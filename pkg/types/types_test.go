package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{DirUnknown, "unknown"},
		{DirInbound, "inbound"},
		{DirOutbound, "outbound"},
		{Direction(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.String())
		})
	}
}

// TestConnState_CanTransition 测试状态机迁移
func TestConnState_CanTransition(t *testing.T) {
	assert.True(t, ConnUnidentified.CanTransition(ConnIdentified))
	assert.True(t, ConnUnidentified.CanTransition(ConnClosed))
	assert.True(t, ConnIdentified.CanTransition(ConnClosed))

	assert.False(t, ConnIdentified.CanTransition(ConnUnidentified))
	assert.False(t, ConnClosed.CanTransition(ConnIdentified))
	assert.False(t, ConnClosed.CanTransition(ConnClosed))
}

// TestParseHostPort 测试地址解析
func TestParseHostPort(t *testing.T) {
	hp, err := ParseHostPort("127.0.0.1:04040")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4040", hp)

	_, err = ParseHostPort("")
	assert.ErrorIs(t, err, ErrEmptyHostPort)

	for _, bad := range []string{"127.0.0.1", ":80", "host:99999", "host:abc"} {
		_, err = ParseHostPort(bad)
		assert.True(t, errors.Is(err, ErrInvalidHostPort), bad)
	}
}

// TestIsEphemeral 测试占位地址识别
func TestIsEphemeral(t *testing.T) {
	assert.True(t, IsEphemeral(EphemeralHostPort))
	assert.True(t, IsEphemeral("127.0.0.1:0"))
	assert.True(t, IsEphemeral("garbage"))
	assert.False(t, IsEphemeral("127.0.0.1:4040"))
}

// TestHeaders_Merge 测试传输头合并
func TestHeaders_Merge(t *testing.T) {
	base := Headers{HeaderArgScheme: "raw", HeaderCallerName: "bob"}
	merged := base.Merge(Headers{HeaderCallerName: "steve"})

	assert.Equal(t, "raw", merged[HeaderArgScheme])
	assert.Equal(t, "steve", merged[HeaderCallerName])
	assert.Equal(t, "bob", base[HeaderCallerName], "原始值不应被修改")
	assert.Equal(t, []string{"as", "cn"}, merged.Keys())

	assert.Nil(t, Headers(nil).Merge(nil))
	assert.Nil(t, Headers(nil).Clone())
}
