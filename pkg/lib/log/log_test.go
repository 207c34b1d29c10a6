package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLazyLogger_Component 测试组件字段
func TestLazyLogger_Component(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	core, logs := observer.New(zapcore.DebugLevel)
	SetDefault(zap.New(core))

	l := Logger("core/test")
	l.Info("hello", "peer", "127.0.0.1:4040")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "core/test", ctx["component"])
	assert.Equal(t, "127.0.0.1:4040", ctx["peer"])
}

// TestLazyLogger_FollowsDefault 测试已创建的 logger 使用新的输出
func TestLazyLogger_FollowsDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	l := Logger("core/late")

	var buf bytes.Buffer
	SetDefault(New(&buf, LevelDebug))
	l.Debug("switched")

	assert.Contains(t, buf.String(), "switched")
	assert.Contains(t, buf.String(), "core/late")
}

// TestSetLevel 测试级别过滤
func TestSetLevel(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)
	defer SetLevel(LevelInfo)

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)

	l := Logger("core/level")
	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

// TestTruncateID 测试 ID 截取
func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc", TruncateID("abc", 8))
	assert.Equal(t, "abcdefgh", TruncateID("abcdefghij", 8))
}
