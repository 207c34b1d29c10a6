package messaging

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relaymesh/pkg/types"
)

// TestWriteReadFrame_Stream 测试同一流上连续读取多帧不会越界
func TestWriteReadFrame_Stream(t *testing.T) {
	var buf bytes.Buffer

	req := &CallRequest{
		ID:      42,
		Service: "steve",
		Headers: types.Headers{types.HeaderArgScheme: "raw", types.HeaderCallerName: "bob"},
		TTL:     1500 * time.Millisecond,
		Arg1:    []byte("echo"),
		Arg2:    []byte("a"),
		Arg3:    []byte("b"),
	}
	res := &CallResponse{
		ID:        42,
		Code:      CodeError,
		ErrorCode: ErrCodeBusy,
		Message:   "relay: rate limited",
	}

	require.NoError(t, WriteFrame(&buf, req))
	require.NoError(t, WriteFrame(&buf, res))

	got1, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, req, got1)
	assert.Equal(t, "echo", got1.(*CallRequest).Endpoint())

	got2, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, res, got2)
	assert.False(t, got2.(*CallResponse).OK())

	_, err = ReadFrame(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

// TestInitFrames 测试握手帧
func TestInitFrames(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteFrame(&buf, &InitRequest{
		Version:     ProtocolVersion,
		HostPort:    "127.0.0.1:4040",
		ProcessName: "relay-1",
	}))
	f, err := ReadFrame(&buf, 0)
	require.NoError(t, err)

	initReq, ok := f.(*InitRequest)
	require.True(t, ok)
	assert.Equal(t, types.Identity{HostPort: "127.0.0.1:4040", ProcessName: "relay-1"}, initReq.Identity())

	require.NoError(t, WriteFrame(&buf, &InitResponse{Version: 1, Error: "version mismatch"}))
	f, err = ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "version mismatch", f.(*InitResponse).Error)
}

// TestReadFrame_TooLarge 测试帧大小限制
func TestReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, &CallRequest{ID: 1, Arg3: bytes.Repeat([]byte("x"), 128)}))

	_, err := ReadFrame(&buf, 64)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// TestReadFrame_Truncated 测试截断的帧
func TestReadFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, &CallRequest{ID: 1, Arg1: []byte("echo")}))
	data := buf.Bytes()

	_, err := ReadFrame(bytes.NewReader(data[:len(data)-2]), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestUnmarshal_Invalid 测试非法 body
func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// 首字段不是帧类型
	b := protowire.AppendTag(nil, 2, protowire.BytesType)
	b = protowire.AppendString(b, "x")
	_, err = Unmarshal(b)
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// 未知帧类型
	b = protowire.AppendTag(nil, fieldFrameType, protowire.VarintType)
	b = protowire.AppendVarint(b, 0x7f)
	_, err = Unmarshal(b)
	assert.ErrorIs(t, err, ErrUnknownFrame)

	// 字段类型错误
	b = protowire.AppendTag(nil, fieldFrameType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(FrameCallRequest))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, "not-a-number")
	_, err = Unmarshal(b)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

// TestUnmarshal_SkipsUnknownFields 测试跳过未知字段
func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	body, err := Marshal(&InitRequest{Version: ProtocolVersion, HostPort: "h:1"})
	require.NoError(t, err)

	body = protowire.AppendTag(body, 99, protowire.BytesType)
	body = protowire.AppendString(body, "future")

	f, err := Unmarshal(body)
	require.NoError(t, err)
	assert.Equal(t, "h:1", f.(*InitRequest).HostPort)
}

// TestMarshal_Nil 测试空帧
func TestMarshal_Nil(t *testing.T) {
	_, err := Marshal(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

// TestEnumStrings 测试枚举字符串
func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "call-req", FrameCallRequest.String())
	assert.Equal(t, "frame(0x7f)", FrameType(0x7f).String())
	assert.Equal(t, "not-ok", CodeNotOK.String())
	assert.Equal(t, "busy", ErrCodeBusy.String())
}
