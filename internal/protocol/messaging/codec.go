package messaging

import (
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relaymesh/pkg/types"
)

// DefaultMaxFrameSize 默认最大帧大小
const DefaultMaxFrameSize = 4 << 20

// 字段编号：1 固定为帧类型
const fieldFrameType protowire.Number = 1

// header 嵌套消息字段
const (
	fieldHeaderKey   protowire.Number = 1
	fieldHeaderValue protowire.Number = 2
)

// ============================================================================
//                              编码
// ============================================================================

// Marshal 编码帧为 body（不含长度前缀）
func Marshal(f Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: frame is nil", ErrInvalidMessage)
	}

	b := protowire.AppendTag(nil, fieldFrameType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Type()))

	switch m := f.(type) {
	case *InitRequest:
		b = appendUint(b, 2, uint64(m.Version))
		b = appendString(b, 3, m.HostPort)
		b = appendString(b, 4, m.ProcessName)
	case *InitResponse:
		b = appendUint(b, 2, uint64(m.Version))
		b = appendString(b, 3, m.HostPort)
		b = appendString(b, 4, m.ProcessName)
		b = appendString(b, 5, m.Error)
	case *CallRequest:
		b = appendUint(b, 2, m.ID)
		b = appendString(b, 3, m.Service)
		b = appendHeaders(b, 4, m.Headers)
		b = appendUint(b, 5, uint64(m.TTL/time.Millisecond))
		b = appendBytes(b, 6, m.Arg1)
		b = appendBytes(b, 7, m.Arg2)
		b = appendBytes(b, 8, m.Arg3)
	case *CallResponse:
		b = appendUint(b, 2, m.ID)
		b = appendUint(b, 3, uint64(m.Code))
		b = appendUint(b, 4, uint64(m.ErrorCode))
		b = appendString(b, 5, m.Message)
		b = appendHeaders(b, 6, m.Headers)
		b = appendBytes(b, 7, m.Arg2)
		b = appendBytes(b, 8, m.Arg3)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrame, f.Type())
	}
	return b, nil
}

// WriteFrame 写入带长度前缀的帧
func WriteFrame(w io.Writer, f Frame) error {
	body, err := Marshal(f)
	if err != nil {
		return err
	}
	buf := protowire.AppendVarint(make([]byte, 0, len(body)+binaryLenMax), uint64(len(body)))
	buf = append(buf, body...)
	_, err = w.Write(buf)
	return err
}

const binaryLenMax = 10

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendHeaders(b []byte, num protowire.Number, h types.Headers) []byte {
	for _, k := range h.Keys() {
		var entry []byte
		entry = appendString(entry, fieldHeaderKey, k)
		entry = appendString(entry, fieldHeaderValue, h[k])
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// ============================================================================
//                              解码
// ============================================================================

// Unmarshal 解码 body 为帧
func Unmarshal(data []byte) (Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidMessage)
	}

	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 || num != fieldFrameType || typ != protowire.VarintType {
		return nil, fmt.Errorf("%w: missing frame type", ErrInvalidMessage)
	}
	data = data[n:]
	ft, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
	}
	data = data[n:]

	var f Frame
	var field func(num protowire.Number, d *decoder)
	switch FrameType(ft) {
	case FrameInitRequest:
		m := &InitRequest{}
		f = m
		field = func(num protowire.Number, d *decoder) {
			switch num {
			case 2:
				m.Version = uint32(d.uint())
			case 3:
				m.HostPort = d.string()
			case 4:
				m.ProcessName = d.string()
			default:
				d.skip()
			}
		}
	case FrameInitResponse:
		m := &InitResponse{}
		f = m
		field = func(num protowire.Number, d *decoder) {
			switch num {
			case 2:
				m.Version = uint32(d.uint())
			case 3:
				m.HostPort = d.string()
			case 4:
				m.ProcessName = d.string()
			case 5:
				m.Error = d.string()
			default:
				d.skip()
			}
		}
	case FrameCallRequest:
		m := &CallRequest{}
		f = m
		field = func(num protowire.Number, d *decoder) {
			switch num {
			case 2:
				m.ID = d.uint()
			case 3:
				m.Service = d.string()
			case 4:
				m.Headers = d.header(m.Headers)
			case 5:
				m.TTL = time.Duration(d.uint()) * time.Millisecond
			case 6:
				m.Arg1 = d.bytes()
			case 7:
				m.Arg2 = d.bytes()
			case 8:
				m.Arg3 = d.bytes()
			default:
				d.skip()
			}
		}
	case FrameCallResponse:
		m := &CallResponse{}
		f = m
		field = func(num protowire.Number, d *decoder) {
			switch num {
			case 2:
				m.ID = d.uint()
			case 3:
				m.Code = ResponseCode(d.uint())
			case 4:
				m.ErrorCode = ErrorCode(d.uint())
			case 5:
				m.Message = d.string()
			case 6:
				m.Headers = d.header(m.Headers)
			case 7:
				m.Arg2 = d.bytes()
			case 8:
				m.Arg3 = d.bytes()
			default:
				d.skip()
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrame, FrameType(ft))
	}

	d := &decoder{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
		}
		d.reset(num, typ, data[n:])
		field(num, d)
		if d.err != nil {
			return nil, d.err
		}
		data = data[n+d.n:]
	}
	return f, nil
}

// ReadFrame 读取带长度前缀的帧
//
// 逐字节读取长度前缀，不会越过帧边界多读。
func ReadFrame(r io.Reader, maxSize int) (Frame, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	size, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Unmarshal(body)
}

func readUvarint(r io.Reader) (uint64, error) {
	var prefix []byte
	var one [1]byte
	for i := 0; i < binaryLenMax; i++ {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if i > 0 && err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		prefix = append(prefix, one[0])
		if one[0] < 0x80 {
			v, n := protowire.ConsumeVarint(prefix)
			if n < 0 {
				return 0, fmt.Errorf("%w: %v", ErrInvalidMessage, protowire.ParseError(n))
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: length prefix overflow", ErrInvalidMessage)
}

// decoder 单字段解码状态
type decoder struct {
	num  protowire.Number
	typ  protowire.Type
	data []byte
	n    int
	err  error
}

func (d *decoder) reset(num protowire.Number, typ protowire.Type, data []byte) {
	d.num, d.typ, d.data, d.n, d.err = num, typ, data, 0, nil
}

func (d *decoder) fail(n int) {
	if n < 0 {
		d.err = fmt.Errorf("%w: field %d: %v", ErrInvalidMessage, d.num, protowire.ParseError(n))
		return
	}
	d.n = n
}

func (d *decoder) wrongType() {
	d.err = fmt.Errorf("%w: field %d: unexpected wire type %d", ErrInvalidMessage, d.num, d.typ)
}

func (d *decoder) uint() uint64 {
	if d.typ != protowire.VarintType {
		d.wrongType()
		return 0
	}
	v, n := protowire.ConsumeVarint(d.data)
	d.fail(n)
	return v
}

func (d *decoder) bytes() []byte {
	if d.typ != protowire.BytesType {
		d.wrongType()
		return nil
	}
	v, n := protowire.ConsumeBytes(d.data)
	d.fail(n)
	if d.err != nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (d *decoder) string() string {
	return string(d.bytes())
}

func (d *decoder) header(h types.Headers) types.Headers {
	entry := d.bytes()
	if d.err != nil {
		return h
	}

	var key, value string
	for len(entry) > 0 {
		num, typ, n := protowire.ConsumeTag(entry)
		if n < 0 {
			d.err = fmt.Errorf("%w: header: %v", ErrInvalidMessage, protowire.ParseError(n))
			return h
		}
		entry = entry[n:]
		if typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, entry)
			if m < 0 {
				d.err = fmt.Errorf("%w: header: %v", ErrInvalidMessage, protowire.ParseError(m))
				return h
			}
			entry = entry[m:]
			continue
		}
		v, m := protowire.ConsumeBytes(entry)
		if m < 0 {
			d.err = fmt.Errorf("%w: header: %v", ErrInvalidMessage, protowire.ParseError(m))
			return h
		}
		entry = entry[m:]
		switch num {
		case fieldHeaderKey:
			key = string(v)
		case fieldHeaderValue:
			value = string(v)
		}
	}

	if h == nil {
		h = make(types.Headers)
	}
	h[key] = value
	return h
}

func (d *decoder) skip() {
	d.fail(protowire.ConsumeFieldValue(d.num, d.typ, d.data))
}
