package types

import "sort"

// 常用传输头
const (
	// HeaderArgScheme 载荷编码标识（如 raw、json、thrift）
	HeaderArgScheme = "as"
	// HeaderCallerName 调用方服务名
	HeaderCallerName = "cn"
	// HeaderRoutingDelegate 路由委托（中继按该服务名转发）
	HeaderRoutingDelegate = "rd"
)

// Headers 传输头
//
// 原样透传到线路上，中继不做改写。
type Headers map[string]string

// Clone 返回副本
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Merge 返回合并结果，override 中的键覆盖 h
func (h Headers) Merge(override Headers) Headers {
	if len(h) == 0 && len(override) == 0 {
		return nil
	}
	out := make(Headers, len(h)+len(override))
	for k, v := range h {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Keys 返回排序后的键
func (h Headers) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
