package types

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接
	DirInbound
	// DirOutbound 出站连接
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              ConnState - 连接识别状态
// ============================================================================

// ConnState 连接状态
//
// 状态只能单向推进：Unidentified → Identified → Closed，
// 也允许从 Unidentified 直接进入 Closed（握手失败）。
type ConnState int32

const (
	// ConnUnidentified 已建立 socket，尚未完成识别握手
	ConnUnidentified ConnState = iota
	// ConnIdentified 识别握手完成，可以发送请求
	ConnIdentified
	// ConnClosed 已关闭（终态）
	ConnClosed
)

// String 返回状态的字符串表示
func (s ConnState) String() string {
	switch s {
	case ConnUnidentified:
		return "unidentified"
	case ConnIdentified:
		return "identified"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransition 检查状态迁移是否合法
func (s ConnState) CanTransition(to ConnState) bool {
	switch s {
	case ConnUnidentified:
		return to == ConnIdentified || to == ConnClosed
	case ConnIdentified:
		return to == ConnClosed
	default:
		return false
	}
}
