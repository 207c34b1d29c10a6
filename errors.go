package relaymesh

import "errors"

// 公共错误定义
var (
	// ErrNotStarted 网格未启动
	ErrNotStarted = errors.New("mesh not started")

	// ErrAlreadyStarted 网格已启动
	ErrAlreadyStarted = errors.New("mesh already started")

	// ErrMeshClosed 网格已关闭
	ErrMeshClosed = errors.New("mesh closed")
)
