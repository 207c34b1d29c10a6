package types

import "fmt"

// Identity 识别握手中交换的进程身份
type Identity struct {
	// HostPort 进程对外监听地址；未监听时为 EphemeralHostPort
	HostPort string

	// ProcessName 进程名（含唯一后缀）
	ProcessName string
}

// String 返回身份的字符串表示
func (id Identity) String() string {
	return fmt.Sprintf("%s(%s)", id.ProcessName, id.HostPort)
}

// IsZero 判断身份是否为空
func (id Identity) IsZero() bool {
	return id.HostPort == "" && id.ProcessName == ""
}
