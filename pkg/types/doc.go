// Package types 定义 relaymesh 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - enums.go     - Direction, ConnState
//   - hostport.go  - HostPort 地址解析与校验
//   - headers.go   - 传输头（as/cn 等）
//   - identity.go  - 识别握手交换的远端身份
//   - errors.go    - 公共错误定义
package types
