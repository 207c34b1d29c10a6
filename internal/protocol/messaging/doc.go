// Package messaging 定义连接上传输的帧及其编解码
//
// 每条 yamux 流承载一次交换：发起方写入一个请求帧，
// 接收方写回一个响应帧。连接建立后的第一条流用于识别握手
// （InitRequest/InitResponse），之后每次调用各占一条流
// （CallRequest/CallResponse）。
//
// # 线路格式
//
//	uvarint(len(body)) | body
//
// body 为 protobuf 线路格式，字段 1 固定为帧类型，其余字段见各帧定义。
// 未知字段被跳过，便于协议向前兼容。
package messaging
