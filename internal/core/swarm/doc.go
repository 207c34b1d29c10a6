// Package swarm 实现连接与对端管理
//
// # 核心类型
//
//   - Connection: 一条 socket 级链路，带识别状态机
//     (unidentified → identified → closed) 与在途请求表
//   - Peer: 按 host:port 标识的远端主机，拥有若干出站/入站 Connection，
//     为每个请求选择首选连接
//   - PeerList: host:port → Peer 的映射，可以作为根列表或共享根列表的视图
//
// # 首选连接
//
// 选择在 Peer 锁内完成：显式指定的连接优先，否则取最近完成识别的连接，
// 识别时间相同时出站连接优先于入站连接。
//
// # 使用示例
//
//	peer := swarm.NewPeer("127.0.0.1:4040", local, swarm.DefaultConfig())
//	peer.ErrorEvent.On(func(_ any, err error) { ... })
//
//	req, err := peer.Request(ctx, swarm.RequestOptions{
//	    ServiceName:       "steve",
//	    WaitForIdentified: true,
//	})
//	res, err := req.Send(ctx, []byte("echo"), nil, []byte("hi"))
//
// # 事件
//
// Connection 发射 identified / error / closed；Peer 发射 connection-added / error。
// error 事件没有监听器时按 eventbus 默认策略 panic，调用方需要注册监听器。
package swarm
