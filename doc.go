// Package relaymesh 提供基于中继网络的 RPC 传输
//
// 一组服务实例通过若干中继相互调用。每个中继只把某个服务的请求
// 转发给该服务实例中的一个确定子集（出口集合），
// 出口集合由稳定哈希计算，在实例间均匀分摊负载。
//
// # 快速开始
//
//	import "github.com/dep2p/go-relaymesh"
//
//	mesh, err := relaymesh.Start(ctx,
//	    relaymesh.WithPreset(relaymesh.PresetLocal),
//	    relaymesh.WithServices("bob", "steve"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mesh.Close()
//
//	remotes, _ := mesh.Remotes("bob")
//	res, err := remotes["bob"].Call(ctx, "steve", "echo", nil, []byte("hi"))
//
// # 层次结构
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│  入口层      Mesh                  relaymesh.New / Start          │
//	├─────────────────────────────────────────────────────────────────┤
//	│  网络层      relaynet.Network      启动、出口连接、回滚、关闭      │
//	├─────────────────────────────────────────────────────────────────┤
//	│  中继层      relay.Node            选择器、出口表、限流、转发      │
//	├─────────────────────────────────────────────────────────────────┤
//	│  通道层      channel.Channel       SubChannel、处理器、响应        │
//	├─────────────────────────────────────────────────────────────────┤
//	│  连接层      swarm                 Connection、Peer、PeerList      │
//	│             muxer/yamux           多路复用                        │
//	│             protocol/messaging    帧编解码                        │
//	└─────────────────────────────────────────────────────────────────┘
//
// # 文件组织
//
//   - relaymesh.go  版本信息
//   - mesh.go       Mesh 入口与生命周期
//   - options.go    用户选项
//   - presets.go    预设拓扑
//   - fx.go         Fx 应用装配
//   - errors.go     公共错误
package relaymesh
