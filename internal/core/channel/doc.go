// Package channel 实现进程级 Channel 与服务级 SubChannel
//
// Channel 拥有监听 socket 与根 PeerList，负责接受入站连接、在识别完成后
// 把连接挂到对应的 Peer 上，并把入站调用按服务名分派给 SubChannel。
//
// SubChannel 是某个服务的视图：
//   - 自己的 Peer 键集合（Peer 实例与根列表共享）
//   - 请求默认值（与 Channel 默认值合并，子配置覆盖父配置，头部按键合并）
//   - 端点处理器表
//
// # 使用示例
//
//	ch, _ := channel.New(channel.WithProcessName("steve"))
//	_ = ch.Listen(ctx, "127.0.0.1:0")
//
//	sub, _ := ch.MakeSubChannel(channel.SubChannelOptions{ServiceName: "steve"})
//	sub.Register("echo", func(req *channel.InRequest, res *channel.Response, arg2, arg3 []byte) {
//	    _ = res.SendOk(arg2, arg3)
//	})
//
//	client, _ := ch.MakeSubChannel(channel.SubChannelOptions{
//	    ServiceName: "bob",
//	    Peers:       []string{relayHostPort},
//	})
//	result, err := client.Call(ctx, channel.RequestOptions{HasNoParent: true}, "echo", nil, []byte("hi"))
package channel
