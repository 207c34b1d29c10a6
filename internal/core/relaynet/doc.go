// Package relaynet 构建中继网络
//
// Network 一次性启动全部服务实例与中继节点，为每个 (中继, 服务) 计算出口集合，
// 并把中继的服务 SubChannel 只连接到各自的出口集合：
//
//	cfg := relaynet.DefaultConfig()
//	cfg.NumRelays = 5
//	cfg.ServiceNames = []string{"bob", "steve", "mary"}
//
//	net, err := relaynet.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := net.Bootstrap(ctx); err != nil {
//	    return err // 已启动的组件均已关闭
//	}
//	defer net.Close(ctx)
//
// 出口计算只依赖 (NumRelays, NumInstancesPerService, KValue, ServiceNames)，
// 参与哈希的是中继与实例的序号标识，与监听端口无关，
// 因此重复构建得到相同的出口集合。
//
// Remote 把某个实例包装成调用方：实例注册 echo 端点，
// 并通过 autobahn-client SubChannel 经由中继调用其他服务。
package relaynet
