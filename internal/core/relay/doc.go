// Package relay 实现中继节点
//
// 中继节点持有一个顶层 Channel，为每个被中继的服务名创建一个 SubChannel，
// SubChannel 的 Peer 集合只包含预先计算好的出口集合（egress set）。
// 入站调用经由默认处理器转发到出口集合中的某个服务实例，
// 响应（OK / NotOK / 错误）与传输头原样返回给调用方。
//
// # 组件
//
//	┌──────────────────────────────────────────────────────┐
//	│                        Node                          │
//	│   AddService(service, egress) → 转发 SubChannel        │
//	├─────────────────┬─────────────────┬──────────────────┤
//	│    Selector     │    ExitTable    │     Limiter      │
//	│ (出口集合计算)   │  (出口集合缓存)  │   (按服务限流)    │
//	└─────────────────┴─────────────────┴──────────────────┘
//
// # 出口选择
//
// Selector 在一个哈希环上为每个中继分配连续的 k 个实例：
// 实例按 murmur3(service, instance) 排序成环，中继按 murmur3(service, relay)
// 排序后依次占用环上的 k 个位置。输入相同则结果相同，
// 每个实例被选中的次数不超过 ceil(numRelays*k/numInstances)。
// k 不小于实例数时，出口集合即全部实例。
//
// # 使用示例
//
//	node, err := relay.NewNode(ch, relay.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	if _, err := node.AddService("steve", []string{"10.0.0.1:4040"}); err != nil {
//	    return err
//	}
package relay
