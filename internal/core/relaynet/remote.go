package relaynet

import (
	"context"
	"fmt"

	"github.com/dep2p/go-relaymesh/internal/core/channel"
	"github.com/dep2p/go-relaymesh/internal/core/swarm"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// ClientServiceName 经由中继调用时使用的客户端 SubChannel 名
const ClientServiceName = "autobahn-client"

// Remote 经由中继网络通信的服务实例
type Remote struct {
	serviceName string
	ch          *channel.Channel

	// ClientChannel 指向全部中继的客户端 SubChannel
	ClientChannel *channel.SubChannel

	// ServerChannel 实例自身的服务 SubChannel
	ServerChannel *channel.SubChannel
}

// NewRemote 把实例的服务 SubChannel 包装为 Remote
//
// 在 sub 上注册 echo 端点，并在同一 Channel 上创建 autobahn-client，
// 请求默认值为 {HasNoParent, as: raw, cn: 服务名}。
func NewRemote(sub *channel.SubChannel, hostPortList []string) (*Remote, error) {
	r := &Remote{
		serviceName:   sub.ServiceName(),
		ch:            sub.Channel(),
		ServerChannel: sub,
	}

	client, err := r.ch.MakeSubChannel(channel.SubChannelOptions{
		ServiceName: ClientServiceName,
		Peers:       hostPortList,
		Role:        channel.RoleClient,
		RequestDefaults: channel.RequestDefaults{
			HasNoParent: true,
			Headers: types.Headers{
				types.HeaderArgScheme:  "raw",
				types.HeaderCallerName: r.serviceName,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", r.serviceName, err)
	}
	r.ClientChannel = client

	if err := sub.Register("echo", echo); err != nil {
		return nil, fmt.Errorf("remote %s: %w", r.serviceName, err)
	}
	return r, nil
}

func echo(_ *channel.InRequest, res *channel.Response, arg2, arg3 []byte) {
	if res.Headers == nil {
		res.Headers = types.Headers{}
	}
	res.Headers[types.HeaderArgScheme] = "raw"
	_ = res.SendOk(arg2, arg3)
}

// ServiceName 返回服务名
func (r *Remote) ServiceName() string {
	return r.serviceName
}

// Channel 返回实例的顶层 Channel
func (r *Remote) Channel() *channel.Channel {
	return r.ch
}

// Call 经由中继调用 service 的 endpoint
func (r *Remote) Call(ctx context.Context, service, endpoint string, arg2, arg3 []byte) (*swarm.CallResult, error) {
	return r.ClientChannel.Call(ctx, channel.RequestOptions{
		ServiceName:       service,
		WaitForIdentified: true,
	}, endpoint, arg2, arg3)
}

// Remotes 为每个服务的第一个实例创建 Remote
func (n *Network) Remotes(services ...string) (map[string]*Remote, error) {
	hostPorts := n.RelayHostPorts()
	out := make(map[string]*Remote, len(services))
	for _, svc := range services {
		subs := n.SubChannelsByName(svc)
		if len(subs) == 0 {
			return nil, fmt.Errorf("%w: unknown service %q", ErrInvalidConfig, svc)
		}
		r, err := NewRemote(subs[0], hostPorts)
		if err != nil {
			return nil, err
		}
		out[svc] = r
	}
	return out, nil
}
