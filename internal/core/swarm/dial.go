package swarm

import (
	"context"
	"fmt"
	"net"

	"github.com/dep2p/go-relaymesh/pkg/types"
)

// dial 以 TCP 拨号 hostPort
func dial(ctx context.Context, hostPort string, cfg *Config) (net.Conn, error) {
	if types.IsEphemeral(hostPort) {
		return nil, fmt.Errorf("%w: %s", ErrEphemeralPeer, hostPort)
	}
	if _, err := types.ParseHostPort(hostPort); err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		logger.Debug("拨号失败", "hostPort", hostPort, "error", err)
		return nil, fmt.Errorf("dial %s: %w", hostPort, err)
	}
	return conn, nil
}
