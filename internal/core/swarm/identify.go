package swarm

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-relaymesh/internal/protocol/messaging"
	"github.com/dep2p/go-relaymesh/pkg/types"
)

// identify 执行识别握手
//
// 出站方在第一条流上发送 InitRequest，入站方校验版本后回复 InitResponse。
func (c *Connection) identify() {
	var (
		remote types.Identity
		err    error
	)
	if c.dir == types.DirOutbound {
		remote, err = c.identifyOutbound()
	} else {
		remote, err = c.identifyInbound()
	}
	if err != nil {
		// 已因超时或主动关闭而关闭时为空操作
		_ = c.closeWithError(&IdentifyError{HostPort: c.RemoteAddr(), Err: err})
		return
	}

	if !c.markIdentified(remote) {
		return
	}

	go c.serve()
	c.IdentifiedEvent.Emit(remote)
}

func (c *Connection) identifyOutbound() (types.Identity, error) {
	stream, err := c.session.Open(c.ctx)
	if err != nil {
		return types.Identity{}, err
	}
	defer stream.Close()

	local := c.local.Identity()
	if err := messaging.WriteFrame(stream, &messaging.InitRequest{
		Version:     messaging.ProtocolVersion,
		HostPort:    local.HostPort,
		ProcessName: local.ProcessName,
	}); err != nil {
		return types.Identity{}, err
	}

	f, err := messaging.ReadFrame(stream, c.cfg.MaxFrameSize)
	if err != nil {
		return types.Identity{}, err
	}
	res, ok := f.(*messaging.InitResponse)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: %s", messaging.ErrUnexpectedFrame, f.Type())
	}
	if res.Error != "" {
		return types.Identity{}, errors.New(res.Error)
	}
	if res.Version != messaging.ProtocolVersion {
		return types.Identity{}, fmt.Errorf("%w: local %d, remote %d",
			ErrVersionMismatch, messaging.ProtocolVersion, res.Version)
	}
	return res.Identity(), nil
}

func (c *Connection) identifyInbound() (types.Identity, error) {
	stream, err := c.session.Accept()
	if err != nil {
		return types.Identity{}, err
	}
	defer stream.Close()

	f, err := messaging.ReadFrame(stream, c.cfg.MaxFrameSize)
	if err != nil {
		return types.Identity{}, err
	}
	req, ok := f.(*messaging.InitRequest)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: %s", messaging.ErrUnexpectedFrame, f.Type())
	}

	local := c.local.Identity()
	res := &messaging.InitResponse{
		Version:     messaging.ProtocolVersion,
		HostPort:    local.HostPort,
		ProcessName: local.ProcessName,
	}
	if req.Version != messaging.ProtocolVersion {
		res.Error = fmt.Sprintf("version mismatch: expected %d, got %d", messaging.ProtocolVersion, req.Version)
		_ = messaging.WriteFrame(stream, res)
		return types.Identity{}, fmt.Errorf("%w: local %d, remote %d",
			ErrVersionMismatch, messaging.ProtocolVersion, req.Version)
	}
	if err := messaging.WriteFrame(stream, res); err != nil {
		return types.Identity{}, err
	}

	remote := req.Identity()
	if types.IsEphemeral(remote.HostPort) || remote.HostPort == "" {
		// 未监听的客户端无法回拨，以 socket 地址代替
		remote.HostPort = c.RemoteAddr()
	}
	return remote, nil
}

// markIdentified 迁移到 identified 状态，连接已关闭时返回 false
func (c *Connection) markIdentified(remote types.Identity) bool {
	c.mu.Lock()
	if !c.state.CompareAndSwap(int32(types.ConnUnidentified), int32(types.ConnIdentified)) {
		c.mu.Unlock()
		return false
	}
	c.remote = remote
	c.identifiedAt = c.clock.Now()
	if c.identifyTimer != nil {
		c.identifyTimer.Stop()
	}
	c.mu.Unlock()

	close(c.identifiedCh)
	c.cfg.Metrics.ObserveIdentify(c.clock.Since(c.createdAt))
	logger.Debug("连接已识别", "id", c.id, "dir", c.dir, "remote", remote.String())
	return true
}
