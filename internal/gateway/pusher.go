package gateway

import (
	"context"
	"fmt"

	"sudooom.im.realtime/internal/model"
)

// Pusher 推送原语，向单个物理连接发送一帧数据
type Pusher interface {
	Push(ctx context.Context, conn model.Connection, data []byte) error
}

// PusherFunc 函数适配 Pusher
type PusherFunc func(ctx context.Context, conn model.Connection, data []byte) error

// Push 实现 Pusher
func (f PusherFunc) Push(ctx context.Context, conn model.Connection, data []byte) error {
	return f(ctx, conn, data)
}

// Router 按连接所在节点选择推送路径
// DomainName 等于本节点ID的连接走本地 Hub，其余转发给远端节点
type Router struct {
	nodeID string
	local  Pusher
	remote Pusher
}

// NewRouter 创建推送路由，remote 为 nil 时只支持本节点连接
func NewRouter(nodeID string, local, remote Pusher) *Router {
	return &Router{nodeID: nodeID, local: local, remote: remote}
}

// Push 实现 Pusher
func (r *Router) Push(ctx context.Context, conn model.Connection, data []byte) error {
	if conn.DomainName == r.nodeID {
		return r.local.Push(ctx, conn, data)
	}
	if r.remote == nil {
		return fmt.Errorf("%w: no route to node %q", ErrConnectionGone, conn.DomainName)
	}
	return r.remote.Push(ctx, conn, data)
}
