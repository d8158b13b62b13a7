package gateway

import (
	"context"
	"log/slog"
	"sync"

	"sudooom.im.realtime/internal/model"
)

// Sink 本节点持有的一条物理连接
// 连接已关闭时 Send 应返回 ErrConnectionGone
type Sink interface {
	Send(ctx context.Context, data []byte) error
}

// Hub 本节点连接表 connectionId -> Sink
type Hub struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	logger *slog.Logger
}

// NewHub 创建本地连接表
func NewHub() *Hub {
	return &Hub{
		sinks:  make(map[string]Sink),
		logger: slog.Default(),
	}
}

// Register 登记连接
func (h *Hub) Register(connectionID string, sink Sink) {
	h.mu.Lock()
	h.sinks[connectionID] = sink
	h.mu.Unlock()

	h.logger.Debug("Local connection registered", "connectionId", connectionID)
}

// Unregister 移除连接，只有登记的仍是同一个 sink 时才移除
func (h *Hub) Unregister(connectionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.sinks[connectionID]; ok && current == sink {
		delete(h.sinks, connectionID)
	}
}

// Get 获取连接
func (h *Hub) Get(connectionID string) (Sink, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sink, ok := h.sinks[connectionID]
	return sink, ok
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Push 实现 Pusher，本节点不存在该连接即视为 Gone
func (h *Hub) Push(ctx context.Context, conn model.Connection, data []byte) error {
	return h.Deliver(ctx, conn.ConnectionID, data)
}

// Deliver 按连接ID投递，供跨节点推送的响应方使用
func (h *Hub) Deliver(ctx context.Context, connectionID string, data []byte) error {
	sink, ok := h.Get(connectionID)
	if !ok {
		return ErrConnectionGone
	}
	return sink.Send(ctx, data)
}
