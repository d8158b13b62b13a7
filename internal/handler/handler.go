package handler

import (
	"context"
	"log/slog"
	"time"

	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
	"sudooom.im.realtime/internal/service"
)

// ChatStore 聊天消息存储
type ChatStore interface {
	service.UnreadCounter
	Create(ctx context.Context, senderUserID, recipientUserID, text string) (*model.ChatMessage, error)
	MarkConversationRead(ctx context.Context, viewerUserID, withUserID string) (int64, error)
	ReadLatestInConversation(ctx context.Context, viewerUserID, withUserID string) (*model.ChatMessage, error)
}

// ConnectionStore 连接注册表
type ConnectionStore interface {
	UpsertConnection(ctx context.Context, input model.UpsertConnectionInput) (*model.Connection, error)
	TouchConnection(ctx context.Context, connectionID string, ttl time.Duration) error
	ReadConnectionByConnectionID(ctx context.Context, connectionID string) (*model.Connection, error)
	ReadConnectionsByUserID(ctx context.Context, userID string) ([]model.Connection, error)
	RemoveConnection(ctx context.Context, connectionID string) (bool, error)
}

// Delivery 投递网关
type Delivery interface {
	PostToConnection(ctx context.Context, conn model.Connection, env gateway.Envelope) error
	Broadcast(ctx context.Context, targets []model.Connection, build gateway.BuildFunc, logAttrs ...any) *gateway.Report
}

// Options 路由处理参数
type Options struct {
	ConnectionTTL    time.Duration
	MaxMessageLength int
}

// Handler 实时动作处理器
type Handler struct {
	chats       ChatStore
	connections ConnectionStore
	delivery    Delivery
	unread      *service.UnreadService
	opts        Options
	now         func() time.Time
	logger      *slog.Logger
}

// NewHandler 创建实时动作处理器
func NewHandler(chats ChatStore, connections ConnectionStore, delivery Delivery, opts Options) *Handler {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 2000
	}
	return &Handler{
		chats:       chats,
		connections: connections,
		delivery:    delivery,
		unread:      service.NewUnreadService(chats),
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default(),
	}
}

// touch 刷新发起连接的活跃时间，失败不影响本次处理
func (h *Handler) touch(ctx context.Context, connectionID string) {
	if err := h.connections.TouchConnection(ctx, connectionID, h.opts.ConnectionTTL); err != nil {
		h.logger.Warn("Failed to touch websocket connection", "connectionId", connectionID, "error", err)
	}
}

// resolve 通过连接ID找到发起用户，返回 nil 表示连接未注册
func (h *Handler) resolve(ctx context.Context, connectionID string) (*model.Connection, error) {
	return h.connections.ReadConnectionByConnectionID(ctx, connectionID)
}
