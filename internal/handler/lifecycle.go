package handler

import (
	"context"

	"github.com/google/uuid"

	"sudooom.im.realtime/internal/model"
)

// ConnectInput 新连接信息
type ConnectInput struct {
	ConnectionID string
	UserID       string
	DomainName   string
	Stage        string
}

// Connect 登记新连接，未指定连接ID时生成一个
func (h *Handler) Connect(ctx context.Context, input ConnectInput) (*model.Connection, error) {
	if input.ConnectionID == "" {
		input.ConnectionID = uuid.NewString()
	}

	conn, err := h.connections.UpsertConnection(ctx, model.UpsertConnectionInput{
		ConnectionID: input.ConnectionID,
		UserID:       input.UserID,
		DomainName:   input.DomainName,
		Stage:        input.Stage,
		TTL:          h.opts.ConnectionTTL,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("Websocket connection established",
		"connectionId", conn.ConnectionID,
		"userId", conn.UserID,
		"stage", conn.Stage)
	return conn, nil
}

// Disconnect 移除连接，重复调用无副作用
func (h *Handler) Disconnect(ctx context.Context, connectionID string) {
	removed, err := h.connections.RemoveConnection(ctx, connectionID)
	if err != nil {
		h.logger.Warn("Failed to remove websocket connection on disconnect", "connectionId", connectionID, "error", err)
		return
	}
	h.logger.Info("Websocket connection closed", "connectionId", connectionID, "removed", removed)
}
