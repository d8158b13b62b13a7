package handler

import (
	"context"

	"golang.org/x/sync/errgroup"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
	"sudooom.im.realtime/internal/service"
)

// ChatReadResponse chat.read 响应体
type ChatReadResponse struct {
	Message                    string `json:"message"`
	WithUserID                 string `json:"withUserId"`
	MarkedCount                int64  `json:"markedCount"`
	DeliveredCount             int    `json:"deliveredCount"`
	ConversationDeliveredCount int    `json:"conversationDeliveredCount"`
	UnreadTotal                int    `json:"unreadTotal"`
	DeliveredToReaderCount     int    `json:"deliveredToReaderCount"`
	DeliveredToWithUserCount   int    `json:"deliveredToWithUserCount"`
}

// ChatRead 处理 chat.read，将对端发来的消息标记为已读并通知双方
func (h *Handler) ChatRead(ctx context.Context, req Request) Response {
	h.touch(ctx, req.ConnectionID)

	withUserID := parseBody(req.Body).str("withUserId")
	if withUserID == "" {
		return fail(apperrors.InvalidPayload("withUserId is required."))
	}

	readerConn, err := h.resolve(ctx, req.ConnectionID)
	if err != nil {
		return fail(err)
	}
	if readerConn == nil {
		h.logger.Warn("Chat read rejected because connection metadata was not found", "connectionId", req.ConnectionID)
		return fail(apperrors.ErrConnectionNotRegistered)
	}
	readerUserID := readerConn.UserID

	markedCount, err := h.chats.MarkConversationRead(ctx, readerUserID, withUserID)
	if err != nil {
		return fail(err)
	}

	resp := ChatReadResponse{
		Message:     "Chat conversation marked as read",
		WithUserID:  withUserID,
		MarkedCount: markedCount,
	}

	var (
		readerConns, withUserConns  []model.Connection
		readerUnread, withUserUnread service.UnreadSnapshot
		latest                       *model.ChatMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		readerConns, err = h.connections.ReadConnectionsByUserID(gctx, readerUserID)
		return err
	})
	g.Go(func() (err error) {
		withUserConns, err = h.connections.ReadConnectionsByUserID(gctx, withUserID)
		return err
	})
	g.Go(func() (err error) {
		readerUnread, withUserUnread, err = h.unread.ComputePairSnapshots(gctx, readerUserID, withUserID)
		return err
	})
	g.Go(func() (err error) {
		latest, err = h.chats.ReadLatestInConversation(gctx, readerUserID, withUserID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("Chat conversation marked read but fan-out lookup failed",
			"connectionId", req.ConnectionID,
			"readerUserId", readerUserID,
			"withUserId", withUserID,
			"error", err)
		return ok(resp)
	}
	resp.UnreadTotal = readerUnread.Total

	readAt := model.FormatTime(h.now())
	lastMessage := model.NewChatMessageEventPayload(latest)
	updatedAt := readAt
	if lastMessage != nil {
		updatedAt = lastMessage.CreatedAt
	}

	readEvent := gateway.NewEnvelope(model.EventTypeChatRead, model.ChatReadEventPayload{
		ReaderUserID: readerUserID,
		WithUserID:   withUserID,
		MarkedCount:  markedCount,
		ReadAt:       readAt,
	})
	build := func(conn model.Connection) []gateway.Envelope {
		counterpart, snapshot := readerUserID, withUserUnread
		if conn.UserID == readerUserID {
			counterpart, snapshot = withUserID, readerUnread
		}
		return []gateway.Envelope{
			readEvent,
			gateway.NewEnvelope(model.EventTypeChatConversationUpdated, model.ConversationUpdatedPayload{
				ConversationWithUserID: counterpart,
				UnreadCount:            snapshot.Conversation,
				UnreadTotal:            snapshot.Total,
				Reason:                 model.RouteChatRead,
				UpdatedAt:              updatedAt,
				LastMessage:            lastMessage,
			}),
		}
	}
	report := h.delivery.Broadcast(ctx, gateway.UniqueConnections(readerConns, withUserConns), build,
		"readerUserId", readerUserID,
		"withUserId", withUserID)

	resp.DeliveredCount = report.DeliveredAtLeast(1)
	resp.ConversationDeliveredCount = report.DeliveredAtLeast(2)
	resp.DeliveredToReaderCount = report.DeliveredToUser(readerUserID, 1)
	resp.DeliveredToWithUserCount = report.DeliveredToUser(withUserID, 1)

	h.logger.Info("Processed websocket chat read event",
		"connectionId", req.ConnectionID,
		"readerUserId", readerUserID,
		"withUserId", withUserID,
		"markedCount", markedCount,
		"readerConnections", len(readerConns),
		"withUserConnections", len(withUserConns),
		"readEventDeliveredCount", resp.DeliveredCount,
		"conversationDeliveredCount", resp.ConversationDeliveredCount,
		"failedCount", report.Failed,
		"staleCount", report.Stale)

	return ok(resp)
}
