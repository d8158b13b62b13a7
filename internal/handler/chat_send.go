package handler

import (
	"context"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
	"sudooom.im.realtime/internal/service"
)

// ChatSendResponse chat.send 响应体
type ChatSendResponse struct {
	Message                    string `json:"message"`
	MessageID                  string `json:"messageId"`
	CreatedAt                  string `json:"createdAt"`
	IsRead                     bool   `json:"isRead"`
	RecipientUserID            string `json:"recipientUserId"`
	DeliveredCount             int    `json:"deliveredCount"`
	ConversationDeliveredCount int    `json:"conversationDeliveredCount"`
	UnreadTotal                int    `json:"unreadTotal"`
	RecipientOnline            bool   `json:"recipientOnline"`
}

// ChatSend 处理 chat.send
// 消息落库成功即返回 200，投递失败只影响送达计数
func (h *Handler) ChatSend(ctx context.Context, req Request) Response {
	h.touch(ctx, req.ConnectionID)

	// 1. 校验
	body := parseBody(req.Body)
	recipientUserID := body.str("recipientUserId")
	text := body.str("message")
	if recipientUserID == "" || text == "" {
		return fail(apperrors.InvalidPayload("recipientUserId and message are required."))
	}
	if utf8.RuneCountInString(text) > h.opts.MaxMessageLength {
		return fail(apperrors.ErrMessageTooLong.WithMessage(
			fmt.Sprintf("Message exceeds max length of %d characters.", h.opts.MaxMessageLength)))
	}

	// 2. 识别发送者
	senderConn, err := h.resolve(ctx, req.ConnectionID)
	if err != nil {
		return fail(err)
	}
	if senderConn == nil {
		h.logger.Warn("Chat send rejected because connection metadata was not found", "connectionId", req.ConnectionID)
		return fail(apperrors.ErrConnectionNotRegistered)
	}
	senderUserID := senderConn.UserID

	// 3. 落库
	msg, err := h.chats.Create(ctx, senderUserID, recipientUserID, text)
	if err != nil {
		return fail(err)
	}

	resp := ChatSendResponse{
		Message:         "Chat message processed",
		MessageID:       msg.ChatMessageID,
		CreatedAt:       model.FormatTime(msg.CreatedAt),
		IsRead:          msg.IsRead,
		RecipientUserID: recipientUserID,
	}

	// 4. 并发读取双方连接和未读数
	var (
		recipientConns, senderConns []model.Connection
		senderUnread, recipientUnread service.UnreadSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		recipientConns, err = h.connections.ReadConnectionsByUserID(gctx, recipientUserID)
		return err
	})
	g.Go(func() (err error) {
		senderConns, err = h.connections.ReadConnectionsByUserID(gctx, senderUserID)
		return err
	})
	g.Go(func() (err error) {
		senderUnread, recipientUnread, err = h.unread.ComputePairSnapshots(gctx, senderUserID, recipientUserID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("Chat message stored but fan-out lookup failed",
			"connectionId", req.ConnectionID,
			"messageId", msg.ChatMessageID,
			"error", err)
		return ok(resp)
	}
	resp.UnreadTotal = senderUnread.Total
	resp.RecipientOnline = len(recipientConns) > 0

	// 5. 向双方全部连接推送，同一连接只推一次
	messagePayload := model.NewChatMessageEventPayload(msg)
	messageEvent := gateway.NewEnvelope(model.EventTypeChatMessage, messagePayload)
	build := func(conn model.Connection) []gateway.Envelope {
		counterpart, snapshot := senderUserID, recipientUnread
		if conn.UserID == senderUserID {
			counterpart, snapshot = recipientUserID, senderUnread
		}
		return []gateway.Envelope{
			messageEvent,
			gateway.NewEnvelope(model.EventTypeChatConversationUpdated, model.ConversationUpdatedPayload{
				ConversationWithUserID: counterpart,
				UnreadCount:            snapshot.Conversation,
				UnreadTotal:            snapshot.Total,
				Reason:                 model.RouteChatSend,
				UpdatedAt:              messagePayload.CreatedAt,
				LastMessage:            messagePayload,
			}),
		}
	}
	report := h.delivery.Broadcast(ctx, gateway.UniqueConnections(recipientConns, senderConns), build,
		"senderUserId", senderUserID,
		"recipientUserId", recipientUserID)

	resp.DeliveredCount = report.DeliveredAtLeast(1)
	resp.ConversationDeliveredCount = report.DeliveredAtLeast(2)

	h.logger.Info("Processed websocket chat message",
		"connectionId", req.ConnectionID,
		"senderUserId", senderUserID,
		"recipientUserId", recipientUserID,
		"messageId", msg.ChatMessageID,
		"messageLength", utf8.RuneCountInString(text),
		"recipientConnections", len(recipientConns),
		"senderUnreadCount", senderUnread.Conversation,
		"recipientUnreadCount", recipientUnread.Conversation,
		"messageDeliveredCount", resp.DeliveredCount,
		"conversationDeliveredCount", resp.ConversationDeliveredCount,
		"failedCount", report.Failed,
		"staleCount", report.Stale)

	return ok(resp)
}
