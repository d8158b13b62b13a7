package handler

import (
	"context"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
)

// DefaultRouteResponse 未识别动作的响应体
type DefaultRouteResponse struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// SubscribeResponse notification.subscribe 响应体
type SubscribeResponse struct {
	Message string   `json:"message"`
	Topics  []string `json:"topics"`
}

// Dispatch 按 action 字段分发入站帧，未识别的动作走默认路由
func (h *Handler) Dispatch(ctx context.Context, req Request) Response {
	action := ActionOf(req.Body)

	switch action {
	case model.RouteChatSend:
		return h.ChatSend(ctx, req)
	case model.RouteChatRead:
		return h.ChatRead(ctx, req)
	case model.RoutePing:
		return h.Ping(ctx, req)
	case model.RouteNotificationSubscribe:
		return h.NotificationSubscribe(ctx, req)
	default:
		return h.Default(ctx, req, action)
	}
}

// Default 默认路由只刷新连接
func (h *Handler) Default(ctx context.Context, req Request, action string) Response {
	h.touch(ctx, req.ConnectionID)
	return ok(DefaultRouteResponse{
		Message: "Action received on default route. No-op in phase 1.",
		Action:  action,
	})
}

// Ping 回推 pong 事件
func (h *Handler) Ping(ctx context.Context, req Request) Response {
	h.touch(ctx, req.ConnectionID)

	conn := model.Connection{
		ConnectionID: req.ConnectionID,
		DomainName:   req.DomainName,
		Stage:        req.Stage,
	}
	pong := gateway.NewEnvelope(model.EventTypePong, messageBody{Message: "pong"})
	if err := h.delivery.PostToConnection(ctx, conn, pong); err != nil {
		h.logger.Warn("Failed to publish pong event", "connectionId", req.ConnectionID, "error", err)
	}

	return ok(messageBody{Message: "pong"})
}

// NotificationSubscribe 通知已按用户路由，这里只确认连接已注册
func (h *Handler) NotificationSubscribe(ctx context.Context, req Request) Response {
	h.touch(ctx, req.ConnectionID)

	conn, err := h.resolve(ctx, req.ConnectionID)
	if err != nil {
		return fail(err)
	}
	if conn == nil {
		h.logger.Warn("Notification subscribe rejected because connection metadata was not found", "connectionId", req.ConnectionID)
		return fail(apperrors.ErrConnectionNotRegistered)
	}

	topics := parseBody(req.Body).strs("topics")
	h.logger.Info("Subscribed websocket connection to notifications",
		"connectionId", req.ConnectionID,
		"userId", conn.UserID,
		"topics", topics)

	return ok(SubscribeResponse{Message: "Subscribed to notifications", Topics: topics})
}

// ActionOf 读取入站帧的 action 字段
func ActionOf(body []byte) string {
	return parseBody(body).str("action")
}
