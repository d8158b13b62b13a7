package publisher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
)

// ConnectionReader 按用户读取在线连接
type ConnectionReader interface {
	ReadConnectionsByUserID(ctx context.Context, userID string) ([]model.Connection, error)
}

// NotificationCounter 统计用户未读通知
type NotificationCounter interface {
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Broadcaster 多连接扇出
type Broadcaster interface {
	Broadcast(ctx context.Context, targets []model.Connection, build gateway.BuildFunc, logAttrs ...any) *gateway.Report
}

// Publisher 实时事件发布器
// 查询失败返回错误，投递失败只记录日志
type Publisher struct {
	connections   ConnectionReader
	notifications NotificationCounter
	broadcaster   Broadcaster
	logger        *slog.Logger
}

// NewPublisher 创建事件发布器
func NewPublisher(connections ConnectionReader, notifications NotificationCounter, broadcaster Broadcaster) *Publisher {
	return &Publisher{
		connections:   connections,
		notifications: notifications,
		broadcaster:   broadcaster,
		logger:        slog.Default(),
	}
}

// PublishNotificationCreated 推送新通知及当前未读数
func (p *Publisher) PublishNotificationCreated(ctx context.Context, notification model.Notification) error {
	userID := notification.RecipientUserID

	unreadCount, err := p.notifications.CountUnread(ctx, userID)
	if err != nil {
		p.logger.Error("Failed to publish notification event",
			"recipientUserId", userID,
			"notificationId", notification.NotificationID,
			"error", err)
		return err
	}

	env := gateway.NewEnvelope(model.EventTypeNotificationNew, model.NotificationEventPayload{
		Notification: notification,
		UnreadCount:  unreadCount,
	})
	return p.publishToUsers(ctx, []string{userID}, env, "notificationId", notification.NotificationID)
}

// PublishNotificationsCreated 并发推送多条通知
func (p *Publisher) PublishNotificationsCreated(ctx context.Context, notifications []model.Notification) error {
	var g errgroup.Group
	for _, n := range notifications {
		n := n
		g.Go(func() error {
			return p.PublishNotificationCreated(ctx, n)
		})
	}
	return g.Wait()
}

// PublishFollowRequestCreated 推送关注请求创建
func (p *Publisher) PublishFollowRequestCreated(ctx context.Context, recipientUserID string, follow model.FollowRequestSnapshot) error {
	env := gateway.NewEnvelope(model.EventTypeFollowRequestCreated, model.FollowRequestEventPayload{Follow: follow})
	return p.publishToUsers(ctx, []string{recipientUserID}, env,
		"followId", follow.FollowID,
		"approvalStatus", follow.ApprovalStatus)
}

// PublishFollowRequestUpdated 推送关注请求状态变化
func (p *Publisher) PublishFollowRequestUpdated(ctx context.Context, recipientUserID string, follow model.FollowRequestSnapshot) error {
	env := gateway.NewEnvelope(model.EventTypeFollowRequestUpdated, model.FollowRequestEventPayload{Follow: follow})
	return p.publishToUsers(ctx, []string{recipientUserID}, env,
		"followId", follow.FollowID,
		"approvalStatus", follow.ApprovalStatus)
}

// PublishEventRsvpUpdated 向多个用户推送同一条报名变化，重复的用户只推送一次
func (p *Publisher) PublishEventRsvpUpdated(ctx context.Context, recipientUserIDs []string, payload model.EventRsvpUpdatedPayload) error {
	userIDs := NormalizeUserIDs(recipientUserIDs)
	if len(userIDs) == 0 {
		return nil
	}

	env := gateway.NewEnvelope(model.EventTypeEventRsvpUpdated, payload)
	return p.publishToUsers(ctx, userIDs, env,
		"eventId", payload.Participant.EventID,
		"participantId", payload.Participant.ParticipantID,
		"status", payload.Participant.Status)
}

// publishToUsers 读取所有目标用户的连接，合并去重后推送同一个事件
func (p *Publisher) publishToUsers(ctx context.Context, userIDs []string, env gateway.Envelope, logAttrs ...any) error {
	// 1. 并发读取每个用户的连接
	groups := make([][]model.Connection, len(userIDs))
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			conns, err := p.connections.ReadConnectionsByUserID(ctx, userID)
			if err != nil {
				p.logger.Error("Failed to read websocket connections",
					append([]any{"userId", userID, "eventType", env.Type, "error", err}, logAttrs...)...)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			if len(conns) == 0 {
				p.logger.Debug("No active websocket connections for recipient", "userId", userID, "eventType", env.Type)
			}
			groups[i] = conns
			return nil
		})
	}
	_ = g.Wait()

	// 2. 合并去重后扇出，查询失败的用户跳过
	targets := gateway.UniqueConnections(groups...)
	if len(targets) > 0 {
		p.broadcaster.Broadcast(ctx, targets, func(model.Connection) []gateway.Envelope {
			return []gateway.Envelope{env}
		}, append([]any{"eventType", env.Type}, logAttrs...)...)
	}

	return errors.Join(errs...)
}

// NormalizeUserIDs 去除空白、丢弃空值并按首次出现顺序去重
func NormalizeUserIDs(userIDs []string) []string {
	seen := make(map[string]struct{}, len(userIDs))
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
