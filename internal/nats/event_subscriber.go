package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"sudooom.im.realtime/internal/model"
)

// DomainEvent 其他服务投递的领域事件
// Type 取实时事件类型，对应的字段携带事件内容
type DomainEvent struct {
	Type             string                         `json:"type"`
	Notification     *model.Notification            `json:"notification,omitempty"`
	RecipientUserID  string                         `json:"recipientUserId,omitempty"`
	Follow           *model.FollowRequestSnapshot   `json:"follow,omitempty"`
	RecipientUserIDs []string                       `json:"recipientUserIds,omitempty"`
	Rsvp             *model.EventRsvpUpdatedPayload `json:"rsvp,omitempty"`
}

// EventHandler 领域事件处理器接口
type EventHandler interface {
	PublishNotificationCreated(ctx context.Context, notification model.Notification) error
	PublishFollowRequestCreated(ctx context.Context, recipientUserID string, follow model.FollowRequestSnapshot) error
	PublishFollowRequestUpdated(ctx context.Context, recipientUserID string, follow model.FollowRequestSnapshot) error
	PublishEventRsvpUpdated(ctx context.Context, recipientUserIDs []string, payload model.EventRsvpUpdatedPayload) error
}

// SubscriberConfig Worker Pool 配置
type SubscriberConfig struct {
	WorkerCount int // Worker 数量
	BufferSize  int // 消息缓冲区大小
}

// EventSubscriber 领域事件订阅器
type EventSubscriber struct {
	nc           *nats.Conn
	handler      EventHandler
	logger       *slog.Logger
	subscription *nats.Subscription
	config       SubscriberConfig
	msgChan      chan *nats.Msg
	wg           sync.WaitGroup
	cancelFunc   context.CancelFunc
}

// NewEventSubscriber 创建领域事件订阅器
func NewEventSubscriber(nc *nats.Conn, handler EventHandler, config SubscriberConfig) *EventSubscriber {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 8
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}

	return &EventSubscriber{
		nc:      nc,
		handler: handler,
		logger:  slog.Default(),
		config:  config,
	}
}

// Start 启动订阅
func (s *EventSubscriber) Start(ctx context.Context) error {
	s.msgChan = make(chan *nats.Msg, s.config.BufferSize)

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(workerCtx)
	}

	// 使用队列组，多个 Realtime 节点只有一个处理同一事件
	sub, err := s.nc.QueueSubscribe(SubjectRealtimeEvents, QueueGroupRealtime, func(msg *nats.Msg) {
		select {
		case s.msgChan <- msg:
		default:
			s.logger.Warn("Event buffer full, dropping event", "bufferSize", s.config.BufferSize)
		}
	})
	if err != nil {
		cancel()
		return err
	}

	s.subscription = sub
	s.logger.Info("NATS event subscriber started",
		"subject", SubjectRealtimeEvents,
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize,
	)
	return nil
}

func (s *EventSubscriber) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.msgChan:
			s.handleEvent(ctx, msg.Data)
		}
	}
}

// handleEvent 解析并分发领域事件
func (s *EventSubscriber) handleEvent(ctx context.Context, data []byte) {
	var event DomainEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Error("Failed to unmarshal realtime event", "error", err)
		return
	}

	var err error
	switch {
	case event.Type == model.EventTypeNotificationNew && event.Notification != nil:
		err = s.handler.PublishNotificationCreated(ctx, *event.Notification)
	case event.Type == model.EventTypeFollowRequestCreated && event.Follow != nil:
		err = s.handler.PublishFollowRequestCreated(ctx, event.RecipientUserID, *event.Follow)
	case event.Type == model.EventTypeFollowRequestUpdated && event.Follow != nil:
		err = s.handler.PublishFollowRequestUpdated(ctx, event.RecipientUserID, *event.Follow)
	case event.Type == model.EventTypeEventRsvpUpdated && event.Rsvp != nil:
		err = s.handler.PublishEventRsvpUpdated(ctx, event.RecipientUserIDs, *event.Rsvp)
	default:
		s.logger.Warn("Ignoring unsupported realtime event", "eventType", event.Type)
		return
	}
	if err != nil {
		s.logger.Warn("Failed to publish realtime event", "eventType", event.Type, "error", err)
	}
}

// Stop 停止订阅，等待处理中的事件完成
func (s *EventSubscriber) Stop() error {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "error", err)
		}
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	s.logger.Info("NATS event subscriber stopped")
	return nil
}

// GetBufferUsage 获取缓冲区使用情况
func (s *EventSubscriber) GetBufferUsage() (current int, capacity int) {
	if s.msgChan == nil {
		return 0, 0
	}
	return len(s.msgChan), cap(s.msgChan)
}
