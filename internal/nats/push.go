package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
)

// RemotePusher 通过 NATS request/reply 推送到持有连接的节点
type RemotePusher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewRemotePusher 创建跨节点推送器
func NewRemotePusher(nc *nats.Conn) *RemotePusher {
	return &RemotePusher{nc: nc, logger: slog.Default()}
}

// Push 实现 gateway.Pusher
// 目标节点已不存在（没有订阅者）视为 Gone，超时视为临时失败
func (p *RemotePusher) Push(ctx context.Context, conn model.Connection, data []byte) error {
	msg := nats.NewMsg(BuildPushSubject(conn.DomainName, conn.Stage))
	msg.Header.Set(HeaderConnectionID, conn.ConnectionID)
	msg.Data = data

	reply, err := p.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%w: node %s has no responders", gateway.ErrConnectionGone, conn.DomainName)
		}
		return err
	}
	return classifyReply(reply.Data)
}

func classifyReply(data []byte) error {
	switch string(data) {
	case ReplyOK:
		return nil
	case ReplyGone:
		return gateway.ErrConnectionGone
	default:
		return fmt.Errorf("remote push failed: %s", data)
	}
}

// Deliverer 本节点投递接口
type Deliverer interface {
	Deliver(ctx context.Context, connectionID string, data []byte) error
}

// PushResponder 应答其他节点发往本节点连接的推送请求
type PushResponder struct {
	nc           *nats.Conn
	nodeID       string
	deliverer    Deliverer
	timeout      time.Duration
	subscription *nats.Subscription
	logger       *slog.Logger
}

// NewPushResponder 创建推送应答器
func NewPushResponder(nc *nats.Conn, nodeID string, deliverer Deliverer, timeout time.Duration) *PushResponder {
	return &PushResponder{
		nc:        nc,
		nodeID:    nodeID,
		deliverer: deliverer,
		timeout:   timeout,
		logger:    slog.Default(),
	}
}

// Start 订阅本节点推送 Subject
func (r *PushResponder) Start() error {
	subject := BuildNodePushWildcard(r.nodeID)
	sub, err := r.nc.Subscribe(subject, r.handle)
	if err != nil {
		return err
	}
	r.subscription = sub
	r.logger.Info("Push responder started", "subject", subject)
	return nil
}

func (r *PushResponder) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	reply := r.deliver(ctx, msg.Header.Get(HeaderConnectionID), msg.Data)
	if err := msg.Respond([]byte(reply)); err != nil {
		r.logger.Warn("Failed to respond to push request", "error", err)
	}
}

// deliver 投递并返回应答内容
func (r *PushResponder) deliver(ctx context.Context, connectionID string, data []byte) string {
	if connectionID == "" {
		return ReplyGone
	}
	err := r.deliverer.Deliver(ctx, connectionID, data)
	switch {
	case err == nil:
		return ReplyOK
	case gateway.IsGoneConnectionError(err):
		return ReplyGone
	default:
		r.logger.Warn("Failed to deliver forwarded push", "connectionId", connectionID, "error", err)
		return "error: " + err.Error()
	}
}

// Stop 取消订阅
func (r *PushResponder) Stop() {
	if r.subscription == nil {
		return
	}
	if err := r.subscription.Unsubscribe(); err != nil {
		r.logger.Error("Failed to unsubscribe push responder", "error", err)
	}
}
