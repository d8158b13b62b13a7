package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sudooom.im.realtime/internal/model"
)

// ConnectionRemover 剔除失效连接
type ConnectionRemover interface {
	RemoveConnection(ctx context.Context, connectionID string) (bool, error)
}

// Gateway 投递网关，负责单连接推送和多连接扇出
type Gateway struct {
	pusher  Pusher
	remover ConnectionRemover
	timeout time.Duration
	logger  *slog.Logger
}

// NewGateway 创建投递网关，timeout 为单次推送的上限
func NewGateway(pusher Pusher, remover ConnectionRemover, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Gateway{
		pusher:  pusher,
		remover: remover,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// PostToConnection 向单个连接推送一个事件
func (g *Gateway) PostToConnection(ctx context.Context, conn model.Connection, env Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.pusher.Push(ctx, conn, data)
}

// BuildFunc 为每个连接生成需要依次推送的事件
type BuildFunc func(conn model.Connection) []Envelope

// Delivery 单个连接的投递结果
type Delivery struct {
	Connection model.Connection
	// Delivered 成功送达的事件数，遇到失败即停止
	Delivered int
	Gone      bool
	Err       error
}

// Report 一次扇出的汇总
type Report struct {
	Deliveries []Delivery
	Stale      int
	Failed     int
}

// DeliveredAtLeast 至少送达 n 个事件的连接数
func (r *Report) DeliveredAtLeast(n int) int {
	count := 0
	for _, d := range r.Deliveries {
		if d.Delivered >= n {
			count++
		}
	}
	return count
}

// DeliveredToUser 属于 userID 且至少送达 n 个事件的连接数
func (r *Report) DeliveredToUser(userID string, n int) int {
	count := 0
	for _, d := range r.Deliveries {
		if d.Connection.UserID == userID && d.Delivered >= n {
			count++
		}
	}
	return count
}

// Broadcast 并发向每个连接推送 build 生成的事件
// 同一连接内按顺序发送，连接之间互不影响；全部完成后统一剔除 Gone 连接
func (g *Gateway) Broadcast(ctx context.Context, targets []model.Connection, build BuildFunc, logAttrs ...any) *Report {
	report := &Report{Deliveries: make([]Delivery, len(targets))}
	if len(targets) == 0 {
		return report
	}

	// 1. 每个连接一个 goroutine，结果按下标写回
	var wg sync.WaitGroup
	for i, conn := range targets {
		wg.Add(1)
		go func(i int, conn model.Connection) {
			defer wg.Done()
			report.Deliveries[i] = g.deliver(ctx, conn, build(conn))
		}(i, conn)
	}
	wg.Wait()

	// 2. 汇总并剔除失效连接
	for _, d := range report.Deliveries {
		if d.Err == nil {
			continue
		}
		attrs := append([]any{
			"connectionId", d.Connection.ConnectionID,
			"userId", d.Connection.UserID,
		}, logAttrs...)

		if d.Gone {
			report.Stale++
			g.evict(ctx, d.Connection, attrs)
			continue
		}

		report.Failed++
		g.logger.Warn("Failed to deliver websocket event", append(attrs, "error", d.Err)...)
	}

	return report
}

func (g *Gateway) deliver(ctx context.Context, conn model.Connection, envelopes []Envelope) Delivery {
	d := Delivery{Connection: conn}
	for _, env := range envelopes {
		if err := g.PostToConnection(ctx, conn, env); err != nil {
			d.Err = err
			d.Gone = IsGoneConnectionError(err)
			return d
		}
		d.Delivered++
	}
	return d
}

func (g *Gateway) evict(ctx context.Context, conn model.Connection, attrs []any) {
	// 请求已结束也要完成剔除
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	if _, err := g.remover.RemoveConnection(ctx, conn.ConnectionID); err != nil {
		g.logger.Warn("Failed to remove stale websocket connection", append(attrs, "error", err)...)
		return
	}
	g.logger.Info("Removed stale websocket connection after gone response", attrs...)
}
