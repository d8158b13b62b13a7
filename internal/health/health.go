package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service     string `json:"service"`
	Node        string `json:"node"`
	Postgres    string `json:"postgres"`
	Redis       string `json:"redis"`
	NATS        string `json:"nats"`
	Connections int    `json:"connections"`
}

// Ready 所有依赖均可用
func (s *Status) Ready() bool {
	return s.Postgres == StateConnected && s.Redis == StateConnected && s.NATS == StateConnected
}

// Pinger 数据库连通性检查，*pgxpool.Pool 满足该接口
type Pinger interface {
	Ping(ctx context.Context) error
}

// NATSConn NATS 连接状态，*nats.Conn 满足该接口
type NATSConn interface {
	IsConnected() bool
}

// ConnectionCounter 连接计数器接口
type ConnectionCounter interface {
	Count() int
}

// Checker 健康检查器
type Checker struct {
	nodeID      string
	db          Pinger
	redisClient *redis.Client
	nc          NATSConn
	connCounter ConnectionCounter
	timeout     time.Duration
}

// NewChecker 创建健康检查器，未配置的依赖传 nil
func NewChecker(nodeID string, db Pinger, redisClient *redis.Client, nc NATSConn, connCounter ConnectionCounter) *Checker {
	return &Checker{
		nodeID:      nodeID,
		db:          db,
		redisClient: redisClient,
		nc:          nc,
		connCounter: connCounter,
		timeout:     2 * time.Second,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service: "realtime",
		Node:    h.nodeID,
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	// 检查 PostgreSQL
	switch {
	case h.db == nil:
		status.Postgres = StateNotConfigured
	case h.db.Ping(ctx) == nil:
		status.Postgres = StateConnected
	default:
		status.Postgres = StateDisconnected
	}

	// 检查 Redis
	switch {
	case h.redisClient == nil:
		status.Redis = StateNotConfigured
	case h.redisClient.Ping(ctx).Err() == nil:
		status.Redis = StateConnected
	default:
		status.Redis = StateDisconnected
	}

	// 检查 NATS
	switch {
	case h.nc == nil:
		status.NATS = StateNotConfigured
	case h.nc.IsConnected():
		status.NATS = StateConnected
	default:
		status.NATS = StateDisconnected
	}

	if h.connCounter != nil {
		status.Connections = h.connCounter.Count()
	}

	return status
}

// ServeHTTP 存活检查，进程可响应即返回 200
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, h.Check(r.Context()))
}

// ServeReady 就绪检查，任一依赖不可用返回 503
func (h *Checker) ServeReady(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())
	code := http.StatusOK
	if !status.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func writeStatus(w http.ResponseWriter, code int, status *Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
