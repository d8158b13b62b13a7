package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"sudooom.im.realtime/internal/config"
	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/handler"
	"sudooom.im.realtime/internal/health"
)

// Server HTTP 与 WebSocket 入口
type Server struct {
	cfg        config.ServerConfig
	nodeID     string
	handler    *handler.Handler
	hub        *gateway.Hub
	tokens     TokenValidator
	chats      ChatReader
	checker    *health.Checker
	upgrader   websocket.Upgrader
	httpServer *http.Server
	logger     *slog.Logger

	mu     sync.Mutex
	active map[*wsConn]struct{}
	wg     sync.WaitGroup
}

// New 创建服务器
func New(cfg config.ServerConfig, nodeID string, h *handler.Handler, hub *gateway.Hub, tokens TokenValidator, chats ChatReader, checker *health.Checker) *Server {
	return &Server{
		cfg:     cfg,
		nodeID:  nodeID,
		handler: h,
		hub:     hub,
		tokens:  tokens,
		chats:   chats,
		checker: checker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: slog.Default(),
		active: make(map[*wsConn]struct{}),
	}
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.checker.ServeHTTP)
	r.Get("/ready", s.checker.ServeReady)

	r.Get("/ws/{stage}", s.handleWebSocket)

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(JWTAuth(s.tokens))
		r.Get("/conversations", s.handleConversations)
		r.Get("/messages", s.handleMessages)
		r.Get("/unread", s.handleUnread)
	})

	return r
}

// Start 启动监听，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("Realtime server starting", "addr", s.cfg.Addr, "nodeId", s.nodeID)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收新请求，关闭全部 WebSocket 并等待清理完成
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// 已升级的连接不受 http.Server 管理
	s.mu.Lock()
	for c := range s.active {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for websocket connections to close")
	}
	return err
}

func (s *Server) track(c *wsConn) {
	s.mu.Lock()
	s.active[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.active, c)
	s.mu.Unlock()
}

// requestLogger 请求日志中间件
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"requestId", middleware.GetReqID(r.Context()))
		})
	}
}
