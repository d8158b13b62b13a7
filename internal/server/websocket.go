package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/handler"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// ResponseFrame 路由处理结果回写给发起连接
type ResponseFrame struct {
	Type       string          `json:"type"`
	Action     string          `json:"action,omitempty"`
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// wsConn 本节点持有的 WebSocket 连接，实现 gateway.Sink
// 所有写操作都经过 writeLoop，保证同一连接单写者
type wsConn struct {
	id        string
	conn      *websocket.Conn
	logger    *slog.Logger
	writeChan chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(id string, conn *websocket.Conn, logger *slog.Logger) *wsConn {
	c := &wsConn{
		id:        id,
		conn:      conn,
		logger:    logger,
		writeChan: make(chan []byte, sendBuffer),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Send 入队一帧，连接关闭后返回 ErrConnectionGone
func (c *wsConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.closeChan:
		return gateway.ErrConnectionGone
	default:
	}

	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return gateway.ErrConnectionGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 通知写循环发送关闭帧并断开
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
	})
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case data := <-c.writeChan:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Failed to write websocket frame", "connectionId", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// handleWebSocket GET /ws/{stage}
// 令牌校验失败在升级前返回 401
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")

	// 1. 认证
	token, subprotocol := connectToken(r)
	if token == "" {
		s.logger.Warn("Rejected websocket connection without token", "remoteAddr", r.RemoteAddr)
		writeError(w, apperrors.ErrTokenInvalid)
		return
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		s.logger.Warn("Rejected websocket connection with invalid token", "remoteAddr", r.RemoteAddr, "error", err)
		writeError(w, err)
		return
	}

	// 2. 升级，子协议传令牌时需要回显
	var responseHeader http.Header
	if subprotocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{subprotocol}}
	}
	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	connectionID := uuid.NewString()
	c := newWSConn(connectionID, conn, s.logger)
	ctx := r.Context()

	// 3. 先登记本地连接再写注册表，注册完成即可接收推送
	s.hub.Register(connectionID, c)
	s.track(c)
	defer func() {
		c.Close()
		<-c.done
		s.untrack(c)
		s.hub.Unregister(connectionID, c)
		s.handler.Disconnect(context.WithoutCancel(ctx), connectionID)
	}()

	if _, err := s.handler.Connect(ctx, handler.ConnectInput{
		ConnectionID: connectionID,
		UserID:       claims.UserID(),
		DomainName:   s.nodeID,
		Stage:        stage,
	}); err != nil {
		s.logger.Error("Failed to register websocket connection", "connectionId", connectionID, "error", err)
		return
	}

	// 4. 读循环，每个文本帧交给路由分发
	s.readLoop(ctx, c, stage)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, stage string) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Debug("WebSocket closed unexpectedly", "connectionId", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			continue
		}

		resp := s.handler.Dispatch(ctx, handler.Request{
			ConnectionID: c.id,
			DomainName:   s.nodeID,
			Stage:        stage,
			Body:         data,
		})

		frame, err := json.Marshal(ResponseFrame{
			Type:       "response",
			Action:     handler.ActionOf(data),
			StatusCode: resp.StatusCode,
			Body:       resp.JSON(),
		})
		if err != nil {
			s.logger.Error("Failed to marshal response frame", "connectionId", c.id, "error", err)
			continue
		}
		if err := c.Send(ctx, frame); err != nil {
			return
		}
	}
}
