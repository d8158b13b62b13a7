package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/model"
)

// ChatReader 聊天记录只读接口
type ChatReader interface {
	ReadConversation(ctx context.Context, viewerUserID, withUserID string, opts model.ReadConversationOptions) (*model.ChatMessagePage, error)
	ReadConversations(ctx context.Context, viewerUserID string, limit int) ([]model.ConversationSummary, error)
	CountUnreadTotal(ctx context.Context, viewerUserID string) (int, error)
}

type conversationsResponse struct {
	Conversations []model.ConversationSummary `json:"conversations"`
	Count         int                         `json:"count"`
}

type unreadResponse struct {
	UnreadTotal int `json:"unreadTotal"`
}

// handleConversations GET /api/chat/conversations
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conversations, err := s.chats.ReadConversations(r.Context(), UserIDFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if conversations == nil {
		conversations = []model.ConversationSummary{}
	}

	writeJSON(w, http.StatusOK, conversationsResponse{Conversations: conversations, Count: len(conversations)})
}

// handleMessages GET /api/chat/messages?withUserId=&limit=&cursor=
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	withUserID := strings.TrimSpace(r.URL.Query().Get("withUserId"))
	if withUserID == "" {
		writeError(w, apperrors.InvalidPayload("withUserId is required."))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := s.chats.ReadConversation(r.Context(), UserIDFromContext(r.Context()), withUserID, model.ReadConversationOptions{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// handleUnread GET /api/chat/unread
func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	total, err := s.chats.CountUnreadTotal(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unreadResponse{UnreadTotal: total})
}

// queryLimit 缺省为 0，交给存储层取默认值
func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidPayload("limit must be an integer.")
	}
	return limit, nil
}
