package model

import (
	"sort"
	"strings"
	"time"
)

// ChatMessage 私聊消息
type ChatMessage struct {
	ChatMessageID   string     `json:"chatMessageId"`
	SenderUserID    string     `json:"senderUserId"`
	RecipientUserID string     `json:"recipientUserId"`
	ConversationKey string     `json:"conversationKey"`
	Message         string     `json:"message"`
	IsRead          bool       `json:"isRead"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ChatMessagePage 会话分页结果，按 createdAt 倒序
type ChatMessagePage struct {
	Messages   []ChatMessage `json:"messages"`
	NextCursor *string       `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
	Count      int           `json:"count"`
}

// ConversationSummary 以查看者视角聚合的会话摘要
type ConversationSummary struct {
	ConversationWithUserID string      `json:"conversationWithUserId"`
	LastMessage            ChatMessage `json:"lastMessage"`
	UnreadCount            int         `json:"unreadCount"`
	UpdatedAt              time.Time   `json:"updatedAt"`
}

// ReadConversationOptions 会话分页参数
type ReadConversationOptions struct {
	Limit  int
	Cursor string
}

// BuildConversationKey 计算两人会话的规范键
// 两端 ID 先去除首尾空白再按字典序排序，保证 (a,b) 与 (b,a) 落在同一分区
func BuildConversationKey(userIDA, userIDB string) string {
	ids := []string{strings.TrimSpace(userIDA), strings.TrimSpace(userIDB)}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}
