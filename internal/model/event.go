package model

import "time"

// 实时事件类型
const (
	EventTypeChatMessage             = "chat.message"
	EventTypeChatRead                = "chat.read"
	EventTypeChatConversationUpdated = "chat.conversation.updated"
	EventTypeNotificationNew         = "notification.new"
	EventTypeFollowRequestCreated    = "follow.request.created"
	EventTypeFollowRequestUpdated    = "follow.request.updated"
	EventTypeEventRsvpUpdated        = "event.rsvp.updated"
	EventTypePong                    = "pong"
)

// 客户端动作
const (
	RouteChatSend              = "chat.send"
	RouteChatRead              = "chat.read"
	RoutePing                  = "ping"
	RouteNotificationSubscribe = "notification.subscribe"
)

// Notification 站内通知
type Notification struct {
	NotificationID  string     `json:"notificationId"`
	RecipientUserID string     `json:"recipientUserId"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	ActorUserID     string     `json:"actorUserId,omitempty"`
	TargetType      string     `json:"targetType,omitempty"`
	TargetID        string     `json:"targetId,omitempty"`
	IsRead          bool       `json:"isRead"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
	ActionURL       string     `json:"actionUrl,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// FollowerSnapshot 关注者资料快照
type FollowerSnapshot struct {
	UserID         string  `json:"userId"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	GivenName      string  `json:"given_name"`
	FamilyName     string  `json:"family_name"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
	Bio            *string `json:"bio,omitempty"`
}

// FollowRequestSnapshot 关注请求快照
type FollowRequestSnapshot struct {
	FollowID       string           `json:"followId"`
	FollowerUserID string           `json:"followerUserId"`
	TargetType     string           `json:"targetType"`
	TargetID       string           `json:"targetId"`
	ApprovalStatus string           `json:"approvalStatus"`
	CreatedAt      string           `json:"createdAt"`
	UpdatedAt      string           `json:"updatedAt"`
	Follower       FollowerSnapshot `json:"follower"`
}

// RsvpUserSnapshot 报名用户资料快照
type RsvpUserSnapshot struct {
	UserID         string  `json:"userId"`
	Username       string  `json:"username"`
	GivenName      string  `json:"given_name"`
	FamilyName     string  `json:"family_name"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
}

// EventRsvpSnapshot 活动报名快照
type EventRsvpSnapshot struct {
	ParticipantID    string           `json:"participantId"`
	EventID          string           `json:"eventId"`
	UserID           string           `json:"userId"`
	Status           string           `json:"status"`
	Quantity         *int             `json:"quantity,omitempty"`
	SharedVisibility *string          `json:"sharedVisibility,omitempty"`
	RsvpAt           *string          `json:"rsvpAt,omitempty"`
	CancelledAt      *string          `json:"cancelledAt,omitempty"`
	CheckedInAt      *string          `json:"checkedInAt,omitempty"`
	User             RsvpUserSnapshot `json:"user"`
}

// EventRsvpUpdatedPayload event.rsvp.updated 事件负载
type EventRsvpUpdatedPayload struct {
	Participant    EventRsvpSnapshot `json:"participant"`
	PreviousStatus *string           `json:"previousStatus"`
	RsvpCount      int               `json:"rsvpCount"`
}

// NotificationEventPayload notification.new 事件负载
type NotificationEventPayload struct {
	Notification Notification `json:"notification"`
	UnreadCount  int          `json:"unreadCount"`
}

// FollowRequestEventPayload follow.request.* 事件负载
type FollowRequestEventPayload struct {
	Follow FollowRequestSnapshot `json:"follow"`
}

// ChatMessageEventPayload chat.message 事件负载
type ChatMessageEventPayload struct {
	MessageID       string `json:"messageId"`
	SenderUserID    string `json:"senderUserId"`
	RecipientUserID string `json:"recipientUserId"`
	Message         string `json:"message"`
	IsRead          bool   `json:"isRead"`
	CreatedAt       string `json:"createdAt"`
}

// ChatReadEventPayload chat.read 事件负载
type ChatReadEventPayload struct {
	ReaderUserID string `json:"readerUserId"`
	WithUserID   string `json:"withUserId"`
	MarkedCount  int64  `json:"markedCount"`
	ReadAt       string `json:"readAt"`
}

// ConversationUpdatedPayload chat.conversation.updated 事件负载
// 每条连接按其所属一方填充对端与未读数
type ConversationUpdatedPayload struct {
	ConversationWithUserID string                   `json:"conversationWithUserId"`
	UnreadCount            int                      `json:"unreadCount"`
	UnreadTotal            int                      `json:"unreadTotal"`
	Reason                 string                   `json:"reason"`
	UpdatedAt              string                   `json:"updatedAt"`
	LastMessage            *ChatMessageEventPayload `json:"lastMessage"`
}

// NewChatMessageEventPayload 从消息实体生成事件负载
func NewChatMessageEventPayload(msg *ChatMessage) *ChatMessageEventPayload {
	if msg == nil {
		return nil
	}
	return &ChatMessageEventPayload{
		MessageID:       msg.ChatMessageID,
		SenderUserID:    msg.SenderUserID,
		RecipientUserID: msg.RecipientUserID,
		Message:         msg.Message,
		IsRead:          msg.IsRead,
		CreatedAt:       FormatTime(msg.CreatedAt),
	}
}

// TimeLayout 对外时间格式，毫秒精度 UTC
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime 按 TimeLayout 输出时间
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
