package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/model"
	"sudooom.im.realtime/internal/snowflake"
)

const chatMessageColumns = `chat_message_id, sender_user_id, recipient_user_id, conversation_key,
	message, is_read, read_at, created_at, updated_at`

// IDGenerator 消息ID生成器
type IDGenerator interface {
	Generate() snowflake.ID
}

// ChatMessageRepository 私聊消息仓库
type ChatMessageRepository struct {
	db     *pgxpool.Pool
	ids    IDGenerator
	now    func() time.Time
	logger *slog.Logger
}

// NewChatMessageRepository 创建私聊消息仓库
func NewChatMessageRepository(db *pgxpool.Pool, ids IDGenerator) *ChatMessageRepository {
	return &ChatMessageRepository{
		db:     db,
		ids:    ids,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		logger: slog.Default(),
	}
}

// Create 创建消息，给自己发送的消息直接标记为已读
func (r *ChatMessageRepository) Create(ctx context.Context, senderUserID, recipientUserID, text string) (*model.ChatMessage, error) {
	now := r.now()
	msg := &model.ChatMessage{
		ChatMessageID:   r.ids.Generate().String(),
		SenderUserID:    senderUserID,
		RecipientUserID: recipientUserID,
		ConversationKey: model.BuildConversationKey(senderUserID, recipientUserID),
		Message:         strings.TrimSpace(text),
		IsRead:          senderUserID == recipientUserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	query := `
		INSERT INTO chat_messages (` + chatMessageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		msg.ChatMessageID,
		msg.SenderUserID,
		msg.RecipientUserID,
		msg.ConversationKey,
		msg.Message,
		msg.IsRead,
		msg.ReadAt,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Error creating chat message",
			"senderUserId", senderUserID,
			"recipientUserId", recipientUserID,
			"error", err)
		return nil, apperrors.Known(err)
	}

	return msg, nil
}

// ReadConversation 按 createdAt 倒序分页读取两人会话
func (r *ChatMessageRepository) ReadConversation(ctx context.Context, viewerUserID, withUserID string, opts model.ReadConversationOptions) (*model.ChatMessagePage, error) {
	limit := ClampLimit(opts.Limit)

	cursor, err := ParseCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}

	// 1. 按会话键过滤，游标为严格小于
	query := `SELECT ` + chatMessageColumns + ` FROM chat_messages
		WHERE conversation_key = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, chat_message_id DESC
		LIMIT $3`

	// 2. 多取一行判断是否还有更早的消息
	rows, err := r.db.Query(ctx, query, model.BuildConversationKey(viewerUserID, withUserID), cursor, limit+1)
	if err != nil {
		r.logger.Error("Error reading chat conversation",
			"currentUserId", viewerUserID,
			"withUserId", withUserID,
			"limit", limit,
			"error", err)
		return nil, apperrors.Known(err)
	}

	messages, err := pgx.CollectRows(rows, scanChatMessage)
	if err != nil {
		r.logger.Error("Error scanning chat conversation",
			"currentUserId", viewerUserID,
			"withUserId", withUserID,
			"error", err)
		return nil, apperrors.Known(err)
	}

	return buildPage(messages, limit), nil
}

// ReadConversations 以 viewer 为视角聚合会话摘要，按最后一条消息时间倒序
func (r *ChatMessageRepository) ReadConversations(ctx context.Context, viewerUserID string, limit int) ([]model.ConversationSummary, error) {
	limit = ClampLimit(limit)

	query := `
		WITH scoped AS (
			SELECT ` + chatMessageColumns + `,
				CASE WHEN sender_user_id = $1 THEN recipient_user_id ELSE sender_user_id END AS counterpart
			FROM chat_messages
			WHERE sender_user_id = $1 OR recipient_user_id = $1
		), ranked AS (
			SELECT scoped.*,
				ROW_NUMBER() OVER (PARTITION BY counterpart ORDER BY created_at DESC, chat_message_id DESC) AS rn,
				COUNT(*) FILTER (WHERE recipient_user_id = $1 AND is_read IS NOT TRUE)
					OVER (PARTITION BY counterpart) AS unread_count
			FROM scoped
		)
		SELECT counterpart, unread_count, ` + chatMessageColumns + `
		FROM ranked
		WHERE rn = 1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, viewerUserID, limit)
	if err != nil {
		r.logger.Error("Error reading chat conversations",
			"currentUserId", viewerUserID,
			"limit", limit,
			"error", err)
		return nil, apperrors.Known(err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ConversationSummary, error) {
		var (
			s      model.ConversationSummary
			unread int64
		)
		err := row.Scan(
			&s.ConversationWithUserID,
			&unread,
			&s.LastMessage.ChatMessageID,
			&s.LastMessage.SenderUserID,
			&s.LastMessage.RecipientUserID,
			&s.LastMessage.ConversationKey,
			&s.LastMessage.Message,
			&s.LastMessage.IsRead,
			&s.LastMessage.ReadAt,
			&s.LastMessage.CreatedAt,
			&s.LastMessage.UpdatedAt,
		)
		s.UnreadCount = int(unread)
		s.UpdatedAt = s.LastMessage.CreatedAt
		return s, err
	})
	if err != nil {
		r.logger.Error("Error scanning chat conversations", "currentUserId", viewerUserID, "error", err)
		return nil, apperrors.Known(err)
	}
	return summaries, nil
}

// CountUnreadForConversation partner 发给 viewer 的未读消息数
func (r *ChatMessageRepository) CountUnreadForConversation(ctx context.Context, viewerUserID, withUserID string) (int, error) {
	query := `SELECT COUNT(*) FROM chat_messages
		WHERE sender_user_id = $1 AND recipient_user_id = $2 AND is_read IS NOT TRUE`

	var count int64
	if err := r.db.QueryRow(ctx, query, withUserID, viewerUserID).Scan(&count); err != nil {
		r.logger.Error("Error counting unread chat messages for conversation",
			"currentUserId", viewerUserID,
			"withUserId", withUserID,
			"error", err)
		return 0, apperrors.Known(err)
	}
	return int(count), nil
}

// CountUnreadTotal viewer 的全部未读消息数
func (r *ChatMessageRepository) CountUnreadTotal(ctx context.Context, viewerUserID string) (int, error) {
	query := `SELECT COUNT(*) FROM chat_messages WHERE recipient_user_id = $1 AND is_read IS NOT TRUE`

	var count int64
	if err := r.db.QueryRow(ctx, query, viewerUserID).Scan(&count); err != nil {
		r.logger.Error("Error counting total unread chat messages", "currentUserId", viewerUserID, "error", err)
		return 0, apperrors.Known(err)
	}
	return int(count), nil
}

// ReadLatestInConversation 会话中最新的一条消息，没有消息时返回 nil
func (r *ChatMessageRepository) ReadLatestInConversation(ctx context.Context, viewerUserID, withUserID string) (*model.ChatMessage, error) {
	query := `SELECT ` + chatMessageColumns + ` FROM chat_messages
		WHERE conversation_key = $1
		ORDER BY created_at DESC, chat_message_id DESC
		LIMIT 1`

	rows, err := r.db.Query(ctx, query, model.BuildConversationKey(viewerUserID, withUserID))
	if err == nil {
		var msg model.ChatMessage
		msg, err = pgx.CollectExactlyOneRow(rows, scanChatMessage)
		if err == nil {
			return &msg, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
	}

	r.logger.Error("Error reading latest chat message in conversation",
		"currentUserId", viewerUserID,
		"withUserId", withUserID,
		"error", err)
	return nil, apperrors.Known(err)
}

// MarkConversationRead 将 partner 发给 viewer 的未读消息全部标记为已读，返回实际修改的行数
func (r *ChatMessageRepository) MarkConversationRead(ctx context.Context, viewerUserID, withUserID string) (int64, error) {
	now := r.now()
	query := `UPDATE chat_messages
		SET is_read = TRUE, read_at = $3, updated_at = $3
		WHERE sender_user_id = $1 AND recipient_user_id = $2 AND is_read IS NOT TRUE`

	tag, err := r.db.Exec(ctx, query, withUserID, viewerUserID, now)
	if err != nil {
		r.logger.Error("Error marking chat conversation as read",
			"currentUserId", viewerUserID,
			"withUserId", withUserID,
			"error", err)
		return 0, apperrors.Known(err)
	}
	return tag.RowsAffected(), nil
}

func scanChatMessage(row pgx.CollectableRow) (model.ChatMessage, error) {
	var msg model.ChatMessage
	err := row.Scan(
		&msg.ChatMessageID,
		&msg.SenderUserID,
		&msg.RecipientUserID,
		&msg.ConversationKey,
		&msg.Message,
		&msg.IsRead,
		&msg.ReadAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return msg, err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.UpdatedAt = msg.UpdatedAt.UTC()
	if msg.ReadAt != nil {
		readAt := msg.ReadAt.UTC()
		msg.ReadAt = &readAt
	}
	return msg, nil
}
