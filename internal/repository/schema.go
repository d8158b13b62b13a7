package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		chat_message_id   TEXT PRIMARY KEY,
		sender_user_id    TEXT NOT NULL,
		recipient_user_id TEXT NOT NULL,
		conversation_key  TEXT NOT NULL,
		message           TEXT NOT NULL,
		is_read           BOOLEAN NOT NULL DEFAULT FALSE,
		read_at           TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_created
		ON chat_messages (conversation_key, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_sender_created
		ON chat_messages (sender_user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_recipient_created
		ON chat_messages (recipient_user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_unread
		ON chat_messages (recipient_user_id, sender_user_id) WHERE is_read IS NOT TRUE`,

	`CREATE TABLE IF NOT EXISTS notifications (
		notification_id   TEXT PRIMARY KEY,
		recipient_user_id TEXT NOT NULL,
		type              TEXT NOT NULL,
		title             TEXT NOT NULL,
		message           TEXT NOT NULL,
		actor_user_id     TEXT,
		target_type       TEXT,
		target_id         TEXT,
		is_read           BOOLEAN NOT NULL DEFAULT FALSE,
		read_at           TIMESTAMPTZ,
		action_url        TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_read
		ON notifications (recipient_user_id, is_read)`,
}

// Migrate 创建表和索引，可重复执行
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, query := range migrations {
		if _, err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
