package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "sudooom.im.realtime/internal/errors"
)

// NotificationRepository 通知仓库，实时层只需要未读数
type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewNotificationRepository 创建通知仓库
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db, logger: slog.Default()}
}

// CountUnread 用户未读通知数
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_user_id = $1 AND is_read IS NOT TRUE`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.logger.Error("Error counting unread notifications", "userId", userID, "error", err)
		return 0, apperrors.Known(err)
	}
	return int(count), nil
}
