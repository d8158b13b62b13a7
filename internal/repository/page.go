package repository

import (
	"strings"
	"time"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/model"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ClampLimit 将分页大小限制在 [1, MaxLimit]，0 表示使用默认值
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ParseCursor 解析 ISO-8601 游标，空串表示从最新一页开始
func ParseCursor(cursor string) (*time.Time, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return nil, apperrors.ErrInvalidCursor.Wrap(err)
	}
	t = t.UTC()
	return &t, nil
}

// buildPage rows 按 limit+1 取出，多出的一行只用来判断 hasMore
func buildPage(rows []model.ChatMessage, limit int) *model.ChatMessagePage {
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []model.ChatMessage{}
	}

	page := &model.ChatMessagePage{
		Messages: rows,
		HasMore:  hasMore,
		Count:    len(rows),
	}
	if hasMore && len(rows) > 0 {
		cursor := model.FormatTime(rows[len(rows)-1].CreatedAt)
		page.NextCursor = &cursor
	}
	return page
}
