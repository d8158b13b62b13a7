package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/model"
)

// Registry 基于 Redis 的连接注册表
// 连接记录自身带 TTL，用户集合中过期的成员在读取或清扫时剔除
type Registry struct {
	client *redis.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewRegistry 创建连接注册表
func NewRegistry(client *redis.Client) *Registry {
	return &Registry{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
}

// UpsertConnection 注册或刷新连接，保留首次连接时间
func (r *Registry) UpsertConnection(ctx context.Context, input model.UpsertConnectionInput) (*model.Connection, error) {
	existing, err := r.get(ctx, input.ConnectionID)
	if err != nil {
		r.logger.Error("Error upserting websocket connection", "connectionId", input.ConnectionID, "error", err)
		return nil, apperrors.Known(err)
	}

	now := r.now()
	conn := &model.Connection{
		ConnectionID: input.ConnectionID,
		UserID:       input.UserID,
		DomainName:   input.DomainName,
		Stage:        input.Stage,
		ConnectedAt:  now,
		LastSeenAt:   now,
		ExpiresAt:    expiresAt(now, input.TTL),
	}
	if existing != nil {
		conn.ConnectedAt = existing.ConnectedAt
	}

	data, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal connection: %w", err)
	}

	userKey := BuildUserConnectionsKey(input.UserID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BuildConnectionKey(input.ConnectionID), data, ttlOrZero(input.TTL))
		pipe.SAdd(ctx, userKey, input.ConnectionID)
		if input.TTL > 0 {
			pipe.Expire(ctx, userKey, input.TTL)
		}
		// 连接换了用户，从旧用户集合中移除
		if existing != nil && existing.UserID != input.UserID {
			pipe.SRem(ctx, BuildUserConnectionsKey(existing.UserID), input.ConnectionID)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Error upserting websocket connection", "connectionId", input.ConnectionID, "error", err)
		return nil, apperrors.Known(err)
	}

	r.logger.Debug("Registered websocket connection",
		"connectionId", conn.ConnectionID,
		"userId", conn.UserID,
		"domainName", conn.DomainName)
	return conn, nil
}

// TouchConnection 刷新最近活跃时间和过期时间，连接不存在时什么也不做
func (r *Registry) TouchConnection(ctx context.Context, connectionID string, ttl time.Duration) error {
	conn, err := r.get(ctx, connectionID)
	if err != nil {
		r.logger.Error("Error touching websocket connection", "connectionId", connectionID, "error", err)
		return apperrors.Known(err)
	}
	if conn == nil {
		return nil
	}

	now := r.now()
	conn.LastSeenAt = now
	conn.ExpiresAt = expiresAt(now, ttl)

	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BuildConnectionKey(connectionID), data, ttlOrZero(ttl))
		if ttl > 0 {
			pipe.Expire(ctx, BuildUserConnectionsKey(conn.UserID), ttl)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Error touching websocket connection", "connectionId", connectionID, "error", err)
		return apperrors.Known(err)
	}
	return nil
}

// ReadConnectionByConnectionID 按连接ID读取，未注册或已过期返回 nil
func (r *Registry) ReadConnectionByConnectionID(ctx context.Context, connectionID string) (*model.Connection, error) {
	conn, err := r.get(ctx, connectionID)
	if err != nil {
		r.logger.Error("Error reading websocket connection by connection id", "connectionId", connectionID, "error", err)
		return nil, apperrors.Known(err)
	}
	return conn, nil
}

// ReadConnectionsByUserID 读取用户全部在线连接，没有连接时返回空切片
func (r *Registry) ReadConnectionsByUserID(ctx context.Context, userID string) ([]model.Connection, error) {
	userKey := BuildUserConnectionsKey(userID)

	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		r.logger.Error("Error reading websocket connections by user id", "userId", userID, "error", err)
		return nil, apperrors.Known(err)
	}
	if len(ids) == 0 {
		return []model.Connection{}, nil
	}

	connections, stale, err := r.load(ctx, ids)
	if err != nil {
		r.logger.Error("Error reading websocket connections by user id", "userId", userID, "error", err)
		return nil, apperrors.Known(err)
	}

	// 连接记录已过期的成员顺手清理
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, userKey, toAny(stale)...).Err(); err != nil {
			r.logger.Warn("Failed to prune expired connection members", "userId", userID, "error", err)
		}
	}

	return filterUser(connections, userID), nil
}

// RemoveConnection 删除连接记录，返回是否确实删除了记录
func (r *Registry) RemoveConnection(ctx context.Context, connectionID string) (bool, error) {
	conn, err := r.get(ctx, connectionID)
	if err != nil {
		r.logger.Error("Error removing websocket connection", "connectionId", connectionID, "error", err)
		return false, apperrors.Known(err)
	}

	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, BuildConnectionKey(connectionID))
		if conn != nil {
			pipe.SRem(ctx, BuildUserConnectionsKey(conn.UserID), connectionID)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Error removing websocket connection", "connectionId", connectionID, "error", err)
		return false, apperrors.Known(err)
	}
	return del.Val() > 0, nil
}

// Sweep 扫描所有用户连接集合，剔除记录已过期的成员，返回剔除数量
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, UserConnectionsPattern, 200).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()

		ids, err := r.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return removed, err
		}
		if len(ids) == 0 {
			continue
		}

		_, stale, err := r.load(ctx, ids)
		if err != nil {
			return removed, err
		}
		if len(stale) == 0 {
			continue
		}

		n, err := r.client.SRem(ctx, userKey, toAny(stale)...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, iter.Err()
}

// get 读取单条连接记录
func (r *Registry) get(ctx context.Context, connectionID string) (*model.Connection, error) {
	data, err := r.client.Get(ctx, BuildConnectionKey(connectionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var conn model.Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
	}
	if conn.Expired(r.now()) {
		return nil, nil
	}
	return &conn, nil
}

// load 批量读取连接记录，返回有效连接和已失效的连接ID
func (r *Registry) load(ctx context.Context, ids []string) ([]model.Connection, []string, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BuildConnectionKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}

	now := r.now()
	connections := make([]model.Connection, 0, len(ids))
	var stale []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var conn model.Connection
		if err := json.Unmarshal([]byte(raw), &conn); err != nil || conn.Expired(now) {
			stale = append(stale, ids[i])
			continue
		}
		connections = append(connections, conn)
	}

	sort.Slice(connections, func(i, j int) bool {
		return connections[i].ConnectedAt.Before(connections[j].ConnectedAt)
	})
	return connections, stale, nil
}

func expiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

func ttlOrZero(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// filterUser 只保留仍属于该用户的连接
func filterUser(connections []model.Connection, userID string) []model.Connection {
	out := make([]model.Connection, 0, len(connections))
	for _, c := range connections {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
