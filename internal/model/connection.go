package model

import "time"

// Connection 已注册的实时连接
// DomainName 标识持有该连接的节点，Stage 为连接路径中的阶段名，两者一起寻址推送
type Connection struct {
	ConnectionID string     `json:"connectionId"`
	UserID       string     `json:"userId"`
	DomainName   string     `json:"domainName"`
	Stage        string     `json:"stage"`
	ConnectedAt  time.Time  `json:"connectedAt"`
	LastSeenAt   time.Time  `json:"lastSeenAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Expired 判断连接记录是否已过期，没有过期时间的记录永不过期
func (c *Connection) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// UpsertConnectionInput 注册或刷新连接的参数
type UpsertConnectionInput struct {
	ConnectionID string
	UserID       string
	DomainName   string
	Stage        string
	TTL          time.Duration
}
