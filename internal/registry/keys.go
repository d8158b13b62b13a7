package registry

const (
	// ConnectionKeyPrefix 连接记录 Key 前缀
	// Key: im:realtime:conn:{connectionId}, Value: Connection JSON
	ConnectionKeyPrefix = "im:realtime:conn:"

	// UserConnectionsKeyPrefix 用户连接集合 Key 前缀
	// Key: im:realtime:user:{userId}:conns, Value: SET of connectionId
	UserConnectionsKeyPrefix = "im:realtime:user:"
	userConnectionsKeySuffix = ":conns"

	// UserConnectionsPattern SCAN 用户连接集合时的匹配模式
	UserConnectionsPattern = UserConnectionsKeyPrefix + "*" + userConnectionsKeySuffix
)

// BuildConnectionKey 构建连接记录 Key
func BuildConnectionKey(connectionID string) string {
	return ConnectionKeyPrefix + connectionID
}

// BuildUserConnectionsKey 构建用户连接集合 Key
func BuildUserConnectionsKey(userID string) string {
	return UserConnectionsKeyPrefix + userID + userConnectionsKeySuffix
}
