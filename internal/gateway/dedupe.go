package gateway

import "sudooom.im.realtime/internal/model"

// DeduplicateConnections 按 connectionId 合并多组连接，同一连接只出现一次
func DeduplicateConnections(groups ...[]model.Connection) map[string]model.Connection {
	unique := make(map[string]model.Connection)
	for _, group := range groups {
		for _, conn := range group {
			unique[conn.ConnectionID] = conn
		}
	}
	return unique
}

// UniqueConnections 与 DeduplicateConnections 相同，但按首次出现的顺序返回
func UniqueConnections(groups ...[]model.Connection) []model.Connection {
	seen := make(map[string]int)
	var out []model.Connection
	for _, group := range groups {
		for _, conn := range group {
			if i, ok := seen[conn.ConnectionID]; ok {
				out[i] = conn
				continue
			}
			seen[conn.ConnectionID] = len(out)
			out = append(out, conn)
		}
	}
	return out
}
