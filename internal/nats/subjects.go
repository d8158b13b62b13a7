package nats

import "strings"

// NATS Subject 常量定义
const (
	// SubjectRealtimeEvents 其他服务 -> Realtime 领域事件
	SubjectRealtimeEvents = "im.realtime.events"

	// QueueGroupRealtime Realtime 服务队列组名称
	QueueGroupRealtime = "realtime-group"

	// SubjectPushPrefix 跨节点推送前缀
	// 完整格式: im.realtime.{domain_name}.{stage}.push
	SubjectPushPrefix = "im.realtime."
	SubjectPushSuffix = ".push"

	// HeaderConnectionID 推送请求携带的目标连接ID
	HeaderConnectionID = "Im-Connection-Id"
)

// 推送应答
const (
	ReplyOK   = "ok"
	ReplyGone = "gone"
)

// BuildPushSubject 构建节点推送 Subject
func BuildPushSubject(domainName, stage string) string {
	return SubjectPushPrefix + subjectToken(domainName) + "." + subjectToken(stage) + SubjectPushSuffix
}

// BuildNodePushWildcard 节点订阅自身全部 stage 的推送
func BuildNodePushWildcard(nodeID string) string {
	return SubjectPushPrefix + subjectToken(nodeID) + ".*" + SubjectPushSuffix
}

// subjectToken 替换 subject 中有特殊含义的字符
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
