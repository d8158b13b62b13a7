package gateway

import "errors"

// ErrConnectionGone 对端已断开，推送方应将该连接从注册表移除
var ErrConnectionGone = errors.New("gateway: connection gone")

// IsGoneConnectionError 判断推送失败是否为连接已断开
// 只有 Gone 会触发剔除，超时等其他错误保留连接
func IsGoneConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionGone)
}
