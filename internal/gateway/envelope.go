package gateway

import (
	"encoding/json"
	"time"

	"sudooom.im.realtime/internal/model"
)

// Envelope 实时事件外层结构 {type, payload, sentAt}
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  string `json:"sentAt"`
}

// NewEnvelope 创建事件，sentAt 取当前时间
func NewEnvelope(eventType string, payload any) Envelope {
	return Envelope{
		Type:    eventType,
		Payload: payload,
		SentAt:  model.FormatTime(time.Now()),
	}
}

// Marshal 序列化为 JSON
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
