package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "sudooom.im.realtime/internal/errors"
)

// Request 一次入站动作，ConnectionID 标识发起连接
type Request struct {
	ConnectionID string
	DomainName   string
	Stage        string
	Body         []byte
}

// Response 处理结果，Body 序列化为 JSON
type Response struct {
	StatusCode int
	Body       any
}

// JSON 序列化响应体
func (r Response) JSON() []byte {
	data, err := json.Marshal(r.Body)
	if err != nil {
		return []byte(`{"message":"Internal server error"}`)
	}
	return data
}

type messageBody struct {
	Message string `json:"message"`
}

func ok(body any) Response {
	return Response{StatusCode: http.StatusOK, Body: body}
}

// fail 按错误分类生成响应，持久化错误只返回通用消息
func fail(err error) Response {
	return Response{
		StatusCode: apperrors.HTTPStatus(err),
		Body:       messageBody{Message: apperrors.GetMessage(err)},
	}
}

// payload 入站 JSON 体，非 JSON 视为空对象
type payload map[string]any

func parseBody(body []byte) payload {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil || p == nil {
		return payload{}
	}
	return p
}

// str 读取字符串字段并去除首尾空白，类型不符返回空串
func (p payload) str(key string) string {
	v, _ := p[key].(string)
	return strings.TrimSpace(v)
}

// strs 读取字符串数组字段，忽略非字符串元素
func (p payload) strs(key string) []string {
	raw, _ := p[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
