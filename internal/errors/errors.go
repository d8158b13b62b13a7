package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindPersistence
	KindDelivery
)

// String 返回分类名称
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindPersistence:
		return "persistence"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// AppError 应用错误类型
// Kind 决定对外状态码，Message 是客户端可见的消息，Err 仅用于日志
type AppError struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(kind Kind, code int, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// WithMessage 复制错误并替换对外消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// KindOf 获取错误分类，非 AppError 返回 KindUnknown
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrServerError.Message
}

// Known 已分类的错误原样返回，其余统一包装为持久化错误
func Known(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return ErrPersistence.Wrap(err)
}

// HTTPStatus 错误分类到状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 参数校验 40000-40099
	CodeInvalidPayload  = 40001
	CodeMessageTooLong  = 40002
	CodeInvalidCursor   = 40003
	CodeInvalidEventMsg = 40004

	// 认证相关 40100-40199
	CodeConnectionNotRegistered = 40101
	CodeTokenInvalid            = 40102
	CodeTokenExpired            = 40103

	// 系统错误 50000-50999
	CodeServerError = 50001
	CodeDBError     = 50002

	// 推送相关 50200-50299
	CodeDeliveryFailed = 50201
)

// ============== 预定义错误 ==============

var (
	ErrInvalidPayload  = NewError(KindValidation, CodeInvalidPayload, "Invalid payload.")
	ErrMessageTooLong  = NewError(KindValidation, CodeMessageTooLong, "Message exceeds max length.")
	ErrInvalidCursor   = NewError(KindValidation, CodeInvalidCursor, "Invalid cursor.")
	ErrInvalidEventMsg = NewError(KindValidation, CodeInvalidEventMsg, "Invalid realtime event.")
)

var (
	ErrConnectionNotRegistered = NewError(KindAuthentication, CodeConnectionNotRegistered, "Connection is not registered. Reconnect and try again.")
	ErrTokenInvalid            = NewError(KindAuthentication, CodeTokenInvalid, "Token is invalid.")
	ErrTokenExpired            = NewError(KindAuthentication, CodeTokenExpired, "Token has expired.")
)

var (
	ErrServerError = NewError(KindPersistence, CodeServerError, "Internal server error")
	ErrPersistence = NewError(KindPersistence, CodeDBError, "Internal server error")
)

var (
	ErrDeliveryFailed = NewError(KindDelivery, CodeDeliveryFailed, "Failed to deliver realtime event")
)

// InvalidPayload 构造带说明的参数错误，消息格式为 "Invalid payload. <description>"
func InvalidPayload(description string) *AppError {
	return ErrInvalidPayload.WithMessage("Invalid payload. " + description)
}
