package server

import (
	"context"
	"net/http"
	"strings"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/jwt"
)

// SubprotocolTokenPrefix 浏览器无法设置请求头时，令牌放在子协议中传递
const SubprotocolTokenPrefix = "im.jwt."

type contextKey string

const userIDKey contextKey = "userId"

// TokenValidator 访问令牌校验
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Claims, error)
}

// UserIDFromContext 获取已认证用户
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// JWTAuth Bearer 令牌认证中间件
func JWTAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwt.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, apperrors.ErrTokenInvalid)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// connectToken 取出连接令牌，返回令牌及需要回显的子协议
func connectToken(r *http.Request) (token, subprotocol string) {
	if token = strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, ""
	}
	if token = jwt.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token, ""
	}
	for _, protocol := range websocketSubprotocols(r) {
		if strings.HasPrefix(protocol, SubprotocolTokenPrefix) {
			return strings.TrimPrefix(protocol, SubprotocolTokenPrefix), protocol
		}
	}
	return "", ""
}

func websocketSubprotocols(r *http.Request) []string {
	var protocols []string
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(header, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
	}
	return protocols
}
