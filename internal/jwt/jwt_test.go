package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sudooom.im.realtime/internal/errors"
)

func TestValidateToken_Valid(t *testing.T) {
	service := NewService("test-secret-key")

	token, err := service.GenerateToken("user-123", "alice", time.Hour)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestValidateToken_Invalid(t *testing.T) {
	service := NewService("test-secret-key")

	_, err := service.ValidateToken("invalid-token")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenInvalid))
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}

func TestValidateToken_Expired(t *testing.T) {
	service := NewService("test-secret-key")

	token, err := service.GenerateToken("user-123", "alice", -time.Hour)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenExpired))
}

func TestValidateToken_WrongSecretKey(t *testing.T) {
	service1 := NewService("secret-key-1")
	service2 := NewService("secret-key-2")

	token, err := service1.GenerateToken("user-123", "alice", time.Hour)
	require.NoError(t, err)

	_, err = service2.ValidateToken(token)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenInvalid))
}

func TestValidateToken_MissingSubject(t *testing.T) {
	service := NewService("test-secret-key")

	token, err := service.GenerateToken("", "alice", time.Hour)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenInvalid))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer abc.def", "abc.def"},
		{"Bearer ", ""},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BearerToken(tt.header), tt.header)
	}
}
