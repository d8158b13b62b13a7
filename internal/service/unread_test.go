package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockUnreadCounter 按 viewer/partner 返回预设未读数
type MockUnreadCounter struct {
	conversation map[[2]string]int
	total        map[string]int
	err          error
}

func (m *MockUnreadCounter) CountUnreadForConversation(_ context.Context, viewer, partner string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.conversation[[2]string{viewer, partner}], nil
}

func (m *MockUnreadCounter) CountUnreadTotal(_ context.Context, viewer string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.total[viewer], nil
}

func TestComputeUnreadSnapshot(t *testing.T) {
	svc := NewUnreadService(&MockUnreadCounter{
		conversation: map[[2]string]int{{"bob", "alice"}: 2},
		total:        map[string]int{"bob": 5},
	})

	snapshot, err := svc.ComputeUnreadSnapshot(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, UnreadSnapshot{Conversation: 2, Total: 5}, snapshot)
}

func TestComputePairSnapshots(t *testing.T) {
	svc := NewUnreadService(&MockUnreadCounter{
		conversation: map[[2]string]int{{"bob", "alice"}: 2, {"alice", "bob"}: 1},
		total:        map[string]int{"bob": 5, "alice": 1},
	})

	alice, bob, err := svc.ComputePairSnapshots(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, UnreadSnapshot{Conversation: 1, Total: 1}, alice)
	assert.Equal(t, UnreadSnapshot{Conversation: 2, Total: 5}, bob)
}

func TestComputeUnreadSnapshot_Error(t *testing.T) {
	svc := NewUnreadService(&MockUnreadCounter{err: errors.New("db down")})

	_, err := svc.ComputeUnreadSnapshot(context.Background(), "bob", "alice")
	assert.Error(t, err)
}
