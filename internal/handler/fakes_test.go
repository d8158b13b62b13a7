package handler

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
)

// memoryChatStore 内存版消息存储，语义与 PostgreSQL 实现一致
type memoryChatStore struct {
	mu        sync.Mutex
	messages  []*model.ChatMessage
	clock     time.Time
	createErr error
}

func newMemoryChatStore() *memoryChatStore {
	return &memoryChatStore{clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *memoryChatStore) Create(_ context.Context, senderUserID, recipientUserID, text string) (*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.clock = s.clock.Add(time.Second)
	msg := &model.ChatMessage{
		ChatMessageID:   "m" + strconv.Itoa(len(s.messages)+1),
		SenderUserID:    senderUserID,
		RecipientUserID: recipientUserID,
		ConversationKey: model.BuildConversationKey(senderUserID, recipientUserID),
		Message:         text,
		IsRead:          senderUserID == recipientUserID,
		CreatedAt:       s.clock,
		UpdatedAt:       s.clock,
	}
	s.messages = append(s.messages, msg)
	copied := *msg
	return &copied, nil
}

func (s *memoryChatStore) MarkConversationRead(_ context.Context, viewerUserID, withUserID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Add(time.Millisecond)
	var modified int64
	for _, m := range s.messages {
		if m.SenderUserID == withUserID && m.RecipientUserID == viewerUserID && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
			modified++
		}
	}
	return modified, nil
}

func (s *memoryChatStore) ReadLatestInConversation(_ context.Context, viewerUserID, withUserID string) (*model.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := model.BuildConversationKey(viewerUserID, withUserID)
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ConversationKey == key {
			copied := *s.messages[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryChatStore) CountUnreadForConversation(_ context.Context, viewerUserID, withUserID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.SenderUserID == withUserID && m.RecipientUserID == viewerUserID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *memoryChatStore) CountUnreadTotal(_ context.Context, viewerUserID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.RecipientUserID == viewerUserID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

// memoryConnectionStore 内存版连接注册表
type memoryConnectionStore struct {
	mu      sync.Mutex
	conns   map[string]model.Connection
	touched []string
	removed []string
}

func newMemoryConnectionStore(conns ...model.Connection) *memoryConnectionStore {
	s := &memoryConnectionStore{conns: make(map[string]model.Connection)}
	for _, c := range conns {
		s.conns[c.ConnectionID] = c
	}
	return s
}

func (s *memoryConnectionStore) UpsertConnection(_ context.Context, input model.UpsertConnectionInput) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := model.Connection{
		ConnectionID: input.ConnectionID,
		UserID:       input.UserID,
		DomainName:   input.DomainName,
		Stage:        input.Stage,
	}
	s.conns[input.ConnectionID] = conn
	return &conn, nil
}

func (s *memoryConnectionStore) TouchConnection(_ context.Context, connectionID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, connectionID)
	return nil
}

func (s *memoryConnectionStore) ReadConnectionByConnectionID(_ context.Context, connectionID string) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connectionID]
	if !ok {
		return nil, nil
	}
	return &conn, nil
}

func (s *memoryConnectionStore) ReadConnectionsByUserID(_ context.Context, userID string) ([]model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Connection{}
	for _, c := range s.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryConnectionStore) RemoveConnection(_ context.Context, connectionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, connectionID)
	_, ok := s.conns[connectionID]
	delete(s.conns, connectionID)
	return ok, nil
}

func (s *memoryConnectionStore) has(connectionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[connectionID]
	return ok
}

type receivedEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  string          `json:"sentAt"`
}

// capturePusher 记录每个连接收到的事件，gone 中的连接返回 Gone
type capturePusher struct {
	mu       sync.Mutex
	received map[string][]receivedEnvelope
	gone     map[string]bool
}

func newCapturePusher() *capturePusher {
	return &capturePusher{received: make(map[string][]receivedEnvelope), gone: make(map[string]bool)}
}

func (p *capturePusher) Push(_ context.Context, conn model.Connection, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[conn.ConnectionID] {
		return gateway.ErrConnectionGone
	}
	var env receivedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	p.received[conn.ConnectionID] = append(p.received[conn.ConnectionID], env)
	return nil
}

func (p *capturePusher) envelopes(connectionID string) []receivedEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]receivedEnvelope(nil), p.received[connectionID]...)
}

func (p *capturePusher) types(connectionID string) []string {
	var out []string
	for _, env := range p.envelopes(connectionID) {
		out = append(out, env.Type)
	}
	return out
}
