package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sudooom.im.realtime/internal/errors"
	"sudooom.im.realtime/internal/gateway"
	"sudooom.im.realtime/internal/model"
)

type testEnv struct {
	chats   *memoryChatStore
	conns   *memoryConnectionStore
	pusher  *capturePusher
	handler *Handler
}

func newTestEnv(conns ...model.Connection) *testEnv {
	env := &testEnv{
		chats:  newMemoryChatStore(),
		conns:  newMemoryConnectionStore(conns...),
		pusher: newCapturePusher(),
	}
	gw := gateway.NewGateway(env.pusher, env.conns, time.Second)
	env.handler = NewHandler(env.chats, env.conns, gw, Options{ConnectionTTL: time.Hour, MaxMessageLength: 20})
	return env
}

func wsConn(id, userID string) model.Connection {
	return model.Connection{ConnectionID: id, UserID: userID, DomainName: "node-a", Stage: "dev"}
}

func request(connectionID string, body any) Request {
	data, _ := json.Marshal(body)
	return Request{ConnectionID: connectionID, DomainName: "node-a", Stage: "dev", Body: data}
}

// decode 将响应体转换为 map 便于断言
func decode(t *testing.T, resp Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.JSON(), &out))
	return out
}

func payloadOf(t *testing.T, env receivedEnvelope) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	return out
}

func TestChatSend_Validation(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"))
	ctx := context.Background()

	tests := []struct {
		name    string
		body    any
		message string
	}{
		{"missing recipient", map[string]any{"message": "hi"}, "Invalid payload. recipientUserId and message are required."},
		{"blank message", map[string]any{"recipientUserId": "bob", "message": "   "}, "Invalid payload. recipientUserId and message are required."},
		{"non-string recipient", map[string]any{"recipientUserId": 42, "message": "hi"}, "Invalid payload. recipientUserId and message are required."},
		{"too long", map[string]any{"recipientUserId": "bob", "message": strings.Repeat("x", 21)}, "Message exceeds max length of 20 characters."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.handler.ChatSend(ctx, request("a1", tt.body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.message, decode(t, resp)["message"])
		})
	}
	assert.Empty(t, env.chats.messages)
}

func TestChatSend_NonJSONBody(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"))
	resp := env.handler.ChatSend(context.Background(), Request{ConnectionID: "a1", Body: []byte("not json")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatSend_UnregisteredConnection(t *testing.T) {
	env := newTestEnv()

	resp := env.handler.ChatSend(context.Background(), request("ghost", map[string]any{"recipientUserId": "bob", "message": "hi"}))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Connection is not registered. Reconnect and try again.", decode(t, resp)["message"])
	assert.Empty(t, env.chats.messages)
	assert.Equal(t, []string{"ghost"}, env.conns.touched)
}

func TestChatSend_PersistenceFailure(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"), wsConn("b1", "bob"))
	env.chats.createErr = apperrors.Known(errors.New("connection refused"))

	resp := env.handler.ChatSend(context.Background(), request("a1", map[string]any{"recipientUserId": "bob", "message": "hi"}))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", decode(t, resp)["message"])
	assert.Empty(t, env.pusher.envelopes("b1"))
}

func TestChatSend_DeliversToBothSides(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"), wsConn("a2", "alice"), wsConn("b1", "bob"))

	resp := env.handler.ChatSend(context.Background(), request("a1", map[string]any{"recipientUserId": " bob ", "message": " hello "}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "Chat message processed", body["message"])
	assert.Equal(t, "m1", body["messageId"])
	assert.Equal(t, "bob", body["recipientUserId"])
	assert.Equal(t, false, body["isRead"])
	assert.Equal(t, float64(3), body["deliveredCount"])
	assert.Equal(t, float64(3), body["conversationDeliveredCount"])
	assert.Equal(t, float64(0), body["unreadTotal"])
	assert.Equal(t, true, body["recipientOnline"])

	stored := env.chats.messages[0]
	assert.Equal(t, "hello", stored.Message)
	assert.Equal(t, model.BuildConversationKey("alice", "bob"), stored.ConversationKey)

	for _, id := range []string{"a1", "a2", "b1"} {
		assert.Equal(t, []string{"chat.message", "chat.conversation.updated"}, env.pusher.types(id), id)
	}

	// 对端视角：与 alice 的会话有 1 条未读
	bobUpdate := payloadOf(t, env.pusher.envelopes("b1")[1])
	assert.Equal(t, "alice", bobUpdate["conversationWithUserId"])
	assert.Equal(t, float64(1), bobUpdate["unreadCount"])
	assert.Equal(t, float64(1), bobUpdate["unreadTotal"])
	assert.Equal(t, "chat.send", bobUpdate["reason"])
	assert.Equal(t, "m1", bobUpdate["lastMessage"].(map[string]any)["messageId"])

	// 发送者视角：与 bob 的会话没有未读
	aliceUpdate := payloadOf(t, env.pusher.envelopes("a2")[1])
	assert.Equal(t, "bob", aliceUpdate["conversationWithUserId"])
	assert.Equal(t, float64(0), aliceUpdate["unreadCount"])
}

func TestChatSend_RecipientOffline(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"))

	resp := env.handler.ChatSend(context.Background(), request("a1", map[string]any{"recipientUserId": "bob", "message": "hi"}))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, false, body["recipientOnline"])
	assert.Equal(t, float64(1), body["deliveredCount"])
}

func TestChatSend_GoneConnectionDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"), wsConn("b1", "bob"), wsConn("b2", "bob"))
	env.pusher.gone["b1"] = true

	resp := env.handler.ChatSend(context.Background(), request("a1", map[string]any{"recipientUserId": "bob", "message": "hi"}))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, env.conns.has("b1"))
	assert.True(t, env.conns.has("b2"))

	messages := 0
	for _, typ := range env.pusher.types("b2") {
		if typ == model.EventTypeChatMessage {
			messages++
		}
	}
	assert.Equal(t, 1, messages)
	assert.Equal(t, float64(2), decode(t, resp)["deliveredCount"])
}

func TestChatSend_SelfMessageDeliveredOncePerConnection(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"), wsConn("a2", "alice"))

	resp := env.handler.ChatSend(context.Background(), request("a1", map[string]any{"recipientUserId": "alice", "message": "memo"}))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["isRead"])
	assert.Equal(t, float64(2), body["deliveredCount"])
	assert.Len(t, env.pusher.envelopes("a1"), 2)
	assert.Len(t, env.pusher.envelopes("a2"), 2)
}

func TestChatRead_Validation(t *testing.T) {
	env := newTestEnv(wsConn("b1", "bob"))

	resp := env.handler.ChatRead(context.Background(), request("b1", map[string]any{"withUserId": "  "}))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid payload. withUserId is required.", decode(t, resp)["message"])
}

func TestChatRead_UnregisteredConnection(t *testing.T) {
	env := newTestEnv()

	resp := env.handler.ChatRead(context.Background(), request("ghost", map[string]any{"withUserId": "alice"}))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatSendThenRead_EndToEnd(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"), wsConn("b1", "bob"))
	ctx := context.Background()

	sendResp := env.handler.ChatSend(ctx, request("a1", map[string]any{"recipientUserId": "bob", "message": "hello"}))
	require.Equal(t, http.StatusOK, sendResp.StatusCode)
	require.Len(t, env.chats.messages, 1)
	assert.False(t, env.chats.messages[0].IsRead)
	assert.Equal(t, model.BuildConversationKey("alice", "bob"), env.chats.messages[0].ConversationKey)

	readResp := env.handler.ChatRead(ctx, request("b1", map[string]any{"withUserId": "alice"}))
	require.Equal(t, http.StatusOK, readResp.StatusCode)

	body := decode(t, readResp)
	assert.Equal(t, "Chat conversation marked as read", body["message"])
	assert.Equal(t, "alice", body["withUserId"])
	assert.Equal(t, float64(1), body["markedCount"])
	assert.Equal(t, float64(0), body["unreadTotal"])
	assert.Equal(t, float64(2), body["deliveredCount"])
	assert.Equal(t, float64(1), body["deliveredToReaderCount"])
	assert.Equal(t, float64(1), body["deliveredToWithUserCount"])
	assert.True(t, env.chats.messages[0].IsRead)

	aliceEnvelopes := env.pusher.envelopes("a1")
	require.Len(t, aliceEnvelopes, 4)
	assert.Equal(t, "chat.read", aliceEnvelopes[2].Type)
	readPayload := payloadOf(t, aliceEnvelopes[2])
	assert.Equal(t, "bob", readPayload["readerUserId"])
	assert.Equal(t, float64(1), readPayload["markedCount"])

	update := payloadOf(t, aliceEnvelopes[3])
	assert.Equal(t, "chat.read", update["reason"])
	assert.Equal(t, "bob", update["conversationWithUserId"])
	assert.Equal(t, true, update["lastMessage"].(map[string]any)["isRead"])

	// 再次标记没有新消息，仍然 200
	again := env.handler.ChatRead(ctx, request("b1", map[string]any{"withUserId": "alice"}))
	require.Equal(t, http.StatusOK, again.StatusCode)
	assert.Equal(t, float64(0), decode(t, again)["markedCount"])
}

func TestChatRead_EmptyConversationUsesReadAt(t *testing.T) {
	env := newTestEnv(wsConn("b1", "bob"))

	resp := env.handler.ChatRead(context.Background(), request("b1", map[string]any{"withUserId": "alice"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	envelopes := env.pusher.envelopes("b1")
	require.Len(t, envelopes, 2)
	read := payloadOf(t, envelopes[0])
	update := payloadOf(t, envelopes[1])
	assert.Nil(t, update["lastMessage"])
	assert.Equal(t, read["readAt"], update["updatedAt"])
}

func TestDispatch(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"))
	ctx := context.Background()

	resp := env.handler.Dispatch(ctx, request("a1", map[string]any{"action": "unknown.action"}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"message": "Action received on default route. No-op in phase 1.",
		"action":  "unknown.action",
	}, decode(t, resp))

	resp = env.handler.Dispatch(ctx, Request{ConnectionID: "a1", Body: []byte("{{")})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"message": "Action received on default route. No-op in phase 1."}, decode(t, resp))

	resp = env.handler.Dispatch(ctx, request("a1", map[string]any{"action": "chat.read"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, []string{"a1", "a1", "a1"}, env.conns.touched)
}

func TestPing(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"))

	resp := env.handler.Dispatch(context.Background(), request("a1", map[string]any{"action": "ping"}))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"message": "pong"}, decode(t, resp))
	envelopes := env.pusher.envelopes("a1")
	require.Len(t, envelopes, 1)
	assert.Equal(t, "pong", envelopes[0].Type)
	assert.Equal(t, map[string]any{"message": "pong"}, payloadOf(t, envelopes[0]))
}

func TestNotificationSubscribe(t *testing.T) {
	env := newTestEnv(wsConn("a1", "alice"))
	ctx := context.Background()

	resp := env.handler.Dispatch(ctx, request("a1", map[string]any{"action": "notification.subscribe", "topics": []any{"bell", 3, " "}}))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"message": "Subscribed to notifications",
		"topics":  []any{"bell"},
	}, decode(t, resp))

	resp = env.handler.Dispatch(ctx, request("ghost", map[string]any{"action": "notification.subscribe"}))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectAndDisconnect(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	conn, err := env.handler.Connect(ctx, ConnectInput{UserID: "alice", DomainName: "node-a", Stage: "dev"})
	require.NoError(t, err)
	assert.Len(t, conn.ConnectionID, 36)
	assert.True(t, env.conns.has(conn.ConnectionID))

	env.handler.Disconnect(ctx, conn.ConnectionID)
	assert.False(t, env.conns.has(conn.ConnectionID))

	// 重复断开无副作用
	env.handler.Disconnect(ctx, conn.ConnectionID)
}
