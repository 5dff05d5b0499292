package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

type stubChats map[string]models.Chat

func (s stubChats) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	chat, ok := s[chatID]
	if !ok {
		return models.Chat{}, apperrors.NotFound("chat", nil)
	}
	return chat, nil
}

// tokens are "<id>:<role>"
func stubVerifier(token string) (models.Identity, error) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return models.Identity{}, errors.New("bad token")
	}
	return models.Identity{ID: parts[0], Role: models.Role(parts[1])}, nil
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newGatewayServer(t *testing.T, cfg Config) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	chats := stubChats{
		"chat-1": {ID: "chat-1", UserID: "u1", ShopID: "s1"},
		"chat-2": {ID: "chat-2", UserID: "u2", ShopID: "s1"},
	}
	handler := NewGatewayHandler(hub, chats, stubVerifier, cfg)
	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url, token string) (*websocket.Conn, string) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ev := readEvent(t, conn)
	require.Equal(t, models.EventConnected, ev.Event)
	var connected models.ConnectedPayload
	require.NoError(t, json.Unmarshal(ev.Data, &connected))
	require.NotEmpty(t, connected.ConnectionID)
	return conn, connected.ConnectionID
}

func readEvent(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev inbound
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.OutboundEvent{Event: event, Data: data}))
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	_, url := newGatewayServer(t, DefaultConfig())
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayJoinRequiresParticipant(t *testing.T) {
	hub, url := newGatewayServer(t, DefaultConfig())
	conn, _ := dial(t, url, "u1:User")

	send(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatID: "chat-2", UserID: "u1", UserRole: models.RoleUser})
	ev := readEvent(t, conn)
	require.Equal(t, models.EventError, ev.Event)
	var errPayload models.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &errPayload))
	assert.Equal(t, apperrors.CodeForbidden, errPayload.Code)

	send(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatID: "chat-1", UserID: "someone-else", UserRole: models.RoleUser})
	assert.Equal(t, models.EventError, readEvent(t, conn).Event)

	send(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatID: "missing"})
	require.NoError(t, json.Unmarshal(readEvent(t, conn).Data, &errPayload))
	assert.Equal(t, apperrors.CodeNotFound, errPayload.Code)

	send(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatID: "chat-1", UserID: "u1", UserRole: models.RoleUser})
	ev = readEvent(t, conn)
	require.Equal(t, models.EventJoinedChat, ev.Event)
	assert.Equal(t, 1, hub.RoomSize("chat-1"))

	send(t, conn, models.EventLeaveChat, models.LeaveChatPayload{ChatID: "chat-1", UserID: "u1"})
	assert.Equal(t, models.EventLeftChat, readEvent(t, conn).Event)
	assert.Zero(t, hub.RoomSize("chat-1"))
}

func TestGatewayTypingReachesOtherMembersOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TypingRatePerSec = 0.001
	cfg.TypingBurst = 1
	_, url := newGatewayServer(t, cfg)
	user, _ := dial(t, url, "u1:User")
	shop, _ := dial(t, url, "s1:Shop")

	for _, conn := range []*websocket.Conn{user, shop} {
		send(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatID: "chat-1"})
		require.Equal(t, models.EventJoinedChat, readEvent(t, conn).Event)
	}

	for i := 0; i < 3; i++ {
		send(t, user, models.EventTyping, models.TypingPayload{ChatID: "chat-1", UserID: "u1", UserRole: models.RoleUser})
	}
	send(t, user, models.EventStopTyping, models.TypingPayload{ChatID: "chat-1", UserID: "u1", UserRole: models.RoleUser})

	ev := readEvent(t, shop)
	require.Equal(t, models.EventUserTyping, ev.Event)
	var typing models.TypingPayload
	require.NoError(t, json.Unmarshal(ev.Data, &typing))
	assert.Equal(t, "u1", typing.UserID)
	assert.Equal(t, models.EventUserStoppedTyping, readEvent(t, shop).Event)

	send(t, user, models.EventPing, nil)
	assert.Equal(t, models.EventPong, readEvent(t, user).Event)
}

func TestGatewayTypingOutsideRoomIsRejected(t *testing.T) {
	_, url := newGatewayServer(t, DefaultConfig())
	user, _ := dial(t, url, "u1:User")

	send(t, user, models.EventTyping, models.TypingPayload{ChatID: "chat-1"})
	assert.Equal(t, models.EventError, readEvent(t, user).Event)
}

func TestGatewayUnknownAndMalformedEvents(t *testing.T) {
	_, url := newGatewayServer(t, DefaultConfig())
	conn, _ := dial(t, url, "u1:User")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, models.EventError, readEvent(t, conn).Event)

	send(t, conn, "dance", nil)
	assert.Equal(t, models.EventError, readEvent(t, conn).Event)

	send(t, conn, models.EventPing, nil)
	assert.Equal(t, models.EventPong, readEvent(t, conn).Event)
}

func TestGatewayNewMessageSkipsSenderConnection(t *testing.T) {
	hub, url := newGatewayServer(t, DefaultConfig())
	user, userConnID := dial(t, url, "u1:User")
	shop, _ := dial(t, url, "s1:Shop")
	for _, conn := range []*websocket.Conn{user, shop} {
		send(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatID: "chat-1"})
		require.Equal(t, models.EventJoinedChat, readEvent(t, conn).Event)
	}

	hub.NotifyNewMessage(models.Message{ID: "m1", ChatID: "chat-1", Content: "Hi"}, userConnID)
	ev := readEvent(t, shop)
	require.Equal(t, models.EventNewMessage, ev.Event)

	// the sender sees the next event addressed to it, not its own message
	send(t, user, models.EventPing, nil)
	assert.Equal(t, models.EventPong, readEvent(t, user).Event)
}

func TestGatewayDisconnectCleansRooms(t *testing.T) {
	hub, url := newGatewayServer(t, DefaultConfig())
	conn, _ := dial(t, url, "u1:User")
	send(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatID: "chat-1"})
	require.Equal(t, models.EventJoinedChat, readEvent(t, conn).Event)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return hub.RoomSize("chat-1") == 0 && hub.ConnectionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	hub := NewHub()
	handler := NewGatewayHandler(hub, nil, stubVerifier, DefaultConfig())
	c := testClient("c1", "u1", models.RoleUser)

	// nil ChatLookup panics inside the join handler
	assert.NotPanics(t, func() {
		handler.dispatch(c, models.InboundEvent{Event: models.EventJoinChat, Data: json.RawMessage(`{"chatId":"chat-1"}`)})
	})
	ev := drainEvent(t, c)
	assert.Equal(t, models.EventError, ev.Event)
}

func TestHubCloseSendsGoingAway(t *testing.T) {
	hub, url := newGatewayServer(t, DefaultConfig())
	conn, _ := dial(t, url, "u1:User")
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Equal(t, "server shutting down", closeErr.Text)
}
