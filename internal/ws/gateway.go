package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
)

// Config tunes per-connection behaviour.
type Config struct {
	TypingRatePerSec float64
	TypingBurst      int
	SendBuffer       int
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	MaxMessageBytes  int64
}

func DefaultConfig() Config {
	return Config{
		TypingRatePerSec: 2,
		TypingBurst:      2,
		SendBuffer:       64,
		PingInterval:     30 * time.Second,
		PongWait:         60 * time.Second,
		WriteWait:        10 * time.Second,
		MaxMessageBytes:  16 * 1024,
	}
}

// TokenVerifier turns a bearer token into the caller identity.
type TokenVerifier func(token string) (models.Identity, error)

// ChatLookup resolves chats for join verification.
type ChatLookup interface {
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
}

// GatewayHandler upgrades authenticated requests and runs the event loop.
type GatewayHandler struct {
	hub    *Hub
	chats  ChatLookup
	verify TokenVerifier
	cfg    Config
}

// NewGatewayHandler constructs a GatewayHandler.
func NewGatewayHandler(hub *Hub, chats ChatLookup, verify TokenVerifier, cfg Config) *GatewayHandler {
	return &GatewayHandler{hub: hub, chats: chats, verify: verify, cfg: cfg}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client.
func (h *GatewayHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("fluffycare-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.verify(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": apperrors.CodeUnauthorized, "message": "invalid token"}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		PartyID:     identity.ID,
		Role:        identity.Role,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info, h.cfg)
	h.hub.Register(client)
	client.emit(models.EventConnected, models.ConnectedPayload{ConnectionID: info.ConnID})
	publishLifecycle(context.Background(), "ws_connect", info, "")
	logger.Info("socket connected conn_id=%s party=%s role=%s", info.ConnID, info.PartyID, info.Role)

	go client.writePump(h.cfg)
	go h.readPump(client)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}

func (h *GatewayHandler) readPump(client *Client) {
	var closeReason string
	defer func() {
		h.hub.Unregister(client)
		client.close()
		publishLifecycle(context.Background(), "ws_disconnect", client.info, closeReason)
		logger.Info("socket disconnected conn_id=%s reason=%q", client.info.ConnID, closeReason)
	}()

	conn := client.conn
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycle(context.Background(), "ws_error", client.info, closeReason)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		var in models.InboundEvent
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeValidation, Message: "malformed event"})
			continue
		}
		h.dispatch(client, in)
	}
}

// dispatch runs one inbound event handler; a panic is logged and reported to
// the client without ending the read loop.
func (h *GatewayHandler) dispatch(client *Client, in models.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("socket handler %s panicked conn_id=%s: %v", in.Event, client.info.ConnID, r)
			client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeInternal, Message: "event handling failed"})
		}
	}()

	observability.IncWSEvent("chat", in.Event)
	switch in.Event {
	case models.EventJoinChat:
		h.handleJoin(client, in.Data)
	case models.EventLeaveChat:
		h.handleLeave(client, in.Data)
	case models.EventTyping:
		h.handleTyping(client, in.Data, true)
	case models.EventStopTyping:
		h.handleTyping(client, in.Data, false)
	case models.EventPing:
		client.emit(models.EventPong, map[string]int64{"ts": time.Now().UnixMilli()})
	default:
		client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeValidation, Message: "unknown event " + in.Event})
	}
}

func (h *GatewayHandler) handleJoin(client *Client, data json.RawMessage) {
	var p models.JoinChatPayload
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
		client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeValidation, Message: "chatId is required"})
		return
	}
	if !h.claimMatches(client, p.UserID, p.UserRole) {
		client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeForbidden, Message: "identity does not match connection"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	chat, err := h.chats.GetChat(ctx, p.ChatID)
	if err != nil {
		appErr := apperrors.From(err)
		client.emit(models.EventError, models.ErrorPayload{Code: appErr.Code, Message: appErr.Message})
		return
	}
	identity := models.Identity{ID: client.info.PartyID, Role: client.info.Role}
	if !identity.CanAccess(chat) {
		client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeForbidden, Message: "not a participant of this chat"})
		return
	}

	h.hub.Join(client, chat.ID)
	client.emit(models.EventJoinedChat, models.RoomPayload{ChatID: chat.ID})
}

func (h *GatewayHandler) handleLeave(client *Client, data json.RawMessage) {
	var p models.LeaveChatPayload
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
		client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeValidation, Message: "chatId is required"})
		return
	}
	h.hub.Leave(client, p.ChatID)
	client.emit(models.EventLeftChat, models.RoomPayload{ChatID: p.ChatID})
}

func (h *GatewayHandler) handleTyping(client *Client, data json.RawMessage, typing bool) {
	var p models.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
		client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeValidation, Message: "chatId is required"})
		return
	}
	if !h.hub.InRoom(client, p.ChatID) {
		client.emit(models.EventError, models.ErrorPayload{Code: apperrors.CodeForbidden, Message: "join the chat before typing"})
		return
	}

	event := models.EventUserStoppedTyping
	if typing {
		if !client.typing.Allow() {
			observability.IncTypingThrottled()
			return
		}
		event = models.EventUserTyping
	}
	// the connection identity wins over whatever the payload claims
	p.UserID = client.info.PartyID
	p.UserRole = client.info.Role
	h.hub.BroadcastToRoom(p.ChatID, event, p, client.info.ConnID)
}

func (h *GatewayHandler) claimMatches(client *Client, userID string, role models.Role) bool {
	if client.info.Role == models.RoleAdmin {
		return true
	}
	if userID != "" && userID != client.info.PartyID {
		return false
	}
	return role == "" || role == client.info.Role
}
