package models

import (
	"encoding/json"
	"time"
)

// Client to server socket events.
const (
	EventJoinChat   = "join-chat"
	EventLeaveChat  = "leave-chat"
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"
	EventPing       = "ping"
)

// Server to client socket events.
const (
	EventConnected         = "connected"
	EventNewMessage        = "new-message"
	EventMessageDelivered  = "message-delivered"
	EventMessageRead       = "message-read"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventChatUpdated       = "chat-updated"
	EventReactionAdded     = "reaction-added"
	EventReactionRemoved   = "reaction-removed"
	EventMessageDeleted    = "message-deleted"
	EventJoinedChat        = "joined-chat"
	EventLeftChat          = "left-chat"
	EventError             = "error"
	EventPong              = "pong"
)

// InboundEvent is a frame received from a socket client.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundEvent is a frame pushed to socket clients.
type OutboundEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type JoinChatPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserRole Role   `json:"userRole"`
}

type LeaveChatPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserRole Role   `json:"userRole"`
}

type RoomPayload struct {
	ChatID string `json:"chatId"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type DeliveredPayload struct {
	ChatID      string    `json:"chatId"`
	MessageID   string    `json:"messageId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type ReadPayload struct {
	ChatID     string    `json:"chatId"`
	MessageIDs []string  `json:"messageIds"`
	ReaderRole Role      `json:"readerRole"`
	ReadAt     time.Time `json:"readAt"`
}

type ReactionPayload struct {
	ChatID    string     `json:"chatId"`
	MessageID string     `json:"messageId"`
	UserID    string     `json:"userId"`
	Emoji     string     `json:"emoji"`
	Reactions []Reaction `json:"reactions"`
}

type MessageDeletedPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
