package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
)

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageText  MessageType = "Text"
	MessageImage MessageType = "Image"
	MessageVideo MessageType = "Video"
	MessageAudio MessageType = "Audio"
	MessageFile  MessageType = "File"
)

const (
	MaxContentLength = 10000
	MaxEmojiLength   = 10
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile:
		return true
	}
	return false
}

// Reaction is one emoji reaction left on a message.
type Reaction struct {
	MessageID string    `db:"message_id" json:"-"`
	UserID    string    `db:"user_id" json:"userId"`
	Emoji     string    `db:"emoji" json:"emoji"`
	ReactedAt time.Time `db:"reacted_at" json:"reactedAt"`
}

// Message is a single chat message.
type Message struct {
	ID          string      `db:"id" json:"id"`
	ChatID      string      `db:"chat_id" json:"chatId"`
	Seq         int64       `db:"seq" json:"-"`
	SenderRole  Role        `db:"sender_role" json:"senderRole"`
	MessageType MessageType `db:"message_type" json:"messageType"`
	Content     string      `db:"content" json:"content"`
	MediaURL    *string     `db:"media_url" json:"mediaUrl"`
	IsRead      bool        `db:"is_read" json:"isRead"`
	DeliveredAt *time.Time  `db:"delivered_at" json:"deliveredAt"`
	ReadAt      *time.Time  `db:"read_at" json:"readAt"`
	Reactions   []Reaction  `db:"-" json:"reactions"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// Preview is the chat list text shown for this message.
func (m Message) Preview() string {
	if m.MessageType == MessageText {
		return m.Content
	}
	if m.Content != "" {
		return m.Content
	}
	return "[" + string(m.MessageType) + "]"
}

// NewMessage is the input to the message store's create operation.
type NewMessage struct {
	ChatID      string
	SenderRole  Role
	MessageType MessageType
	Content     string
	MediaURL    string
}

// Validate enforces the type-dependent content/media rules.
func (n NewMessage) Validate() error {
	if strings.TrimSpace(n.ChatID) == "" {
		return apperrors.Validation("chatId is required")
	}
	if !n.SenderRole.Valid() {
		return apperrors.Validation("senderRole must be User or Shop")
	}
	if !n.MessageType.Valid() {
		return apperrors.Validation("messageType must be one of Text, Image, Video, Audio, File")
	}
	if utf8.RuneCountInString(n.Content) > MaxContentLength {
		return apperrors.Validation("content exceeds 10000 characters")
	}
	if n.MessageType == MessageText {
		if strings.TrimSpace(n.Content) == "" {
			return apperrors.Validation("content is required for Text messages")
		}
		return nil
	}
	if strings.TrimSpace(n.MediaURL) == "" {
		return apperrors.Validation("mediaUrl is required for " + string(n.MessageType) + " messages")
	}
	return nil
}

// ValidateEmoji checks the reaction emoji bounds.
func ValidateEmoji(emoji string) error {
	n := utf8.RuneCountInString(emoji)
	if strings.TrimSpace(emoji) == "" {
		return apperrors.Validation("emoji is required")
	}
	if n > MaxEmojiLength {
		return apperrors.Validation("emoji must be at most 10 characters")
	}
	return nil
}

// MessagePage is one page of a chat's history in display order.
type MessagePage struct {
	Messages      []Message `json:"messages"`
	TotalPages    int       `json:"totalPages"`
	CurrentPage   int       `json:"currentPage"`
	TotalMessages int       `json:"totalMessages"`
	HasMore       bool      `json:"hasMore"`
}
