package client

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

// ChatItem is one entry of the client's chat list.
type ChatItem struct {
	ID              string
	UserID          string
	ShopID          string
	UserName        string
	ShopName        string
	LastMessage     string
	LastMessageType models.MessageType
	LastMessageAt   *time.Time
	UnreadCount     int
	// Issue is set when the record could not be fully trusted. The entry is
	// still shown so the user can act on it.
	Issue string
}

// Healthy reports whether the participant pair was resolved.
func (c ChatItem) Healthy() bool {
	return c.Issue == ""
}

// Err returns the integrity problem as an AppError, or nil.
func (c ChatItem) Err() error {
	if c.Issue == "" {
		return nil
	}
	return apperrors.DataIntegrity(c.Issue, nil)
}

// CounterpartName is the display name of the other side for viewer.
func (c ChatItem) CounterpartName(viewer models.Role) string {
	if viewer == models.RoleShop {
		return c.UserName
	}
	return c.ShopName
}

type rawChat struct {
	ID              string             `json:"id"`
	MongoID         string             `json:"_id"`
	UserID          json.RawMessage    `json:"userId"`
	ShopID          json.RawMessage    `json:"shopId"`
	User            json.RawMessage    `json:"user"`
	Shop            json.RawMessage    `json:"shop"`
	UserName        string             `json:"userName"`
	ShopName        string             `json:"shopName"`
	LastMessage     string             `json:"lastMessage"`
	LastMessageType models.MessageType `json:"lastMessageType"`
	LastMessageAt   *time.Time         `json:"lastMessageAt"`
	UnreadCount     *int               `json:"unreadCount"`
	UserUnreadCount int                `json:"userUnreadCount"`
	ShopUnreadCount int                `json:"shopUnreadCount"`
}

type participantRef struct {
	ID   string
	Name string
}

// parseRef accepts a bare id string or an object carrying _id or id plus an
// optional name.
func parseRef(raw json.RawMessage) (participantRef, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return participantRef{}, false
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		id = strings.TrimSpace(id)
		return participantRef{ID: id}, id != ""
	}
	var obj struct {
		ID       string `json:"id"`
		MongoID  string `json:"_id"`
		Name     string `json:"name"`
		FullName string `json:"fullName"`
		ShopName string `json:"shopName"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return participantRef{}, false
	}
	ref := participantRef{ID: strings.TrimSpace(firstNonEmpty(obj.MongoID, obj.ID))}
	ref.Name = strings.TrimSpace(firstNonEmpty(obj.Name, obj.FullName, obj.ShopName))
	return ref, ref.ID != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolve picks the participant from the direct reference, falling back to
// the populated document.
func resolve(direct, populated json.RawMessage) (participantRef, bool) {
	ref, ok := parseRef(direct)
	pop, popOK := parseRef(populated)
	switch {
	case ok && ref.Name == "" && popOK && pop.ID == ref.ID:
		ref.Name = pop.Name
		return ref, true
	case ok:
		return ref, true
	case popOK:
		return pop, true
	}
	return participantRef{}, false
}

// NormalizeChat turns one chat record in any of the shapes the API has served
// into a ChatItem for viewer. It never fails: unrecoverable records come back
// with Issue set.
func NormalizeChat(raw json.RawMessage, viewer models.Role) ChatItem {
	var rc rawChat
	if err := json.Unmarshal(raw, &rc); err != nil {
		return ChatItem{Issue: "malformed chat record"}
	}

	item := ChatItem{
		ID:              strings.TrimSpace(firstNonEmpty(rc.ID, rc.MongoID)),
		UserName:        rc.UserName,
		ShopName:        rc.ShopName,
		LastMessage:     rc.LastMessage,
		LastMessageType: rc.LastMessageType,
		LastMessageAt:   rc.LastMessageAt,
	}
	if item.LastMessageType == "" {
		item.LastMessageType = models.MessageText
	}
	switch {
	case rc.UnreadCount != nil:
		item.UnreadCount = *rc.UnreadCount
	case viewer == models.RoleShop:
		item.UnreadCount = rc.ShopUnreadCount
	default:
		item.UnreadCount = rc.UserUnreadCount
	}

	var issues []string
	if item.ID == "" {
		issues = append(issues, "missing chat id")
	}
	if user, ok := resolve(rc.UserID, rc.User); ok {
		item.UserID = user.ID
		if item.UserName == "" {
			item.UserName = user.Name
		}
	} else {
		issues = append(issues, "unresolved user reference")
	}
	if shop, ok := resolve(rc.ShopID, rc.Shop); ok {
		item.ShopID = shop.ID
		if item.ShopName == "" {
			item.ShopName = shop.Name
		}
	} else {
		issues = append(issues, "unresolved shop reference")
	}
	item.Issue = strings.Join(issues, "; ")
	return item
}

// FromChat converts a typed chat, as pushed in chat-updated events.
func FromChat(chat models.Chat, viewer models.Role) ChatItem {
	return ChatItem{
		ID:              chat.ID,
		UserID:          chat.UserID,
		ShopID:          chat.ShopID,
		UserName:        chat.UserName,
		ShopName:        chat.ShopName,
		LastMessage:     chat.LastMessage,
		LastMessageType: chat.LastMessageType,
		LastMessageAt:   chat.LastMessageAt,
		UnreadCount:     chat.UnreadFor(viewer),
	}
}
