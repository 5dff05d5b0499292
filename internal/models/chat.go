package models

import "time"

// Role identifies which side of a conversation a party is on.
type Role string

const (
	RoleUser  Role = "User"
	RoleShop  Role = "Shop"
	RoleAdmin Role = "Admin"
)

// Valid reports whether r is a conversation participant role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleShop
}

// Counterpart returns the opposite participant role.
func (r Role) Counterpart() Role {
	if r == RoleUser {
		return RoleShop
	}
	return RoleUser
}

// Chat is the conversation summary between exactly one user and one shop.
type Chat struct {
	ID              string      `db:"id" json:"id"`
	UserID          string      `db:"user_id" json:"userId"`
	ShopID          string      `db:"shop_id" json:"shopId"`
	UserName        string      `db:"user_name" json:"userName"`
	ShopName        string      `db:"shop_name" json:"shopName"`
	LastMessage     string      `db:"last_message" json:"lastMessage"`
	LastMessageType MessageType `db:"last_message_type" json:"lastMessageType"`
	LastMessageAt   *time.Time  `db:"last_message_at" json:"lastMessageAt"`
	UserUnreadCount int         `db:"user_unread_count" json:"userUnreadCount"`
	ShopUnreadCount int         `db:"shop_unread_count" json:"shopUnreadCount"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// PartyID returns the participant id on the given side.
func (c Chat) PartyID(role Role) string {
	if role == RoleShop {
		return c.ShopID
	}
	return c.UserID
}

// UnreadFor returns the unread counter scoped to the given side.
func (c Chat) UnreadFor(role Role) int {
	if role == RoleShop {
		return c.ShopUnreadCount
	}
	return c.UserUnreadCount
}

// HasParticipant reports whether id is the chat's party for role.
func (c Chat) HasParticipant(id string, role Role) bool {
	return role.Valid() && id != "" && c.PartyID(role) == id
}

// ChatView is a chat as seen by one of its participants.
type ChatView struct {
	Chat
	ViewerRole      Role   `json:"viewerRole"`
	CounterpartID   string `json:"counterpartId"`
	CounterpartName string `json:"counterpartName"`
	UnreadCount     int    `json:"unreadCount"`
}

// ViewFor projects the chat for the participant on the given side.
func (c Chat) ViewFor(role Role) ChatView {
	other := role.Counterpart()
	name := c.UserName
	if other == RoleShop {
		name = c.ShopName
	}
	return ChatView{
		Chat:            c,
		ViewerRole:      role,
		CounterpartID:   c.PartyID(other),
		CounterpartName: name,
		UnreadCount:     c.UnreadFor(role),
	}
}

// ParticipantNames carries optional display names for get-or-create.
type ParticipantNames struct {
	UserName string
	ShopName string
}

// ChatPage is one page of chats for a party.
type ChatPage struct {
	Chats       []ChatView `json:"chats"`
	TotalPages  int        `json:"totalPages"`
	CurrentPage int        `json:"currentPage"`
	TotalChats  int        `json:"totalChats"`
	HasMore     bool       `json:"hasMore"`
}
