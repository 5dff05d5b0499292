package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/services"
	"github.com/nufaill/fluffyCare-sub004/internal/telemetry"
)

// Notifier pushes persisted changes to socket clients.
type Notifier interface {
	NotifyNewMessage(msg models.Message, senderConnID string) int
	NotifyChatUpdated(chat models.Chat)
	NotifyDelivered(chat models.Chat, msg models.Message) int
	NotifyRead(chat models.Chat, payload models.ReadPayload) int
	NotifyReaction(event string, msg models.Message, userID, emoji string) int
	NotifyMessageDeleted(chatID, messageID string) int
}

// ChatHandler serves the chat and message REST endpoints.
type ChatHandler struct {
	svc      services.ChatService
	notifier Notifier
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(svc services.ChatService, notifier Notifier, audit *telemetry.AuditEmitter) *ChatHandler {
	RegisterValidators()
	return &ChatHandler{svc: svc, notifier: notifier, audit: audit}
}

// Register mounts every route on the group, normally /api/chats.
func (h *ChatHandler) Register(g *gin.RouterGroup) {
	g.POST("", h.CreateChat)
	g.POST("/get-or-create", h.GetOrCreateChat)
	g.GET("/search", h.SearchChats)
	g.GET("/unread-count/:partyId/:role", h.TotalUnread)
	g.GET("/users/:partyId/chats", h.listForRole(models.RoleUser))
	g.GET("/shops/:partyId/chats", h.listForRole(models.RoleShop))
	g.GET("/:chatId", h.GetChat)
	g.PUT("/:chatId/last-message", h.UpdateLastMessage)
	g.PUT("/:chatId/increment-unread", h.IncrementUnread)
	g.PUT("/:chatId/reset-unread", h.ResetUnread)
	g.PUT("/:chatId/mark-read", h.MarkChatRead)
	g.DELETE("/:chatId", h.DeleteChat)

	m := g.Group("/messages")
	m.POST("", h.SendMessage)
	m.PUT("/mark-multiple-read", h.MarkManyRead)
	m.GET("/chats/:chatId/messages", h.ListMessages)
	m.GET("/chats/:chatId/messages/search", h.SearchMessages)
	m.GET("/:messageId", h.GetMessage)
	m.DELETE("/:messageId", h.DeleteMessage)
	m.PUT("/:messageId/delivered", h.MarkDelivered)
	m.PUT("/:messageId/read", h.MarkRead)
	m.POST("/:messageId/reactions", h.AddReaction)
	m.DELETE("/:messageId/reactions", h.RemoveReaction)
}

type chatPairRequest struct {
	UserID   string `json:"userId" binding:"required"`
	ShopID   string `json:"shopId" binding:"required"`
	UserName string `json:"userName" binding:"max=200"`
	ShopName string `json:"shopName" binding:"max=200"`
}

func (r chatPairRequest) names() models.ParticipantNames {
	return models.ParticipantNames{UserName: r.UserName, ShopName: r.ShopName}
}

func (h *ChatHandler) bindPair(c *gin.Context) (chatPairRequest, models.Identity, bool) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return chatPairRequest{}, identity, false
	}
	var req chatPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return req, identity, false
	}
	if !actsAs(identity, req.UserID, models.RoleUser) && !actsAs(identity, req.ShopID, models.RoleShop) {
		respondError(c, forbidden())
		return req, identity, false
	}
	return req, identity, true
}

// CreateChat inserts a new chat; a duplicate pair is a conflict.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	req, _, ok := h.bindPair(c)
	if !ok {
		return
	}
	chat, err := h.svc.CreateChat(c.Request.Context(), req.UserID, req.ShopID, req.names())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// GetOrCreateChat returns the pair's chat, creating it when missing.
func (h *ChatHandler) GetOrCreateChat(c *gin.Context) {
	req, identity, ok := h.bindPair(c)
	if !ok {
		return
	}
	chat, err := h.svc.GetOrCreateChat(c.Request.Context(), req.UserID, req.ShopID, req.names())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewFor(chat, identity))
}

// loadChat fetches the chat in the path and checks the caller may see it.
func (h *ChatHandler) loadChat(c *gin.Context) (models.Chat, models.Identity, bool) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return models.Chat{}, identity, false
	}
	chat, err := h.svc.GetChat(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return models.Chat{}, identity, false
	}
	if !identity.CanAccess(chat) {
		respondError(c, forbidden())
		return models.Chat{}, identity, false
	}
	return chat, identity, true
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	chat, identity, ok := h.loadChat(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewFor(chat, identity))
}

func (h *ChatHandler) listForRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityOrAbort(c)
		if !ok {
			return
		}
		partyID := c.Param("partyId")
		if !actsAs(identity, partyID, role) {
			respondError(c, forbidden())
			return
		}
		page, limit, err := pageParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		result, err := h.svc.ListChats(c.Request.Context(), partyID, role, page, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *ChatHandler) SearchChats(c *gin.Context) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	searcherID := c.Query("searcherId")
	role := models.Role(c.Query("searcherRole"))
	if searcherID == "" && !identity.IsAdmin() {
		searcherID, role = identity.ID, identity.Role
	}
	if !actsAs(identity, searcherID, role) {
		respondError(c, forbidden())
		return
	}
	page, limit, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.svc.SearchChats(c.Request.Context(), c.Query("query"), searcherID, role, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type lastMessageRequest struct {
	LastMessage     string             `json:"lastMessage" binding:"max=10000"`
	LastMessageType models.MessageType `json:"lastMessageType" binding:"omitempty,message_type"`
	LastMessageAt   *time.Time         `json:"lastMessageAt"`
}

func (h *ChatHandler) UpdateLastMessage(c *gin.Context) {
	chat, _, ok := h.loadChat(c)
	if !ok {
		return
	}
	var req lastMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	updated, err := h.svc.UpdateLastMessage(c.Request.Context(), chat.ID, req.LastMessage, req.LastMessageType, req.LastMessageAt)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.NotifyChatUpdated(updated)
	c.JSON(http.StatusOK, updated)
}

func (h *ChatHandler) IncrementUnread(c *gin.Context) {
	h.mutateCounter(c, h.svc.IncrementUnread, false)
}

func (h *ChatHandler) ResetUnread(c *gin.Context) {
	h.mutateCounter(c, h.svc.ResetUnread, true)
}

type counterFunc func(ctx context.Context, chatID string, role models.Role) (models.Chat, error)

// mutateCounter applies fn to the role's counter. ownSide limits
// non-admin callers to their own counter.
func (h *ChatHandler) mutateCounter(c *gin.Context, fn counterFunc, ownSide bool) {
	chat, identity, ok := h.loadChat(c)
	if !ok {
		return
	}
	role, err := roleParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if ownSide && !identity.IsAdmin() && role != identity.Role {
		respondError(c, apperrors.Forbidden("cannot reset the other side's counter"))
		return
	}
	updated, err := fn(c.Request.Context(), chat.ID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.NotifyChatUpdated(updated)
	c.JSON(http.StatusOK, updated)
}

type markChatReadRequest struct {
	Role       models.Role `json:"role" binding:"omitempty,party_role"`
	MessageIDs []string    `json:"messageIds" binding:"max=100"`
}

// MarkChatRead marks the caller's side of the chat read and zeroes its counter.
func (h *ChatHandler) MarkChatRead(c *gin.Context) {
	chat, identity, ok := h.loadChat(c)
	if !ok {
		return
	}
	var req markChatReadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindError(err))
			return
		}
	}
	role := req.Role
	if role == "" {
		role = identity.Role
	}
	if !identity.IsAdmin() && role != identity.Role {
		respondError(c, apperrors.Forbidden("cannot mark the other side's messages read"))
		return
	}
	result, err := h.svc.MarkChatRead(c.Request.Context(), chat.ID, role, req.MessageIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(result.MessageIDs) > 0 {
		h.notifier.NotifyRead(result.Chat, models.ReadPayload{
			ChatID:     result.ChatID,
			MessageIDs: result.MessageIDs,
			ReaderRole: result.ReaderRole,
			ReadAt:     result.ReadAt,
		})
	}
	h.notifier.NotifyChatUpdated(result.Chat)
	c.JSON(http.StatusOK, gin.H{
		"chatId":     result.ChatID,
		"messageIds": result.MessageIDs,
		"readerRole": result.ReaderRole,
		"readAt":     result.ReadAt,
	})
}

func (h *ChatHandler) TotalUnread(c *gin.Context) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	partyID := c.Param("partyId")
	role := models.Role(c.Param("role"))
	if !role.Valid() {
		respondError(c, apperrors.Validation("role must be User or Shop"))
		return
	}
	if !actsAs(identity, partyID, role) {
		respondError(c, forbidden())
		return
	}
	total, err := h.svc.TotalUnread(c.Request.Context(), partyID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": total})
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chat, _, ok := h.loadChat(c)
	if !ok {
		return
	}
	deleted, err := h.svc.DeleteChat(c.Request.Context(), chat.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), auditEntry(c, "chat deleted", deleted.ID, ""))
	c.Status(http.StatusNoContent)
}

// viewFor projects chat for a participant; admins get the raw chat.
func viewFor(chat models.Chat, identity models.Identity) interface{} {
	if identity.Role.Valid() {
		return chat.ViewFor(identity.Role)
	}
	return chat
}
