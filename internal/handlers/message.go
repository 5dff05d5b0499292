package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
)

type sendMessageRequest struct {
	ChatID      string             `json:"chatId" binding:"required"`
	SenderRole  models.Role        `json:"senderRole" binding:"required,party_role"`
	MessageType models.MessageType `json:"messageType" binding:"omitempty,message_type"`
	Content     string             `json:"content"`
	MediaURL    string             `json:"mediaUrl"`
}

// SendMessage persists a message and then fans it out to the room.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if !identity.IsAdmin() && req.SenderRole != identity.Role {
		respondError(c, apperrors.Forbidden("senderRole does not match the caller"))
		return
	}
	chat, err := h.svc.GetChat(c.Request.Context(), req.ChatID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !identity.CanAccess(chat) {
		respondError(c, forbidden())
		return
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageText
	}

	result, err := h.svc.SendMessage(c.Request.Context(), models.NewMessage{
		ChatID:      chat.ID,
		SenderRole:  req.SenderRole,
		MessageType: req.MessageType,
		Content:     req.Content,
		MediaURL:    req.MediaURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.NotifyNewMessage(result.Message, observability.ConnectionIDFromRequest(c.Request))
	if result.Chat != nil {
		h.notifier.NotifyChatUpdated(*result.Chat)
	}
	c.JSON(http.StatusCreated, result.Message)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	chat, _, ok := h.loadChat(c)
	if !ok {
		return
	}
	page, limit, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	since, err := querySince(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.svc.ListMessages(c.Request.Context(), chat.ID, page, limit, since)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ChatHandler) SearchMessages(c *gin.Context) {
	chat, _, ok := h.loadChat(c)
	if !ok {
		return
	}
	page, limit, err := pageParams(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.svc.SearchMessages(c.Request.Context(), chat.ID, c.Query("query"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// loadMessage fetches the message in the path together with its chat and
// checks the caller participates in it.
func (h *ChatHandler) loadMessage(c *gin.Context) (models.Message, models.Chat, models.Identity, bool) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return models.Message{}, models.Chat{}, identity, false
	}
	msg, err := h.svc.GetMessage(c.Request.Context(), c.Param("messageId"))
	if err != nil {
		respondError(c, err)
		return models.Message{}, models.Chat{}, identity, false
	}
	chat, err := h.svc.GetChat(c.Request.Context(), msg.ChatID)
	if err != nil {
		respondError(c, err)
		return models.Message{}, models.Chat{}, identity, false
	}
	if !identity.CanAccess(chat) {
		respondError(c, forbidden())
		return models.Message{}, models.Chat{}, identity, false
	}
	return msg, chat, identity, true
}

func (h *ChatHandler) GetMessage(c *gin.Context) {
	msg, _, _, ok := h.loadMessage(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, msg)
}

// recipientOnly rejects a sender acknowledging its own message.
func recipientOnly(c *gin.Context, identity models.Identity, msg models.Message) bool {
	if !identity.IsAdmin() && identity.Role == msg.SenderRole {
		respondError(c, apperrors.Forbidden("only the recipient can acknowledge a message"))
		return false
	}
	return true
}

func (h *ChatHandler) MarkDelivered(c *gin.Context) {
	msg, chat, identity, ok := h.loadMessage(c)
	if !ok || !recipientOnly(c, identity, msg) {
		return
	}
	updated, err := h.svc.MarkDelivered(c.Request.Context(), msg.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.NotifyDelivered(chat, updated)
	c.JSON(http.StatusOK, updated)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	msg, chat, identity, ok := h.loadMessage(c)
	if !ok || !recipientOnly(c, identity, msg) {
		return
	}
	updated, err := h.svc.MarkRead(c.Request.Context(), msg.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if updated.ReadAt != nil {
		h.notifier.NotifyRead(chat, models.ReadPayload{
			ChatID:     chat.ID,
			MessageIDs: []string{updated.ID},
			ReaderRole: updated.SenderRole.Counterpart(),
			ReadAt:     *updated.ReadAt,
		})
	}
	c.JSON(http.StatusOK, updated)
}

type markManyReadRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required,min=1,max=100"`
}

type readGroup struct {
	chat   models.Chat
	reader models.Role
	ids    []string
}

// MarkManyRead marks up to 100 messages read. Unknown ids are
// skipped; any id in a chat the caller cannot see rejects the whole call.
func (h *ChatHandler) MarkManyRead(c *gin.Context) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	var req markManyReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	chats := make(map[string]models.Chat)
	groups := make(map[string]*readGroup)
	var order []string
	ids := make([]string, 0, len(req.MessageIDs))
	for _, id := range req.MessageIDs {
		msg, err := h.svc.GetMessage(ctx, id)
		if apperrors.Is(err, apperrors.CodeNotFound) || apperrors.Is(err, apperrors.CodeValidation) {
			continue
		}
		if err != nil {
			respondError(c, err)
			return
		}
		chat, seen := chats[msg.ChatID]
		if !seen {
			chat, err = h.svc.GetChat(ctx, msg.ChatID)
			if apperrors.Is(err, apperrors.CodeNotFound) {
				continue
			}
			if err != nil {
				respondError(c, err)
				return
			}
			chats[msg.ChatID] = chat
		}
		if !identity.CanAccess(chat) {
			respondError(c, forbidden())
			return
		}
		if !identity.IsAdmin() && identity.Role == msg.SenderRole {
			continue
		}
		reader := msg.SenderRole.Counterpart()
		key := chat.ID + "|" + string(reader)
		g, exists := groups[key]
		if !exists {
			g = &readGroup{chat: chat, reader: reader}
			groups[key] = g
			order = append(order, key)
		}
		if !msg.IsRead {
			g.ids = append(g.ids, msg.ID)
		}
		ids = append(ids, msg.ID)
	}

	if len(ids) == 0 {
		c.JSON(http.StatusOK, gin.H{"modifiedCount": 0})
		return
	}
	result, err := h.svc.MarkManyRead(ctx, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, key := range order {
		g := groups[key]
		if len(g.ids) == 0 {
			continue
		}
		h.notifier.NotifyRead(g.chat, models.ReadPayload{
			ChatID:     g.chat.ID,
			MessageIDs: g.ids,
			ReaderRole: g.reader,
			ReadAt:     result.ReadAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"modifiedCount": result.ModifiedCount})
}

type reactionRequest struct {
	UserID string `json:"userId" binding:"required"`
	Emoji  string `json:"emoji" binding:"required,max=40"`
}

func (h *ChatHandler) bindReaction(c *gin.Context, identity models.Identity) (reactionRequest, bool) {
	var req reactionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindError(err))
			return req, false
		}
	} else {
		req.UserID, req.Emoji = c.Query("userId"), c.Query("emoji")
	}
	if req.UserID == "" {
		req.UserID = identity.ID
	}
	if !identity.IsAdmin() && req.UserID != identity.ID {
		respondError(c, apperrors.Forbidden("cannot react on behalf of another party"))
		return req, false
	}
	return req, true
}

func (h *ChatHandler) AddReaction(c *gin.Context) {
	h.react(c, true)
}

func (h *ChatHandler) RemoveReaction(c *gin.Context) {
	h.react(c, false)
}

func (h *ChatHandler) react(c *gin.Context, add bool) {
	msg, _, identity, ok := h.loadMessage(c)
	if !ok {
		return
	}
	req, ok := h.bindReaction(c, identity)
	if !ok {
		return
	}
	var (
		updated models.Message
		err     error
		event   = models.EventReactionAdded
	)
	if add {
		updated, err = h.svc.AddReaction(c.Request.Context(), msg.ID, req.UserID, req.Emoji)
	} else {
		event = models.EventReactionRemoved
		updated, err = h.svc.RemoveReaction(c.Request.Context(), msg.ID, req.UserID, req.Emoji)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.NotifyReaction(event, updated, req.UserID, req.Emoji)
	c.JSON(http.StatusOK, updated)
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	msg, _, identity, ok := h.loadMessage(c)
	if !ok {
		return
	}
	if !identity.IsAdmin() && identity.Role != msg.SenderRole {
		respondError(c, apperrors.Forbidden("only the sender can delete a message"))
		return
	}
	deleted, err := h.svc.DeleteMessage(c.Request.Context(), msg.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.NotifyMessageDeleted(deleted.ChatID, deleted.ID)
	h.audit.Emit(c.Request.Context(), auditEntry(c, "message deleted", deleted.ChatID, deleted.ID))
	c.Status(http.StatusNoContent)
}
