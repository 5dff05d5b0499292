package ws

import (
	"time"

	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

// NotifyNewMessage fans a stored message out to the chat room, skipping the
// sender's own connection when known.
func (h *Hub) NotifyNewMessage(msg models.Message, senderConnID string) int {
	return h.BroadcastToRoom(msg.ChatID, models.EventNewMessage, msg, senderConnID)
}

// NotifyChatUpdated pushes each participant its own view of the chat.
func (h *Hub) NotifyChatUpdated(chat models.Chat) {
	h.SendToParty(chat.UserID, models.RoleUser, models.EventChatUpdated, chat.ViewFor(models.RoleUser))
	h.SendToParty(chat.ShopID, models.RoleShop, models.EventChatUpdated, chat.ViewFor(models.RoleShop))
}

// NotifyDelivered tells the sender's connections that msg reached the recipient.
func (h *Hub) NotifyDelivered(chat models.Chat, msg models.Message) int {
	at := time.Now()
	if msg.DeliveredAt != nil {
		at = *msg.DeliveredAt
	}
	payload := models.DeliveredPayload{ChatID: chat.ID, MessageID: msg.ID, DeliveredAt: at}
	return h.SendToParty(chat.PartyID(msg.SenderRole), msg.SenderRole, models.EventMessageDelivered, payload)
}

// NotifyRead tells the senders of the read messages, the reader's counterpart.
func (h *Hub) NotifyRead(chat models.Chat, payload models.ReadPayload) int {
	sender := payload.ReaderRole.Counterpart()
	return h.SendToParty(chat.PartyID(sender), sender, models.EventMessageRead, payload)
}

// NotifyReaction broadcasts a reaction change with the message's full reaction list.
func (h *Hub) NotifyReaction(event string, msg models.Message, userID, emoji string) int {
	return h.BroadcastToRoom(msg.ChatID, event, models.ReactionPayload{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		UserID:    userID,
		Emoji:     emoji,
		Reactions: msg.Reactions,
	}, "")
}

// NotifyMessageDeleted broadcasts a message removal to the room.
func (h *Hub) NotifyMessageDeleted(chatID, messageID string) int {
	return h.BroadcastToRoom(chatID, models.EventMessageDeleted, models.MessageDeletedPayload{ChatID: chatID, MessageID: messageID}, "")
}
