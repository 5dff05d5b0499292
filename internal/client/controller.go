package client

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

// ChatAPI is the REST surface the controller reads and writes through.
type ChatAPI interface {
	ListChats(ctx context.Context, partyID string, role models.Role, page, limit int) ([]json.RawMessage, error)
	ListMessages(ctx context.Context, chatID string, page, limit int) (models.MessagePage, error)
	SendMessage(ctx context.Context, req SendRequest) (models.Message, error)
	MarkChatRead(ctx context.Context, chatID string, role models.Role) error
}

// RoomGateway is the part of Gateway the controller needs.
type RoomGateway interface {
	On(event string, fn Listener) func()
	JoinChat(chatID, userID string, role models.Role) error
	LeaveChat(chatID, userID string) error
}

var (
	_ ChatAPI     = (*RESTClient)(nil)
	_ RoomGateway = (*Gateway)(nil)
)

// DefaultReadAckDelay coalesces read acknowledgements for a burst of incoming
// messages in the open chat into one request.
const DefaultReadAckDelay = 750 * time.Millisecond

type SendStatus string

const (
	SendPending SendStatus = "pending"
	SendSent    SendStatus = "sent"
	SendFailed  SendStatus = "failed"
)

// LocalMessage is a message in the open conversation. LocalID is set for
// messages sent from this client and stays stable across reconciliation.
type LocalMessage struct {
	models.Message
	LocalID string
	Status  SendStatus
	Err     error
}

// Controller reconciles the REST chat list, REST history pages and live
// socket events into one view for a single signed-in party.
type Controller struct {
	me     models.Identity
	api    ChatAPI
	gw     RoomGateway
	typing   *TypingTracker
	now      func() time.Time
	ackDelay time.Duration

	mu       sync.Mutex
	chats    []ChatItem
	active   string
	messages []LocalMessage
	unsubs   []func()
	ackTimer *time.Timer
}

// NewController wires the controller to the gateway's events.
func NewController(me models.Identity, api ChatAPI, gw RoomGateway) *Controller {
	c := &Controller{
		me:     me,
		api:    api,
		gw:     gw,
		typing:   NewTypingTracker(DefaultTypingTTL),
		now:      time.Now,
		ackDelay: DefaultReadAckDelay,
	}
	c.unsubs = []func(){
		gw.On(models.EventNewMessage, decodeInto(c.HandleNewMessage)),
		gw.On(models.EventChatUpdated, c.handleChatUpdated),
		gw.On(models.EventMessageDelivered, decodeInto(c.handleDelivered)),
		gw.On(models.EventMessageRead, decodeInto(c.handleRead)),
		gw.On(models.EventMessageDeleted, decodeInto(c.handleDeleted)),
		gw.On(models.EventReactionAdded, decodeInto(c.handleReaction)),
		gw.On(models.EventReactionRemoved, decodeInto(c.handleReaction)),
		gw.On(models.EventUserTyping, decodeInto(func(p models.TypingPayload) {
			if p.UserID != c.me.ID {
				c.typing.Start(p.ChatID, p.UserID)
			}
		})),
		gw.On(models.EventUserStoppedTyping, decodeInto(func(p models.TypingPayload) {
			c.typing.Stop(p.ChatID, p.UserID)
		})),
	}
	return c
}

func decodeInto[T any](fn func(T)) Listener {
	return func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			logger.Warn("dropping undecodable socket payload: %v", err)
			return
		}
		fn(v)
	}
}

// Close detaches from the gateway and leaves the open room.
func (c *Controller) Close() {
	c.CloseChat()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// LoadChats replaces the chat list with the first page from the server.
// Records that fail normalization are kept and flagged.
func (c *Controller) LoadChats(ctx context.Context, limit int) ([]ChatItem, error) {
	raws, err := c.api.ListChats(ctx, c.me.ID, c.me.Role, 1, limit)
	if err != nil {
		return nil, err
	}
	items := make([]ChatItem, 0, len(raws))
	for _, raw := range raws {
		item := NormalizeChat(raw, c.me.Role)
		if !item.Healthy() {
			logger.Warn("chat %q needs attention: %s", item.ID, item.Issue)
		}
		items = append(items, item)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = items
	sortChats(c.chats)
	return append([]ChatItem(nil), c.chats...), nil
}

// OpenChat makes chatID the active conversation: it leaves the previous room,
// joins the new one, loads the newest page and acknowledges it as read.
func (c *Controller) OpenChat(ctx context.Context, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return apperrors.Validation("chatId is required")
	}

	c.mu.Lock()
	prev := c.active
	c.active = chatID
	if prev != chatID {
		c.messages = nil
	}
	c.stopReadAckLocked()
	c.mu.Unlock()

	if prev != "" && prev != chatID {
		if err := c.gw.LeaveChat(prev, c.me.ID); err != nil {
			logger.Warn("leave chat %s: %v", prev, err)
		}
	}
	if err := c.gw.JoinChat(chatID, c.me.ID, c.me.Role); err != nil {
		return err
	}

	page, err := c.api.ListMessages(ctx, chatID, 1, models.DefaultPageLimit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.active == chatID {
		for _, msg := range page.Messages {
			if c.indexOf(msg.ID) < 0 {
				c.insertSorted(LocalMessage{Message: msg, Status: SendSent})
			}
		}
		if i := c.chatIndex(chatID); i >= 0 {
			c.chats[i].UnreadCount = 0
		}
	}
	c.mu.Unlock()

	if err := c.api.MarkChatRead(ctx, chatID, c.me.Role); err != nil {
		logger.Warn("mark chat %s read: %v", chatID, err)
	}
	return nil
}

// CloseChat leaves the active room.
func (c *Controller) CloseChat() {
	c.mu.Lock()
	prev := c.active
	c.active = ""
	c.messages = nil
	c.stopReadAckLocked()
	c.mu.Unlock()
	if prev != "" {
		if err := c.gw.LeaveChat(prev, c.me.ID); err != nil {
			logger.Warn("leave chat %s: %v", prev, err)
		}
	}
}

// HandleNewMessage applies a pushed message. For the open conversation it is
// merged by id in timestamp order and acknowledged as read shortly after; for
// any other chat the unread badge is bumped and the list reordered without a
// fetch.
func (c *Controller) HandleNewMessage(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	isActive := msg.ChatID == c.active
	if isActive && c.indexOf(msg.ID) < 0 {
		c.insertSorted(LocalMessage{Message: msg, Status: SendSent})
	}
	if isActive && msg.SenderRole != c.me.Role {
		c.scheduleReadAckLocked(msg.ChatID)
	}

	i := c.chatIndex(msg.ChatID)
	if i < 0 {
		logger.Debug("new message for unknown chat %s", msg.ChatID)
		return
	}
	c.applyPreview(i, msg)
	if !isActive && msg.SenderRole != c.me.Role {
		c.chats[i].UnreadCount++
	}
	sortChats(c.chats)
}

// scheduleReadAckLocked arms one pending read acknowledgement for chatID.
// Messages arriving while it is pending ride on the same request.
func (c *Controller) scheduleReadAckLocked(chatID string) {
	if c.ackTimer != nil {
		return
	}
	c.ackTimer = time.AfterFunc(c.ackDelay, func() { c.flushReadAck(chatID) })
}

func (c *Controller) stopReadAckLocked() {
	if c.ackTimer != nil {
		c.ackTimer.Stop()
		c.ackTimer = nil
	}
}

func (c *Controller) flushReadAck(chatID string) {
	c.mu.Lock()
	c.ackTimer = nil
	stillOpen := c.active == chatID
	c.mu.Unlock()
	if !stillOpen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.api.MarkChatRead(ctx, chatID, c.me.Role); err != nil {
		logger.Warn("mark chat %s read: %v", chatID, err)
	}
}

// Send posts a message to the active chat. The message shows up at once as
// pending and ends up either sent or failed; a failed one stays for Resend.
func (c *Controller) Send(ctx context.Context, msgType models.MessageType, content, mediaURL string) (LocalMessage, error) {
	if msgType == "" {
		msgType = models.MessageText
	}
	c.mu.Lock()
	chatID := c.active
	c.mu.Unlock()
	if chatID == "" {
		return LocalMessage{}, apperrors.Validation("no open chat")
	}
	in := models.NewMessage{ChatID: chatID, SenderRole: c.me.Role, MessageType: msgType, Content: content, MediaURL: mediaURL}
	if err := in.Validate(); err != nil {
		return LocalMessage{}, err
	}

	localID := "local-" + uuid.NewString()
	local := LocalMessage{
		Message: models.Message{
			ID:          localID,
			ChatID:      chatID,
			SenderRole:  c.me.Role,
			MessageType: msgType,
			Content:     content,
			Reactions:   []models.Reaction{},
			CreatedAt:   c.now(),
		},
		LocalID: localID,
		Status:  SendPending,
	}
	if mediaURL != "" {
		local.MediaURL = &mediaURL
	}

	c.mu.Lock()
	c.insertSorted(local)
	c.mu.Unlock()
	return c.deliver(ctx, local)
}

// Resend retries a failed message by its local id.
func (c *Controller) Resend(ctx context.Context, localID string) (LocalMessage, error) {
	c.mu.Lock()
	i := c.localIndex(localID)
	if i < 0 {
		c.mu.Unlock()
		return LocalMessage{}, apperrors.NotFound("local message", nil)
	}
	if c.messages[i].Status != SendFailed {
		c.mu.Unlock()
		return LocalMessage{}, apperrors.Validation("message is not in failed state")
	}
	c.messages[i].Status = SendPending
	c.messages[i].Err = nil
	local := c.messages[i]
	c.mu.Unlock()
	return c.deliver(ctx, local)
}

func (c *Controller) deliver(ctx context.Context, local LocalMessage) (LocalMessage, error) {
	req := SendRequest{
		ChatID:      local.ChatID,
		SenderRole:  local.SenderRole,
		MessageType: local.MessageType,
		Content:     local.Content,
	}
	if local.MediaURL != nil {
		req.MediaURL = *local.MediaURL
	}
	stored, err := c.api.SendMessage(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.localIndex(local.LocalID)
	if err != nil {
		local.Status = SendFailed
		local.Err = err
		if i >= 0 {
			c.messages[i] = local
		}
		return local, err
	}

	sent := LocalMessage{Message: stored, LocalID: local.LocalID, Status: SendSent}
	if i >= 0 {
		c.messages = append(c.messages[:i], c.messages[i+1:]...)
		if c.indexOf(stored.ID) < 0 {
			c.insertSorted(sent)
		}
	}
	if j := c.chatIndex(stored.ChatID); j >= 0 {
		c.applyPreview(j, stored)
		sortChats(c.chats)
	}
	return sent, nil
}

func (c *Controller) handleChatUpdated(data json.RawMessage) {
	item := NormalizeChat(data, c.me.Role)
	if item.ID == "" {
		logger.Warn("chat-updated without id: %s", item.Issue)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if item.ID == c.active {
		item.UnreadCount = 0
	}
	if i := c.chatIndex(item.ID); i >= 0 {
		if !item.Healthy() && c.chats[i].Healthy() {
			item.UserID, item.ShopID, item.Issue = c.chats[i].UserID, c.chats[i].ShopID, ""
		}
		c.chats[i] = item
	} else {
		c.chats = append(c.chats, item)
	}
	sortChats(c.chats)
}

func (c *Controller) handleDelivered(p models.DeliveredPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ChatID != c.active {
		return
	}
	if i := c.indexOf(p.MessageID); i >= 0 && c.messages[i].DeliveredAt == nil {
		at := p.DeliveredAt
		c.messages[i].DeliveredAt = &at
	}
}

func (c *Controller) handleRead(p models.ReadPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ChatID != c.active {
		return
	}
	for _, id := range p.MessageIDs {
		i := c.indexOf(id)
		if i < 0 {
			continue
		}
		at := p.ReadAt
		m := &c.messages[i]
		m.IsRead = true
		if m.ReadAt == nil {
			m.ReadAt = &at
		}
		if m.DeliveredAt == nil {
			m.DeliveredAt = &at
		}
	}
}

func (c *Controller) handleDeleted(p models.MessageDeletedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ChatID != c.active {
		return
	}
	if i := c.indexOf(p.MessageID); i >= 0 {
		c.messages = append(c.messages[:i], c.messages[i+1:]...)
	}
}

func (c *Controller) handleReaction(p models.ReactionPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ChatID != c.active {
		return
	}
	if i := c.indexOf(p.MessageID); i >= 0 {
		reactions := p.Reactions
		if reactions == nil {
			reactions = []models.Reaction{}
		}
		c.messages[i].Reactions = reactions
	}
}

// Chats returns the chat list, most recent first.
func (c *Controller) Chats() []ChatItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatItem(nil), c.chats...)
}

// Messages returns the open conversation in timestamp order.
func (c *Controller) Messages() []LocalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LocalMessage(nil), c.messages...)
}

func (c *Controller) ActiveChat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// TotalUnread sums the badges of the loaded chats.
func (c *Controller) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, chat := range c.chats {
		total += chat.UnreadCount
	}
	return total
}

// Typing returns who else is typing in chatID.
func (c *Controller) Typing(chatID string) []string {
	return c.typing.Active(chatID)
}

func (c *Controller) indexOf(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) localIndex(localID string) int {
	for i := range c.messages {
		if c.messages[i].LocalID == localID {
			return i
		}
	}
	return -1
}

func (c *Controller) chatIndex(chatID string) int {
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

// insertSorted places m after every message created at or before it.
func (c *Controller) insertSorted(m LocalMessage) {
	i := sort.Search(len(c.messages), func(i int) bool {
		return c.messages[i].CreatedAt.After(m.CreatedAt)
	})
	c.messages = append(c.messages, LocalMessage{})
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = m
}

// applyPreview moves the chat preview forward; older messages never win.
func (c *Controller) applyPreview(i int, msg models.Message) {
	chat := &c.chats[i]
	if chat.LastMessageAt != nil && msg.CreatedAt.Before(*chat.LastMessageAt) {
		return
	}
	at := msg.CreatedAt
	chat.LastMessage = msg.Preview()
	chat.LastMessageType = msg.MessageType
	chat.LastMessageAt = &at
}

func sortChats(chats []ChatItem) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i].LastMessageAt, chats[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}
