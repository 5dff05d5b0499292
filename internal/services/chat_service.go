package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/logger"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/observability"
	"github.com/nufaill/fluffyCare-sub004/internal/repositories"
)

// SendResult is what SendMessage hands back for broadcasting. Chat is nil
// when the summary update was deferred to the resync worker.
type SendResult struct {
	Message models.Message
	Chat    *models.Chat
}

// ReadResult describes a read acknowledgement for one chat.
type ReadResult struct {
	ChatID     string
	ReaderRole models.Role
	MessageIDs []string
	ReadAt     time.Time
	Chat       models.Chat
}

// BulkReadResult reports a bulk read and the timestamp that was stored.
type BulkReadResult struct {
	ModifiedCount int64
	ReadAt        time.Time
}

// ChatService composes the chat and message stores into user actions.
type ChatService interface {
	GetOrCreateChat(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error)
	CreateChat(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	ListChats(ctx context.Context, partyID string, role models.Role, page, limit int) (models.ChatPage, error)
	SearchChats(ctx context.Context, query, searcherID string, role models.Role, page, limit int) (models.ChatPage, error)
	UpdateLastMessage(ctx context.Context, chatID, text string, msgType models.MessageType, at *time.Time) (models.Chat, error)
	IncrementUnread(ctx context.Context, chatID string, role models.Role) (models.Chat, error)
	ResetUnread(ctx context.Context, chatID string, role models.Role) (models.Chat, error)
	TotalUnread(ctx context.Context, partyID string, role models.Role) (int, error)
	DeleteChat(ctx context.Context, chatID string) (models.Chat, error)

	SendMessage(ctx context.Context, in models.NewMessage) (SendResult, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListMessages(ctx context.Context, chatID string, page, limit int, since *time.Time) (models.MessagePage, error)
	SearchMessages(ctx context.Context, chatID, query string, page, limit int) (models.MessagePage, error)
	MarkDelivered(ctx context.Context, messageID string) (models.Message, error)
	MarkRead(ctx context.Context, messageID string) (models.Message, error)
	MarkManyRead(ctx context.Context, messageIDs []string) (BulkReadResult, error)
	MarkChatRead(ctx context.Context, chatID string, receiver models.Role, messageIDs []string) (ReadResult, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) (models.Message, error)
}

type Service struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	retry    RetryPolicy
	resync   *resyncQueue
	now      func() time.Time
}

// Option tweaks a chat service at construction.
type Option func(*Service)

// WithRetryPolicy sets how summary syncs are retried inside a request.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewChatService builds the service. Call RunResyncWorker to drain deferred syncs.
func NewChatService(chats repositories.ChatRepository, messages repositories.MessageRepository, opts ...Option) *Service {
	s := &Service{
		chats:    chats,
		messages: messages,
		retry:    DefaultRetryPolicy(),
		resync:   &resyncQueue{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GetOrCreateChat(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	userID, shopID, err := pairIDs(userID, shopID)
	if err != nil {
		return models.Chat{}, err
	}
	chat, err := s.chats.GetOrCreate(ctx, userID, shopID, trimNames(names))
	return chat, mapErr(err)
}

func (s *Service) CreateChat(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	userID, shopID, err := pairIDs(userID, shopID)
	if err != nil {
		return models.Chat{}, err
	}
	chat, err := s.chats.Create(ctx, userID, shopID, trimNames(names))
	if err != nil {
		return models.Chat{}, mapErr(err)
	}
	_ = observability.PublishDomainEvent(ctx, observability.EventChatCreated, chat, "")
	return chat, nil
}

func (s *Service) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	chatID, err := requireID("chatId", chatID)
	if err != nil {
		return models.Chat{}, err
	}
	chat, err := s.chats.Get(ctx, chatID)
	return chat, mapErr(err)
}

func (s *Service) ListChats(ctx context.Context, partyID string, role models.Role, page, limit int) (models.ChatPage, error) {
	partyID, err := requireID("partyId", partyID)
	if err != nil {
		return models.ChatPage{}, err
	}
	if !role.Valid() {
		return models.ChatPage{}, apperrors.Validation("role must be User or Shop")
	}
	page, limit = models.ClampPage(page, limit)
	chats, total, err := s.chats.ListForParty(ctx, partyID, role, page, limit)
	if err != nil {
		return models.ChatPage{}, mapErr(err)
	}
	return chatPage(chats, role, page, limit, total), nil
}

func (s *Service) SearchChats(ctx context.Context, query, searcherID string, role models.Role, page, limit int) (models.ChatPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.ChatPage{}, apperrors.Validation("query is required")
	}
	searcherID, err := requireID("searcherId", searcherID)
	if err != nil {
		return models.ChatPage{}, err
	}
	if !role.Valid() {
		return models.ChatPage{}, apperrors.Validation("searcherRole must be User or Shop")
	}
	page, limit = models.ClampPage(page, limit)
	chats, total, err := s.chats.Search(ctx, query, searcherID, role, page, limit)
	if err != nil {
		return models.ChatPage{}, mapErr(err)
	}
	return chatPage(chats, role, page, limit, total), nil
}

func (s *Service) UpdateLastMessage(ctx context.Context, chatID, text string, msgType models.MessageType, at *time.Time) (models.Chat, error) {
	chatID, err := requireID("chatId", chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if msgType == "" {
		msgType = models.MessageText
	}
	if !msgType.Valid() {
		return models.Chat{}, apperrors.Validation("lastMessageType must be one of Text, Image, Video, Audio, File")
	}
	when := s.now()
	if at != nil {
		when = *at
	}
	chat, err := s.chats.UpdateLastMessage(ctx, chatID, text, msgType, when)
	return chat, mapErr(err)
}

func (s *Service) IncrementUnread(ctx context.Context, chatID string, role models.Role) (models.Chat, error) {
	chatID, err := requireID("chatId", chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !role.Valid() {
		return models.Chat{}, apperrors.Validation("role must be User or Shop")
	}
	chat, err := s.chats.IncrementUnread(ctx, chatID, role)
	return chat, mapErr(err)
}

func (s *Service) ResetUnread(ctx context.Context, chatID string, role models.Role) (models.Chat, error) {
	chatID, err := requireID("chatId", chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !role.Valid() {
		return models.Chat{}, apperrors.Validation("role must be User or Shop")
	}
	chat, err := s.chats.ResetUnread(ctx, chatID, role)
	return chat, mapErr(err)
}

func (s *Service) TotalUnread(ctx context.Context, partyID string, role models.Role) (int, error) {
	partyID, err := requireID("partyId", partyID)
	if err != nil {
		return 0, err
	}
	if !role.Valid() {
		return 0, apperrors.Validation("role must be User or Shop")
	}
	total, err := s.chats.TotalUnread(ctx, partyID, role)
	return total, mapErr(err)
}

// DeleteChat removes the chat and its messages and returns what was deleted.
func (s *Service) DeleteChat(ctx context.Context, chatID string) (models.Chat, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	removed, err := s.chats.Delete(ctx, chat.ID)
	if err != nil {
		return models.Chat{}, mapErr(err)
	}
	logger.Info("chat deleted chat_id=%s messages=%d", chat.ID, removed)
	_ = observability.PublishDomainEvent(ctx, observability.EventChatDeleted, map[string]interface{}{
		"chatId":   chat.ID,
		"userId":   chat.UserID,
		"shopId":   chat.ShopID,
		"messages": removed,
	}, "")
	return chat, nil
}

// SendMessage stores the message and then brings the chat summary in line.
// The message is never rolled back; a summary that cannot be synced within the
// retry policy is queued for the resync worker.
func (s *Service) SendMessage(ctx context.Context, in models.NewMessage) (SendResult, error) {
	in.ChatID = strings.TrimSpace(in.ChatID)
	in.MediaURL = strings.TrimSpace(in.MediaURL)
	if err := in.Validate(); err != nil {
		return SendResult{}, err
	}

	msg, err := s.messages.Create(ctx, in)
	if err != nil {
		return SendResult{}, mapErr(err)
	}
	observability.IncMessageSent(string(msg.SenderRole), string(msg.MessageType))

	task := &syncTask{
		ChatID:    msg.ChatID,
		Preview:   msg.Preview(),
		Type:      msg.MessageType,
		At:        msg.CreatedAt,
		Recipient: msg.SenderRole.Counterpart(),
	}
	result := SendResult{Message: msg}
	chat, err := s.syncWithRetry(ctx, task)
	switch {
	case err == nil:
		result.Chat = &chat
	case errors.Is(err, repositories.ErrChatNotFound):
		logger.Warn("chat %s vanished before summary sync of message %s", msg.ChatID, msg.ID)
	default:
		logger.Warn("deferring summary sync chat_id=%s message_id=%s: %v", msg.ChatID, msg.ID, err)
		s.resync.push(task)
	}

	_ = observability.PublishDomainEvent(ctx, observability.EventMessageSent, msg, "")
	return result, nil
}

func (s *Service) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	messageID, err := requireID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.Get(ctx, messageID)
	return msg, mapErr(err)
}

func (s *Service) ListMessages(ctx context.Context, chatID string, page, limit int, since *time.Time) (models.MessagePage, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return models.MessagePage{}, err
	}
	page, limit = models.ClampPage(page, limit)
	msgs, total, err := s.messages.ListByChat(ctx, chat.ID, page, limit, since)
	if err != nil {
		return models.MessagePage{}, mapErr(err)
	}
	return messagePage(msgs, page, limit, total), nil
}

func (s *Service) SearchMessages(ctx context.Context, chatID, query string, page, limit int) (models.MessagePage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.MessagePage{}, apperrors.Validation("query is required")
	}
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return models.MessagePage{}, err
	}
	page, limit = models.ClampPage(page, limit)
	msgs, total, err := s.messages.SearchInChat(ctx, chat.ID, query, page, limit)
	if err != nil {
		return models.MessagePage{}, mapErr(err)
	}
	return messagePage(msgs, page, limit, total), nil
}

func (s *Service) MarkDelivered(ctx context.Context, messageID string) (models.Message, error) {
	messageID, err := requireID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.MarkDelivered(ctx, messageID, s.now())
	return msg, mapErr(err)
}

func (s *Service) MarkRead(ctx context.Context, messageID string) (models.Message, error) {
	messageID, err := requireID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.MarkRead(ctx, messageID, s.now())
	return msg, mapErr(err)
}

func (s *Service) MarkManyRead(ctx context.Context, messageIDs []string) (BulkReadResult, error) {
	ids := trimIDs(messageIDs)
	if len(ids) == 0 {
		return BulkReadResult{}, apperrors.Validation("messageIds is required")
	}
	at := s.now()
	count, err := s.messages.MarkManyRead(ctx, ids, at)
	if err != nil {
		return BulkReadResult{}, mapErr(err)
	}
	return BulkReadResult{ModifiedCount: count, ReadAt: at}, nil
}

// MarkChatRead marks the receiver's unread messages read and then zeroes the
// receiver's counter whether or not any message changed.
func (s *Service) MarkChatRead(ctx context.Context, chatID string, receiver models.Role, messageIDs []string) (ReadResult, error) {
	if !receiver.Valid() {
		return ReadResult{}, apperrors.Validation("role must be User or Shop")
	}
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return ReadResult{}, err
	}

	at := s.now()
	var changed []string
	if ids := trimIDs(messageIDs); len(ids) > 0 {
		changed, err = s.messages.MarkChatMessagesRead(ctx, chat.ID, receiver, ids, at)
	} else {
		changed, err = s.messages.MarkAllReadForReceiver(ctx, chat.ID, receiver, at)
	}
	if err != nil {
		return ReadResult{}, mapErr(err)
	}

	chat, err = s.chats.ResetUnread(ctx, chat.ID, receiver)
	if err != nil {
		return ReadResult{}, mapErr(err)
	}
	if changed == nil {
		changed = []string{}
	}

	result := ReadResult{ChatID: chat.ID, ReaderRole: receiver, MessageIDs: changed, ReadAt: at, Chat: chat}
	if len(changed) > 0 {
		_ = observability.PublishDomainEvent(ctx, observability.EventMessagesRead, models.ReadPayload{
			ChatID:     chat.ID,
			MessageIDs: changed,
			ReaderRole: receiver,
			ReadAt:     at,
		}, "")
	}
	return result, nil
}

func (s *Service) AddReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	messageID, err := requireID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	userID, err = requireID("userId", userID)
	if err != nil {
		return models.Message{}, err
	}
	emoji = strings.TrimSpace(emoji)
	if err := models.ValidateEmoji(emoji); err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.AddReaction(ctx, messageID, userID, emoji)
	return msg, mapErr(err)
}

func (s *Service) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	messageID, err := requireID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	userID, err = requireID("userId", userID)
	if err != nil {
		return models.Message{}, err
	}
	emoji = strings.TrimSpace(emoji)
	if err := models.ValidateEmoji(emoji); err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.RemoveReaction(ctx, messageID, userID, emoji)
	return msg, mapErr(err)
}

func (s *Service) DeleteMessage(ctx context.Context, messageID string) (models.Message, error) {
	messageID, err := requireID("messageId", messageID)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return models.Message{}, mapErr(err)
	}
	_ = observability.PublishDomainEvent(ctx, observability.EventMessageDeleted, models.MessageDeletedPayload{ChatID: msg.ChatID, MessageID: msg.ID}, "")
	return msg, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repositories.ErrChatNotFound):
		return apperrors.NotFound("chat", err)
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperrors.NotFound("message", err)
	case errors.Is(err, repositories.ErrChatExists):
		return apperrors.Conflict("chat already exists for this user and shop", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Transport("request cancelled", err)
	}
	return apperrors.Internal("storage failure", err)
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.Validation(field + " is required")
	}
	return value, nil
}

func pairIDs(userID, shopID string) (string, string, error) {
	userID, err := requireID("userId", userID)
	if err != nil {
		return "", "", err
	}
	shopID, err = requireID("shopId", shopID)
	if err != nil {
		return "", "", err
	}
	return userID, shopID, nil
}

func trimNames(names models.ParticipantNames) models.ParticipantNames {
	return models.ParticipantNames{
		UserName: strings.TrimSpace(names.UserName),
		ShopName: strings.TrimSpace(names.ShopName),
	}
}

func trimIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func chatPage(chats []models.Chat, role models.Role, page, limit, total int) models.ChatPage {
	views := make([]models.ChatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, chat.ViewFor(role))
	}
	pages := models.TotalPages(total, limit)
	return models.ChatPage{
		Chats:       views,
		TotalPages:  pages,
		CurrentPage: page,
		TotalChats:  total,
		HasMore:     page < pages,
	}
}

func messagePage(msgs []models.Message, page, limit, total int) models.MessagePage {
	if msgs == nil {
		msgs = []models.Message{}
	}
	pages := models.TotalPages(total, limit)
	return models.MessagePage{
		Messages:      msgs,
		TotalPages:    pages,
		CurrentPage:   page,
		TotalMessages: total,
		HasMore:       page < pages,
	}
}
