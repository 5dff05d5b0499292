package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/repositories"
)

var (
	_ repositories.ChatRepository    = (*ChatRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
)

type ChatRepositoryMock struct {
	mock.Mock
}

func chatArg(args mock.Arguments) models.Chat {
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat
}

func chatsArg(args mock.Arguments) []models.Chat {
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats
}

func (m *ChatRepositoryMock) GetOrCreate(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	args := m.Called(ctx, userID, shopID, names)
	return chatArg(args), args.Error(1)
}

func (m *ChatRepositoryMock) Create(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	args := m.Called(ctx, userID, shopID, names)
	return chatArg(args), args.Error(1)
}

func (m *ChatRepositoryMock) Get(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	return chatArg(args), args.Error(1)
}

func (m *ChatRepositoryMock) ListForParty(ctx context.Context, partyID string, role models.Role, page, limit int) ([]models.Chat, int, error) {
	args := m.Called(ctx, partyID, role, page, limit)
	return chatsArg(args), args.Int(1), args.Error(2)
}

func (m *ChatRepositoryMock) Search(ctx context.Context, query, searcherID string, searcherRole models.Role, page, limit int) ([]models.Chat, int, error) {
	args := m.Called(ctx, query, searcherID, searcherRole, page, limit)
	return chatsArg(args), args.Int(1), args.Error(2)
}

func (m *ChatRepositoryMock) UpdateLastMessage(ctx context.Context, chatID, text string, msgType models.MessageType, at time.Time) (models.Chat, error) {
	args := m.Called(ctx, chatID, text, msgType, at)
	return chatArg(args), args.Error(1)
}

func (m *ChatRepositoryMock) IncrementUnread(ctx context.Context, chatID string, forRole models.Role) (models.Chat, error) {
	args := m.Called(ctx, chatID, forRole)
	return chatArg(args), args.Error(1)
}

func (m *ChatRepositoryMock) ResetUnread(ctx context.Context, chatID string, forRole models.Role) (models.Chat, error) {
	args := m.Called(ctx, chatID, forRole)
	return chatArg(args), args.Error(1)
}

func (m *ChatRepositoryMock) TotalUnread(ctx context.Context, partyID string, role models.Role) (int, error) {
	args := m.Called(ctx, partyID, role)
	return args.Int(0), args.Error(1)
}

func (m *ChatRepositoryMock) Delete(ctx context.Context, chatID string) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func messageArg(args mock.Arguments) models.Message {
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg
}

func messagesArg(args mock.Arguments) []models.Message {
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs
}

func stringsArg(args mock.Arguments) []string {
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids
}

func (m *MessageRepositoryMock) Create(ctx context.Context, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) ListByChat(ctx context.Context, chatID string, page, limit int, since *time.Time) ([]models.Message, int, error) {
	args := m.Called(ctx, chatID, page, limit, since)
	return messagesArg(args), args.Int(1), args.Error(2)
}

func (m *MessageRepositoryMock) MarkDelivered(ctx context.Context, messageID string, at time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, at)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID string, at time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, at)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) MarkManyRead(ctx context.Context, messageIDs []string, at time.Time) (int64, error) {
	args := m.Called(ctx, messageIDs, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MarkChatMessagesRead(ctx context.Context, chatID string, receiver models.Role, messageIDs []string, at time.Time) ([]string, error) {
	args := m.Called(ctx, chatID, receiver, messageIDs, at)
	return stringsArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) MarkAllReadForReceiver(ctx context.Context, chatID string, receiver models.Role, at time.Time) ([]string, error) {
	args := m.Called(ctx, chatID, receiver, at)
	return stringsArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) AddReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) SearchInChat(ctx context.Context, chatID, query string, page, limit int) ([]models.Message, int, error) {
	args := m.Called(ctx, chatID, query, page, limit)
	return messagesArg(args), args.Int(1), args.Error(2)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}
