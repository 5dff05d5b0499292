package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/services"
)

var _ services.ChatService = (*ChatServiceMock)(nil)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) GetOrCreateChat(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	args := m.Called(ctx, userID, shopID, names)
	return chatArg(args), args.Error(1)
}

func (m *ChatServiceMock) CreateChat(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	args := m.Called(ctx, userID, shopID, names)
	return chatArg(args), args.Error(1)
}

func (m *ChatServiceMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	return chatArg(args), args.Error(1)
}

func (m *ChatServiceMock) ListChats(ctx context.Context, partyID string, role models.Role, page, limit int) (models.ChatPage, error) {
	args := m.Called(ctx, partyID, role, page, limit)
	var out models.ChatPage
	if val := args.Get(0); val != nil {
		out = val.(models.ChatPage)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) SearchChats(ctx context.Context, query, searcherID string, role models.Role, page, limit int) (models.ChatPage, error) {
	args := m.Called(ctx, query, searcherID, role, page, limit)
	var out models.ChatPage
	if val := args.Get(0); val != nil {
		out = val.(models.ChatPage)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) UpdateLastMessage(ctx context.Context, chatID, text string, msgType models.MessageType, at *time.Time) (models.Chat, error) {
	args := m.Called(ctx, chatID, text, msgType, at)
	return chatArg(args), args.Error(1)
}

func (m *ChatServiceMock) IncrementUnread(ctx context.Context, chatID string, role models.Role) (models.Chat, error) {
	args := m.Called(ctx, chatID, role)
	return chatArg(args), args.Error(1)
}

func (m *ChatServiceMock) ResetUnread(ctx context.Context, chatID string, role models.Role) (models.Chat, error) {
	args := m.Called(ctx, chatID, role)
	return chatArg(args), args.Error(1)
}

func (m *ChatServiceMock) TotalUnread(ctx context.Context, partyID string, role models.Role) (int, error) {
	args := m.Called(ctx, partyID, role)
	return args.Int(0), args.Error(1)
}

func (m *ChatServiceMock) DeleteChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	return chatArg(args), args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, in models.NewMessage) (services.SendResult, error) {
	args := m.Called(ctx, in)
	var out services.SendResult
	if val := args.Get(0); val != nil {
		out = val.(services.SendResult)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, chatID string, page, limit int, since *time.Time) (models.MessagePage, error) {
	args := m.Called(ctx, chatID, page, limit, since)
	var out models.MessagePage
	if val := args.Get(0); val != nil {
		out = val.(models.MessagePage)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) SearchMessages(ctx context.Context, chatID, query string, page, limit int) (models.MessagePage, error) {
	args := m.Called(ctx, chatID, query, page, limit)
	var out models.MessagePage
	if val := args.Get(0); val != nil {
		out = val.(models.MessagePage)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) MarkDelivered(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func (m *ChatServiceMock) MarkRead(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}

func (m *ChatServiceMock) MarkManyRead(ctx context.Context, messageIDs []string) (services.BulkReadResult, error) {
	args := m.Called(ctx, messageIDs)
	result, _ := args.Get(0).(services.BulkReadResult)
	return result, args.Error(1)
}

func (m *ChatServiceMock) MarkChatRead(ctx context.Context, chatID string, receiver models.Role, messageIDs []string) (services.ReadResult, error) {
	args := m.Called(ctx, chatID, receiver, messageIDs)
	var out services.ReadResult
	if val := args.Get(0); val != nil {
		out = val.(services.ReadResult)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) AddReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return messageArg(args), args.Error(1)
}

func (m *ChatServiceMock) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return messageArg(args), args.Error(1)
}

func (m *ChatServiceMock) DeleteMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args), args.Error(1)
}
