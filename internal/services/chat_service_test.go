package services_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/mocks"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
	"github.com/nufaill/fluffyCare-sub004/internal/repositories"
	"github.com/nufaill/fluffyCare-sub004/internal/services"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(chats *mocks.ChatRepositoryMock, messages *mocks.MessageRepositoryMock) *services.Service {
	return services.NewChatService(chats, messages,
		services.WithClock(func() time.Time { return fixedNow }),
		services.WithRetryPolicy(services.RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}),
	)
}

func textMessage(chatID string, sender models.Role, content string) models.NewMessage {
	return models.NewMessage{ChatID: chatID, SenderRole: sender, MessageType: models.MessageText, Content: content}
}

func TestSendMessage_SyncsSummaryAndRecipientUnread(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	in := textMessage("c1", models.RoleUser, "Hi")
	stored := models.Message{ID: "m1", ChatID: "c1", SenderRole: models.RoleUser, MessageType: models.MessageText, Content: "Hi", CreatedAt: fixedNow}
	messages.On("Create", mock.Anything, in).Return(stored, nil)
	chats.On("UpdateLastMessage", mock.Anything, "c1", "Hi", models.MessageText, fixedNow).Return(models.Chat{ID: "c1", LastMessage: "Hi"}, nil)
	chats.On("IncrementUnread", mock.Anything, "c1", models.RoleShop).Return(models.Chat{ID: "c1", LastMessage: "Hi", ShopUnreadCount: 1}, nil)

	result, err := svc.SendMessage(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, "m1", result.Message.ID)
	require.NotNil(t, result.Chat)
	assert.Equal(t, 1, result.Chat.ShopUnreadCount)
	assert.Zero(t, result.Chat.UserUnreadCount)
	chats.AssertNotCalled(t, "IncrementUnread", mock.Anything, "c1", models.RoleUser)
	chats.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestSendMessage_RejectsInvalidInputBeforeWriting(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	cases := []models.NewMessage{
		textMessage("c1", models.RoleUser, "   "),
		{ChatID: "c1", SenderRole: models.RoleShop, MessageType: models.MessageImage},
		{ChatID: "c1", SenderRole: models.RoleAdmin, MessageType: models.MessageText, Content: "x"},
		{ChatID: "c1", SenderRole: models.RoleUser, MessageType: "Sticker", Content: "x"},
	}
	for _, in := range cases {
		_, err := svc.SendMessage(context.Background(), in)
		assert.True(t, apperrors.Is(err, apperrors.CodeValidation), "input %+v", in)
	}
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendMessage_UnknownChatIsNotFound(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	in := textMessage("missing", models.RoleUser, "Hi")
	messages.On("Create", mock.Anything, in).Return(nil, repositories.ErrChatNotFound)

	_, err := svc.SendMessage(context.Background(), in)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSendMessage_RetriesOnlyTheFailedStep(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	in := textMessage("c1", models.RoleShop, "Ready for pickup")
	stored := models.Message{ID: "m2", ChatID: "c1", SenderRole: models.RoleShop, MessageType: models.MessageText, Content: in.Content, CreatedAt: fixedNow}
	messages.On("Create", mock.Anything, in).Return(stored, nil)
	chats.On("UpdateLastMessage", mock.Anything, "c1", in.Content, models.MessageText, fixedNow).Return(models.Chat{ID: "c1"}, nil).Once()
	chats.On("IncrementUnread", mock.Anything, "c1", models.RoleUser).Return(nil, errors.New("deadlock detected")).Once()
	chats.On("IncrementUnread", mock.Anything, "c1", models.RoleUser).Return(models.Chat{ID: "c1", UserUnreadCount: 1}, nil).Once()

	result, err := svc.SendMessage(context.Background(), in)

	require.NoError(t, err)
	require.NotNil(t, result.Chat)
	assert.Equal(t, 1, result.Chat.UserUnreadCount)
	chats.AssertNumberOfCalls(t, "UpdateLastMessage", 1)
	chats.AssertNumberOfCalls(t, "IncrementUnread", 2)
	assert.Zero(t, svc.PendingSyncs())
}

func TestSendMessage_DefersSyncAfterRetriesAndWorkerCatchesUp(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	in := textMessage("c1", models.RoleUser, "Hello?")
	stored := models.Message{ID: "m3", ChatID: "c1", SenderRole: models.RoleUser, MessageType: models.MessageText, Content: in.Content, CreatedAt: fixedNow}
	messages.On("Create", mock.Anything, in).Return(stored, nil)
	chats.On("UpdateLastMessage", mock.Anything, "c1", in.Content, models.MessageText, fixedNow).Return(nil, errors.New("connection reset")).Times(3)

	result, err := svc.SendMessage(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, "m3", result.Message.ID)
	assert.Nil(t, result.Chat)
	assert.Equal(t, 1, svc.PendingSyncs())

	chats.On("UpdateLastMessage", mock.Anything, "c1", in.Content, models.MessageText, fixedNow).Return(models.Chat{ID: "c1"}, nil).Once()
	chats.On("IncrementUnread", mock.Anything, "c1", models.RoleShop).Return(models.Chat{ID: "c1", ShopUnreadCount: 1}, nil).Once()

	assert.Equal(t, 1, svc.ResyncPending(context.Background()))
	assert.Zero(t, svc.PendingSyncs())
	chats.AssertExpectations(t)
}

func TestResyncPending_DropsTasksForDeletedChats(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	in := textMessage("c9", models.RoleUser, "bye")
	stored := models.Message{ID: "m9", ChatID: "c9", SenderRole: models.RoleUser, MessageType: models.MessageText, Content: in.Content, CreatedAt: fixedNow}
	messages.On("Create", mock.Anything, in).Return(stored, nil)
	chats.On("UpdateLastMessage", mock.Anything, "c9", in.Content, models.MessageText, fixedNow).Return(nil, errors.New("timeout")).Times(3)

	_, err := svc.SendMessage(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 1, svc.PendingSyncs())

	chats.On("UpdateLastMessage", mock.Anything, "c9", in.Content, models.MessageText, fixedNow).Return(nil, repositories.ErrChatNotFound).Once()
	assert.Zero(t, svc.ResyncPending(context.Background()))
	assert.Zero(t, svc.PendingSyncs())
}

func TestRunResyncWorker_StopsOnCancel(t *testing.T) {
	svc := newService(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunResyncWorker(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resync worker did not stop")
	}
}

func TestMarkChatRead_ResetsCounterEvenWhenNothingChanged(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	chats.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1", ShopUnreadCount: 4}, nil)
	messages.On("MarkAllReadForReceiver", mock.Anything, "c1", models.RoleShop, fixedNow).Return([]string{}, nil)
	chats.On("ResetUnread", mock.Anything, "c1", models.RoleShop).Return(models.Chat{ID: "c1"}, nil)

	result, err := svc.MarkChatRead(context.Background(), "c1", models.RoleShop, nil)

	require.NoError(t, err)
	assert.Empty(t, result.MessageIDs)
	assert.Zero(t, result.Chat.ShopUnreadCount)
	assert.Equal(t, fixedNow, result.ReadAt)
	chats.AssertExpectations(t)
}

func TestMarkChatRead_WithExplicitIDs(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	chats.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1"}, nil)
	messages.On("MarkChatMessagesRead", mock.Anything, "c1", models.RoleUser, []string{"m1", "m2"}, fixedNow).Return([]string{"m2"}, nil)
	chats.On("ResetUnread", mock.Anything, "c1", models.RoleUser).Return(models.Chat{ID: "c1"}, nil)

	result, err := svc.MarkChatRead(context.Background(), "c1", models.RoleUser, []string{" m1 ", "m2", ""})

	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, result.MessageIDs)
	messages.AssertNotCalled(t, "MarkAllReadForReceiver", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListChats_ClampsPaginationAndProjectsViewer(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	svc := newService(chats, new(mocks.MessageRepositoryMock))

	rows := []models.Chat{{ID: "c1", UserID: "u1", ShopID: "s1", ShopName: "Paws", UserUnreadCount: 2, ShopUnreadCount: 7}}
	chats.On("ListForParty", mock.Anything, "u1", models.RoleUser, 1, 100).Return(rows, 1, nil)

	page, err := svc.ListChats(context.Background(), "u1", models.RoleUser, 0, 500)

	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasMore)
	require.Len(t, page.Chats, 1)
	assert.Equal(t, 2, page.Chats[0].UnreadCount)
	assert.Equal(t, "Paws", page.Chats[0].CounterpartName)
}

func TestListMessages_HugePageIsClamped(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)
	chats.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1"}, nil)
	messages.On("ListByChat", mock.Anything, "c1", models.MaxPage, 20, (*time.Time)(nil)).Return([]models.Message{}, 3, nil)

	page, err := svc.ListMessages(context.Background(), "c1", math.MaxInt, 20, nil)

	require.NoError(t, err)
	assert.Equal(t, models.MaxPage, page.CurrentPage)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
	messages.AssertExpectations(t)
}

func TestSearchChats_RejectsBlankQuery(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	svc := newService(chats, new(mocks.MessageRepositoryMock))

	_, err := svc.SearchChats(context.Background(), "   ", "u1", models.RoleUser, 1, 20)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	chats.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessages_ReportsHasMore(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	chats.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1"}, nil)
	messages.On("ListByChat", mock.Anything, "c1", 1, 2, (*time.Time)(nil)).Return([]models.Message{{ID: "m4"}, {ID: "m5"}}, 5, nil)

	page, err := svc.ListMessages(context.Background(), "c1", 1, 2, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasMore)
	assert.Equal(t, 5, page.TotalMessages)
}

func TestCreateChat_DuplicateIsConflict(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	svc := newService(chats, new(mocks.MessageRepositoryMock))

	chats.On("Create", mock.Anything, "u1", "s1", models.ParticipantNames{}).Return(nil, repositories.ErrChatExists)

	_, err := svc.CreateChat(context.Background(), " u1 ", "s1", models.ParticipantNames{})
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
}

func TestGetOrCreateChat_RequiresBothParties(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	svc := newService(chats, new(mocks.MessageRepositoryMock))

	_, err := svc.GetOrCreateChat(context.Background(), "u1", "", models.ParticipantNames{})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestDeleteChat_CascadesToMessages(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	chats.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1", UserID: "u1", ShopID: "s1"}, nil)
	chats.On("Delete", mock.Anything, "c1").Return(int64(3), nil)

	chat, err := svc.DeleteChat(context.Background(), "c1")

	require.NoError(t, err)
	assert.Equal(t, "s1", chat.ShopID)
	chats.AssertExpectations(t)
	messages.AssertNotCalled(t, "DeleteByChat", mock.Anything, mock.Anything)
}

func TestDeleteChat_FailureLeavesNothingHalfDone(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(chats, messages)

	chats.On("Get", mock.Anything, "c1").Return(models.Chat{ID: "c1", UserID: "u1", ShopID: "s1"}, nil)
	chats.On("Delete", mock.Anything, "c1").Return(int64(0), errors.New("connection reset"))

	_, err := svc.DeleteChat(context.Background(), "c1")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	messages.AssertNotCalled(t, "DeleteByChat", mock.Anything, mock.Anything)
}

func TestReactions_ValidateEmojiAndMapNotFound(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(new(mocks.ChatRepositoryMock), messages)

	_, err := svc.AddReaction(context.Background(), "m1", "u1", "🐶🐶🐶🐶🐶🐶🐶🐶🐶🐶🐶")
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	messages.On("RemoveReaction", mock.Anything, "m404", "u1", "👍").Return(nil, repositories.ErrMessageNotFound)
	_, err = svc.RemoveReaction(context.Background(), "m404", "u1", "👍")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestMarkReadIsIdempotentThroughStore(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(new(mocks.ChatRepositoryMock), messages)

	readAt := fixedNow.Add(-time.Minute)
	state := models.Message{ID: "m1", IsRead: true, ReadAt: &readAt, DeliveredAt: &readAt}
	messages.On("MarkRead", mock.Anything, "m1", fixedNow).Return(state, nil).Twice()

	first, err := svc.MarkRead(context.Background(), "m1")
	require.NoError(t, err)
	second, err := svc.MarkRead(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarkManyRead_ReturnsStoredTimestamp(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	svc := newService(new(mocks.ChatRepositoryMock), messages)
	messages.On("MarkManyRead", mock.Anything, []string{"m1", "m2"}, fixedNow).Return(int64(2), nil)

	result, err := svc.MarkManyRead(context.Background(), []string{" m1 ", "m2", " "})

	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ModifiedCount)
	assert.Equal(t, fixedNow, result.ReadAt)
	messages.AssertExpectations(t)
}

func TestMarkManyRead_RequiresIDs(t *testing.T) {
	svc := newService(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock))
	_, err := svc.MarkManyRead(context.Background(), []string{" ", ""})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}
