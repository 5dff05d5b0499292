package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

type apiMock struct {
	mock.Mock
}

func (m *apiMock) ListChats(ctx context.Context, partyID string, role models.Role, page, limit int) ([]json.RawMessage, error) {
	args := m.Called(ctx, partyID, role, page, limit)
	raws, _ := args.Get(0).([]json.RawMessage)
	return raws, args.Error(1)
}

func (m *apiMock) ListMessages(ctx context.Context, chatID string, page, limit int) (models.MessagePage, error) {
	args := m.Called(ctx, chatID, page, limit)
	out, _ := args.Get(0).(models.MessagePage)
	return out, args.Error(1)
}

func (m *apiMock) SendMessage(ctx context.Context, req SendRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(models.Message)
	return out, args.Error(1)
}

func (m *apiMock) MarkChatRead(ctx context.Context, chatID string, role models.Role) error {
	return m.Called(ctx, chatID, role).Error(0)
}

type fakeGateway struct {
	mu        sync.Mutex
	listeners map[string][]Listener
	joins     []string
	leaves    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{listeners: make(map[string][]Listener)}
}

func (g *fakeGateway) On(event string, fn Listener) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners[event] = append(g.listeners[event], fn)
	return func() {}
}

func (g *fakeGateway) JoinChat(chatID, _ string, _ models.Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joins = append(g.joins, chatID)
	return nil
}

func (g *fakeGateway) LeaveChat(chatID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves = append(g.leaves, chatID)
	return nil
}

func (g *fakeGateway) fire(t *testing.T, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	g.mu.Lock()
	fns := append([]Listener(nil), g.listeners[event]...)
	g.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func rawChats(t *testing.T, chats ...models.Chat) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(chats))
	for _, c := range chats {
		raw, err := json.Marshal(c.ViewFor(models.RoleUser))
		require.NoError(t, err)
		out = append(out, raw)
	}
	return out
}

func chatAt(id string, sec int) models.Chat {
	ts := at(sec)
	return models.Chat{ID: id, UserID: "u1", ShopID: "shop-" + id, ShopName: "Shop " + id, LastMessage: "hi", LastMessageAt: &ts}
}

func msgAt(id, chatID string, sender models.Role, sec int) models.Message {
	return models.Message{ID: id, ChatID: chatID, SenderRole: sender, MessageType: models.MessageText, Content: id, CreatedAt: at(sec)}
}

func messageIDs(msgs []LocalMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func chatIDs(chats []ChatItem) []string {
	out := make([]string, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.ID)
	}
	return out
}

var me = models.Identity{ID: "u1", Role: models.RoleUser}

func newTestController(t *testing.T) (*Controller, *apiMock, *fakeGateway) {
	t.Helper()
	api := new(apiMock)
	gw := newFakeGateway()
	c := NewController(me, api, gw)
	c.now = func() time.Time { return at(100) }
	c.ackDelay = time.Hour
	t.Cleanup(c.Close)
	return c, api, gw
}

func openChat(t *testing.T, c *Controller, api *apiMock, chatID string, history ...models.Message) {
	t.Helper()
	api.On("ListMessages", mock.Anything, chatID, 1, models.DefaultPageLimit).Return(models.MessagePage{Messages: history}, nil).Once()
	api.On("MarkChatRead", mock.Anything, chatID, models.RoleUser).Return(nil).Once()
	require.NoError(t, c.OpenChat(context.Background(), chatID))
}

func TestLoadChatsSortsMostRecentFirst(t *testing.T) {
	c, api, _ := newTestController(t)
	api.On("ListChats", mock.Anything, "u1", models.RoleUser, 1, 20).
		Return(rawChats(t, chatAt("a", 1), chatAt("b", 3), chatAt("c", 2)), nil)

	chats, err := c.LoadChats(context.Background(), 20)

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, chatIDs(chats))
}

func TestLoadChatsKeepsCorruptEntries(t *testing.T) {
	c, api, _ := newTestController(t)
	corrupt := json.RawMessage(`{"_id":"x","userId":{"name":"no id"},"shopId":"s1"}`)
	api.On("ListChats", mock.Anything, "u1", models.RoleUser, 1, 20).
		Return(append(rawChats(t, chatAt("a", 1)), corrupt), nil)

	chats, err := c.LoadChats(context.Background(), 20)

	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "x", chats[1].ID)
	assert.False(t, chats[1].Healthy())
	assert.True(t, apperrors.Is(chats[1].Err(), apperrors.CodeDataIntegrity))
}

func TestNewMessageForActiveChatIsDedupedAndOrdered(t *testing.T) {
	c, api, gw := newTestController(t)
	openChat(t, c, api, "a", msgAt("m1", "a", models.RoleShop, 1), msgAt("m3", "a", models.RoleShop, 3))

	gw.fire(t, models.EventNewMessage, msgAt("m2", "a", models.RoleShop, 2))
	gw.fire(t, models.EventNewMessage, msgAt("m2", "a", models.RoleShop, 2))
	gw.fire(t, models.EventNewMessage, msgAt("m3", "a", models.RoleShop, 3))

	assert.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(c.Messages()))
	assert.Equal(t, []string{"a"}, gw.joins)
}

func TestNewMessageForOtherChatBumpsUnreadAndReorders(t *testing.T) {
	c, api, gw := newTestController(t)
	api.On("ListChats", mock.Anything, "u1", models.RoleUser, 1, 20).
		Return(rawChats(t, chatAt("a", 5), chatAt("b", 1)), nil)
	_, err := c.LoadChats(context.Background(), 20)
	require.NoError(t, err)
	openChat(t, c, api, "a")

	gw.fire(t, models.EventNewMessage, msgAt("m9", "b", models.RoleShop, 10))

	chats := c.Chats()
	assert.Equal(t, []string{"b", "a"}, chatIDs(chats))
	assert.Equal(t, 1, chats[0].UnreadCount)
	assert.Equal(t, "m9", chats[0].LastMessage)
	assert.Empty(t, c.Messages())
	api.AssertNumberOfCalls(t, "ListMessages", 1)
}

func countReadAcks(api *apiMock, chatID string) *atomic.Int32 {
	var acks atomic.Int32
	api.On("MarkChatRead", mock.Anything, chatID, models.RoleUser).Run(func(mock.Arguments) {
		acks.Add(1)
	}).Return(nil)
	return &acks
}

func TestCounterpartMessagesInOpenChatAreAcknowledgedOnce(t *testing.T) {
	c, api, gw := newTestController(t)
	c.ackDelay = 30 * time.Millisecond
	openChat(t, c, api, "a")
	acks := countReadAcks(api, "a")

	gw.fire(t, models.EventNewMessage, msgAt("own", "a", models.RoleUser, 1))
	gw.fire(t, models.EventNewMessage, msgAt("other", "b", models.RoleShop, 1))
	assert.Never(t, func() bool { return acks.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	gw.fire(t, models.EventNewMessage, msgAt("m2", "a", models.RoleShop, 2))
	gw.fire(t, models.EventNewMessage, msgAt("m3", "a", models.RoleShop, 3))
	gw.fire(t, models.EventNewMessage, msgAt("m4", "a", models.RoleShop, 4))

	assert.Eventually(t, func() bool { return acks.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return acks.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestClosingChatDropsPendingReadAck(t *testing.T) {
	c, api, gw := newTestController(t)
	c.ackDelay = 50 * time.Millisecond
	openChat(t, c, api, "a")
	acks := countReadAcks(api, "a")

	gw.fire(t, models.EventNewMessage, msgAt("m2", "a", models.RoleShop, 2))
	c.CloseChat()

	assert.Never(t, func() bool { return acks.Load() > 0 }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestOlderMessageDoesNotRewindPreview(t *testing.T) {
	c, api, gw := newTestController(t)
	api.On("ListChats", mock.Anything, "u1", models.RoleUser, 1, 20).Return(rawChats(t, chatAt("b", 10)), nil)
	_, err := c.LoadChats(context.Background(), 20)
	require.NoError(t, err)

	gw.fire(t, models.EventNewMessage, msgAt("late", "b", models.RoleShop, 2))

	chats := c.Chats()
	assert.Equal(t, "hi", chats[0].LastMessage)
	assert.Equal(t, 1, chats[0].UnreadCount)
}

func TestOptimisticSendReconciles(t *testing.T) {
	c, api, _ := newTestController(t)
	openChat(t, c, api, "a", msgAt("m1", "a", models.RoleShop, 1))
	stored := msgAt("srv-1", "a", models.RoleUser, 101)
	api.On("SendMessage", mock.Anything, SendRequest{ChatID: "a", SenderRole: models.RoleUser, MessageType: models.MessageText, Content: "hello"}).
		Return(stored, nil).Once()

	sent, err := c.Send(context.Background(), models.MessageText, "hello", "")

	require.NoError(t, err)
	assert.Equal(t, SendSent, sent.Status)
	assert.Equal(t, "srv-1", sent.ID)
	assert.NotEmpty(t, sent.LocalID)
	assert.Equal(t, []string{"m1", "srv-1"}, messageIDs(c.Messages()))
}

func TestFailedSendIsKeptAndCanBeResent(t *testing.T) {
	c, api, _ := newTestController(t)
	openChat(t, c, api, "a")
	req := SendRequest{ChatID: "a", SenderRole: models.RoleUser, MessageType: models.MessageText, Content: "hello"}
	api.On("SendMessage", mock.Anything, req).Return(nil, apperrors.Transport("POST /messages", errors.New("timeout"))).Once()

	failed, err := c.Send(context.Background(), models.MessageText, "hello", "")

	require.Error(t, err)
	assert.Equal(t, SendFailed, failed.Status)
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SendFailed, msgs[0].Status)

	api.On("SendMessage", mock.Anything, req).Return(msgAt("srv-2", "a", models.RoleUser, 102), nil).Once()
	resent, err := c.Resend(context.Background(), failed.LocalID)

	require.NoError(t, err)
	assert.Equal(t, SendSent, resent.Status)
	assert.Equal(t, []string{"srv-2"}, messageIDs(c.Messages()))
}

func TestResendRejectsUnknownOrSentMessages(t *testing.T) {
	c, api, _ := newTestController(t)
	openChat(t, c, api, "a")
	api.On("SendMessage", mock.Anything, mock.Anything).Return(msgAt("srv-3", "a", models.RoleUser, 103), nil).Once()
	sent, err := c.Send(context.Background(), models.MessageText, "hi", "")
	require.NoError(t, err)

	_, err = c.Resend(context.Background(), sent.LocalID)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	_, err = c.Resend(context.Background(), "local-missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSocketEchoBeforeRESTReplyIsNotDuplicated(t *testing.T) {
	c, api, gw := newTestController(t)
	openChat(t, c, api, "a")
	stored := msgAt("srv-4", "a", models.RoleUser, 104)
	api.On("SendMessage", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		gw.fire(t, models.EventNewMessage, stored)
	}).Return(stored, nil).Once()

	_, err := c.Send(context.Background(), models.MessageText, "dup", "")

	require.NoError(t, err)
	assert.Equal(t, []string{"srv-4"}, messageIDs(c.Messages()))
}

func TestSendValidatesBeforeAnyRequest(t *testing.T) {
	c, api, _ := newTestController(t)
	openChat(t, c, api, "a")

	_, err := c.Send(context.Background(), models.MessageImage, "", "")

	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	assert.Empty(t, c.Messages())
	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestOpenChatLeavesPreviousRoom(t *testing.T) {
	c, api, gw := newTestController(t)
	openChat(t, c, api, "a")
	openChat(t, c, api, "b")
	c.CloseChat()

	assert.Equal(t, []string{"a", "b"}, gw.joins)
	assert.Equal(t, []string{"a", "b"}, gw.leaves)
	assert.Empty(t, c.ActiveChat())
}

func TestReceiptsAndDeletionApplyToActiveChat(t *testing.T) {
	c, api, gw := newTestController(t)
	openChat(t, c, api, "a", msgAt("m1", "a", models.RoleUser, 1), msgAt("m2", "a", models.RoleUser, 2))

	gw.fire(t, models.EventMessageDelivered, models.DeliveredPayload{ChatID: "a", MessageID: "m1", DeliveredAt: at(3)})
	gw.fire(t, models.EventMessageRead, models.ReadPayload{ChatID: "a", MessageIDs: []string{"m2"}, ReaderRole: models.RoleShop, ReadAt: at(4)})
	gw.fire(t, models.EventReactionAdded, models.ReactionPayload{ChatID: "a", MessageID: "m1", Reactions: []models.Reaction{{UserID: "s1", Emoji: "👍"}}})

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].DeliveredAt)
	assert.False(t, msgs[0].IsRead)
	assert.Len(t, msgs[0].Reactions, 1)
	assert.True(t, msgs[1].IsRead)
	require.NotNil(t, msgs[1].DeliveredAt)
	assert.True(t, msgs[1].DeliveredAt.Equal(at(4)))

	gw.fire(t, models.EventMessageDeleted, models.MessageDeletedPayload{ChatID: "a", MessageID: "m1"})
	assert.Equal(t, []string{"m2"}, messageIDs(c.Messages()))
}

func TestChatUpdatedReplacesEntry(t *testing.T) {
	c, api, gw := newTestController(t)
	api.On("ListChats", mock.Anything, "u1", models.RoleUser, 1, 20).Return(rawChats(t, chatAt("a", 1), chatAt("b", 2)), nil)
	_, err := c.LoadChats(context.Background(), 20)
	require.NoError(t, err)

	updated := chatAt("a", 9)
	updated.LastMessage = "fresh"
	updated.UserUnreadCount = 4
	gw.fire(t, models.EventChatUpdated, updated.ViewFor(models.RoleUser))

	chats := c.Chats()
	assert.Equal(t, []string{"a", "b"}, chatIDs(chats))
	assert.Equal(t, "fresh", chats[0].LastMessage)
	assert.Equal(t, 4, chats[0].UnreadCount)
	assert.Equal(t, 4, c.TotalUnread())
}

func TestTypingIgnoresSelf(t *testing.T) {
	c, _, gw := newTestController(t)

	gw.fire(t, models.EventUserTyping, models.TypingPayload{ChatID: "a", UserID: "s1", UserRole: models.RoleShop})
	gw.fire(t, models.EventUserTyping, models.TypingPayload{ChatID: "a", UserID: "u1", UserRole: models.RoleUser})
	assert.Equal(t, []string{"s1"}, c.Typing("a"))

	gw.fire(t, models.EventUserStoppedTyping, models.TypingPayload{ChatID: "a", UserID: "s1"})
	assert.Empty(t, c.Typing("a"))
}
