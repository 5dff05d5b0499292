package models

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
)

func TestNewMessageValidate(t *testing.T) {
	cases := []struct {
		name  string
		input NewMessage
		ok    bool
	}{
		{"text ok", NewMessage{ChatID: "c", SenderRole: RoleUser, MessageType: MessageText, Content: "Hi"}, true},
		{"text blank", NewMessage{ChatID: "c", SenderRole: RoleUser, MessageType: MessageText, Content: "   "}, false},
		{"text too long", NewMessage{ChatID: "c", SenderRole: RoleShop, MessageType: MessageText, Content: strings.Repeat("a", MaxContentLength+1)}, false},
		{"text at limit", NewMessage{ChatID: "c", SenderRole: RoleShop, MessageType: MessageText, Content: strings.Repeat("a", MaxContentLength)}, true},
		{"image without media", NewMessage{ChatID: "c", SenderRole: RoleUser, MessageType: MessageImage}, false},
		{"image with media", NewMessage{ChatID: "c", SenderRole: RoleUser, MessageType: MessageImage, MediaURL: "https://cdn/x.png"}, true},
		{"bad type", NewMessage{ChatID: "c", SenderRole: RoleUser, MessageType: "Sticker", Content: "x"}, false},
		{"bad role", NewMessage{ChatID: "c", SenderRole: "Admin", MessageType: MessageText, Content: "x"}, false},
		{"missing chat", NewMessage{SenderRole: RoleUser, MessageType: MessageText, Content: "x"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
		})
	}
}

func TestValidateEmoji(t *testing.T) {
	require.NoError(t, ValidateEmoji("👍"))
	require.Error(t, ValidateEmoji(""))
	require.Error(t, ValidateEmoji("12345678901"))
}

func TestClampPage(t *testing.T) {
	page, limit := ClampPage(0, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, limit)

	page, limit = ClampPage(-3, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 1, limit)

	page, limit = ClampPage(4, 25)
	assert.Equal(t, 4, page)
	assert.Equal(t, 25, limit)

	page, limit = ClampPage(math.MaxInt, math.MaxInt)
	assert.Equal(t, MaxPage, page)
	assert.Equal(t, MaxPageLimit, limit)
}

func TestPageOffsetNeverOverflows(t *testing.T) {
	assert.Equal(t, 0, PageOffset(1, 20))
	assert.Equal(t, 40, PageOffset(3, 20))
	assert.Equal(t, 0, PageOffset(-5, 20))
	assert.Equal(t, (MaxPage-1)*MaxPageLimit, PageOffset(math.MaxInt, 500))
	assert.Positive(t, PageOffset(math.MaxInt, 500))
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 20))
	assert.Equal(t, 1, TotalPages(20, 20))
	assert.Equal(t, 2, TotalPages(21, 20))
}

func TestChatViewForRole(t *testing.T) {
	chat := Chat{ID: "c1", UserID: "u1", ShopID: "s1", UserName: "Ana", ShopName: "Paws", UserUnreadCount: 2, ShopUnreadCount: 5}

	userView := chat.ViewFor(RoleUser)
	assert.Equal(t, 2, userView.UnreadCount)
	assert.Equal(t, "s1", userView.CounterpartID)
	assert.Equal(t, "Paws", userView.CounterpartName)

	shopView := chat.ViewFor(RoleShop)
	assert.Equal(t, 5, shopView.UnreadCount)
	assert.Equal(t, "u1", shopView.CounterpartID)

	assert.True(t, chat.HasParticipant("s1", RoleShop))
	assert.False(t, chat.HasParticipant("s1", RoleUser))
	assert.Equal(t, RoleShop, RoleUser.Counterpart())
}

func TestMessagePreview(t *testing.T) {
	assert.Equal(t, "Hi", Message{MessageType: MessageText, Content: "Hi"}.Preview())
	assert.Equal(t, "[Image]", Message{MessageType: MessageImage}.Preview())
	assert.Equal(t, "look", Message{MessageType: MessageImage, Content: "look"}.Preview())
}
