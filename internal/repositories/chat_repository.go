package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrChatExists   = errors.New("chat already exists for user and shop")
)

const chatColumns = `id, user_id, shop_id, user_name, shop_name, last_message, last_message_type, last_message_at,
        user_unread_count, shop_unread_count, created_at, updated_at`

// ChatRepository abstracts conversation summary persistence.
type ChatRepository interface {
	GetOrCreate(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error)
	Create(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error)
	Get(ctx context.Context, chatID string) (models.Chat, error)
	ListForParty(ctx context.Context, partyID string, role models.Role, page, limit int) ([]models.Chat, int, error)
	Search(ctx context.Context, query, searcherID string, searcherRole models.Role, page, limit int) ([]models.Chat, int, error)
	UpdateLastMessage(ctx context.Context, chatID, text string, msgType models.MessageType, at time.Time) (models.Chat, error)
	IncrementUnread(ctx context.Context, chatID string, forRole models.Role) (models.Chat, error)
	ResetUnread(ctx context.Context, chatID string, forRole models.Role) (models.Chat, error)
	TotalUnread(ctx context.Context, partyID string, role models.Role) (int, error)
	Delete(ctx context.Context, chatID string) (int64, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// GetOrCreate returns the chat for the pair, creating it in the same statement when missing.
func (r *ChatRepo) GetOrCreate(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	query := `INSERT INTO chats (id, user_id, shop_id, user_name, shop_name)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, shop_id) DO UPDATE SET
            user_name = COALESCE(NULLIF(EXCLUDED.user_name, ''), chats.user_name),
            shop_name = COALESCE(NULLIF(EXCLUDED.shop_name, ''), chats.shop_name)
        RETURNING ` + chatColumns

	var chat models.Chat
	if err := r.db.GetContext(ctx, &chat, query, uuid.NewString(), userID, shopID, names.UserName, names.ShopName); err != nil {
		return models.Chat{}, fmt.Errorf("get or create chat: %w", err)
	}
	return chat, nil
}

// Create inserts a new chat and fails with ErrChatExists when the pair is taken.
func (r *ChatRepo) Create(ctx context.Context, userID, shopID string, names models.ParticipantNames) (models.Chat, error) {
	query := `INSERT INTO chats (id, user_id, shop_id, user_name, shop_name)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING ` + chatColumns

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, query, uuid.NewString(), userID, shopID, names.UserName, names.ShopName)
	if pqCode(err) == pqUniqueViolation {
		return models.Chat{}, ErrChatExists
	}
	if err != nil {
		return models.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// Get fetches a chat by id.
func (r *ChatRepo) Get(ctx context.Context, chatID string) (models.Chat, error) {
	if !validID(chatID) {
		return models.Chat{}, ErrChatNotFound
	}
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListForParty returns a page of the party's chats, most recent activity first.
func (r *ChatRepo) ListForParty(ctx context.Context, partyID string, role models.Role, page, limit int) ([]models.Chat, int, error) {
	column, err := partyColumn(role)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM chats WHERE `+column+`=$1`, partyID); err != nil {
		return nil, 0, fmt.Errorf("count chats: %w", err)
	}

	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE ` + column + `=$1
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC, id
        LIMIT $2 OFFSET $3`
	chats := []models.Chat{}
	if err := r.db.SelectContext(ctx, &chats, query, partyID, limit, models.PageOffset(page, limit)); err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}
	return chats, total, nil
}

// Search matches the counterpart's display name or the last message text, case-insensitively.
func (r *ChatRepo) Search(ctx context.Context, query, searcherID string, searcherRole models.Role, page, limit int) ([]models.Chat, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, apperrors.Validation("search query is required")
	}
	column, err := partyColumn(searcherRole)
	if err != nil {
		return nil, 0, err
	}
	nameColumn := "shop_name"
	if searcherRole == models.RoleShop {
		nameColumn = "user_name"
	}

	where := ` WHERE ` + column + `=$1 AND (` + nameColumn + ` ILIKE $2 OR last_message ILIKE $2)`
	pattern := containsPattern(query)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM chats`+where, searcherID, pattern); err != nil {
		return nil, 0, fmt.Errorf("count search: %w", err)
	}

	chats := []models.Chat{}
	err = r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats`+where+`
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC, id
        LIMIT $3 OFFSET $4`, searcherID, pattern, limit, models.PageOffset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("search chats: %w", err)
	}
	return chats, total, nil
}

// UpdateLastMessage overwrites the preview fields unless at is older than the stored preview.
func (r *ChatRepo) UpdateLastMessage(ctx context.Context, chatID, text string, msgType models.MessageType, at time.Time) (models.Chat, error) {
	if !validID(chatID) {
		return models.Chat{}, ErrChatNotFound
	}
	query := `UPDATE chats
        SET last_message=$2, last_message_type=$3, last_message_at=$4, updated_at=NOW()
        WHERE id=$1 AND (last_message_at IS NULL OR last_message_at <= $4)
        RETURNING ` + chatColumns

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, query, chatID, text, msgType, at)
	if errors.Is(err, sql.ErrNoRows) {
		// either missing or a newer preview already landed
		return r.Get(ctx, chatID)
	}
	if err != nil {
		return models.Chat{}, fmt.Errorf("update last message: %w", err)
	}
	return chat, nil
}

// IncrementUnread atomically bumps the counter of the given side.
func (r *ChatRepo) IncrementUnread(ctx context.Context, chatID string, forRole models.Role) (models.Chat, error) {
	column, err := unreadColumn(forRole)
	if err != nil {
		return models.Chat{}, err
	}
	return r.updateCounter(ctx, chatID, column+` = `+column+` + 1`)
}

// ResetUnread atomically zeroes the counter of the given side.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID string, forRole models.Role) (models.Chat, error) {
	column, err := unreadColumn(forRole)
	if err != nil {
		return models.Chat{}, err
	}
	return r.updateCounter(ctx, chatID, column+` = 0`)
}

func (r *ChatRepo) updateCounter(ctx context.Context, chatID, assignment string) (models.Chat, error) {
	if !validID(chatID) {
		return models.Chat{}, ErrChatNotFound
	}
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `UPDATE chats SET `+assignment+`, updated_at=NOW() WHERE id=$1 RETURNING `+chatColumns, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, fmt.Errorf("update unread: %w", err)
	}
	return chat, nil
}

// TotalUnread sums the party's unread counters across all of its chats.
func (r *ChatRepo) TotalUnread(ctx context.Context, partyID string, role models.Role) (int, error) {
	column, err := partyColumn(role)
	if err != nil {
		return 0, err
	}
	counter, _ := unreadColumn(role)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(`+counter+`), 0) FROM chats WHERE `+column+`=$1`, partyID); err != nil {
		return 0, fmt.Errorf("total unread: %w", err)
	}
	return total, nil
}

// Delete removes the chat and its messages in one transaction and reports
// how many messages went with it.
func (r *ChatRepo) Delete(ctx context.Context, chatID string) (int64, error) {
	if !validID(chatID) {
		return 0, ErrChatNotFound
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete chat: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the chat first so a concurrent send cannot add a message between
	// the two deletes.
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM chats WHERE id=$1 FOR UPDATE`, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrChatNotFound
		}
		return 0, fmt.Errorf("lock chat: %w", err)
	}
	removed, err := deleteChatMessages(ctx, tx, chatID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID); err != nil {
		return 0, fmt.Errorf("delete chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete chat: %w", err)
	}
	return removed, nil
}

func partyColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleUser:
		return "user_id", nil
	case models.RoleShop:
		return "shop_id", nil
	}
	return "", apperrors.Validation("role must be User or Shop")
}

func unreadColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleUser:
		return "user_unread_count", nil
	case models.RoleShop:
		return "shop_unread_count", nil
	}
	return "", apperrors.Validation("role must be User or Shop")
}
