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
	"github.com/lib/pq"

	"github.com/nufaill/fluffyCare-sub004/internal/apperrors"
	"github.com/nufaill/fluffyCare-sub004/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, seq, sender_role, message_type, content, media_url, is_read, delivered_at, read_at, created_at`

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, in models.NewMessage) (models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	ListByChat(ctx context.Context, chatID string, page, limit int, since *time.Time) ([]models.Message, int, error)
	MarkDelivered(ctx context.Context, messageID string, at time.Time) (models.Message, error)
	MarkRead(ctx context.Context, messageID string, at time.Time) (models.Message, error)
	MarkManyRead(ctx context.Context, messageIDs []string, at time.Time) (int64, error)
	MarkChatMessagesRead(ctx context.Context, chatID string, receiver models.Role, messageIDs []string, at time.Time) ([]string, error)
	MarkAllReadForReceiver(ctx context.Context, chatID string, receiver models.Role, at time.Time) ([]string, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error)
	SearchInChat(ctx context.Context, chatID, query string, page, limit int) ([]models.Message, int, error)
	Delete(ctx context.Context, messageID string) (models.Message, error)
	DeleteByChat(ctx context.Context, chatID string) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db, now: time.Now}
}

// Create validates and stores a message. The chat must exist.
func (r *MessageRepo) Create(ctx context.Context, in models.NewMessage) (models.Message, error) {
	if err := in.Validate(); err != nil {
		return models.Message{}, err
	}
	if !validID(in.ChatID) {
		return models.Message{}, ErrChatNotFound
	}
	content := in.Content
	if in.MessageType == models.MessageText {
		content = strings.TrimSpace(content)
	}

	query := `INSERT INTO messages (id, chat_id, sender_role, message_type, content, media_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
        RETURNING ` + messageColumns

	var msg models.Message
	err := r.db.GetContext(ctx, &msg, query, uuid.NewString(), in.ChatID, in.SenderRole, in.MessageType, content, nullableString(in.MediaURL))
	if pqCode(err) == pqForeignKeyViolation {
		return models.Message{}, ErrChatNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	msg.Reactions = []models.Reaction{}
	return msg, nil
}

// Get retrieves a single message with its reactions.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msgs := []models.Message{msg}
	if err := r.loadReactions(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// ListByChat returns one page of history. Page 1 holds the newest messages;
// each page is returned oldest first. A non-nil since keeps only messages
// created strictly after it.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID string, page, limit int, since *time.Time) ([]models.Message, int, error) {
	if !validID(chatID) {
		return []models.Message{}, 0, nil
	}

	where := ` WHERE chat_id=$1 AND ($2::timestamptz IS NULL OR created_at > $2)`
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages`+where, chatID, since); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	msgs := []models.Message{}
	query := `SELECT ` + messageColumns + ` FROM messages` + where + `
        ORDER BY created_at DESC, seq DESC
        LIMIT $3 OFFSET $4`
	if err := r.db.SelectContext(ctx, &msgs, query, chatID, since, limit, models.PageOffset(page, limit)); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	reverse(msgs)

	if err := r.loadReactions(ctx, msgs); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// MarkDelivered sets deliveredAt once; later calls leave the first timestamp.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID string, at time.Time) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages SET delivered_at=$2
        WHERE id=$1 AND delivered_at IS NULL
        RETURNING `+messageColumns, messageID, at)
	if errors.Is(err, sql.ErrNoRows) {
		return r.Get(ctx, messageID)
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("mark delivered: %w", err)
	}
	return r.withReactions(ctx, msg)
}

// MarkRead flips isRead once, keeping deliveredAt no later than readAt.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID string, at time.Time) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `UPDATE messages
        SET is_read=TRUE, read_at=$2, delivered_at=LEAST(delivered_at, $2)
        WHERE id=$1 AND is_read=FALSE
        RETURNING `+messageColumns, messageID, at)
	if errors.Is(err, sql.ErrNoRows) {
		return r.Get(ctx, messageID)
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("mark read: %w", err)
	}
	return r.withReactions(ctx, msg)
}

// MarkManyRead marks every unread message among ids and reports how many changed.
// Unknown ids are skipped.
func (r *MessageRepo) MarkManyRead(ctx context.Context, messageIDs []string, at time.Time) (int64, error) {
	ids := filterIDs(messageIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET is_read=TRUE, read_at=$2, delivered_at=LEAST(delivered_at, $2)
        WHERE id = ANY($1::uuid[]) AND is_read=FALSE`, pq.Array(ids), at)
	if err != nil {
		return 0, fmt.Errorf("mark many read: %w", err)
	}
	return res.RowsAffected()
}

// MarkChatMessagesRead marks unread messages addressed to receiver within one
// chat and returns the ids that changed. An empty messageIDs means all of them.
func (r *MessageRepo) MarkChatMessagesRead(ctx context.Context, chatID string, receiver models.Role, messageIDs []string, at time.Time) ([]string, error) {
	if !validID(chatID) {
		return nil, ErrChatNotFound
	}
	query := `UPDATE messages
        SET is_read=TRUE, read_at=$3, delivered_at=LEAST(delivered_at, $3)
        WHERE chat_id=$1 AND sender_role <> $2 AND is_read=FALSE`
	args := []interface{}{chatID, receiver, at}
	if len(messageIDs) > 0 {
		ids := filterIDs(messageIDs)
		if len(ids) == 0 {
			return []string{}, nil
		}
		query += ` AND id = ANY($4::uuid[])`
		args = append(args, pq.Array(ids))
	}

	changed := []string{}
	if err := r.db.SelectContext(ctx, &changed, query+` RETURNING id`, args...); err != nil {
		return nil, fmt.Errorf("mark chat read: %w", err)
	}
	return changed, nil
}

// AddReaction records userID's emoji on the message. Repeating it is a no-op.
func (r *MessageRepo) AddReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	if err := models.ValidateEmoji(emoji); err != nil {
		return models.Message{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return models.Message{}, apperrors.Validation("userId is required")
	}
	if !validID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji, reacted_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT DO NOTHING`, messageID, userID, emoji, r.now())
	if pqCode(err) == pqForeignKeyViolation {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("add reaction: %w", err)
	}
	return r.Get(ctx, messageID)
}

// RemoveReaction drops the exact (userID, emoji) reaction if present.
func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID, userID, emoji string) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji); err != nil {
		return models.Message{}, fmt.Errorf("remove reaction: %w", err)
	}
	return r.Get(ctx, messageID)
}

// SearchInChat finds messages whose content contains query, newest first.
func (r *MessageRepo) SearchInChat(ctx context.Context, chatID, query string, page, limit int) ([]models.Message, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, apperrors.Validation("search query is required")
	}
	if !validID(chatID) {
		return []models.Message{}, 0, nil
	}
	pattern := containsPattern(query)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages WHERE chat_id=$1 AND content ILIKE $2`, chatID, pattern); err != nil {
		return nil, 0, fmt.Errorf("count message search: %w", err)
	}
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND content ILIKE $2
        ORDER BY created_at DESC, seq DESC
        LIMIT $3 OFFSET $4`, chatID, pattern, limit, models.PageOffset(page, limit))
	if err != nil {
		return nil, 0, fmt.Errorf("search messages: %w", err)
	}
	if err := r.loadReactions(ctx, msgs); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// Delete removes a single message and returns what was removed.
func (r *MessageRepo) Delete(ctx context.Context, messageID string) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `DELETE FROM messages WHERE id=$1 RETURNING `+messageColumns, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("delete message: %w", err)
	}
	msg.Reactions = []models.Reaction{}
	return msg, nil
}

// DeleteByChat removes every message of a chat. ChatRepo.Delete runs the same
// statement inside its own transaction.
func (r *MessageRepo) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	if !validID(chatID) {
		return 0, nil
	}
	return deleteChatMessages(ctx, r.db, chatID)
}

func (r *MessageRepo) withReactions(ctx context.Context, msg models.Message) (models.Message, error) {
	msgs := []models.Message{msg}
	if err := r.loadReactions(ctx, msgs); err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

func (r *MessageRepo) loadReactions(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	index := make(map[string]int, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		index[msgs[i].ID] = i
		msgs[i].Reactions = []models.Reaction{}
	}

	var reactions []models.Reaction
	err := r.db.SelectContext(ctx, &reactions, `SELECT message_id, user_id, emoji, reacted_at
        FROM message_reactions
        WHERE message_id = ANY($1::uuid[])
        ORDER BY reacted_at, user_id, emoji`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	for _, reaction := range reactions {
		if i, ok := index[reaction.MessageID]; ok {
			msgs[i].Reactions = append(msgs[i].Reactions, reaction)
		}
	}
	return nil
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// MarkAllReadForReceiver marks every unread message addressed to receiver in the chat.
func (r *MessageRepo) MarkAllReadForReceiver(ctx context.Context, chatID string, receiver models.Role, at time.Time) ([]string, error) {
	return r.MarkChatMessagesRead(ctx, chatID, receiver, nil, at)
}
