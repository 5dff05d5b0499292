package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nufaill/fluffyCare-sub004/internal/logger"
)

// Connect opens the Postgres pool and applies migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chats (
        id UUID PRIMARY KEY,
        user_id TEXT NOT NULL,
        shop_id TEXT NOT NULL,
        user_name TEXT NOT NULL DEFAULT '',
        shop_name TEXT NOT NULL DEFAULT '',
        last_message TEXT NOT NULL DEFAULT '',
        last_message_type TEXT NOT NULL DEFAULT 'Text',
        last_message_at TIMESTAMPTZ,
        user_unread_count INT NOT NULL DEFAULT 0 CHECK (user_unread_count >= 0),
        shop_unread_count INT NOT NULL DEFAULT 0 CHECK (shop_unread_count >= 0),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE(user_id, shop_id)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user_recent ON chats (user_id, last_message_at DESC NULLS LAST);`,
	`CREATE INDEX IF NOT EXISTS idx_chats_shop_recent ON chats (shop_id, last_message_at DESC NULLS LAST);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id UUID PRIMARY KEY,
        seq BIGSERIAL NOT NULL,
        chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_role TEXT NOT NULL CHECK (sender_role IN ('User', 'Shop')),
        message_type TEXT NOT NULL CHECK (message_type IN ('Text', 'Image', 'Video', 'Audio', 'File')),
        content TEXT NOT NULL DEFAULT '',
        media_url TEXT,
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        delivered_at TIMESTAMPTZ,
        read_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CHECK (read_at IS NULL OR is_read)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_order ON messages (chat_id, created_at, seq);`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
        message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id TEXT NOT NULL,
        emoji TEXT NOT NULL,
        reacted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY(message_id, user_id, emoji)
    );`,
}

// Migrate applies the idempotent schema statements in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	logger.Info("database migrations applied")
	return nil
}
