package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id     UUID PRIMARY KEY,
		username    VARCHAR(50) UNIQUE NOT NULL,
		email       VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		avatar_url  VARCHAR(512) NOT NULL DEFAULT '',
		about       VARCHAR(255) NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		room_id     UUID PRIMARY KEY,
		name        VARCHAR(100) NOT NULL DEFAULT '',
		is_group    BOOLEAN NOT NULL DEFAULT false,
		created_by  UUID NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS room_members (
		room_id     UUID NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
		user_id     UUID NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		joined_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		message_id   UUID PRIMARY KEY,
		room_id      UUID NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
		sender_id    UUID NOT NULL,
		content      TEXT NOT NULL DEFAULT '',
		message_type VARCHAR(16) NOT NULL DEFAULT 'text',
		object_key   VARCHAR(512) NOT NULL DEFAULT '',
		file_url     VARCHAR(512) NOT NULL DEFAULT '',
		transcription TEXT NOT NULL DEFAULT '',
		enrichment_status VARCHAR(16) NOT NULL DEFAULT 'none',
		is_deleted   BOOLEAN NOT NULL DEFAULT false,
		deleted_for  UUID[] NOT NULL DEFAULT '{}',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at DESC)`,
}

// EnsureSchema creates the record-store tables on startup when they do
// not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
