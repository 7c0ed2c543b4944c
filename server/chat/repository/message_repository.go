package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicechat_server/server/chat/domain"
)

const messageColumns = `message_id, room_id, sender_id, content, message_type, object_key, file_url, transcription, enrichment_status, is_deleted, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, msg domain.Message) (domain.Message, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages(message_id, room_id, sender_id, content, message_type, object_key, file_url, transcription, enrichment_status)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.MessageType, msg.ObjectKey, msg.FileURL, msg.Transcription, msg.Enrichment).Scan(&msg.CreatedAt)
	return msg, err
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (domain.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id=$1`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, errors.New("message not found")
	}
	return msg, err
}

func (r *MessageRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepository) ListByRoom(ctx context.Context, roomID, viewerID string, limit, offset int) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE room_id=$1 AND is_deleted=false AND NOT ($2::uuid = ANY(deleted_for))
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`, roomID, viewerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SearchKeyword does a case-insensitive substring match against both
// the body and the enriched transcription/extraction text, newest
// first, within the requester's rooms.
func (r *MessageRepository) SearchKeyword(ctx context.Context, roomIDs []string, q, roomFilter string, limit int) ([]domain.Message, error) {
	base := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = ANY($1::uuid[])
		  AND is_deleted = false
		  AND (content ILIKE '%' || $2 || '%' OR transcription ILIKE '%' || $2 || '%')`
	args := []any{roomIDs, q}
	idx := 3

	if roomFilter != "" {
		base += fmt.Sprintf(` AND room_id=$%d`, idx)
		args = append(args, roomFilter)
		idx++
	}
	base += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, base, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepository) UpdateEnrichment(ctx context.Context, id, text string, status domain.EnrichmentStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages SET transcription=$2, enrichment_status=$3 WHERE message_id=$1
	`, id, text, status)
	return err
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages SET is_deleted=true, content='' WHERE message_id=$1
	`, id)
	return err
}

func (r *MessageRepository) HideForUser(ctx context.Context, id, userID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET deleted_for = array_append(deleted_for, $2::uuid)
		WHERE message_id=$1 AND NOT ($2::uuid = ANY(deleted_for))
	`, id, userID)
	return err
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.MessageType, &m.ObjectKey, &m.FileURL, &m.Transcription, &m.Enrichment, &m.IsDeleted, &m.CreatedAt)
	return m, err
}

func collectMessages(rows pgx.Rows) ([]domain.Message, error) {
	items := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
