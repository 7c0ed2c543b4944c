package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicechat_server/server/chat/domain"
)

type RoomRepository struct {
	pool *pgxpool.Pool
}

func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func (r *RoomRepository) Create(ctx context.Context, room domain.Room, memberIDs []string) (domain.Room, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Room{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO rooms(room_id, name, is_group, created_by)
		VALUES($1, $2, $3, $4)
		RETURNING created_at
	`, room.ID, room.Name, room.IsGroup, room.CreatedBy).Scan(&room.CreatedAt)
	if err != nil {
		return domain.Room{}, err
	}

	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO room_members(room_id, user_id) VALUES($1, $2) ON CONFLICT DO NOTHING
		`, room.ID, userID); err != nil {
			return domain.Room{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (r *RoomRepository) FindDirectRoom(ctx context.Context, userA, userB string) (string, error) {
	var roomID string
	err := r.pool.QueryRow(ctx, `
		SELECT r.room_id
		FROM rooms r
		JOIN room_members a ON a.room_id = r.room_id AND a.user_id = $1
		JOIN room_members b ON b.room_id = r.room_id AND b.user_id = $2
		WHERE r.is_group = false
		LIMIT 1
	`, userA, userB).Scan(&roomID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return roomID, err
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (domain.Room, error) {
	var room domain.Room
	err := r.pool.QueryRow(ctx, `
		SELECT room_id, name, is_group, created_by, created_at FROM rooms WHERE room_id=$1
	`, id).Scan(&room.ID, &room.Name, &room.IsGroup, &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, errors.New("room not found")
	}
	return room, err
}

func (r *RoomRepository) ListForUser(ctx context.Context, userID string) ([]domain.Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.room_id, r.name, r.is_group, r.created_by, r.created_at
		FROM rooms r
		JOIN room_members m ON m.room_id = r.room_id
		WHERE m.user_id = $1
		ORDER BY r.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Room, 0)
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.IsGroup, &room.CreatedBy, &room.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, room)
	}
	return items, rows.Err()
}

func (r *RoomRepository) Members(ctx context.Context, roomID string) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.user_id, u.username, u.email, u.password_hash, u.avatar_url, u.about, u.created_at
		FROM users u
		JOIN room_members m ON m.user_id = u.user_id
		WHERE m.room_id = $1
		ORDER BY u.username
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *RoomRepository) LastMessage(ctx context.Context, roomID string) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE room_id=$1 AND is_deleted=false
		ORDER BY created_at DESC
		LIMIT 1
	`, roomID)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *RoomRepository) CountMembers(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM room_members WHERE room_id=$1`, roomID).Scan(&count)
	return count, err
}

func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	return err
}

func (r *RoomRepository) Delete(ctx context.Context, roomID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id=$1`, roomID)
	return err
}

func (r *RoomRepository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2
		)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

func (r *RoomRepository) RoomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT room_id FROM room_members WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
