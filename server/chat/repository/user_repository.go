package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicechat_server/server/chat/domain"
)

const userColumns = `user_id, username, email, password_hash, avatar_url, about, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users(user_id, username, email, password_hash, avatar_url, about)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.AvatarURL, user.About).Scan(&user.CreatedAt)
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, id)
	return scanUser(row)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
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

func (r *UserRepository) UpdateProfile(ctx context.Context, id, username, avatarURL, about string) (domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET username = COALESCE(NULLIF($2, ''), username),
		    avatar_url = COALESCE(NULLIF($3, ''), avatar_url),
		    about = COALESCE(NULLIF($4, ''), about)
		WHERE user_id=$1
		RETURNING `+userColumns+`
	`, id, username, avatarURL, about)
	return scanUser(row)
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.AvatarURL, &u.About, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, errors.New("user not found")
	}
	return u, err
}
