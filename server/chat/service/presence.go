package service

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:user:"

// RedisPresence keeps per-user online flags in redis. Last writer wins;
// the flags are advisory and carry no versioning.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func (p *RedisPresence) SetOnline(ctx context.Context, userID string, online bool) error {
	key := presenceKeyPrefix + userID
	if online {
		return p.client.Set(ctx, key, "1", 0).Err()
	}
	return p.client.Set(ctx, key, "0", 0).Err()
}

func (p *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	v, err := p.client.Get(ctx, presenceKeyPrefix+userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}
