package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Plans/storage/redis"
)

const tokenPrefix = "token"

// RefreshTokens 记录每个用户最近签发的 refresh token，用于轮换。
// Key: plans:token:refresh:{user_id}
type RefreshTokens struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewRefreshTokens(client goredis.UniversalClient, ttl time.Duration) *RefreshTokens {
	return &RefreshTokens{client: client, ttl: ttl}
}

func (t *RefreshTokens) Set(ctx context.Context, userID, refreshToken string) error {
	return t.client.Set(ctx, redis.Key(tokenPrefix, "refresh", userID), refreshToken, t.ttl).Err()
}

// Get 未记录时返回 "", false
func (t *RefreshTokens) Get(ctx context.Context, userID string) (string, bool, error) {
	v, err := t.client.Get(ctx, redis.Key(tokenPrefix, "refresh", userID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (t *RefreshTokens) Delete(ctx context.Context, userID string) error {
	return t.client.Del(ctx, redis.Key(tokenPrefix, "refresh", userID)).Err()
}
