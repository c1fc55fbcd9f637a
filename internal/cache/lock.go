package cache

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Plans/storage/redis"
)

// 消费者幂等：同一个 message_id 只处理一次，通过 SetNX 实现
const lockPrefix = "lock"

type Deduper struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewDeduper(client goredis.UniversalClient, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// TryLock 首次获取返回 true，已被处理（或正在处理）返回 false
func (d *Deduper) TryLock(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, redis.Key(lockPrefix, key), 1, d.ttl).Result()
}

// Unlock 处理失败时释放，让重新投递的消息可以再次处理
func (d *Deduper) Unlock(ctx context.Context, key string) error {
	return d.client.Del(ctx, redis.Key(lockPrefix, key)).Err()
}
