package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Plans/storage/redis"
)

const (
	// 空值缓存标识，防止不存在的数据反复穿透到数据库
	emptyValueFlag = "__EMPTY__"
	// 空值缓存 TTL，较短时间避免长期占用
	defaultEmptyTTL = 5 * time.Minute
	// TTL 随机上浮比例，避免同一批 key 同时过期
	ttlJitterRatio = 10
)

// Lookup 读取结果
type Lookup int

const (
	Miss Lookup = iota
	Hit
	HitEmpty // 命中空值标识
)

// ProtectedCache 带空值保护与过期抖动的 JSON 缓存，Redis 调用经过熔断器。
type ProtectedCache struct {
	client    goredis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	emptyTTL  time.Duration
	breaker   *CircuitBreaker
}

func NewProtectedCache(client goredis.UniversalClient, keyPrefix string, ttl time.Duration, breaker *CircuitBreaker) *ProtectedCache {
	return &ProtectedCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		emptyTTL:  defaultEmptyTTL,
		breaker:   breaker,
	}
}

// WithEmptyTTL 调整空值缓存时长
func (pc *ProtectedCache) WithEmptyTTL(ttl time.Duration) *ProtectedCache {
	pc.emptyTTL = ttl
	return pc
}

func (pc *ProtectedCache) key(key string) string {
	return redis.Key(pc.keyPrefix, key)
}

// Set value 为 nil 时写入空值标识
func (pc *ProtectedCache) Set(ctx context.Context, key string, value interface{}) error {
	data := emptyValueFlag
	ttl := pc.emptyTTL

	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		data = string(raw)
		ttl = pc.ttl
	}

	return pc.breaker.Call(ctx, func(ctx context.Context) error {
		return pc.client.Set(ctx, pc.key(key), data, jitter(ttl)).Err()
	})
}

// Get 命中正常值时反序列化到 dest
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest interface{}) (Lookup, error) {
	var data string
	err := pc.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := pc.client.Get(ctx, pc.key(key)).Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		return Miss, fmt.Errorf("failed to get cache: %w", err)
	}

	switch data {
	case "":
		return Miss, nil
	case emptyValueFlag:
		return HitEmpty, nil
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return Miss, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return Hit, nil
}

func (pc *ProtectedCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = pc.key(k)
	}
	return pc.breaker.Call(ctx, func(ctx context.Context) error {
		return pc.client.Del(ctx, full...).Err()
	})
}

func jitter(ttl time.Duration) time.Duration {
	spread := ttl / ttlJitterRatio
	if spread <= 0 {
		return ttl
	}
	return ttl + rand.N(spread)
}
