package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Plans/internal/onboarding"
	"Plans/storage/redis"
)

// 未提交的问卷答案，按用户保存一份 JSON
// Key: plans:onboarding:form:{user_id}
const onboardingFormPrefix = "onboarding"

// OnboardingStore Redis 版 onboarding.Store，每次保存刷新 TTL。
// Redis 故障时熔断器快速失败，调用方吞掉错误后流程照常进行。
type OnboardingStore struct {
	client  goredis.UniversalClient
	catalog *onboarding.Catalog
	key     string
	ttl     time.Duration
	breaker *CircuitBreaker
}

var _ onboarding.Store = (*OnboardingStore)(nil)

func NewOnboardingStore(client goredis.UniversalClient, catalog *onboarding.Catalog, userID string, ttl time.Duration, breaker *CircuitBreaker) *OnboardingStore {
	return &OnboardingStore{
		client:  client,
		catalog: catalog,
		key:     OnboardingFormKey(userID),
		ttl:     ttl,
		breaker: breaker,
	}
}

func OnboardingFormKey(userID string) string {
	return redis.Key(onboardingFormPrefix, "form", userID)
}

// Load 键不存在或内容损坏时返回 nil, nil
func (s *OnboardingStore) Load(ctx context.Context) (onboarding.Answers, error) {
	var data []byte
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := s.client.Get(ctx, s.key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load onboarding answers: %w", err)
	}
	return onboarding.DecodeAnswers(data, s.catalog), nil
}

func (s *OnboardingStore) Save(ctx context.Context, answers onboarding.Answers) error {
	data, err := onboarding.EncodeAnswers(answers)
	if err != nil {
		return fmt.Errorf("failed to encode onboarding answers: %w", err)
	}
	return s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.client.Set(ctx, s.key, data, s.ttl).Err()
	})
}

func (s *OnboardingStore) Clear(ctx context.Context) error {
	return s.breaker.Call(ctx, func(ctx context.Context) error {
		return s.client.Del(ctx, s.key).Err()
	})
}
