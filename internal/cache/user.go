package cache

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Plans/internal/model/dto"
)

// 用户相关的读缓存，写库后删除对应 key
// Key: plans:user:known:{user_id}   已确认存在的本地用户
// Key: plans:user:status:{user_id}  引导完成状态
// Key: plans:user:risk:{user_id}    风险画像，未生成时缓存空值
const (
	userKnownPrefix  = "user:known"
	userStatusPrefix = "user:status"
	userRiskPrefix   = "user:risk"

	userKnownTTL  = 24 * time.Hour
	userStatusTTL = 10 * time.Minute
	userRiskTTL   = time.Hour
	// 画像通常在提交后几秒内生成
	riskNotReadyTTL = 30 * time.Second
)

type UserCache struct {
	known  *ProtectedCache
	status *ProtectedCache
	risk   *ProtectedCache
}

func NewUserCache(client goredis.UniversalClient, breaker *CircuitBreaker) *UserCache {
	return &UserCache{
		known:  NewProtectedCache(client, userKnownPrefix, userKnownTTL, breaker),
		status: NewProtectedCache(client, userStatusPrefix, userStatusTTL, breaker),
		risk:   NewProtectedCache(client, userRiskPrefix, userRiskTTL, breaker).WithEmptyTTL(riskNotReadyTTL),
	}
}

// IsKnown 本地用户记录是否已创建过
func (c *UserCache) IsKnown(ctx context.Context, userID string) (bool, error) {
	var v int
	hit, err := c.known.Get(ctx, userID, &v)
	return hit == Hit, err
}

func (c *UserCache) MarkKnown(ctx context.Context, userID string) error {
	return c.known.Set(ctx, userID, 1)
}

func (c *UserCache) GetStatus(ctx context.Context, userID string) (*dto.UserStatusResponse, bool, error) {
	var st dto.UserStatusResponse
	hit, err := c.status.Get(ctx, userID, &st)
	if err != nil || hit != Hit {
		return nil, false, err
	}
	return &st, true, nil
}

func (c *UserCache) SetStatus(ctx context.Context, userID string, st *dto.UserStatusResponse) error {
	if st == nil {
		return nil
	}
	return c.status.Set(ctx, userID, st)
}

// InvalidateStatus 标记完成后调用
func (c *UserCache) InvalidateStatus(ctx context.Context, userID string) error {
	return c.status.Delete(ctx, userID)
}

// GetRiskProfile 返回 HitEmpty 表示画像尚未生成
func (c *UserCache) GetRiskProfile(ctx context.Context, userID string) (*dto.RiskProfileResponse, Lookup, error) {
	var p dto.RiskProfileResponse
	hit, err := c.risk.Get(ctx, userID, &p)
	if err != nil || hit != Hit {
		return nil, hit, err
	}
	return &p, Hit, nil
}

// SetRiskProfile p 为 nil 时记录为未生成
func (c *UserCache) SetRiskProfile(ctx context.Context, userID string, p *dto.RiskProfileResponse) error {
	if p == nil {
		return c.risk.Set(ctx, userID, nil)
	}
	return c.risk.Set(ctx, userID, p)
}

// InvalidateRiskProfile worker 写入新画像后调用
func (c *UserCache) InvalidateRiskProfile(ctx context.Context, userID string) error {
	return c.risk.Delete(ctx, userID)
}
