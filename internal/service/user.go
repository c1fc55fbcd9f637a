package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"Plans/internal/cache"
	"Plans/internal/model"
	"Plans/internal/model/dto"
	"Plans/internal/onboarding"
	"Plans/internal/repository"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/logger"
	"Plans/storage/database"
	"Plans/storage/redis"
)

// api 中的 user_id 是身份服务签发的 uid，对应 users.auth_id

var (
	userService *UserService
	userOnce    sync.Once
)

func User() *UserService {
	userOnce.Do(func() {
		db := database.DB()
		userService = NewUserService(repository.NewUserRepository(db), repository.NewRiskRepository(db)).
			WithCache(userCache())
	})
	return userService
}

// userCache 未配置 Redis 时返回 nil，读操作直接访问数据库
func userCache() *cache.UserCache {
	if !redis.Ready() {
		return nil
	}
	return cache.NewUserCache(redis.Client(), cache.RedisBreaker)
}

// StatusFlagger 标记完成后删除状态缓存，首页立即看到新状态
type StatusFlagger struct {
	Next  onboarding.IdentityFlagger
	Cache *cache.UserCache
}

func (f StatusFlagger) MarkOnboardingComplete(ctx context.Context, identity string) error {
	if err := f.Next.MarkOnboardingComplete(ctx, identity); err != nil {
		return err
	}
	if f.Cache != nil {
		if err := f.Cache.InvalidateStatus(ctx, identity); err != nil {
			cacheFailed(ctx, "status", identity, err)
		}
	}
	return nil
}

type UserReader interface {
	EnsureUser(ctx context.Context, authID string) (*model.User, error)
	GetByAuthID(ctx context.Context, authID string) (*model.User, error)
}

type RiskReader interface {
	GetByUserID(ctx context.Context, userID string) (*model.RiskProfile, error)
}

type UserService struct {
	users UserReader
	risks RiskReader
	cache *cache.UserCache
}

func NewUserService(users UserReader, risks RiskReader) *UserService {
	return &UserService{users: users, risks: risks}
}

// WithCache 读操作先查 Redis，缓存故障时直接回源数据库
func (s *UserService) WithCache(c *cache.UserCache) *UserService {
	s.cache = c
	return s
}

// EnsureUser 鉴权通过后调用，首次访问时创建本地用户
func (s *UserService) EnsureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return pkgerrors.InvalidUserID
	}

	if s.cache != nil {
		known, err := s.cache.IsKnown(ctx, userID)
		if err != nil {
			cacheFailed(ctx, "known", userID, err)
		}
		if known {
			return nil
		}
	}

	if _, err := s.users.EnsureUser(ctx, userID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.MarkKnown(ctx, userID); err != nil {
			cacheFailed(ctx, "known", userID, err)
		}
	}
	return nil
}

// GetUserStatus 首页据此决定进入引导流程还是仪表盘
func (s *UserService) GetUserStatus(ctx context.Context, userID string) (*dto.UserStatusResponse, error) {
	if userID == "" {
		return nil, pkgerrors.InvalidUserID
	}

	if s.cache != nil {
		st, ok, err := s.cache.GetStatus(ctx, userID)
		if err != nil {
			cacheFailed(ctx, "status", userID, err)
		}
		if ok {
			return st, nil
		}
	}

	user, err := s.users.GetByAuthID(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := &dto.UserStatusResponse{
		UserID:                user.AuthID,
		OnboardingComplete:    user.OnboardingComplete,
		OnboardingCompletedAt: user.OnboardingCompletedAt,
	}
	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, userID, st); err != nil {
			cacheFailed(ctx, "status", userID, err)
		}
	}
	return st, nil
}

// GetRiskProfile worker 尚未生成时返回 RiskProfileNotReady
func (s *UserService) GetRiskProfile(ctx context.Context, userID string) (*dto.RiskProfileResponse, error) {
	if userID == "" {
		return nil, pkgerrors.InvalidUserID
	}

	if s.cache != nil {
		cached, hit, err := s.cache.GetRiskProfile(ctx, userID)
		if err != nil {
			cacheFailed(ctx, "risk", userID, err)
		}
		switch hit {
		case cache.Hit:
			return cached, nil
		case cache.HitEmpty:
			return nil, pkgerrors.RiskProfileNotReady
		}
	}

	p, err := s.risks.GetByUserID(ctx, userID)
	if err != nil {
		if s.cache != nil && errors.Is(err, pkgerrors.RiskProfileNotReady) {
			if cerr := s.cache.SetRiskProfile(ctx, userID, nil); cerr != nil {
				cacheFailed(ctx, "risk", userID, cerr)
			}
		}
		return nil, err
	}

	factors := make([]dto.RiskFactorItem, 0, len(p.Factors))
	for _, f := range p.Factors {
		factors = append(factors, dto.RiskFactorItem{Key: f.Key, Label: f.Label, Impact: f.Impact})
	}

	resp := &dto.RiskProfileResponse{
		Score:       p.Score,
		Level:       string(p.Level),
		Factors:     factors,
		SubmittedAt: p.SubmittedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if s.cache != nil {
		if err := s.cache.SetRiskProfile(ctx, userID, resp); err != nil {
			cacheFailed(ctx, "risk", userID, err)
		}
	}
	return resp, nil
}

func cacheFailed(ctx context.Context, kind, userID string, err error) {
	logger.FromContext(ctx).Warn("User cache unavailable",
		zap.String("cache", kind),
		zap.String("user_id", userID),
		zap.Error(err),
	)
}
