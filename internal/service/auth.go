package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"Plans/config"
	"Plans/internal/cache"
	"Plans/internal/model/dto"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/logger"
	"Plans/pkg/token"
	"Plans/storage/redis"
)

var (
	authService *AuthService
	authOnce    sync.Once
)

func Auth() *AuthService {
	authOnce.Do(func() {
		var tokens RefreshTokenStore
		if redis.Ready() {
			ttl := time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour
			tokens = cache.NewRefreshTokens(redis.Client(), ttl)
		}
		authService = NewAuthService(tokens)
	})
	return authService
}

// RefreshTokenStore 保存每个用户最近一次签发的 refresh token
type RefreshTokenStore interface {
	Get(ctx context.Context, userID string) (string, bool, error)
	Set(ctx context.Context, userID, refreshToken string) error
}

type AuthService struct {
	tokens RefreshTokenStore
}

// NewAuthService tokens 为 nil 时不做轮换检查
func NewAuthService(tokens RefreshTokenStore) *AuthService {
	return &AuthService{tokens: tokens}
}

// RefreshToken 换取新的令牌对。
// 身份服务首次签发的 refresh token 没有记录，直接接受；之后只接受最近一次签发的。
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenPairResponse, error) {
	userID, err := token.ValidateRefreshToken(refreshToken)
	if err != nil {
		logger.Logger.Info("Refresh token rejected", zap.Error(err))
		return nil, pkgerrors.Unauthorized
	}

	if s.tokens != nil {
		stored, ok, err := s.tokens.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if ok && stored != refreshToken {
			logger.Logger.Warn("Reused refresh token", zap.String("user_id", userID))
			return nil, pkgerrors.Unauthorized
		}
	}

	access, refresh, expiresIn, err := token.GenerateTokenPair(userID)
	if err != nil {
		return nil, err
	}

	if s.tokens != nil {
		if err := s.tokens.Set(ctx, userID, refresh); err != nil {
			return nil, err
		}
	}

	return &dto.TokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	}, nil
}
