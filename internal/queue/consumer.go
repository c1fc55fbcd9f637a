package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"Plans/internal/model"
	"Plans/internal/risk"
	"Plans/pkg/errors"
	"Plans/pkg/logger"
	"Plans/pkg/metrics"
	"Plans/storage/mq"
)

type ResponseReader interface {
	GetByUserID(ctx context.Context, userID string) (*model.OnboardingResponse, error)
}

type ProfileWriter interface {
	Upsert(ctx context.Context, p *model.RiskProfile) error
}

// Locker 消息幂等
type Locker interface {
	TryLock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// ProfileCache 画像写入后删除 API 侧的读缓存
type ProfileCache interface {
	InvalidateRiskProfile(ctx context.Context, userID string) error
}

// RiskProfileHandler 消费 onboarding.completed，计算并保存风险画像
type RiskProfileHandler struct {
	responses ResponseReader
	profiles  ProfileWriter
	locker    Locker
	cache     ProfileCache
}

func NewRiskProfileHandler(responses ResponseReader, profiles ProfileWriter, locker Locker) *RiskProfileHandler {
	return &RiskProfileHandler{responses: responses, profiles: profiles, locker: locker}
}

func (h *RiskProfileHandler) WithCache(c ProfileCache) *RiskProfileHandler {
	h.cache = c
	return h
}

func (h *RiskProfileHandler) Handle(ctx context.Context, body []byte) error {
	var msg model.OnboardingCompletedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed message: %v", err)}
	}
	if msg.UserID == "" {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s has no user_id", msg.MessageID)}
	}

	if h.locker != nil && msg.MessageID != "" {
		acquired, err := h.locker.TryLock(ctx, msg.MessageID)
		if err != nil {
			// 检查失败时继续处理，画像 upsert 本身是幂等的
			logger.FromContext(ctx).Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !acquired {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", msg.MessageID)}
		}
	}

	if err := h.process(ctx, msg); err != nil {
		if h.locker != nil && msg.MessageID != "" {
			if uerr := h.locker.Unlock(ctx, msg.MessageID); uerr != nil {
				logger.FromContext(ctx).Warn("Failed to release message lock",
					zap.String("message_id", msg.MessageID),
					zap.Error(uerr),
				)
			}
		}
		return err
	}
	return nil
}

func (h *RiskProfileHandler) process(ctx context.Context, msg model.OnboardingCompletedMessage) error {
	resp, err := h.responses.GetByUserID(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("failed to load onboarding response: %w", err)
	}

	profile := risk.Assess(resp)
	if err := h.profiles.Upsert(ctx, profile); err != nil {
		return err
	}

	if h.cache != nil {
		if err := h.cache.InvalidateRiskProfile(ctx, msg.UserID); err != nil {
			// 缓存过期后自然恢复，不重新投递
			logger.FromContext(ctx).Warn("Failed to invalidate cached risk profile",
				zap.String("user_id", msg.UserID),
				zap.Error(err),
			)
		}
	}

	metrics.RecordRiskProfile(ctx, string(profile.Level))
	logger.FromContext(ctx).Info("Risk profile updated",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", msg.UserID),
		zap.Int("score", profile.Score),
		zap.String("level", string(profile.Level)),
	)
	return nil
}

// StartRiskProfileConsumer 阻塞直到 ctx 取消
func StartRiskProfileConsumer(ctx context.Context, h *RiskProfileHandler, prefetch int) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueOnboardingCompleted,
		ConsumerTag:   "risk-profile-worker",
		PrefetchCount: prefetch,
		Handler:       h.Handle,
	})
}
