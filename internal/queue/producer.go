package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"Plans/internal/model"
	"Plans/pkg/logger"
	"Plans/pkg/snowflake"
	"Plans/storage/mq"
)

// PublishOnboardingCompleted 问卷提交成功后发布，worker 据此生成风险画像
func PublishOnboardingCompleted(ctx context.Context, msg model.OnboardingCompletedMessage) error {
	if msg.MessageID == "" {
		id, err := snowflake.NextString()
		if err != nil {
			logger.FromContext(ctx).Error("Failed to generate message ID",
				zap.String("user_id", msg.UserID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		msg.MessageID = "onb_completed_" + id
	}
	if msg.OccurredAt == "" {
		msg.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	err := mq.PublishMessage(ctx,
		mq.ExchangeOnboardingEvents,
		mq.RoutingKeyOnboardingCompleted,
		msg.MessageID,
		msg,
	)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to publish onboarding completed message",
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return err
	}

	logger.FromContext(ctx).Info("Published onboarding completed message",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", msg.UserID),
	)
	return nil
}
