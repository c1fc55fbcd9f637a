package schedule

// 风险画像补偿：提交成功但事件丢失时，画像永远不会生成。
// 周期性扫描缺少画像的提交记录并重新投递 onboarding.completed 事件。

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"Plans/internal/model"
)

const (
	DefaultGracePeriod = 5 * time.Minute
	DefaultBatchSize   = 200
)

// PendingFinder 由 repository.OnboardingRepository 实现
type PendingFinder interface {
	ListPendingRiskProfiles(ctx context.Context, before time.Time, limit int) ([]model.OnboardingResponse, error)
}

// Publisher 由 queue.PublishOnboardingCompleted 实现
type Publisher func(ctx context.Context, msg model.OnboardingCompletedMessage) error

type RiskReconciler struct {
	finder  PendingFinder
	publish Publisher
	logger  *zap.Logger
	now     func() time.Time

	grace time.Duration
	batch int

	mu      sync.Mutex
	running bool
}

func NewRiskReconciler(finder PendingFinder, publish Publisher, logger *zap.Logger) *RiskReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskReconciler{
		finder:  finder,
		publish: publish,
		logger:  logger,
		now:     time.Now,
		grace:   DefaultGracePeriod,
		batch:   DefaultBatchSize,
	}
}

// Run 扫描一批并重新投递，返回成功投递的数量。上一轮未结束时直接跳过。
func (r *RiskReconciler) Run(ctx context.Context) (int, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Info("Risk reconcile job already running, skipping")
		return 0, nil
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	startTime := r.now()
	pending, err := r.finder.ListPendingRiskProfiles(ctx, startTime.Add(-r.grace), r.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending risk profiles: %w", err)
	}

	if len(pending) == 0 {
		r.logger.Debug("No pending risk profiles")
		return 0, nil
	}

	published := 0
	for _, resp := range pending {
		if ctx.Err() != nil {
			break
		}

		msg := model.OnboardingCompletedMessage{
			UserID:      resp.UserID,
			SubmittedAt: resp.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if err := r.publish(ctx, msg); err != nil {
			r.logger.Warn("Failed to republish onboarding completed event",
				zap.String("user_id", resp.UserID),
				zap.Error(err),
			)
			continue
		}
		published++
	}

	r.logger.Info("Risk reconcile job finished",
		zap.Int("pending", len(pending)),
		zap.Int("published", published),
		zap.Duration("duration", time.Since(startTime)),
	)
	return published, ctx.Err()
}
