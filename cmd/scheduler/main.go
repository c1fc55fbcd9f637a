package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"Plans/config"
	"Plans/internal/queue"
	"Plans/internal/repository"
	"Plans/internal/schedule"
	"Plans/pkg/logger"
	"Plans/pkg/snowflake"
	"Plans/storage"
	"Plans/storage/database"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(storage.Database, storage.MQ); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := storage.Close(closeCtx); err != nil {
			logger.Logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	// 重新投递的消息 ID 由 snowflake 生成
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	reconciler := schedule.NewRiskReconciler(
		repository.NewOnboardingRepository(database.DB()),
		queue.PublishOnboardingCompleted,
		logger.Logger,
	)
	runRiskReconcileLoop(ctx, reconciler)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runRiskReconcileLoop 每 10 分钟补偿一次，development 环境 1 分钟
func runRiskReconcileLoop(ctx context.Context, r *schedule.RiskReconciler) {
	interval := 10 * time.Minute
	if config.Cfg.Environment == "development" {
		interval = 1 * time.Minute
		logger.Logger.Info("Risk reconcile loop running in development mode with 1m interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if _, err := r.Run(runCtx); err != nil {
				logger.Logger.Error("Risk reconcile run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
