package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"Plans/config"
	"Plans/internal/cache"
	"Plans/internal/queue"
	"Plans/internal/repository"
	"Plans/pkg/logger"
	"Plans/pkg/metrics"
	"Plans/pkg/otel"
	"Plans/pkg/snowflake"
	"Plans/storage"
	"Plans/storage/database"
	"Plans/storage/redis"
)

const (
	// 同一条提交事件在该时间内只处理一次
	dedupeTTL = 24 * time.Hour
	prefetch  = 16
)

var version = "dev"

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOtel, err := otel.Init(ctx, otel.Config{
		Enabled:        config.Cfg.OTELEnabled,
		ServiceName:    config.Cfg.ServiceName + "-worker",
		ServiceVersion: version,
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTELEndpoint,
		SampleRatio:    config.Cfg.OTELSampleRatio,
	})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	if err := metrics.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize onboarding metrics", zap.Error(err))
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := storage.Close(closeCtx); err != nil {
			logger.Logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	// 部署时 worker 与 server 需配置不同的 SNOWFLAKE_MACHINE_ID
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	db := database.DB()
	h := queue.NewRiskProfileHandler(
		repository.NewOnboardingRepository(db),
		repository.NewRiskRepository(db),
		cache.NewDeduper(redis.Client(), dedupeTTL),
	).WithCache(cache.NewUserCache(redis.Client(), cache.RedisBreaker))

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	if err := queue.StartRiskProfileConsumer(ctx, h, prefetch); err != nil {
		logger.Logger.Error("Risk profile consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
