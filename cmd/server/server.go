package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"Plans/config"
	"Plans/internal/handler"
	"Plans/internal/middleware"
	"Plans/internal/router"
	"Plans/internal/service"
	"Plans/pkg/logger"
	"Plans/pkg/metrics"
	"Plans/pkg/otel"
	"Plans/pkg/snowflake"
	"Plans/pkg/token"
	"Plans/storage"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	// 日志部分
	logger.Init()
	defer logger.Sync()

	if err := config.Cfg.Validate(); err != nil {
		logger.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

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
		ServiceName:    config.Cfg.ServiceName,
		ServiceVersion: version,
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTELEndpoint,
		SampleRatio:    config.Cfg.OTELSampleRatio,
	})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}

	if err := metrics.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize onboarding metrics", zap.Error(err))
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	// 初始化中间件
	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	handler.SetServices(service.Onboarding(), service.User(), service.Auth())

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("version", version),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.String("onboarding_store", config.Cfg.OnboardingStore),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	tracer, tracing := middleware.NewServerTracerConfig()
	h := server.Default(server.WithHostPorts(addr), tracer)
	h.Use(tracing)

	router.Register(h)

	// 优雅关闭：先停 HTTP，再关闭进行中的引导流程，最后释放外部连接
	h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
		service.Onboarding().Close()
	})

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer closeCancel()
	if err := storage.Close(closeCtx); err != nil {
		logger.Logger.Error("Failed to close storage", zap.Error(err))
	}
	if err := shutdownOtel(closeCtx); err != nil {
		logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
	}

	logger.Logger.Info("Server shutting down gracefully")
}
