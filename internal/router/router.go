package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"Plans/config"
	"Plans/internal/handler"
	"Plans/internal/middleware"
	"Plans/internal/service"
	"Plans/storage/redis"
)

func Register(h *server.Hertz) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.RequestIDMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Healthz)

	v1 := h.Group("/v1")

	// 认证相关路由
	auth := v1.Group("/auth", rateLimit(middleware.AuthRateLimitConfig)...)
	{
		auth.POST("/token/refresh", handler.RefreshToken)
	}

	// 首次访问时创建本地用户
	ensureUser := middleware.EnsureUserMiddleware(service.User().EnsureUser)

	// 引导问卷路由
	onboarding := v1.Group("/onboarding", middleware.AuthMiddleware(), ensureUser)
	onboarding.Use(rateLimit(middleware.OnboardingRateLimitConfig(config.Cfg.RateLimitPerMinute))...)
	{
		onboarding.GET("/steps", handler.GetOnboardingSteps)
		onboarding.GET("", handler.GetOnboardingState)
		onboarding.POST("/answers", handler.AnswerOnboardingStep)
		onboarding.POST("/toggle", handler.ToggleOnboardingOption)
		onboarding.POST("/advance", handler.AdvanceOnboarding)
		onboarding.POST("/back", handler.BackOnboarding)
		onboarding.DELETE("", handler.LeaveOnboarding)
	}

	// 用户相关路由
	users := v1.Group("/users", middleware.AuthMiddleware(), ensureUser)
	{
		users.GET("/me/status", handler.GetUserStatus)
		users.GET("/me/risk-profile", handler.GetRiskProfile)
	}
}

// rateLimit 关闭限流或 Redis 未初始化时不挂载
func rateLimit(cfg middleware.RateLimitConfig) []app.HandlerFunc {
	if !config.Cfg.RateLimitEnabled || !redis.Ready() {
		return nil
	}
	return []app.HandlerFunc{middleware.RateLimitMiddleware(redis.Client(), cfg)}
}
