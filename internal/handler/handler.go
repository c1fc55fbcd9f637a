package handler

import (
	"context"

	"Plans/internal/model/dto"
	"Plans/internal/onboarding"
)

// OnboardingService 引导流程，由 service.Onboarding 实现
type OnboardingService interface {
	Catalog() dto.CatalogResponse
	State(ctx context.Context, userID string) (onboarding.State, error)
	Answer(ctx context.Context, userID string, stepID onboarding.StepID, value onboarding.Answer) (onboarding.State, error)
	Toggle(ctx context.Context, userID string, stepID onboarding.StepID, option string) (onboarding.State, error)
	Advance(ctx context.Context, userID string) (dto.AdvanceResponse, error)
	Back(ctx context.Context, userID string) (onboarding.State, error)
	Leave(ctx context.Context, userID string)
}

type UserService interface {
	GetUserStatus(ctx context.Context, userID string) (*dto.UserStatusResponse, error)
	GetRiskProfile(ctx context.Context, userID string) (*dto.RiskProfileResponse, error)
}

type AuthService interface {
	RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenPairResponse, error)
}

var (
	onboardingService OnboardingService
	userService       UserService
	authService       AuthService
)

// SetServices 在 router.Register 之前调用
func SetServices(o OnboardingService, u UserService, a AuthService) {
	onboardingService = o
	userService = u
	authService = a
}
