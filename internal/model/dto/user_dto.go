package dto

import "time"

// UserStatusResponse 首页据此决定跳转引导流程还是仪表盘
type UserStatusResponse struct {
	UserID                string     `json:"user_id"`
	OnboardingComplete    bool       `json:"onboarding_complete"`
	OnboardingCompletedAt *time.Time `json:"onboarding_completed_at,omitempty"`
}

// RiskFactorItem 风险因素
type RiskFactorItem struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Impact int    `json:"impact"`
}

// RiskProfileResponse 风险画像
type RiskProfileResponse struct {
	Score       int              `json:"score"`
	Level       string           `json:"level"`
	Factors     []RiskFactorItem `json:"factors"`
	SubmittedAt time.Time        `json:"submitted_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
