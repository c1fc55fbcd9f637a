package model

import (
	"time"

	"gorm.io/datatypes"
)

// RiskLevel 分数越高风险越低
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

// RiskFactor 对总分有影响的单项
type RiskFactor struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Impact int    `json:"impact"` // 负数表示扣分
}

// RiskProfile 根据问卷结果计算的风险画像
type RiskProfile struct {
	BaseModel
	UserID      string                          `gorm:"uniqueIndex;type:varchar(64);not null" json:"user_id"`
	Score       int                             `gorm:"not null" json:"score"`
	Level       RiskLevel                       `gorm:"type:varchar(16);not null" json:"level"`
	Factors     datatypes.JSONSlice[RiskFactor] `gorm:"type:jsonb" json:"factors"`
	SubmittedAt time.Time                       `gorm:"not null" json:"submitted_at"` // 对应问卷的提交时间
}

func (RiskProfile) TableName() string {
	return "risk_profiles"
}
