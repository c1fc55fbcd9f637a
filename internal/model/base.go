package model

import (
	"time"
)

// BaseModel 不使用软删除：onboarding_responses / risk_profiles 依赖 user_id 唯一约束做 upsert，
// 软删除的行会继续占用唯一键。
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
}
