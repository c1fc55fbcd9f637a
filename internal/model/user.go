package model

import "time"

// User 本地用户记录。身份由外部身份服务签发的 JWT 中的 uid 确定（AuthID）。
type User struct {
	BaseModel
	PublicID              int64      `gorm:"uniqueIndex;not null" json:"public_id"`
	AuthID                string     `gorm:"uniqueIndex;type:varchar(64);not null" json:"auth_id"`
	OnboardingComplete    bool       `gorm:"not null;default:false" json:"onboarding_complete"`
	OnboardingCompletedAt *time.Time `json:"onboarding_completed_at,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
