package model

// OnboardingCompletedMessage 问卷提交成功后发布，worker 据此计算风险画像
type OnboardingCompletedMessage struct {
	MessageID   string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	UserID      string `json:"user_id"`
	SubmittedAt string `json:"submitted_at"` // RFC3339
	OccurredAt  string `json:"occurred_at"`
}
