package dto

import (
	"encoding/json"

	"Plans/internal/onboarding"
)

// AnswerRequest value 为字符串（单选）或字符串数组（多选）
type AnswerRequest struct {
	StepID string          `json:"step_id" vd:"len($)>0"`
	Value  json.RawMessage `json:"value" vd:"len($)>0"`
}

// ToggleRequest 多选题勾选 / 取消
type ToggleRequest struct {
	StepID string `json:"step_id" vd:"len($)>0"`
	Option string `json:"option" vd:"len($)>0"`
}

// AdvanceResponse outcome: advanced, completed, none
type AdvanceResponse struct {
	Outcome onboarding.Outcome `json:"outcome"`
	State   onboarding.State   `json:"state"`
}

// CatalogResponse 客户端据此渲染整个流程
type CatalogResponse struct {
	Steps         []onboarding.Step `json:"steps"`
	FinalQuestion onboarding.StepID `json:"final_question"`
	StorageKey    string            `json:"storage_key"`
}
