package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError   = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
	NotFound        = Definition{Code: "NOT_FOUND", Message: "Resource not found"}
)

// 认证相关错误。
var (
	Unauthorized  = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidUserID = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
)

// 引导流程错误。
var (
	OnboardingStepInvalid      = Definition{Code: "ONBOARDING_STEP_INVALID", Message: "Onboarding step invalid"}
	OnboardingAnswerInvalid    = Definition{Code: "ONBOARDING_ANSWER_INVALID", Message: "Onboarding answer invalid"}
	OnboardingAnswerRequired   = Definition{Code: "ONBOARDING_ANSWER_REQUIRED", Message: "Current step must be answered first"}
	OnboardingSubmitFailed     = Definition{Code: "ONBOARDING_SUBMIT_FAILED", Message: "Failed to save. Please try again."}
	OnboardingSubmitInProgress = Definition{Code: "ONBOARDING_SUBMIT_IN_PROGRESS", Message: "Onboarding submission in progress"}
	OnboardingFlowClosed       = Definition{Code: "ONBOARDING_FLOW_CLOSED", Message: "Onboarding flow closed"}
)

// 风险画像错误。
var (
	RiskProfileNotReady = Definition{Code: "RISK_PROFILE_NOT_READY", Message: "Risk profile not ready"}
)

// token 相关的内部错误，不直接返回给客户端。
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrInvalidTokenType             = stderrors.New("invalid token type")
	ErrUserIDNotFound               = stderrors.New("user id not found in token")
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = Definition{Code: "USER_NOT_FOUND", Message: "User not found"}

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:             InvalidRequest,
	TooManyRequests.Code:            TooManyRequests,
	InternalError.Code:              InternalError,
	NotFound.Code:                   NotFound,
	Unauthorized.Code:               Unauthorized,
	InvalidUserID.Code:              InvalidUserID,
	OnboardingStepInvalid.Code:      OnboardingStepInvalid,
	OnboardingAnswerInvalid.Code:    OnboardingAnswerInvalid,
	OnboardingAnswerRequired.Code:   OnboardingAnswerRequired,
	OnboardingSubmitFailed.Code:     OnboardingSubmitFailed,
	OnboardingSubmitInProgress.Code: OnboardingSubmitInProgress,
	OnboardingFlowClosed.Code:       OnboardingFlowClosed,
	RiskProfileNotReady.Code:        RiskProfileNotReady,
	ErrUserNotFound.Code:            ErrUserNotFound,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// As 从错误链中取出业务错误
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}

// SkipMessageError 消费者遇到重复消息时返回，消息会被确认而不是重新入队。
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return fmt.Sprintf("skip message: %s", e.Reason)
}
