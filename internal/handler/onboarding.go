package handler

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/hertz/pkg/app"

	"Plans/internal/middleware"
	"Plans/internal/model/dto"
	"Plans/internal/onboarding"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/response"
)

// GetOnboardingSteps 步骤目录，客户端据此渲染
// GET /v1/onboarding/steps
func GetOnboardingSteps(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, onboardingService.Catalog())
}

// GetOnboardingState 当前进度，没有进行中的流程时恢复已保存的答案
// GET /v1/onboarding
func GetOnboardingState(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	state, err := onboardingService.State(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// AnswerOnboardingStep 记录当前步骤的答案
// POST /v1/onboarding/answers
func AnswerOnboardingStep(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	var req dto.AnswerRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	var value onboarding.Answer
	if len(req.Value) == 0 {
		response.Error(ctx, c, pkgerrors.OnboardingAnswerInvalid)
		return
	}
	if err := json.Unmarshal(req.Value, &value); err != nil {
		response.Error(ctx, c, pkgerrors.OnboardingAnswerInvalid)
		return
	}

	state, err := onboardingService.Answer(ctx, userID, onboarding.StepID(req.StepID), value)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// ToggleOnboardingOption 多选题勾选或取消一个选项
// POST /v1/onboarding/toggle
func ToggleOnboardingOption(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	var req dto.ToggleRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	state, err := onboardingService.Toggle(ctx, userID, onboarding.StepID(req.StepID), req.Option)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// AdvanceOnboarding 前进一步，离开最后一个问题时提交
// POST /v1/onboarding/advance
func AdvanceOnboarding(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	result, err := onboardingService.Advance(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}

// BackOnboarding 后退一步
// POST /v1/onboarding/back
func BackOnboarding(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	state, err := onboardingService.Back(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, state)
}

// LeaveOnboarding 离开页面，已保存的答案保留
// DELETE /v1/onboarding
func LeaveOnboarding(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	onboardingService.Leave(ctx, userID)
	response.NoContent(ctx, c)
}
