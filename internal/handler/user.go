package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"Plans/internal/middleware"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/response"
)

// GetUserStatus 是否已完成引导
// GET /v1/users/me/status
func GetUserStatus(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	status, err := userService.GetUserStatus(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, status)
}

// GetRiskProfile 风险画像
// GET /v1/users/me/risk-profile
func GetRiskProfile(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	profile, err := userService.GetRiskProfile(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, profile)
}
