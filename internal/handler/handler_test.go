package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Plans/internal/middleware"
	"Plans/internal/model/dto"
	"Plans/internal/onboarding"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/response"
)

type fakeOnboarding struct {
	answered  map[onboarding.StepID]onboarding.Answer
	toggled   []string
	left      []string
	advance   dto.AdvanceResponse
	advErr    error
	answerErr error
}

func (f *fakeOnboarding) Catalog() dto.CatalogResponse {
	c := onboarding.DefaultCatalog()
	return dto.CatalogResponse{Steps: c.Steps(), FinalQuestion: c.FinalQuestion(), StorageKey: onboarding.StorageKey}
}

func (f *fakeOnboarding) State(ctx context.Context, userID string) (onboarding.State, error) {
	return onboarding.State{Index: 1, Total: 18}, nil
}

func (f *fakeOnboarding) Answer(ctx context.Context, userID string, stepID onboarding.StepID, value onboarding.Answer) (onboarding.State, error) {
	if f.answerErr != nil {
		return onboarding.State{}, f.answerErr
	}
	if f.answered == nil {
		f.answered = map[onboarding.StepID]onboarding.Answer{}
	}
	f.answered[stepID] = value
	return onboarding.State{Answers: onboarding.Answers{stepID: value}}, nil
}

func (f *fakeOnboarding) Toggle(ctx context.Context, userID string, stepID onboarding.StepID, option string) (onboarding.State, error) {
	f.toggled = append(f.toggled, string(stepID)+"="+option)
	return onboarding.State{}, nil
}

func (f *fakeOnboarding) Advance(ctx context.Context, userID string) (dto.AdvanceResponse, error) {
	return f.advance, f.advErr
}

func (f *fakeOnboarding) Back(ctx context.Context, userID string) (onboarding.State, error) {
	return onboarding.State{Direction: onboarding.Backward}, nil
}

func (f *fakeOnboarding) Leave(ctx context.Context, userID string) {
	f.left = append(f.left, userID)
}

type fakeUsers struct{}

func (fakeUsers) GetUserStatus(ctx context.Context, userID string) (*dto.UserStatusResponse, error) {
	return &dto.UserStatusResponse{UserID: userID, OnboardingComplete: true}, nil
}

func (fakeUsers) GetRiskProfile(ctx context.Context, userID string) (*dto.RiskProfileResponse, error) {
	return nil, pkgerrors.RiskProfileNotReady
}

type fakeAuth struct{}

func (fakeAuth) RefreshToken(ctx context.Context, refreshToken string) (*dto.TokenPairResponse, error) {
	if refreshToken != "good" {
		return nil, pkgerrors.Unauthorized
	}
	return &dto.TokenPairResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 1800}, nil
}

func newTestEngine(t *testing.T, o *fakeOnboarding) *route.Engine {
	t.Helper()
	SetServices(o, fakeUsers{}, fakeAuth{})

	engine := route.NewEngine(config.NewOptions([]config.Option{}))
	authed := engine.Group("/v1", func(ctx context.Context, c *app.RequestContext) {
		c.Set(middleware.IdentityKey, "u-1")
		c.Next(ctx)
	})
	authed.GET("/onboarding/steps", GetOnboardingSteps)
	authed.GET("/onboarding", GetOnboardingState)
	authed.POST("/onboarding/answers", AnswerOnboardingStep)
	authed.POST("/onboarding/toggle", ToggleOnboardingOption)
	authed.POST("/onboarding/advance", AdvanceOnboarding)
	authed.POST("/onboarding/back", BackOnboarding)
	authed.DELETE("/onboarding", LeaveOnboarding)
	authed.GET("/users/me/status", GetUserStatus)
	authed.GET("/users/me/risk-profile", GetRiskProfile)
	engine.POST("/v1/auth/token/refresh", RefreshToken)
	engine.GET("/v1/anonymous", GetOnboardingState)
	return engine
}

func jsonBody(s string) *ut.Body {
	return &ut.Body{Body: bytes.NewBufferString(s), Len: len(s)}
}

var jsonHeader = ut.Header{Key: "Content-Type", Value: "application/json"}

func decodeData(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func decodeError(t *testing.T, body []byte) string {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestGetOnboardingSteps(t *testing.T) {
	engine := newTestEngine(t, &fakeOnboarding{})

	w := ut.PerformRequest(engine, consts.MethodGet, "/v1/onboarding/steps", nil)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())

	var catalog struct {
		Steps         []map[string]interface{} `json:"steps"`
		FinalQuestion string                   `json:"final_question"`
		StorageKey    string                   `json:"storage_key"`
	}
	decodeData(t, w.Result().Body(), &catalog)
	assert.Len(t, catalog.Steps, 18)
	assert.Equal(t, "insuranceTypesOwned", catalog.FinalQuestion)
	assert.Equal(t, "plans_onboarding_form", catalog.StorageKey)
}

func TestAnswerOnboardingStep(t *testing.T) {
	o := &fakeOnboarding{}
	engine := newTestEngine(t, o)

	w := ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/answers",
		jsonBody(`{"step_id":"gender","value":"Female"}`), jsonHeader)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Equal(t, "Female", o.answered["gender"].Value())

	w = ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/answers",
		jsonBody(`{"step_id":"knownConditions","value":["Diabetes","Hypertension"]}`), jsonHeader)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Equal(t, []string{"Diabetes", "Hypertension"}, o.answered["knownConditions"].Values())
}

func TestAnswerOnboardingStepRejectsBadValue(t *testing.T) {
	engine := newTestEngine(t, &fakeOnboarding{})

	w := ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/answers",
		jsonBody(`{"step_id":"gender","value":42}`), jsonHeader)
	assert.Equal(t, consts.StatusBadRequest, w.Result().StatusCode())
	assert.Equal(t, "ONBOARDING_ANSWER_INVALID", decodeError(t, w.Result().Body()))

	w = ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/answers",
		jsonBody(`{"step_id":"gender"}`), jsonHeader)
	assert.Equal(t, consts.StatusBadRequest, w.Result().StatusCode())
}

func TestAnswerOnboardingStepMapsServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{pkgerrors.OnboardingStepInvalid, consts.StatusBadRequest, "ONBOARDING_STEP_INVALID"},
		{pkgerrors.OnboardingSubmitInProgress, consts.StatusConflict, "ONBOARDING_SUBMIT_IN_PROGRESS"},
		{pkgerrors.OnboardingFlowClosed, consts.StatusConflict, "ONBOARDING_FLOW_CLOSED"},
	}

	for _, tt := range tests {
		engine := newTestEngine(t, &fakeOnboarding{answerErr: tt.err})
		w := ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/answers",
			jsonBody(`{"step_id":"gender","value":"Male"}`), jsonHeader)
		assert.Equal(t, tt.status, w.Result().StatusCode(), tt.code)
		assert.Equal(t, tt.code, decodeError(t, w.Result().Body()))
	}
}

func TestToggleOnboardingOption(t *testing.T) {
	o := &fakeOnboarding{}
	engine := newTestEngine(t, o)

	w := ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/toggle",
		jsonBody(`{"step_id":"knownConditions","option":"None"}`), jsonHeader)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())
	assert.Equal(t, []string{"knownConditions=None"}, o.toggled)
}

func TestAdvanceOnboarding(t *testing.T) {
	o := &fakeOnboarding{advance: dto.AdvanceResponse{Outcome: onboarding.OutcomeCompleted}}
	engine := newTestEngine(t, o)

	w := ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/advance", nil)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())

	var res struct {
		Outcome string `json:"outcome"`
	}
	decodeData(t, w.Result().Body(), &res)
	assert.Equal(t, "completed", res.Outcome)
}

func TestAdvanceOnboardingSubmitFailure(t *testing.T) {
	engine := newTestEngine(t, &fakeOnboarding{advErr: pkgerrors.OnboardingSubmitFailed})

	w := ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/advance", nil)
	assert.Equal(t, consts.StatusBadGateway, w.Result().StatusCode())

	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	assert.Equal(t, "ONBOARDING_SUBMIT_FAILED", resp.Error.Code)
	assert.Equal(t, "Failed to save. Please try again.", resp.Error.Message)
}

func TestBackAndLeaveOnboarding(t *testing.T) {
	o := &fakeOnboarding{}
	engine := newTestEngine(t, o)

	w := ut.PerformRequest(engine, consts.MethodPost, "/v1/onboarding/back", nil)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())

	w = ut.PerformRequest(engine, consts.MethodDelete, "/v1/onboarding", nil)
	assert.Equal(t, consts.StatusNoContent, w.Result().StatusCode())
	assert.Equal(t, []string{"u-1"}, o.left)
}

func TestOnboardingRequiresIdentity(t *testing.T) {
	engine := newTestEngine(t, &fakeOnboarding{})

	w := ut.PerformRequest(engine, consts.MethodGet, "/v1/anonymous", nil)
	assert.Equal(t, consts.StatusUnauthorized, w.Result().StatusCode())
}

func TestUserEndpoints(t *testing.T) {
	engine := newTestEngine(t, &fakeOnboarding{})

	w := ut.PerformRequest(engine, consts.MethodGet, "/v1/users/me/status", nil)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())
	var status dto.UserStatusResponse
	decodeData(t, w.Result().Body(), &status)
	assert.True(t, status.OnboardingComplete)

	w = ut.PerformRequest(engine, consts.MethodGet, "/v1/users/me/risk-profile", nil)
	assert.Equal(t, consts.StatusNotFound, w.Result().StatusCode())
	assert.Equal(t, "RISK_PROFILE_NOT_READY", decodeError(t, w.Result().Body()))
}

func TestRefreshToken(t *testing.T) {
	engine := newTestEngine(t, &fakeOnboarding{})

	w := ut.PerformRequest(engine, consts.MethodPost, "/v1/auth/token/refresh",
		jsonBody(`{"refresh_token":"good"}`), jsonHeader)
	require.Equal(t, consts.StatusOK, w.Result().StatusCode())

	w = ut.PerformRequest(engine, consts.MethodPost, "/v1/auth/token/refresh",
		jsonBody(`{"refresh_token":"bad"}`), jsonHeader)
	assert.Equal(t, consts.StatusUnauthorized, w.Result().StatusCode())

	w = ut.PerformRequest(engine, consts.MethodPost, "/v1/auth/token/refresh",
		jsonBody(`{}`), jsonHeader)
	assert.Equal(t, consts.StatusBadRequest, w.Result().StatusCode())
}
