package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Plans/internal/cache"
	"Plans/internal/model"
	pkgerrors "Plans/pkg/errors"
)

type fakeUsers struct {
	users   map[string]*model.User
	ensured int
	flagged []string
}

func (f *fakeUsers) EnsureUser(ctx context.Context, authID string) (*model.User, error) {
	f.ensured++
	if u, ok := f.users[authID]; ok {
		return u, nil
	}
	u := &model.User{AuthID: authID}
	f.users[authID] = u
	return u, nil
}

func (f *fakeUsers) GetByAuthID(ctx context.Context, authID string) (*model.User, error) {
	u, ok := f.users[authID]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) MarkOnboardingComplete(ctx context.Context, identity string) error {
	f.flagged = append(f.flagged, identity)
	u, ok := f.users[identity]
	if !ok {
		u = &model.User{AuthID: identity}
		f.users[identity] = u
	}
	u.OnboardingComplete = true
	return nil
}

type fakeRisks map[string]*model.RiskProfile

func (f fakeRisks) GetByUserID(ctx context.Context, userID string) (*model.RiskProfile, error) {
	p, ok := f[userID]
	if !ok {
		return nil, pkgerrors.RiskProfileNotReady
	}
	return p, nil
}

func TestUserServiceStatus(t *testing.T) {
	users := &fakeUsers{users: map[string]*model.User{}}
	svc := NewUserService(users, fakeRisks{})
	ctx := context.Background()

	_, err := svc.GetUserStatus(ctx, "u-1")
	require.ErrorIs(t, err, pkgerrors.ErrUserNotFound)

	require.NoError(t, svc.EnsureUser(ctx, "u-1"))
	st, err := svc.GetUserStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", st.UserID)
	assert.False(t, st.OnboardingComplete)

	done := time.Date(2026, 3, 4, 7, 35, 6, 0, time.UTC)
	users.users["u-1"].OnboardingComplete = true
	users.users["u-1"].OnboardingCompletedAt = &done

	st, err = svc.GetUserStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, st.OnboardingComplete)
	assert.Equal(t, &done, st.OnboardingCompletedAt)
}

func TestUserServiceRiskProfile(t *testing.T) {
	risks := fakeRisks{"u-1": {
		UserID: "u-1",
		Score:  72,
		Level:  model.RiskLevelMedium,
		Factors: []model.RiskFactor{
			{Key: "smoking", Label: "Smoker", Impact: -15},
		},
	}}
	svc := NewUserService(&fakeUsers{users: map[string]*model.User{}}, risks)

	p, err := svc.GetRiskProfile(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 72, p.Score)
	assert.Equal(t, "Medium", p.Level)
	require.Len(t, p.Factors, 1)
	assert.Equal(t, "smoking", p.Factors[0].Key)

	_, err = svc.GetRiskProfile(context.Background(), "u-2")
	assert.ErrorIs(t, err, pkgerrors.RiskProfileNotReady)

	_, err = svc.GetRiskProfile(context.Background(), "")
	assert.ErrorIs(t, err, pkgerrors.InvalidUserID)
}

func newUserCache(t *testing.T) (*miniredis.Miniredis, *cache.UserCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, cache.NewUserCache(client, nil)
}

func TestUserServiceEnsureUserRemembersKnownUsers(t *testing.T) {
	_, uc := newUserCache(t)
	users := &fakeUsers{users: map[string]*model.User{}}
	svc := NewUserService(users, fakeRisks{}).WithCache(uc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.EnsureUser(ctx, "u-1"))
	}
	assert.Equal(t, 1, users.ensured)

	require.NoError(t, svc.EnsureUser(ctx, "u-2"))
	assert.Equal(t, 2, users.ensured)
}

func TestUserServiceFallsBackWhenCacheDown(t *testing.T) {
	mr, uc := newUserCache(t)
	users := &fakeUsers{users: map[string]*model.User{}}
	svc := NewUserService(users, fakeRisks{}).WithCache(uc)
	ctx := context.Background()

	mr.SetError("LOADING")
	require.NoError(t, svc.EnsureUser(ctx, "u-1"))
	require.NoError(t, svc.EnsureUser(ctx, "u-1"))
	assert.Equal(t, 2, users.ensured)

	st, err := svc.GetUserStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", st.UserID)
}

func TestUserServiceStatusInvalidatedOnComplete(t *testing.T) {
	_, uc := newUserCache(t)
	users := &fakeUsers{users: map[string]*model.User{}}
	svc := NewUserService(users, fakeRisks{}).WithCache(uc)
	ctx := context.Background()

	require.NoError(t, svc.EnsureUser(ctx, "u-1"))
	st, err := svc.GetUserStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, st.OnboardingComplete)

	// 绕过缓存直接改库，读到的仍是缓存
	users.users["u-1"].OnboardingComplete = true
	st, err = svc.GetUserStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, st.OnboardingComplete)

	flagger := StatusFlagger{Next: users, Cache: uc}
	require.NoError(t, flagger.MarkOnboardingComplete(ctx, "u-1"))
	assert.Equal(t, []string{"u-1"}, users.flagged)

	st, err = svc.GetUserStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, st.OnboardingComplete)
}

func TestUserServiceRiskProfileCache(t *testing.T) {
	_, uc := newUserCache(t)
	risks := fakeRisks{}
	svc := NewUserService(&fakeUsers{users: map[string]*model.User{}}, risks).WithCache(uc)
	ctx := context.Background()

	_, err := svc.GetRiskProfile(ctx, "u-1")
	require.ErrorIs(t, err, pkgerrors.RiskProfileNotReady)

	// 未生成的结果被缓存，直到 worker 写入后失效
	risks["u-1"] = &model.RiskProfile{UserID: "u-1", Score: 90, Level: model.RiskLevelLow}
	_, err = svc.GetRiskProfile(ctx, "u-1")
	require.ErrorIs(t, err, pkgerrors.RiskProfileNotReady)

	require.NoError(t, uc.InvalidateRiskProfile(ctx, "u-1"))
	p, err := svc.GetRiskProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 90, p.Score)

	delete(risks, "u-1")
	p, err = svc.GetRiskProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 90, p.Score)
	assert.Empty(t, p.Factors)
}
