package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Plans/internal/model/dto"
	"Plans/internal/onboarding"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestOnboardingStoreRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	store := NewOnboardingStore(client, onboarding.DefaultCatalog(), "u-1", time.Hour, nil)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	answers := onboarding.Answers{
		onboarding.StepGender:          onboarding.Single("Female"),
		onboarding.StepKnownConditions: onboarding.Multi("Diabetes", "Hypertension"),
	}
	require.NoError(t, store.Save(ctx, answers))

	raw, err := mr.Get(OnboardingFormKey("u-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"gender":"Female","knownConditions":["Diabetes","Hypertension"]}`, raw)
	assert.Equal(t, time.Hour, mr.TTL(OnboardingFormKey("u-1")))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, answers, got)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists(OnboardingFormKey("u-1")))
}

func TestOnboardingStoreCorruptIsAbsent(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewOnboardingStore(client, onboarding.DefaultCatalog(), "u-1", time.Hour, nil)

	for _, raw := range []string{"not json", `{"gender":["a","b"]}`, `{"unknownStep":"x"}`} {
		require.NoError(t, mr.Set(OnboardingFormKey("u-1"), raw))

		got, err := store.Load(context.Background())
		require.NoError(t, err, raw)
		assert.Nil(t, got, raw)
	}
}

func TestOnboardingStoreTransportError(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewOnboardingStore(client, onboarding.DefaultCatalog(), "u-1", time.Hour, nil)

	mr.SetError("LOADING")
	_, err := store.Load(context.Background())
	assert.Error(t, err)
}

func TestOnboardingFormKeyIsPerUser(t *testing.T) {
	assert.NotEqual(t, OnboardingFormKey("a"), OnboardingFormKey("b"))
	assert.Contains(t, OnboardingFormKey("a"), "onboarding:form:a")
}

func TestDeduper(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	d := NewDeduper(client, time.Minute)

	ok, err := d.TryLock(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.TryLock(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Unlock(ctx, "msg-1"))
	ok, err = d.TryLock(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshTokens(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	tokens := NewRefreshTokens(client, time.Hour)

	_, ok, err := tokens.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tokens.Set(ctx, "u-1", "r1"))
	v, ok, err := tokens.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r1", v)

	require.NoError(t, tokens.Delete(ctx, "u-1"))
	_, ok, err = tokens.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 2, 10*time.Second)
	cb.now = func() time.Time { return now }

	boom := errors.New("connection reset")
	calls := 0
	failing := func(ctx context.Context) error { calls++; return boom }
	ok := func(ctx context.Context) error { calls++; return nil }

	assert.ErrorIs(t, cb.Call(ctx, failing), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(ctx, failing), boom)
	assert.Equal(t, StateOpen, cb.State())

	// 熔断期间不执行操作
	assert.ErrorIs(t, cb.Call(ctx, ok), ErrBreakerOpen)
	assert.Equal(t, 2, calls)

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 3, calls)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }

	boom := errors.New("timeout")
	require.Error(t, cb.Call(ctx, func(ctx context.Context) error { return boom }))
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.ErrorIs(t, cb.Call(ctx, func(ctx context.Context) error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(ctx, func(ctx context.Context) error { return nil }), ErrBreakerOpen)
}

func TestNilCircuitBreakerPassesThrough(t *testing.T) {
	var cb *CircuitBreaker
	called := false
	require.NoError(t, cb.Call(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestOnboardingStoreBreakerFailsFast(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	cb := NewCircuitBreaker("onboarding", 2, time.Minute)
	store := NewOnboardingStore(client, onboarding.DefaultCatalog(), "u-1", time.Hour, cb)

	// 键不存在不算失败
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, StateClosed, cb.State())

	mr.SetError("LOADING")
	assert.Error(t, store.Save(ctx, onboarding.Answers{onboarding.StepGender: onboarding.Single("Male")}))
	assert.Error(t, store.Clear(ctx))
	require.Equal(t, StateOpen, cb.State())

	mr.SetError("")
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

type cachedItem struct {
	Name string `json:"name"`
}

func TestProtectedCacheEmptyValue(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	pc := NewProtectedCache(client, "item", time.Hour, nil).WithEmptyTTL(time.Minute)

	var item cachedItem
	hit, err := pc.Get(ctx, "a", &item)
	require.NoError(t, err)
	assert.Equal(t, Miss, hit)

	require.NoError(t, pc.Set(ctx, "a", nil))
	hit, err = pc.Get(ctx, "a", &item)
	require.NoError(t, err)
	assert.Equal(t, HitEmpty, hit)
	assert.LessOrEqual(t, mr.TTL("plans:item:a"), time.Minute+6*time.Second)

	require.NoError(t, pc.Set(ctx, "a", cachedItem{Name: "x"}))
	hit, err = pc.Get(ctx, "a", &item)
	require.NoError(t, err)
	assert.Equal(t, Hit, hit)
	assert.Equal(t, "x", item.Name)

	ttl := mr.TTL("plans:item:a")
	assert.GreaterOrEqual(t, ttl, time.Hour)
	assert.Less(t, ttl, time.Hour+time.Hour/ttlJitterRatio)

	require.NoError(t, pc.Delete(ctx, "a"))
	hit, err = pc.Get(ctx, "a", &item)
	require.NoError(t, err)
	assert.Equal(t, Miss, hit)
}

func TestUserCache(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	uc := NewUserCache(client, nil)

	known, err := uc.IsKnown(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, uc.MarkKnown(ctx, "u-1"))
	known, err = uc.IsKnown(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Greater(t, mr.TTL("plans:user:known:u-1"), time.Duration(0))

	require.NoError(t, uc.SetStatus(ctx, "u-1", &dto.UserStatusResponse{UserID: "u-1", OnboardingComplete: true}))
	st, ok, err := uc.GetStatus(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.OnboardingComplete)

	require.NoError(t, uc.InvalidateStatus(ctx, "u-1"))
	_, ok, err = uc.GetStatus(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, uc.SetRiskProfile(ctx, "u-1", nil))
	_, hit, err := uc.GetRiskProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, HitEmpty, hit)

	require.NoError(t, uc.InvalidateRiskProfile(ctx, "u-1"))
	require.NoError(t, uc.SetRiskProfile(ctx, "u-1", &dto.RiskProfileResponse{Score: 72, Level: "Medium"}))
	p, hit, err := uc.GetRiskProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, Hit, hit)
	assert.Equal(t, 72, p.Score)
}
