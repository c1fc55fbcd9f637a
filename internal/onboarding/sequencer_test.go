package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	pkgerrors "Plans/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testSingleDelay = 10 * time.Millisecond
	testMultiDelay  = 20 * time.Millisecond
)

// welcome → a(single) → b(multiple, 非末尾) → c(multiple, 末尾, 提交) → done
func testCatalog() *Catalog {
	return MustCatalog([]Step{
		{ID: "welcome", Category: CategoryWelcome, Type: TypeInfo},
		{ID: "a", Category: CategoryPersonal, Type: TypeSingle, Options: opts("Yes", "No")},
		{ID: "b", Category: CategoryPersonal, Type: TypeMultiple, Options: opts("X", "Y", NoneOption)},
		{ID: StepInsuranceTypesOwned, Category: CategoryPersonal, Type: TypeMultiple, Options: opts("P", "Q"), CategoryTerminal: true},
		{ID: "done", Category: CategoryConfirmation, Type: TypeInfo},
	})
}

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
	block    chan struct{}
	entered  chan struct{}
}

func (f *fakeSubmitter) UpsertOnboarding(ctx context.Context, p Payload) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSubmitter) calls() []Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Payload(nil), f.payloads...)
}

type fakeFlagger struct {
	mu      sync.Mutex
	flagged []string
	err     error
}

func (f *fakeFlagger) MarkOnboardingComplete(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.flagged = append(f.flagged, identity)
	return nil
}

func (f *fakeFlagger) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFlagger) identities() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.flagged...)
}

// brokenStore 每个方法都返回错误
type brokenStore struct {
	mu     sync.Mutex
	loads  int
	saves  int
	clears int
}

var errStoreDown = errors.New("storage unavailable")

func (b *brokenStore) Load(ctx context.Context) (Answers, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	return nil, errStoreDown
}

func (b *brokenStore) Save(ctx context.Context, answers Answers) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	return errStoreDown
}

func (b *brokenStore) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clears++
	return errStoreDown
}

func (b *brokenStore) counts() (loads, saves, clears int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads, b.saves, b.clears
}

type harness struct {
	seq     *Sequencer
	store   *MemoryStore
	sub     *fakeSubmitter
	flagger *fakeFlagger
}

func newHarness(t *testing.T, c *Catalog, sub *fakeSubmitter, opts Options) *harness {
	t.Helper()
	if sub == nil {
		sub = &fakeSubmitter{}
	}
	if opts.SingleChoiceDelay == 0 {
		opts.SingleChoiceDelay = testSingleDelay
	}
	if opts.MultiChoiceDelay == 0 {
		opts.MultiChoiceDelay = testMultiDelay
	}

	h := &harness{
		store:   NewMemoryStore(c),
		sub:     sub,
		flagger: &fakeFlagger{},
	}
	h.seq = NewSequencer(context.Background(), c, "user-1", h.store, h.sub, h.flagger, opts)
	t.Cleanup(h.seq.Close)
	return h
}

func (h *harness) index() int {
	return h.seq.State().Index
}

func TestSequencerFullFlow(t *testing.T) {
	ctx := context.Background()

	var submitted []Payload
	var mu sync.Mutex
	h := newHarness(t, testCatalog(), nil, Options{
		OnSubmitted: func(ctx context.Context, p Payload) {
			mu.Lock()
			submitted = append(submitted, p)
			mu.Unlock()
		},
	})

	st := h.seq.State()
	assert.Equal(t, 0, st.Index)
	assert.Nil(t, st.Progress)

	out, err := h.seq.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, out)
	assert.Equal(t, 1, h.index())

	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))
	assert.NotNil(t, h.store.Raw())
	require.Eventually(t, func() bool { return h.index() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.seq.Toggle(ctx, "b", "X"))
	require.Eventually(t, func() bool { return h.index() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.seq.Toggle(ctx, StepInsuranceTypesOwned, "P"))
	assert.False(t, h.seq.PendingAutoAdvance())
	time.Sleep(3 * testMultiDelay)
	assert.Equal(t, 3, h.index())

	out, err = h.seq.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, out)

	st = h.seq.State()
	assert.Equal(t, 4, st.Index)
	assert.True(t, st.Submitted)
	assert.Empty(t, st.Answers)
	assert.Nil(t, h.store.Raw())

	calls := h.sub.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "user-1", calls[0].UserID)
	assert.Equal(t, []string{"P"}, calls[0].InsuranceTypesOwned)
	assert.Equal(t, []string{"user-1"}, h.flagger.flagged)

	mu.Lock()
	assert.Len(t, submitted, 1)
	mu.Unlock()

	out, err = h.seq.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out)
	assert.True(t, h.seq.State().Completed)
}

func TestSequencerBackPreservesAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCatalog(), nil, Options{SingleChoiceDelay: time.Hour})

	_, err := h.seq.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("No")))
	_, err = h.seq.Advance(ctx)
	require.NoError(t, err)

	require.NoError(t, h.seq.Back(ctx))
	st := h.seq.State()
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, Backward, st.Direction)
	assert.Equal(t, "No", st.Answers["a"].Value())

	require.NoError(t, h.seq.Back(ctx))
	require.NoError(t, h.seq.Back(ctx))
	assert.Equal(t, 0, h.index())
}

func TestSequencerBackCancelsPendingAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCatalog(), nil, Options{})

	_, err := h.seq.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))
	require.True(t, h.seq.PendingAutoAdvance())

	require.NoError(t, h.seq.Back(ctx))
	assert.False(t, h.seq.PendingAutoAdvance())

	require.Never(t, func() bool { return h.index() != 0 }, 5*testSingleDelay, 5*time.Millisecond)
}

func TestSequencerCloseCancelsPendingAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCatalog(), nil, Options{})

	_, err := h.seq.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))

	h.seq.Close()
	require.Never(t, func() bool { return h.index() != 1 }, 5*testSingleDelay, 5*time.Millisecond)

	assert.ErrorIs(t, h.seq.Answer(ctx, "a", Single("No")), pkgerrors.OnboardingFlowClosed)
	_, err = h.seq.Advance(ctx)
	assert.ErrorIs(t, err, pkgerrors.OnboardingFlowClosed)

	// 已保存的答案保留
	assert.NotNil(t, h.store.Raw())
}

func TestSequencerReanswerRestartsTimer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCatalog(), nil, Options{SingleChoiceDelay: 100 * time.Millisecond})

	_, err := h.seq.Advance(ctx)
	require.NoError(t, err)

	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("No")))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.index())

	require.Eventually(t, func() bool { return h.index() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "No", h.seq.State().Answers["a"].Value())
}

func TestSequencerEmptyMultipleDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCatalog(), nil, Options{SingleChoiceDelay: time.Hour})

	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))
	_, err := h.seq.Advance(ctx)
	require.NoError(t, err)

	require.NoError(t, h.seq.Toggle(ctx, "b", "X"))
	require.True(t, h.seq.PendingAutoAdvance())
	require.NoError(t, h.seq.Toggle(ctx, "b", "X"))
	assert.False(t, h.seq.PendingAutoAdvance())

	_, err = h.seq.Advance(ctx)
	assert.ErrorIs(t, err, pkgerrors.OnboardingAnswerRequired)
	assert.Equal(t, 2, h.index())
}

func TestSequencerRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCatalog(), nil, Options{})

	assert.ErrorIs(t, h.seq.Answer(ctx, "welcome", Single("x")), pkgerrors.OnboardingStepInvalid)

	_, _ = h.seq.Advance(ctx)
	assert.ErrorIs(t, h.seq.Answer(ctx, "b", Multi("X")), pkgerrors.OnboardingStepInvalid)
	assert.ErrorIs(t, h.seq.Answer(ctx, "a", Single("Maybe")), pkgerrors.OnboardingAnswerInvalid)
	assert.ErrorIs(t, h.seq.Toggle(ctx, "a", "Yes"), pkgerrors.OnboardingAnswerInvalid)

	_, err := h.seq.Advance(ctx)
	assert.ErrorIs(t, err, pkgerrors.OnboardingAnswerRequired)
	assert.Nil(t, h.store.Raw())
}

func TestSequencerResumesSavedAnswers(t *testing.T) {
	c := testCatalog()
	store := NewMemoryStore(c)
	require.NoError(t, store.Save(context.Background(), Answers{"a": Single("No")}))

	seq := NewSequencer(context.Background(), c, "user-1", store, &fakeSubmitter{}, &fakeFlagger{}, Options{})
	defer seq.Close()

	st := seq.State()
	assert.Equal(t, 0, st.Index)
	assert.Equal(t, "No", st.Answers["a"].Value())
}

func TestSequencerSubmitFailureKeepsPosition(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{err: errors.New("connection refused")}

	var failures int
	h := newHarness(t, testCatalog(), sub, Options{
		SingleChoiceDelay: time.Hour,
		MultiChoiceDelay:  time.Hour,
		OnSubmitFailed:    func(ctx context.Context, err error) { failures++ },
	})

	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))
	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Toggle(ctx, "b", "Y"))
	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Toggle(ctx, StepInsuranceTypesOwned, "Q"))
	require.Equal(t, 3, h.index())

	out, err := h.seq.Advance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.OnboardingSubmitFailed)
	assert.Equal(t, OutcomeNone, out)
	assert.Equal(t, 1, failures)

	st := h.seq.State()
	assert.Equal(t, 3, st.Index)
	assert.False(t, st.Submitted)
	assert.False(t, st.Submitting)
	assert.NotEmpty(t, st.LastError)
	assert.NotNil(t, h.store.Raw())
	assert.Empty(t, h.flagger.flagged)

	sub.setErr(nil)
	out, err = h.seq.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, out)
	assert.Equal(t, 4, h.index())
	assert.Empty(t, h.seq.State().LastError)
	assert.Nil(t, h.store.Raw())
}

func TestSequencerSingleSubmissionUnderConcurrentAdvance(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{}
	h := newHarness(t, testCatalog(), sub, Options{SingleChoiceDelay: time.Hour, MultiChoiceDelay: time.Hour})

	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))
	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Toggle(ctx, "b", NoneOption))
	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Toggle(ctx, StepInsuranceTypesOwned, "P"))

	sub.block = make(chan struct{})
	sub.entered = make(chan struct{}, 1)

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.seq.Advance(ctx)
		done <- result{out, err}
	}()

	<-sub.entered
	assert.True(t, h.seq.State().Submitting)

	out, err := h.seq.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, out)

	assert.ErrorIs(t, h.seq.Toggle(ctx, StepInsuranceTypesOwned, "Q"), pkgerrors.OnboardingSubmitInProgress)
	require.NoError(t, h.seq.Back(ctx))
	assert.Equal(t, 3, h.index())

	close(sub.block)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, OutcomeAdvanced, res.out)

	assert.Len(t, sub.calls(), 1)
	assert.Equal(t, 4, h.index())

	// 提交后不可回退到问卷
	require.NoError(t, h.seq.Back(ctx))
	assert.Equal(t, 4, h.index())
}

func TestSequencerAutoAdvanceIntoSubmit(t *testing.T) {
	ctx := context.Background()
	c := MustCatalog([]Step{
		{ID: "q", Category: CategoryPersonal, Type: TypeSingle, Options: opts("Yes", "No")},
		{ID: "done", Category: CategoryConfirmation, Type: TypeInfo},
	})
	h := newHarness(t, c, nil, Options{})

	require.NoError(t, h.seq.Answer(ctx, "q", Single("Yes")))
	require.Eventually(t, func() bool { return h.seq.State().Submitted }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, h.index())
	assert.Len(t, h.sub.calls(), 1)
}

func TestSequencerStoreFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	c := MustCatalog([]Step{
		{ID: StepWelcome, Category: CategoryWelcome, Type: TypeInfo},
		{ID: StepGender, Category: CategoryPersonal, Type: TypeSingle, Options: opts("Male", "Female")},
		{ID: StepConfirmation, Category: CategoryConfirmation, Type: TypeInfo},
	})
	store := &brokenStore{}
	sub := &fakeSubmitter{}
	flagger := &fakeFlagger{}

	seq := NewSequencer(ctx, c, "user-1", store, sub, flagger, Options{SingleChoiceDelay: testSingleDelay})
	defer seq.Close()

	st := seq.State()
	assert.Equal(t, 0, st.Index)
	assert.Empty(t, st.Answers)

	out, err := seq.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, out)

	st = seq.State()
	require.NotNil(t, st.Progress)
	assert.Equal(t, Progress{Current: 1, Total: 1}, *st.Progress)

	require.NoError(t, seq.Answer(ctx, StepGender, Single("Male")))
	require.Eventually(t, func() bool { return seq.State().Index == 2 }, time.Second, 5*time.Millisecond)

	calls := sub.calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Gender)
	assert.Equal(t, "Male", *calls[0].Gender)
	assert.Equal(t, []string{"user-1"}, flagger.identities())

	st = seq.State()
	assert.True(t, st.Submitted)
	assert.Empty(t, st.LastError)

	loads, saves, clears := store.counts()
	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, saves)
	assert.Equal(t, 1, clears)

	p, ok := c.Progress(StepGender)
	require.True(t, ok)
	assert.Equal(t, Progress{Current: 1, Total: 1}, p)
}

func TestSequencerFlaggerFailureKeepsPosition(t *testing.T) {
	ctx := context.Background()

	var failures []error
	var mu sync.Mutex
	h := newHarness(t, testCatalog(), nil, Options{
		SingleChoiceDelay: time.Hour,
		MultiChoiceDelay:  time.Hour,
		OnSubmitFailed: func(ctx context.Context, err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		},
	})
	h.flagger.setErr(errors.New("users table locked"))

	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))
	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Toggle(ctx, "b", "X"))
	_, _ = h.seq.Advance(ctx)
	require.NoError(t, h.seq.Toggle(ctx, StepInsuranceTypesOwned, "P"))

	out, err := h.seq.Advance(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.OnboardingSubmitFailed)
	assert.Contains(t, err.Error(), "users table locked")
	assert.Equal(t, OutcomeNone, out)

	st := h.seq.State()
	assert.Equal(t, 3, st.Index)
	assert.False(t, st.Submitted)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, "P", st.Answers[StepInsuranceTypesOwned].Values()[0])

	// 记录已写入但未标记，本地答案保留以便重试
	assert.Len(t, h.sub.calls(), 1)
	assert.Empty(t, h.flagger.identities())
	assert.NotNil(t, h.store.Raw())

	mu.Lock()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], pkgerrors.OnboardingSubmitFailed)
	mu.Unlock()

	h.flagger.setErr(nil)
	out, err = h.seq.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, out)
	assert.Equal(t, 4, h.index())
	assert.Len(t, h.sub.calls(), 2)
	assert.Equal(t, []string{"user-1"}, h.flagger.identities())
	assert.Nil(t, h.store.Raw())
}

func TestSequencerStaleTimerDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCatalog(), nil, Options{SingleChoiceDelay: time.Hour})

	_, err := h.seq.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.seq.Answer(ctx, "a", Single("Yes")))

	h.seq.mu.Lock()
	stale := timerTicket{gen: h.seq.timerGen, from: h.seq.index}
	h.seq.mu.Unlock()

	// 手动前进再后退，位置回到计时器安排时的步骤
	_, err = h.seq.Advance(ctx)
	require.NoError(t, err)
	require.NoError(t, h.seq.Back(ctx))
	require.Equal(t, 1, h.index())

	out, err := h.seq.advance(ctx, &stale)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, out)
	assert.Equal(t, 1, h.index())
	assert.Equal(t, Backward, h.seq.State().Direction)

	h.seq.mu.Lock()
	current := timerTicket{gen: h.seq.timerGen, from: h.seq.index}
	h.seq.mu.Unlock()

	out, err = h.seq.advance(ctx, &current)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, out)
	assert.Equal(t, 2, h.index())
}
