package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "Plans/pkg/errors"
)

const (
	DefaultSingleChoiceDelay = 400 * time.Millisecond
	DefaultMultiChoiceDelay  = 800 * time.Millisecond
	DefaultSubmitTimeout     = 10 * time.Second
)

// Direction 仅用于前端选择过渡动画
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Outcome Advance 的结果
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeAdvanced  Outcome = "advanced"
	OutcomeCompleted Outcome = "completed"
)

// Submitter 按身份 upsert 提交记录，同一身份重复提交覆盖旧记录。
type Submitter interface {
	UpsertOnboarding(ctx context.Context, p Payload) error
}

// IdentityFlagger 提交成功后标记用户已完成引导
type IdentityFlagger interface {
	MarkOnboardingComplete(ctx context.Context, identity string) error
}

type Options struct {
	SingleChoiceDelay time.Duration
	MultiChoiceDelay  time.Duration
	SubmitTimeout     time.Duration

	// OnSubmitted 提交成功后回调（发布事件、记录指标）
	OnSubmitted func(ctx context.Context, p Payload)
	// OnSubmitFailed 提交失败后回调
	OnSubmitFailed func(ctx context.Context, err error)

	Logger *zap.Logger
	Now    func() time.Time
}

func (o *Options) withDefaults() {
	if o.SingleChoiceDelay <= 0 {
		o.SingleChoiceDelay = DefaultSingleChoiceDelay
	}
	if o.MultiChoiceDelay <= 0 {
		o.MultiChoiceDelay = DefaultMultiChoiceDelay
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = DefaultSubmitTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// State 提供给展示层的快照
type State struct {
	Step       Step      `json:"step"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Direction  Direction `json:"direction"`
	Progress   *Progress `json:"progress"`
	Answers    Answers   `json:"answers"`
	Submitting bool      `json:"submitting"`
	Submitted  bool      `json:"submitted"`
	Completed  bool      `json:"completed"`
	LastError  string    `json:"last_error,omitempty"`
}

// Sequencer 单个用户的引导流程状态机。
type Sequencer struct {
	mu sync.Mutex

	catalog   *Catalog
	identity  string
	store     Store
	submitter Submitter
	flagger   IdentityFlagger
	opts      Options
	log       *zap.Logger

	answers    Answers
	index      int
	direction  Direction
	submitting bool
	submitted  bool
	completed  bool
	closed     bool
	lastErr    error

	timer    *time.Timer
	timerGen uint64
}

// NewSequencer 从 store 恢复已保存的答案；读取失败视为没有答案。
func NewSequencer(
	ctx context.Context,
	catalog *Catalog,
	identity string,
	store Store,
	submitter Submitter,
	flagger IdentityFlagger,
	opts Options,
) *Sequencer {
	opts.withDefaults()

	s := &Sequencer{
		catalog:   catalog,
		identity:  identity,
		store:     store,
		submitter: submitter,
		flagger:   flagger,
		opts:      opts,
		log:       opts.Logger.With(zap.String("user_id", identity)),
		direction: Forward,
	}

	answers, err := store.Load(ctx)
	if err != nil {
		s.log.Warn("Failed to load saved onboarding answers", zap.Error(err))
	}
	if answers == nil {
		answers = Answers{}
	}
	s.answers = answers

	return s
}

func (s *Sequencer) Identity() string {
	return s.identity
}

// State 返回当前快照
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Sequencer) stateLocked() State {
	step, _ := s.catalog.Step(s.index)
	st := State{
		Step:       step,
		Index:      s.index,
		Total:      s.catalog.Len(),
		Direction:  s.direction,
		Answers:    s.answers.Clone(),
		Submitting: s.submitting,
		Submitted:  s.submitted,
		Completed:  s.completed,
	}
	if p, ok := s.catalog.Progress(step.ID); ok {
		st.Progress = &p
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Answer 记录当前步骤的答案并持久化，非分组末尾的步骤会安排自动前进。
func (s *Sequencer) Answer(ctx context.Context, stepID StepID, value Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, err := s.currentQuestionLocked(stepID)
	if err != nil {
		return err
	}

	normalized, err := normalize(step, value)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.OnboardingAnswerInvalid, err)
	}

	s.applyLocked(ctx, step, normalized)
	return nil
}

// Toggle 多选题复选框：选 None 清空其他项，选其他项移除 None，再次点击取消选择。
func (s *Sequencer) Toggle(ctx context.Context, stepID StepID, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, err := s.currentQuestionLocked(stepID)
	if err != nil {
		return err
	}
	if step.Type != TypeMultiple {
		return fmt.Errorf("%w: step %q is not multiple choice", pkgerrors.OnboardingAnswerInvalid, stepID)
	}
	if !step.hasOption(option) {
		return fmt.Errorf("%w: step %q has no option %q", pkgerrors.OnboardingAnswerInvalid, stepID, option)
	}

	current, ok := s.answers[stepID]
	if !ok {
		current = Multi()
	}
	s.applyLocked(ctx, step, toggle(current, option))
	return nil
}

func (s *Sequencer) currentQuestionLocked(stepID StepID) (Step, error) {
	if s.closed {
		return Step{}, pkgerrors.OnboardingFlowClosed
	}
	if s.submitting {
		return Step{}, pkgerrors.OnboardingSubmitInProgress
	}

	step, _ := s.catalog.Step(s.index)
	if step.ID != stepID || !step.IsQuestion() {
		return Step{}, pkgerrors.OnboardingStepInvalid
	}
	return step, nil
}

func (s *Sequencer) applyLocked(ctx context.Context, step Step, value Answer) {
	s.answers[step.ID] = value

	if err := s.store.Save(ctx, s.answers.Clone()); err != nil {
		s.log.Warn("Failed to persist onboarding answers",
			zap.String("step_id", string(step.ID)),
			zap.Error(err),
		)
	}

	if step.CategoryTerminal {
		s.cancelTimerLocked()
		return
	}

	switch {
	case step.Type == TypeSingle:
		s.scheduleLocked(s.opts.SingleChoiceDelay)
	case step.Type == TypeMultiple && !value.Empty():
		s.scheduleLocked(s.opts.MultiChoiceDelay)
	default:
		s.cancelTimerLocked()
	}
}

// Advance 前进一步。离开最后一个问题前先提交，提交失败则停留在原地并返回错误。
func (s *Sequencer) Advance(ctx context.Context) (Outcome, error) {
	return s.advance(ctx, nil)
}

// timerTicket 自动前进的触发条件：计时器代数与位置都未变化。
type timerTicket struct {
	gen  uint64
	from int
}

// advance ticket 非空时为自动前进，与手动操作的判断在同一把锁内完成。
func (s *Sequencer) advance(ctx context.Context, ticket *timerTicket) (Outcome, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return OutcomeNone, pkgerrors.OnboardingFlowClosed
	}
	if ticket != nil && (ticket.gen != s.timerGen || s.index != ticket.from) {
		s.mu.Unlock()
		return OutcomeNone, nil
	}
	if s.submitting {
		s.mu.Unlock()
		return OutcomeNone, nil
	}

	s.cancelTimerLocked()

	step, _ := s.catalog.Step(s.index)

	if step.Category == CategoryConfirmation {
		s.completed = true
		s.mu.Unlock()
		s.log.Info("Onboarding flow completed")
		return OutcomeCompleted, nil
	}

	if step.IsQuestion() && !s.answers.Answered(step.ID) {
		s.mu.Unlock()
		return OutcomeNone, pkgerrors.OnboardingAnswerRequired
	}

	if step.ID != s.catalog.FinalQuestion() || s.submitted {
		s.moveLocked(s.index+1, Forward)
		s.mu.Unlock()
		return OutcomeAdvanced, nil
	}

	from := s.index
	answers := s.answers.Clone()
	s.submitting = true
	s.mu.Unlock()

	err := s.submit(ctx, answers)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false

	if err != nil {
		s.lastErr = err
		return OutcomeNone, err
	}

	s.lastErr = nil
	s.submitted = true
	s.answers = Answers{}
	if s.index == from {
		s.moveLocked(from+1, Forward)
	}
	return OutcomeAdvanced, nil
}

func (s *Sequencer) submit(ctx context.Context, answers Answers) error {
	payload := BuildPayload(s.identity, answers, s.opts.Now())

	if err := s.submitter.UpsertOnboarding(ctx, payload); err != nil {
		s.log.Error("Failed to save onboarding response", zap.Error(err))
		err = fmt.Errorf("%w: %v", pkgerrors.OnboardingSubmitFailed, err)
		s.submitFailed(ctx, err)
		return err
	}

	if err := s.flagger.MarkOnboardingComplete(ctx, s.identity); err != nil {
		s.log.Error("Failed to mark onboarding complete", zap.Error(err))
		err = fmt.Errorf("%w: %v", pkgerrors.OnboardingSubmitFailed, err)
		s.submitFailed(ctx, err)
		return err
	}

	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("Failed to clear saved onboarding answers", zap.Error(err))
	}

	s.log.Info("Onboarding response submitted", zap.String("submitted_at", payload.SubmittedAt))

	if s.opts.OnSubmitted != nil {
		s.opts.OnSubmitted(ctx, payload)
	}
	return nil
}

func (s *Sequencer) submitFailed(ctx context.Context, err error) {
	if s.opts.OnSubmitFailed != nil {
		s.opts.OnSubmitFailed(ctx, err)
	}
}

// Back 后退一步，不触发持久化和提交。
func (s *Sequencer) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pkgerrors.OnboardingFlowClosed
	}
	if s.submitting || s.submitted {
		return nil
	}

	s.cancelTimerLocked()
	s.moveLocked(s.index-1, Backward)
	return nil
}

// Close 取消未触发的自动前进，已持久化的答案保留以便下次继续。
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	s.closed = true
}

func (s *Sequencer) moveLocked(to int, dir Direction) {
	if to > s.catalog.Len()-1 {
		to = s.catalog.Len() - 1
	}
	if to < 0 {
		to = 0
	}
	s.index = to
	s.direction = dir
}

// scheduleLocked 同一时间最多一个待触发的计时器
func (s *Sequencer) scheduleLocked(delay time.Duration) {
	s.cancelTimerLocked()

	ticket := timerTicket{gen: s.timerGen, from: s.index}
	s.timer = time.AfterFunc(delay, func() {
		s.autoAdvance(ticket)
	})
}

func (s *Sequencer) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Sequencer) autoAdvance(ticket timerTicket) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
	defer cancel()

	_, err := s.advance(ctx, &ticket)
	if err != nil && !errors.Is(err, pkgerrors.OnboardingFlowClosed) {
		s.log.Warn("Auto advance failed", zap.Int("index", ticket.from), zap.Error(err))
	}
}

// PendingAutoAdvance 是否有待触发的自动前进
func (s *Sequencer) PendingAutoAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
