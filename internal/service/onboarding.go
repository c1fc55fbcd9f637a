package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"Plans/config"
	"Plans/internal/cache"
	"Plans/internal/model"
	"Plans/internal/model/dto"
	"Plans/internal/onboarding"
	"Plans/internal/queue"
	"Plans/internal/repository"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/logger"
	"Plans/pkg/metrics"
	"Plans/storage/database"
	"Plans/storage/redis"
)

var (
	onboardingService *OnboardingService
	onboardingOnce    sync.Once
)

// Onboarding 使用全局的数据库、Redis 和 MQ，需在 storage.Init 之后调用
func Onboarding() *OnboardingService {
	onboardingOnce.Do(func() {
		db := database.DB()
		catalog := onboarding.DefaultCatalog()

		onboardingService = NewOnboardingService(OnboardingConfig{
			Catalog:       catalog,
			Submitter:     repository.NewOnboardingRepository(db),
			Flagger:       StatusFlagger{Next: repository.NewUserRepository(db), Cache: userCache()},
			NewStore:      storeFactory(catalog),
			Publish:       queue.PublishOnboardingCompleted,
			SingleDelay:   config.Cfg.OnboardingSingleDelay,
			MultiDelay:    config.Cfg.OnboardingMultiDelay,
			SubmitTimeout: config.Cfg.OnboardingSubmitTimeout,
			IdleTTL:       config.Cfg.OnboardingFlowIdleTTL,
			Logger:        logger.Logger,
		})
	})
	return onboardingService
}

// storeFactory ONBOARDING_STORE=memory 时答案只保存在进程内
func storeFactory(catalog *onboarding.Catalog) StoreFactory {
	if config.Cfg.OnboardingStore == "memory" {
		return MemoryStores(catalog)
	}

	ttl := config.Cfg.OnboardingAnswersTTL
	return func(userID string) onboarding.Store {
		return cache.NewOnboardingStore(redis.Client(), catalog, userID, ttl, cache.RedisBreaker)
	}
}

// StoreFactory 为每个用户创建答案存储
type StoreFactory func(userID string) onboarding.Store

// MemoryStores 按用户复用内存存储，流程被回收后再次进入仍能恢复答案
func MemoryStores(catalog *onboarding.Catalog) StoreFactory {
	var mu sync.Mutex
	stores := make(map[string]*onboarding.MemoryStore)

	return func(userID string) onboarding.Store {
		mu.Lock()
		defer mu.Unlock()

		s, ok := stores[userID]
		if !ok {
			s = onboarding.NewMemoryStore(catalog)
			stores[userID] = s
		}
		return s
	}
}

type OnboardingConfig struct {
	Catalog   *onboarding.Catalog
	Submitter onboarding.Submitter
	Flagger   onboarding.IdentityFlagger
	NewStore  StoreFactory
	// Publish 提交成功后发布事件，失败只记录日志
	Publish func(ctx context.Context, msg model.OnboardingCompletedMessage) error

	SingleDelay   time.Duration
	MultiDelay    time.Duration
	SubmitTimeout time.Duration
	// IdleTTL 超过该时间没有请求的流程会被回收，已保存的答案不受影响
	IdleTTL time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

type flow struct {
	seq      *onboarding.Sequencer
	lastSeen time.Time
}

// OnboardingService 管理每个用户的引导流程实例
type OnboardingService struct {
	cfg OnboardingConfig
	log *zap.Logger

	mu     sync.Mutex
	flows  map[string]*flow
	closed bool

	stop chan struct{}
	done chan struct{}
}

func NewOnboardingService(cfg OnboardingConfig) *OnboardingService {
	if cfg.Catalog == nil {
		cfg.Catalog = onboarding.DefaultCatalog()
	}
	if cfg.NewStore == nil {
		cfg.NewStore = MemoryStores(cfg.Catalog)
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = onboarding.DefaultSubmitTimeout
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Submitter = timedSubmitter{next: cfg.Submitter}

	s := &OnboardingService{
		cfg:   cfg,
		log:   cfg.Logger.With(zap.String("component", "onboarding")),
		flows: make(map[string]*flow),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *OnboardingService) Catalog() dto.CatalogResponse {
	return dto.CatalogResponse{
		Steps:         s.cfg.Catalog.Steps(),
		FinalQuestion: s.cfg.Catalog.FinalQuestion(),
		StorageKey:    onboarding.StorageKey,
	}
}

// State 没有进行中的流程时新建，并恢复已保存的答案
func (s *OnboardingService) State(ctx context.Context, userID string) (onboarding.State, error) {
	seq, err := s.sequencer(ctx, userID)
	if err != nil {
		return onboarding.State{}, err
	}
	return seq.State(), nil
}

func (s *OnboardingService) Answer(ctx context.Context, userID string, stepID onboarding.StepID, value onboarding.Answer) (onboarding.State, error) {
	seq, err := s.sequencer(ctx, userID)
	if err != nil {
		return onboarding.State{}, err
	}
	if err := seq.Answer(ctx, stepID, value); err != nil {
		return onboarding.State{}, err
	}
	metrics.RecordAnswer(ctx, string(stepID))
	return seq.State(), nil
}

func (s *OnboardingService) Toggle(ctx context.Context, userID string, stepID onboarding.StepID, option string) (onboarding.State, error) {
	seq, err := s.sequencer(ctx, userID)
	if err != nil {
		return onboarding.State{}, err
	}
	if err := seq.Toggle(ctx, stepID, option); err != nil {
		return onboarding.State{}, err
	}
	metrics.RecordAnswer(ctx, string(stepID))
	return seq.State(), nil
}

// Advance 离开最后一个问题时同步提交，提交耗时受 SubmitTimeout 限制
func (s *OnboardingService) Advance(ctx context.Context, userID string) (dto.AdvanceResponse, error) {
	seq, err := s.sequencer(ctx, userID)
	if err != nil {
		return dto.AdvanceResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	outcome, err := seq.Advance(ctx)
	metrics.RecordAdvance(ctx, string(outcome))
	if err != nil {
		return dto.AdvanceResponse{}, err
	}
	return dto.AdvanceResponse{Outcome: outcome, State: seq.State()}, nil
}

func (s *OnboardingService) Back(ctx context.Context, userID string) (onboarding.State, error) {
	seq, err := s.sequencer(ctx, userID)
	if err != nil {
		return onboarding.State{}, err
	}
	if err := seq.Back(ctx); err != nil {
		return onboarding.State{}, err
	}
	return seq.State(), nil
}

// Leave 用户离开页面：取消待触发的自动前进，保留已保存的答案
func (s *OnboardingService) Leave(ctx context.Context, userID string) {
	s.mu.Lock()
	f, ok := s.flows[userID]
	if ok {
		delete(s.flows, userID)
	}
	s.mu.Unlock()

	if ok {
		f.seq.Close()
		metrics.AddActiveFlows(ctx, -1)
	}
}

// Close 停止回收协程并关闭所有流程
func (s *OnboardingService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	flows := s.flows
	s.flows = make(map[string]*flow)
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	for _, f := range flows {
		f.seq.Close()
	}
	metrics.AddActiveFlows(context.Background(), -int64(len(flows)))
}

// ActiveFlows 当前内存中的流程数
func (s *OnboardingService) ActiveFlows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

func (s *OnboardingService) sequencer(ctx context.Context, userID string) (*onboarding.Sequencer, error) {
	if userID == "" {
		return nil, pkgerrors.InvalidUserID
	}

	if seq, ok, err := s.lookup(userID); err != nil || ok {
		return seq, err
	}

	// 读取已保存的答案涉及 IO，不持有全局锁
	seq := onboarding.NewSequencer(ctx, s.cfg.Catalog, userID, s.cfg.NewStore(userID),
		s.cfg.Submitter, s.cfg.Flagger, onboarding.Options{
			SingleChoiceDelay: s.cfg.SingleDelay,
			MultiChoiceDelay:  s.cfg.MultiDelay,
			SubmitTimeout:     s.cfg.SubmitTimeout,
			OnSubmitted:       s.onSubmitted,
			OnSubmitFailed:    s.onSubmitFailed,
			Logger:            s.log,
			Now:               s.cfg.Now,
		})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		seq.Close()
		return nil, pkgerrors.OnboardingFlowClosed
	}
	if f, ok := s.flows[userID]; ok {
		seq.Close()
		f.lastSeen = s.cfg.Now()
		return f.seq, nil
	}

	s.flows[userID] = &flow{seq: seq, lastSeen: s.cfg.Now()}
	metrics.AddActiveFlows(ctx, 1)
	return seq, nil
}

func (s *OnboardingService) lookup(userID string) (*onboarding.Sequencer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, pkgerrors.OnboardingFlowClosed
	}
	f, ok := s.flows[userID]
	if !ok {
		return nil, false, nil
	}
	f.lastSeen = s.cfg.Now()
	return f.seq, true, nil
}

func (s *OnboardingService) onSubmitted(ctx context.Context, p onboarding.Payload) {
	if s.cfg.Publish == nil {
		return
	}

	err := s.cfg.Publish(ctx, model.OnboardingCompletedMessage{
		UserID:      p.UserID,
		SubmittedAt: p.SubmittedAt,
	})
	if err != nil {
		// 提交已成功，事件丢失只影响风险画像的生成时间
		s.log.Warn("Failed to publish onboarding completed event",
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
	}
}

func (s *OnboardingService) onSubmitFailed(ctx context.Context, err error) {
	s.log.Warn("Onboarding submission failed", zap.Error(err))
}

// janitor 定期回收空闲流程
func (s *OnboardingService) janitor() {
	defer close(s.done)

	interval := s.cfg.IdleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *OnboardingService) evictIdle() {
	now := s.cfg.Now()

	s.mu.Lock()
	var idle []*flow
	for id, f := range s.flows {
		if now.Sub(f.lastSeen) < s.cfg.IdleTTL || f.seq.State().Submitting {
			continue
		}
		idle = append(idle, f)
		delete(s.flows, id)
	}
	s.mu.Unlock()

	for _, f := range idle {
		f.seq.Close()
	}
	if len(idle) > 0 {
		metrics.AddActiveFlows(context.Background(), -int64(len(idle)))
		s.log.Debug("Evicted idle onboarding flows", zap.Int("count", len(idle)))
	}
}

// timedSubmitter 记录每次写库的耗时与结果
type timedSubmitter struct {
	next onboarding.Submitter
}

func (t timedSubmitter) UpsertOnboarding(ctx context.Context, p onboarding.Payload) error {
	start := time.Now()
	err := t.next.UpsertOnboarding(ctx, p)

	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.RecordSubmission(ctx, status, time.Since(start).Seconds())
	return err
}
