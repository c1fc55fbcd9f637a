package onboarding

import (
	"context"
	"encoding/json"
	"sync"
)

// StorageKey 答案持久化槽位的固定名称
const StorageKey = "plans_onboarding_form"

// Store 持久化未提交的答案，保证刷新/重连后可以继续。
// Load 在无数据或数据损坏时返回 nil, nil；Save/Clear 的失败由调用方吞掉。
type Store interface {
	Load(ctx context.Context) (Answers, error)
	Save(ctx context.Context, answers Answers) error
	Clear(ctx context.Context) error
}

// EncodeAnswers 序列化为 JSON（与客户端本地存储格式一致）
func EncodeAnswers(a Answers) ([]byte, error) {
	if a == nil {
		a = Answers{}
	}
	return json.Marshal(a)
}

// DecodeAnswers 解析失败或与目录不符时返回 nil，视为没有数据。
func DecodeAnswers(data []byte, c *Catalog) Answers {
	if len(data) == 0 {
		return nil
	}

	var a Answers
	if err := json.Unmarshal(data, &a); err != nil {
		return nil
	}
	if a == nil {
		return nil
	}
	if c != nil {
		if err := a.Conforms(c); err != nil {
			return nil
		}
	}
	return a
}

// MemoryStore 进程内实现，用于测试以及未配置 Redis 的开发环境。
// 保存的是序列化后的字节，行为与 Redis 实现保持一致。
type MemoryStore struct {
	mu      sync.Mutex
	catalog *Catalog
	data    []byte
}

func NewMemoryStore(c *Catalog) *MemoryStore {
	return &MemoryStore{catalog: c}
}

func (m *MemoryStore) Load(ctx context.Context) (Answers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DecodeAnswers(m.data, m.catalog), nil
}

func (m *MemoryStore) Save(ctx context.Context, answers Answers) error {
	data, err := EncodeAnswers(answers)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// SetRaw 直接写入原始内容
func (m *MemoryStore) SetRaw(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
}

// Raw 返回当前原始内容，nil 表示槽位为空。
func (m *MemoryStore) Raw() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	return append([]byte(nil), m.data...)
}
