package onboarding

import (
	"fmt"
)

// StepID 步骤唯一标识，同时也是持久化答案的键。
type StepID string

// Category 步骤所属分组，用于进度展示。
type Category string

const (
	CategoryWelcome      Category = "welcome"
	CategoryPersonal     Category = "personal"
	CategoryLifestyle    Category = "lifestyle"
	CategoryMedical      Category = "medical"
	CategoryFinancial    Category = "financial"
	CategoryConfirmation Category = "confirmation"
)

// StepType 步骤类型。info 类型没有选项（欢迎页、确认页）。
type StepType string

const (
	TypeInfo     StepType = "info"
	TypeSingle   StepType = "single"
	TypeMultiple StepType = "multiple"
)

// NoneOption 多选题中的互斥选项
const NoneOption = "None"

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Step 一个问题（或一屏）的定义，构造后不可变。
type Step struct {
	ID               StepID   `json:"id"`
	Category         Category `json:"category"`
	CategoryLabel    string   `json:"category_label"`
	Title            string   `json:"title"`
	Question         string   `json:"question"`
	Type             StepType `json:"type"`
	Options          []Option `json:"options,omitempty"`
	AdvanceLabel     string   `json:"advance_label,omitempty"`
	CategoryTerminal bool     `json:"category_terminal"`
}

// IsQuestion 是否需要用户作答
func (s Step) IsQuestion() bool {
	return s.Type == TypeSingle || s.Type == TypeMultiple
}

// clone Options 不与目录共享底层数组
func (s Step) clone() Step {
	if s.Options != nil {
		s.Options = append([]Option(nil), s.Options...)
	}
	return s
}

func (s Step) hasOption(value string) bool {
	for _, opt := range s.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// Progress 分组内进度，Current 从 1 开始。
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Catalog 有序、不可变的步骤列表。
type Catalog struct {
	steps         []Step
	index         map[StepID]int
	finalQuestion StepID
}

// NewCatalog 校验并构造步骤目录。最后一个问题步骤即提交边界。
func NewCatalog(steps []Step) (*Catalog, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("catalog has no steps")
	}

	c := &Catalog{
		steps: make([]Step, len(steps)),
		index: make(map[StepID]int, len(steps)),
	}

	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("step %d has empty id", i)
		}
		if _, dup := c.index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step id %q", s.ID)
		}

		switch s.Type {
		case TypeInfo:
			if len(s.Options) > 0 {
				return nil, fmt.Errorf("info step %q must not have options", s.ID)
			}
		case TypeSingle, TypeMultiple:
			if len(s.Options) == 0 {
				return nil, fmt.Errorf("question step %q has no options", s.ID)
			}
			c.finalQuestion = s.ID
		default:
			return nil, fmt.Errorf("step %q has unknown type %q", s.ID, s.Type)
		}

		c.steps[i] = s.clone()
		c.index[s.ID] = i
	}

	return c, nil
}

// MustCatalog 用于静态目录，构造失败直接 panic。
func MustCatalog(steps []Step) *Catalog {
	c, err := NewCatalog(steps)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Len() int {
	return len(c.steps)
}

// Step 越界时返回 false，不会 panic。
func (c *Catalog) Step(i int) (Step, bool) {
	if i < 0 || i >= len(c.steps) {
		return Step{}, false
	}
	return c.steps[i].clone(), true
}

func (c *Catalog) Lookup(id StepID) (Step, bool) {
	i, ok := c.index[id]
	if !ok {
		return Step{}, false
	}
	return c.steps[i].clone(), true
}

func (c *Catalog) Index(id StepID) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// Steps 返回目录副本
func (c *Catalog) Steps() []Step {
	out := make([]Step, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.clone()
	}
	return out
}

// CategorySteps 按目录顺序返回某个分组的全部步骤。
func (c *Catalog) CategorySteps(cat Category) []Step {
	var out []Step
	for _, s := range c.steps {
		if s.Category == cat {
			out = append(out, s.clone())
		}
	}
	return out
}

// FinalQuestion 离开该步骤时触发提交。
func (c *Catalog) FinalQuestion() StepID {
	return c.finalQuestion
}

// Confirmation 返回确认页步骤（若存在）。
func (c *Catalog) Confirmation() (StepID, bool) {
	for _, s := range c.steps {
		if s.Category == CategoryConfirmation {
			return s.ID, true
		}
	}
	return "", false
}

// Progress 欢迎页、确认页以及未知步骤没有进度。
func (c *Catalog) Progress(id StepID) (Progress, bool) {
	step, ok := c.Lookup(id)
	if !ok || step.Category == CategoryWelcome || step.Category == CategoryConfirmation {
		return Progress{}, false
	}

	siblings := c.CategorySteps(step.Category)
	for i, s := range siblings {
		if s.ID == id {
			return Progress{Current: i + 1, Total: len(siblings)}, true
		}
	}
	return Progress{}, false
}
