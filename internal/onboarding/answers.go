package onboarding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Answer 单选题保存一个值，多选题保存一个无重复的有序集合。
type Answer struct {
	values   []string
	multiple bool
}

func Single(value string) Answer {
	return Answer{values: []string{value}}
}

func Multi(values ...string) Answer {
	return Answer{values: append([]string{}, values...), multiple: true}
}

func (a Answer) IsMultiple() bool { return a.multiple }

// Value 单选值；多选时返回空串
func (a Answer) Value() string {
	if a.multiple || len(a.values) == 0 {
		return ""
	}
	return a.values[0]
}

// Values 返回副本
func (a Answer) Values() []string {
	return append([]string(nil), a.values...)
}

func (a Answer) Empty() bool {
	if a.multiple {
		return len(a.values) == 0
	}
	return len(a.values) == 0 || strings.TrimSpace(a.values[0]) == ""
}

func (a Answer) Contains(v string) bool {
	for _, x := range a.values {
		if x == v {
			return true
		}
	}
	return false
}

func (a Answer) Equal(b Answer) bool {
	if a.multiple != b.multiple || len(a.values) != len(b.values) {
		return false
	}
	for i := range a.values {
		if a.values[i] != b.values[i] {
			return false
		}
	}
	return true
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.multiple {
		vals := a.values
		if vals == nil {
			vals = []string{}
		}
		return json.Marshal(vals)
	}
	return json.Marshal(a.Value())
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty answer")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Single(s)
	case '[':
		var vals []string
		if err := json.Unmarshal(data, &vals); err != nil {
			return err
		}
		*a = Multi(vals...)
	default:
		return fmt.Errorf("answer must be a string or an array of strings")
	}
	return nil
}

// Answers 步骤 ID 到答案的映射
type Answers map[StepID]Answer

func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	for k, v := range a {
		if v.multiple {
			out[k] = Multi(v.values...)
		} else {
			out[k] = Answer{values: append([]string{}, v.values...)}
		}
	}
	return out
}

// Answered 答案存在且非空
func (a Answers) Answered(id StepID) bool {
	v, ok := a[id]
	return ok && !v.Empty()
}

// Conforms 检查答案是否与目录结构一致：步骤存在、是问题、类型匹配、值均在选项内。
func (a Answers) Conforms(c *Catalog) error {
	for id, ans := range a {
		step, ok := c.Lookup(id)
		if !ok {
			return fmt.Errorf("unknown step %q", id)
		}
		if !step.IsQuestion() {
			return fmt.Errorf("step %q does not take answers", id)
		}
		if (step.Type == TypeMultiple) != ans.multiple {
			return fmt.Errorf("step %q answer has wrong shape", id)
		}
		if _, err := normalize(step, ans); err != nil {
			return err
		}
	}
	return nil
}

// normalize 校验选项、去重，并保证 None 与其他选项互斥（后选中者优先）。
func normalize(step Step, ans Answer) (Answer, error) {
	if step.Type == TypeSingle {
		if ans.multiple {
			return Answer{}, fmt.Errorf("step %q expects a single value", step.ID)
		}
		v := ans.Value()
		if !step.hasOption(v) {
			return Answer{}, fmt.Errorf("step %q has no option %q", step.ID, v)
		}
		return Single(v), nil
	}

	if !ans.multiple {
		// 单个值也接受，视为只选了一项
		ans = Multi(ans.values...)
	}

	seen := make(map[string]struct{}, len(ans.values))
	out := make([]string, 0, len(ans.values))
	for _, v := range ans.values {
		if !step.hasOption(v) {
			return Answer{}, fmt.Errorf("step %q has no option %q", step.ID, v)
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	if len(out) > 1 {
		if out[len(out)-1] == NoneOption {
			out = []string{NoneOption}
		} else {
			filtered := out[:0]
			for _, v := range out {
				if v != NoneOption {
					filtered = append(filtered, v)
				}
			}
			out = filtered
		}
	}

	return Multi(out...), nil
}

// toggle 复选框语义
func toggle(current Answer, option string) Answer {
	if option == NoneOption {
		return Multi(NoneOption)
	}
	if current.Contains(option) {
		next := make([]string, 0, len(current.values))
		for _, v := range current.values {
			if v != option {
				next = append(next, v)
			}
		}
		return Multi(next...)
	}

	next := make([]string, 0, len(current.values)+1)
	for _, v := range current.values {
		if v != NoneOption {
			next = append(next, v)
		}
	}
	return Multi(append(next, option)...)
}
