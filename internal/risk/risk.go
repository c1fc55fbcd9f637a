// Package risk 根据问卷结果计算风险画像。
// 满分 100，分数越高风险越低；每个命中的规则扣分并记录为一项风险因素。
package risk

import (
	"strings"

	"Plans/internal/model"
)

const (
	MaxScore = 100

	lowRiskThreshold    = 80
	mediumRiskThreshold = 60
)

type rule struct {
	key    string
	label  string
	impact int
	match  func(r *model.OnboardingResponse) bool
}

func is(field func(r *model.OnboardingResponse) *string, values ...string) func(r *model.OnboardingResponse) bool {
	return func(r *model.OnboardingResponse) bool {
		v := field(r)
		if v == nil {
			return false
		}
		for _, want := range values {
			if *v == want {
				return true
			}
		}
		return false
	}
}

func hasCondition(name string) func(r *model.OnboardingResponse) bool {
	return func(r *model.OnboardingResponse) bool {
		if r.KnownConditions == nil {
			return false
		}
		for _, c := range strings.Split(*r.KnownConditions, ", ") {
			if c == name {
				return true
			}
		}
		return false
	}
}

func owns(kind string) func(r *model.OnboardingResponse) bool {
	return func(r *model.OnboardingResponse) bool {
		for _, t := range r.InsuranceTypesOwned {
			if t == kind {
				return true
			}
		}
		return false
	}
}

func not(f func(r *model.OnboardingResponse) bool) func(r *model.OnboardingResponse) bool {
	return func(r *model.OnboardingResponse) bool { return !f(r) }
}

func and(fs ...func(r *model.OnboardingResponse) bool) func(r *model.OnboardingResponse) bool {
	return func(r *model.OnboardingResponse) bool {
		for _, f := range fs {
			if !f(r) {
				return false
			}
		}
		return true
	}
}

var (
	ageGroup       = func(r *model.OnboardingResponse) *string { return r.AgeGroup }
	dependents     = func(r *model.OnboardingResponse) *string { return r.Dependents }
	smoking        = func(r *model.OnboardingResponse) *string { return r.Smoking }
	alcohol        = func(r *model.OnboardingResponse) *string { return r.Alcohol }
	exercise       = func(r *model.OnboardingResponse) *string { return r.ExerciseFrequency }
	fitness        = func(r *model.OnboardingResponse) *string { return r.FitnessLevel }
	preExisting    = func(r *model.OnboardingResponse) *string { return r.PreExistingConditions }
	hospitalized   = func(r *model.OnboardingResponse) *string { return r.HospitalizedPast5Years }
	medications    = func(r *model.OnboardingResponse) *string { return r.RegularMedications }
	existingPolicy = func(r *model.OnboardingResponse) *string { return r.ExistingInsurancePolicies }
)

// rules 顺序即风险因素的展示顺序
var rules = []rule{
	{"age_51_60", "Age 51-60", -5, is(ageGroup, "51-60")},
	{"age_60_plus", "Age 60+", -10, is(ageGroup, "60+")},
	{"smoking", "Smoker", -15, is(smoking, "Yes")},
	{"alcohol_regular", "Regular alcohol consumption", -10, is(alcohol, "Regularly")},
	{"alcohol_occasional", "Occasional alcohol consumption", -3, is(alcohol, "Occasionally")},
	{"no_exercise", "No regular exercise", -8, is(exercise, "Never")},
	{"low_exercise", "Infrequent exercise", -3, is(exercise, "1-2 Times")},
	{"low_fitness", "Low fitness level", -6, is(fitness, "Low")},
	{"pre_existing", "Pre-existing medical conditions", -8, is(preExisting, "Yes")},
	{"diabetes", "Diabetes", -6, hasCondition("Diabetes")},
	{"hypertension", "Hypertension", -6, hasCondition("Hypertension")},
	{"heart_issues", "Heart issues", -10, hasCondition("Heart Issues")},
	{"hospitalized", "Hospitalized in the past 5 years", -8, is(hospitalized, "Yes")},
	{"medications", "Regular medications", -4, is(medications, "Yes")},
	{"uninsured", "No existing insurance policy", -5, is(existingPolicy, "No")},
	{"no_health_cover", "No health insurance", -5, and(is(existingPolicy, "Yes"), not(owns("Health")))},
	{"dependents_without_life", "Dependents without life insurance", -5, and(is(dependents, "Yes"), not(owns("Life")))},
}

// Assess 纯函数，相同输入得到相同画像；未回答的问题不扣分。
func Assess(resp *model.OnboardingResponse) *model.RiskProfile {
	score := MaxScore
	factors := make([]model.RiskFactor, 0)

	for _, r := range rules {
		if !r.match(resp) {
			continue
		}
		score += r.impact
		factors = append(factors, model.RiskFactor{Key: r.key, Label: r.label, Impact: r.impact})
	}

	if score < 0 {
		score = 0
	}

	return &model.RiskProfile{
		UserID:      resp.UserID,
		Score:       score,
		Level:       LevelFor(score),
		Factors:     factors,
		SubmittedAt: resp.SubmittedAt,
	}
}

func LevelFor(score int) model.RiskLevel {
	switch {
	case score >= lowRiskThreshold:
		return model.RiskLevelLow
	case score >= mediumRiskThreshold:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelHigh
	}
}
