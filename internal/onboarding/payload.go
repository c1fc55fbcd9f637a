package onboarding

import (
	"strings"
	"time"
)

// Payload 提交到 onboarding_responses 的扁平记录，所有字段可为空。
// 缺失与空值一律为 nil，下游区分“未填写”和“空”。
type Payload struct {
	UserID                    string   `json:"user_id"`
	Gender                    *string  `json:"gender"`
	AgeGroup                  *string  `json:"age_group"`
	EmploymentType            *string  `json:"employment_type"`
	Dependents                *string  `json:"dependents"`
	Smoking                   *string  `json:"smoking"`
	Alcohol                   *string  `json:"alcohol"`
	ExerciseFrequency         *string  `json:"exercise_frequency"`
	FitnessLevel              *string  `json:"fitness_level"`
	PreExistingConditions     *string  `json:"pre_existing_conditions"`
	KnownConditions           *string  `json:"known_conditions"`
	HospitalizedPast5Years    *string  `json:"hospitalized_past_5_years"`
	RegularMedications        *string  `json:"regular_medications"`
	MonthlyIncome             *string  `json:"monthly_income"`
	ExistingInsurancePolicies *string  `json:"existing_insurance_policies"`
	InsuranceBeneficiary      *string  `json:"insurance_beneficiary"`
	InsuranceTypesOwned       []string `json:"insurance_types_owned"`
	SubmittedAt               string   `json:"submitted_at"`
}

// BuildPayload 纯函数：字段重命名与归一化，提交时间取 now（UTC）。
func BuildPayload(identity string, a Answers, now time.Time) Payload {
	return Payload{
		UserID:                    identity,
		Gender:                    singleText(a, StepGender),
		AgeGroup:                  singleText(a, StepAgeGroup),
		EmploymentType:            singleText(a, StepEmploymentType),
		Dependents:                singleText(a, StepDependents),
		Smoking:                   singleText(a, StepSmoking),
		Alcohol:                   singleText(a, StepAlcohol),
		ExerciseFrequency:         singleText(a, StepExerciseFrequency),
		FitnessLevel:              singleText(a, StepFitnessLevel),
		PreExistingConditions:     singleText(a, StepPreExistingConditions),
		KnownConditions:           singleText(a, StepKnownConditions),
		HospitalizedPast5Years:    singleText(a, StepHospitalizedPast5Years),
		RegularMedications:        singleText(a, StepRegularMedications),
		MonthlyIncome:             singleText(a, StepMonthlyIncome),
		ExistingInsurancePolicies: singleText(a, StepExistingInsurancePolicies),
		InsuranceBeneficiary:      singleText(a, StepInsuranceBeneficiary),
		InsuranceTypesOwned:       textList(a, StepInsuranceTypesOwned),
		SubmittedAt:               now.UTC().Format(time.RFC3339),
	}
}

// singleText 多选值以 ", " 拼接存入文本列
func singleText(a Answers, id StepID) *string {
	ans, ok := a[id]
	if !ok || ans.Empty() {
		return nil
	}
	if ans.IsMultiple() {
		s := strings.Join(ans.values, ", ")
		return &s
	}
	s := ans.Value()
	return &s
}

// textList 列表列：原样保留，空则为 nil
func textList(a Answers, id StepID) []string {
	ans, ok := a[id]
	if !ok || ans.Empty() {
		return nil
	}
	return ans.Values()
}
