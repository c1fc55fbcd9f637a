package model

import (
	"time"

	"github.com/lib/pq"
)

// OnboardingResponse 问卷提交记录，每个用户一行，重复提交覆盖。
type OnboardingResponse struct {
	BaseModel
	PublicID int64  `gorm:"uniqueIndex;not null" json:"public_id"`
	UserID   string `gorm:"uniqueIndex;type:varchar(64);not null" json:"user_id"`

	Gender         *string `gorm:"type:varchar(32)" json:"gender"`
	AgeGroup       *string `gorm:"type:varchar(32)" json:"age_group"`
	EmploymentType *string `gorm:"type:varchar(32)" json:"employment_type"`
	Dependents     *string `gorm:"type:varchar(16)" json:"dependents"`

	Smoking           *string `gorm:"type:varchar(16)" json:"smoking"`
	Alcohol           *string `gorm:"type:varchar(32)" json:"alcohol"`
	ExerciseFrequency *string `gorm:"type:varchar(32)" json:"exercise_frequency"`
	FitnessLevel      *string `gorm:"type:varchar(32)" json:"fitness_level"`

	PreExistingConditions  *string `gorm:"type:varchar(16)" json:"pre_existing_conditions"`
	KnownConditions        *string `gorm:"type:text" json:"known_conditions"`
	HospitalizedPast5Years *string `gorm:"column:hospitalized_past_5_years;type:varchar(16)" json:"hospitalized_past_5_years"`
	RegularMedications     *string `gorm:"type:varchar(16)" json:"regular_medications"`

	MonthlyIncome             *string        `gorm:"type:varchar(32)" json:"monthly_income"`
	ExistingInsurancePolicies *string        `gorm:"type:varchar(16)" json:"existing_insurance_policies"`
	InsuranceBeneficiary      *string        `gorm:"type:varchar(32)" json:"insurance_beneficiary"`
	InsuranceTypesOwned       pq.StringArray `gorm:"type:text[]" json:"insurance_types_owned"`

	SubmittedAt time.Time `gorm:"not null" json:"submitted_at"`
}

func (OnboardingResponse) TableName() string {
	return "onboarding_responses"
}
