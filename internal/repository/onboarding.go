package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"Plans/internal/model"
	"Plans/internal/onboarding"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/snowflake"
)

// onboardingColumns 重复提交时覆盖的列
var onboardingColumns = []string{
	"gender",
	"age_group",
	"employment_type",
	"dependents",
	"smoking",
	"alcohol",
	"exercise_frequency",
	"fitness_level",
	"pre_existing_conditions",
	"known_conditions",
	"hospitalized_past_5_years",
	"regular_medications",
	"monthly_income",
	"existing_insurance_policies",
	"insurance_beneficiary",
	"insurance_types_owned",
	"submitted_at",
	"updated_at",
}

// OnboardingRepository onboarding_responses 表，每个用户一行
type OnboardingRepository struct {
	db *gorm.DB
}

func NewOnboardingRepository(db *gorm.DB) *OnboardingRepository {
	return &OnboardingRepository{db: db}
}

// UpsertOnboarding 以 user_id 为冲突键写入提交记录
func (r *OnboardingRepository) UpsertOnboarding(ctx context.Context, p onboarding.Payload) error {
	record, err := ToResponse(p)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(onboardingColumns),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert onboarding response: %w", err)
	}
	return nil
}

// GetByUserID 读主库，worker 在提交后立刻读取，副本可能尚未同步
func (r *OnboardingRepository) GetByUserID(ctx context.Context, userID string) (*model.OnboardingResponse, error) {
	var resp model.OnboardingResponse
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Where("user_id = ?", userID).First(&resp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound
		}
		return nil, fmt.Errorf("failed to query onboarding response: %w", err)
	}
	return &resp, nil
}

// ToResponse 提交记录转换为表模型，分配 public id
func ToResponse(p onboarding.Payload) (*model.OnboardingResponse, error) {
	if p.UserID == "" {
		return nil, pkgerrors.InvalidUserID
	}

	submittedAt, err := time.Parse(time.RFC3339, p.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid submitted_at %q: %w", p.SubmittedAt, err)
	}

	publicID, err := snowflake.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate public id: %w", err)
	}

	var owned pq.StringArray
	if p.InsuranceTypesOwned != nil {
		owned = pq.StringArray(p.InsuranceTypesOwned)
	}

	return &model.OnboardingResponse{
		PublicID:                  publicID,
		UserID:                    p.UserID,
		Gender:                    p.Gender,
		AgeGroup:                  p.AgeGroup,
		EmploymentType:            p.EmploymentType,
		Dependents:                p.Dependents,
		Smoking:                   p.Smoking,
		Alcohol:                   p.Alcohol,
		ExerciseFrequency:         p.ExerciseFrequency,
		FitnessLevel:              p.FitnessLevel,
		PreExistingConditions:     p.PreExistingConditions,
		KnownConditions:           p.KnownConditions,
		HospitalizedPast5Years:    p.HospitalizedPast5Years,
		RegularMedications:        p.RegularMedications,
		MonthlyIncome:             p.MonthlyIncome,
		ExistingInsurancePolicies: p.ExistingInsurancePolicies,
		InsuranceBeneficiary:      p.InsuranceBeneficiary,
		InsuranceTypesOwned:       owned,
		SubmittedAt:               submittedAt.UTC(),
	}, nil
}

// ListPendingRiskProfiles 查找没有风险画像或画像落后于最新提交的记录。
// 只返回 before 之前提交的记录，给正常的消息投递留出时间。
func (r *OnboardingRepository) ListPendingRiskProfiles(ctx context.Context, before time.Time, limit int) ([]model.OnboardingResponse, error) {
	var out []model.OnboardingResponse
	err := r.db.WithContext(ctx).
		Select("onboarding_responses.*").
		Joins("LEFT JOIN risk_profiles ON risk_profiles.user_id = onboarding_responses.user_id").
		Where("(risk_profiles.user_id IS NULL OR risk_profiles.submitted_at < onboarding_responses.submitted_at)").
		Where("onboarding_responses.submitted_at < ?", before).
		Order("onboarding_responses.submitted_at").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query pending risk profiles: %w", err)
	}
	return out, nil
}
