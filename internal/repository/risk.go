package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Plans/internal/model"
	pkgerrors "Plans/pkg/errors"
)

type RiskRepository struct {
	db *gorm.DB
}

func NewRiskRepository(db *gorm.DB) *RiskRepository {
	return &RiskRepository{db: db}
}

// Upsert 重新提交问卷后覆盖旧画像；更早的提交不会覆盖更新的画像。
func (r *RiskRepository) Upsert(ctx context.Context, p *model.RiskProfile) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "level", "factors", "submitted_at", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "risk_profiles.submitted_at <= excluded.submitted_at"},
			}},
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to upsert risk profile: %w", err)
	}
	return nil
}

func (r *RiskRepository) GetByUserID(ctx context.Context, userID string) (*model.RiskProfile, error) {
	var p model.RiskProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.RiskProfileNotReady
		}
		return nil, fmt.Errorf("failed to query risk profile: %w", err)
	}
	return &p, nil
}
