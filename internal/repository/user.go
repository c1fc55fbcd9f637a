package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"Plans/internal/model"
	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/snowflake"
)

// UserRepository users 表，按 auth_id（JWT 中的 uid）定位用户
type UserRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// EnsureUser 首次访问时创建本地用户，已存在则直接返回。
func (r *UserRepository) EnsureUser(ctx context.Context, authID string) (*model.User, error) {
	publicID, err := snowflake.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate public id: %w", err)
	}

	user := &model.User{PublicID: publicID, AuthID: authID}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "auth_id"}},
			DoNothing: true,
		}).
		Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return r.GetByAuthID(ctx, authID)
}

// GetByAuthID 走主库，刚写入的完成标记立即可见
func (r *UserRepository) GetByAuthID(ctx context.Context, authID string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Where("auth_id = ?", authID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// MarkOnboardingComplete 用户不存在时一并创建，重复调用只刷新完成时间。
func (r *UserRepository) MarkOnboardingComplete(ctx context.Context, identity string) error {
	publicID, err := snowflake.NextID()
	if err != nil {
		return fmt.Errorf("failed to generate public id: %w", err)
	}

	now := r.now().UTC()
	user := &model.User{
		PublicID:              publicID,
		AuthID:                identity,
		OnboardingComplete:    true,
		OnboardingCompletedAt: &now,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "auth_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"onboarding_complete":     true,
				"onboarding_completed_at": now,
				"updated_at":              now,
			}),
		}).
		Create(user).Error
	if err != nil {
		return fmt.Errorf("failed to mark onboarding complete: %w", err)
	}
	return nil
}
