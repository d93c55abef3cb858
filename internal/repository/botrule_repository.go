package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"WaPulse/internal/model"
)

type BotRuleRepository struct {
	db *gorm.DB
}

func NewBotRuleRepository(db *gorm.DB) *BotRuleRepository {
	return &BotRuleRepository{db: db}
}

func (r *BotRuleRepository) Insert(ctx context.Context, rule *model.BotRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *BotRuleRepository) GetByPublicID(ctx context.Context, tenant string, publicID int64) (*model.BotRule, error) {
	var rule model.BotRule
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListActive 按创建顺序返回租户下的启用规则，顺序即匹配优先级
func (r *BotRuleRepository) ListActive(ctx context.Context, tenant string) ([]*model.BotRule, error) {
	var out []*model.BotRule
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND active = ?", tenant, true).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BotRuleRepository) List(ctx context.Context, tenant string) ([]*model.BotRule, error) {
	var out []*model.BotRule
	err := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BotRuleRepository) SetActive(ctx context.Context, tenant string, publicID int64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&model.BotRule{}).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		Update("active", active).Error
}

func (r *BotRuleRepository) Delete(ctx context.Context, tenant string, publicID int64) error {
	return r.db.WithContext(ctx).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		Delete(&model.BotRule{}).Error
}
