package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"WaPulse/internal/model"
)

type RecurringRepository struct {
	db *gorm.DB
}

func NewRecurringRepository(db *gorm.DB) *RecurringRepository {
	return &RecurringRepository{db: db}
}

func (r *RecurringRepository) Insert(ctx context.Context, s *model.RecurringSchedule) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *RecurringRepository) GetByPublicID(ctx context.Context, tenant string, publicID int64) (*model.RecurringSchedule, error) {
	var s model.RecurringSchedule
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get 不限租户查询，调度循环用
func (r *RecurringRepository) Get(ctx context.Context, publicID int64) (*model.RecurringSchedule, error) {
	var s model.RecurringSchedule
	err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RecurringRepository) ListActive(ctx context.Context) ([]*model.RecurringSchedule, error) {
	var out []*model.RecurringSchedule
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RecurringRepository) List(ctx context.Context, tenant string) ([]*model.RecurringSchedule, error) {
	var out []*model.RecurringSchedule
	err := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertExpansion 同一事务内落地一批展开消息并推进游标，半程失败整体回滚
// 游标推进后下次触发从新位置取收件人
func (r *RecurringRepository) InsertExpansion(ctx context.Context, scheduleID int64, cursor int, msgs []*model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(msgs) > 0 {
			if err := tx.CreateInBatches(msgs, 500).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.RecurringSchedule{}).
			Where("public_id = ?", scheduleID).
			Update("scheduling_index", cursor).Error
	})
}

func (r *RecurringRepository) SetActive(ctx context.Context, tenant string, publicID int64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&model.RecurringSchedule{}).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		Update("active", active).Error
}

func (r *RecurringRepository) Delete(ctx context.Context, tenant string, publicID int64) error {
	return r.db.WithContext(ctx).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		Delete(&model.RecurringSchedule{}).Error
}
