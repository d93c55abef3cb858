package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"WaPulse/internal/model"
)

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// CreateWithMessages 同一事务内落地活动记录与其全部消息
func (r *CampaignRepository) CreateWithMessages(ctx context.Context, c *model.Campaign, msgs []*model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		return tx.CreateInBatches(msgs, 500).Error
	})
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CampaignRepository) GetByPublicID(ctx context.Context, tenant string, publicID int64) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) GetByName(ctx context.Context, tenant, name string) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND name = ?", tenant, name).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListByStatus(ctx context.Context, tenant string, status model.CampaignStatus) ([]*model.Campaign, error) {
	var out []*model.Campaign
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND status = ?", tenant, status).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, tenant string, publicID int64, status model.CampaignStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		Update("status", status).Error
}

func (r *CampaignRepository) UpdateMessageCount(ctx context.Context, tenant string, publicID int64, count int) error {
	return r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("tenant = ? AND public_id = ?", tenant, publicID).
		Update("message_count", count).Error
}

// DeleteWithMessages 删除活动并级联清理其名下全部消息
func (r *CampaignRepository) DeleteWithMessages(ctx context.Context, tenant string, publicID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_kind = ? AND owner_id = ?", model.ScheduledByCampaign, publicID).
			Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant = ? AND public_id = ?", tenant, publicID).
			Delete(&model.Campaign{}).Error
	})
}
