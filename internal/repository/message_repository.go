package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"WaPulse/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MessageRepository) InsertBatch(ctx context.Context, ms []*model.Message) error {
	if len(ms) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(ms, 500).Error
}

// Due 返回已到期的待发消息，按租户、sendAt 升序
func (r *MessageRepository) Due(ctx context.Context, now time.Time, limit int) ([]*model.Message, error) {
	var out []*model.Message
	q := r.db.WithContext(ctx).
		Where("status = ?", model.MessageStatusPending).
		Where("send_at <= ?", now).
		Order("tenant asc, send_at asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatusFrom 条件状态迁移：仅当当前状态是 from 时才写入 to
// 返回 false 表示消息已被并发方改走（暂停、删除），调用方应跳过后续簿记
func (r *MessageRepository) UpdateStatusFrom(ctx context.Context, publicID int64, from, to model.MessageStatus, failReason *string) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == model.MessageStatusSent || to == model.MessageStatusFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}
	if failReason != nil {
		updates["fail_reason"] = failReason
	}

	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("public_id = ? AND status = ?", publicID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// BulkUpdateStatus 将归属方名下所有 from 状态的消息迁移为 to，返回受影响条数
func (r *MessageRepository) BulkUpdateStatus(ctx context.Context, kind model.ScheduledByKind, ownerID int64, from, to model.MessageStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("owner_kind = ? AND owner_id = ? AND status = ?", kind, ownerID, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// ListByOwner 按创建顺序返回归属方名下的消息，可选按状态过滤
func (r *MessageRepository) ListByOwner(ctx context.Context, kind model.ScheduledByKind, ownerID int64, statuses ...model.MessageStatus) ([]*model.Message, error) {
	q := r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		Order("id asc")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var out []*model.Message
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSchedule 重排一条消息的发送时刻并写入新状态，resume 用
func (r *MessageRepository) UpdateSchedule(ctx context.Context, publicID int64, sendAt time.Time, status model.MessageStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("public_id = ?", publicID).
		Updates(map[string]interface{}{"send_at": sendAt, "status": status}).Error
}

// CountByStatus 统计归属方名下各状态的消息数
func (r *MessageRepository) CountByStatus(ctx context.Context, kind model.ScheduledByKind, ownerID int64) (map[model.MessageStatus]int64, error) {
	type row struct {
		Status model.MessageStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("status, count(*) as count").
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[model.MessageStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (r *MessageRepository) DeleteByOwner(ctx context.Context, kind model.ScheduledByKind, ownerID int64) error {
	return r.db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		Delete(&model.Message{}).Error
}
