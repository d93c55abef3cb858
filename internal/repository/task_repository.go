package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"WaPulse/internal/model"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Insert(ctx context.Context, t *model.ExpansionTask) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TaskRepository) GetByTaskID(ctx context.Context, tenant, taskID string) (*model.ExpansionTask, error) {
	var t model.ExpansionTask
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND task_id = ?", tenant, taskID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) MarkRunning(ctx context.Context, taskID string) error {
	return r.db.WithContext(ctx).
		Model(&model.ExpansionTask{}).
		Where("task_id = ?", taskID).
		Update("status", model.ExpansionTaskStatusRunning).Error
}

func (r *TaskRepository) MarkDone(ctx context.Context, taskID string, created int) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.ExpansionTask{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{
			"status":      model.ExpansionTaskStatusDone,
			"created":     created,
			"finished_at": &now,
		}).Error
}

func (r *TaskRepository) MarkFailed(ctx context.Context, taskID, reason string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.ExpansionTask{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{
			"status":      model.ExpansionTaskStatusFailed,
			"error":       reason,
			"finished_at": &now,
		}).Error
}
