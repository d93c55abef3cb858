package service

import (
	"context"
	"sync"

	"WaPulse/internal/model"
	"WaPulse/internal/repository"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/storage/database"
)

type taskLookupStore interface {
	GetByTaskID(ctx context.Context, tenant, taskID string) (*model.ExpansionTask, error)
}

type TaskService struct {
	tasks taskLookupStore
}

var (
	taskService *TaskService
	taskOnce    sync.Once
)

func Task() *TaskService {
	taskOnce.Do(func() {
		taskService = &TaskService{
			tasks: repository.NewTaskRepository(database.DB()),
		}
	})
	return taskService
}

// Get 查询异步展开任务的进度
func (s *TaskService) Get(ctx context.Context, tenant, taskID string) (*model.ExpansionTask, error) {
	task, err := s.tasks.GetByTaskID(ctx, tenant, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, pkgerrors.TaskNotFound
	}
	return task, nil
}
