package dto

import (
	"time"

	"WaPulse/internal/model"
)

// ========== 异步任务相关 DTO ==========

// TaskResponse 异步展开任务进度
type TaskResponse struct {
	TaskID     string     `json:"task_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Created    int        `json:"created"`
	Error      string     `json:"error,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewTaskResponse 从模型构造任务进度
func NewTaskResponse(t *model.ExpansionTask) *TaskResponse {
	resp := &TaskResponse{
		TaskID:     t.TaskID,
		Kind:       t.Kind,
		Status:     string(t.Status),
		Total:      t.Total,
		Created:    t.Created,
		FinishedAt: t.FinishedAt,
	}
	if t.Error != nil {
		resp.Error = *t.Error
	}
	return resp
}
