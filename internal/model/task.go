package model

import "time"

// ExpansionTaskStatus 异步展开任务状态枚举
type ExpansionTaskStatus string

const (
	ExpansionTaskStatusPending ExpansionTaskStatus = "pending"
	ExpansionTaskStatusRunning ExpansionTaskStatus = "running"
	ExpansionTaskStatusDone    ExpansionTaskStatus = "done"
	ExpansionTaskStatusFailed  ExpansionTaskStatus = "failed"
)

// ExpansionTask 大活动/大名册展开的异步任务句柄，调用方可轮询
type ExpansionTask struct {
	BaseModel
	TaskID     string              `gorm:"type:varchar(36);uniqueIndex;not null" json:"task_id"` // uuid
	Tenant     string              `gorm:"type:varchar(64);not null;index" json:"tenant"`
	Kind       string              `gorm:"type:varchar(32);not null" json:"kind"` // campaign, recurring
	Status     ExpansionTaskStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Total      int                 `gorm:"not null;default:0" json:"total"`
	Created    int                 `gorm:"not null;default:0" json:"created"`
	Error      *string             `gorm:"type:varchar(255)" json:"error,omitempty"`
	FinishedAt *time.Time          `gorm:"type:timestamptz" json:"finished_at,omitempty"`
}

func (ExpansionTask) TableName() string {
	return "expansion_tasks"
}
