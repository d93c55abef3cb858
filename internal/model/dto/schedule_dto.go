package dto

import "WaPulse/internal/model"

// ========== 周期计划相关 DTO ==========

// CreateScheduleRequest 创建周期计划请求
type CreateScheduleRequest struct {
	Name        string           `json:"name" binding:"required"`
	Recipients  []string         `json:"recipients" binding:"required"`
	Body        string           `json:"body" binding:"required"`
	Attachments model.JSONBArray `json:"attachments,omitempty"`
	Dates       []string         `json:"dates" binding:"required"`
	DailyCount  int              `json:"daily_count" binding:"required"`
	StartTime   string           `json:"start_time" binding:"required"`
	EndTime     string           `json:"end_time" binding:"required"`
	Variables   model.JSONB      `json:"variables,omitempty"`
}

// ScheduleResponse 周期计划摘要
type ScheduleResponse struct {
	ScheduleID      int64    `json:"schedule_id"`
	Name            string   `json:"name"`
	Recipients      int      `json:"recipients"`
	Dates           []string `json:"dates"`
	DailyCount      int      `json:"daily_count"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	SchedulingIndex int      `json:"scheduling_index"`
	Active          bool     `json:"active"`
}

// NewScheduleResponse 从模型构造计划摘要
func NewScheduleResponse(s *model.RecurringSchedule) *ScheduleResponse {
	return &ScheduleResponse{
		ScheduleID:      s.PublicID,
		Name:            s.Name,
		Recipients:      len(s.Recipients),
		Dates:           s.Dates,
		DailyCount:      s.DailyCount,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		SchedulingIndex: s.SchedulingIndex,
		Active:          s.Active,
	}
}
