package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"WaPulse/internal/middleware"
	"WaPulse/internal/model/dto"
	"WaPulse/internal/service"
	"WaPulse/pkg/errors"
	"WaPulse/pkg/response"
)

// CreateSchedule 创建周期计划
// POST /v1/schedules
func CreateSchedule(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.CreateScheduleRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	schedule, err := service.Schedule().Create(ctx, tenant, service.CreateScheduleInput{
		Name:        req.Name,
		Recipients:  req.Recipients,
		Body:        req.Body,
		Attachments: req.Attachments,
		Dates:       req.Dates,
		DailyCount:  req.DailyCount,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Variables:   req.Variables,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.NewScheduleResponse(schedule))
}

// ListSchedules 列出租户的周期计划
// GET /v1/schedules
func ListSchedules(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	schedules, err := service.Schedule().List(ctx, tenant)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	items := make([]*dto.ScheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		items = append(items, dto.NewScheduleResponse(s))
	}
	response.Success(ctx, c, items)
}

// GetSchedule 查询单个周期计划
// GET /v1/schedules/:schedule_id
func GetSchedule(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	scheduleID, err := pathID(c, "schedule_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	schedule, err := service.Schedule().Get(ctx, tenant, scheduleID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.NewScheduleResponse(schedule))
}

// ActivateSchedule 启用周期计划
// POST /v1/schedules/:schedule_id/activate
func ActivateSchedule(ctx context.Context, c *app.RequestContext) {
	setScheduleActive(ctx, c, true)
}

// DeactivateSchedule 停用周期计划，游标保持不动
// POST /v1/schedules/:schedule_id/deactivate
func DeactivateSchedule(ctx context.Context, c *app.RequestContext) {
	setScheduleActive(ctx, c, false)
}

func setScheduleActive(ctx context.Context, c *app.RequestContext, active bool) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	scheduleID, err := pathID(c, "schedule_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := service.Schedule().SetActive(ctx, tenant, scheduleID, active); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"schedule_id": scheduleID,
		"active":      active,
	})
}

// RescheduleNow 立即触发一次展开，不等每日定时
// POST /v1/schedules/:schedule_id/reschedule-now
func RescheduleNow(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	scheduleID, err := pathID(c, "schedule_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := service.Schedule().FireNow(ctx, tenant, scheduleID); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Accepted(ctx, c, map[string]interface{}{
		"schedule_id": scheduleID,
	})
}

// DeleteSchedule 删除周期计划及其未发送的消息
// DELETE /v1/schedules/:schedule_id
func DeleteSchedule(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	scheduleID, err := pathID(c, "schedule_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := service.Schedule().Delete(ctx, tenant, scheduleID); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"schedule_id": scheduleID,
	})
}
