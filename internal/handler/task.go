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

// GetTask 轮询异步展开任务进度
// GET /v1/tasks/:task_id
func GetTask(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	taskID := c.Param("task_id")
	if taskID == "" {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	task, err := service.Task().Get(ctx, tenant, taskID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.NewTaskResponse(task))
}
