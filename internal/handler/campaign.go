package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"WaPulse/internal/middleware"
	"WaPulse/internal/model/dto"
	"WaPulse/internal/service"
	"WaPulse/pkg/errors"
	"WaPulse/pkg/response"
)

// CreateCampaign 创建群发活动，超过阈值时转异步展开
// POST /v1/campaigns
func CreateCampaign(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.CreateCampaignRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	result, err := service.Campaign().Create(ctx, tenant, service.CreateCampaignInput{
		Name:  req.Name,
		Batch: req.Batch,
		Items: req.Messages,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if result.Async {
		response.Accepted(ctx, c, &dto.CreateCampaignResponse{
			TaskID: result.TaskID,
			Async:  true,
		})
		return
	}

	response.Success(ctx, c, &dto.CreateCampaignResponse{
		Campaign: dto.NewCampaignResponse(result.Campaign),
	})
}

// PauseCampaign 暂停活动，冻结剩余待发消息
// POST /v1/campaigns/:campaign_id/pause
func PauseCampaign(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	campaignID, err := pathID(c, "campaign_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	affected, err := service.Campaign().Pause(ctx, tenant, campaignID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &dto.CampaignActionResponse{
		CampaignID: campaignID,
		Affected:   affected,
	})
}

// ResumeCampaign 恢复已暂停的活动并重新排期
// POST /v1/campaigns/:campaign_id/resume
func ResumeCampaign(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	campaignID, err := pathID(c, "campaign_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	affected, err := service.Campaign().Resume(ctx, tenant, campaignID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &dto.CampaignActionResponse{
		CampaignID: campaignID,
		Affected:   affected,
	})
}

// GetCampaignReport 查询活动进度
// GET /v1/campaigns/:campaign_id/report
func GetCampaignReport(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	campaignID, err := pathID(c, "campaign_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	report, err := service.Campaign().Report(ctx, tenant, campaignID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	counts := make(map[string]int64, len(report.Counts))
	for status, n := range report.Counts {
		counts[string(status)] = n
	}

	response.Success(ctx, c, &dto.CampaignReportResponse{
		CampaignID: report.CampaignID,
		Name:       report.Name,
		Status:     string(report.Status),
		Total:      report.Total,
		Counts:     counts,
	})
}

// DeleteCampaign 删除活动并取消未发送的消息
// DELETE /v1/campaigns/:campaign_id
func DeleteCampaign(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	campaignID, err := pathID(c, "campaign_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := service.Campaign().Delete(ctx, tenant, campaignID); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &dto.CampaignActionResponse{CampaignID: campaignID})
}

// PauseAllCampaigns 暂停租户下全部进行中的活动
// POST /v1/campaigns/pause-all
func PauseAllCampaigns(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	ids, err := service.Campaign().PauseAll(ctx, tenant)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &dto.PauseAllResponse{CampaignIDs: ids})
}

// pathID 解析路径里的数字 ID
func pathID(c *app.RequestContext, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
