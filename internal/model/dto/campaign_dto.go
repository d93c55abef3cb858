package dto

import "WaPulse/internal/model"

// ========== 活动相关 DTO ==========

// CreateCampaignRequest 创建群发活动请求
type CreateCampaignRequest struct {
	Name     string               `json:"name" binding:"required"`
	Batch    model.BatchConfig    `json:"batch_config"`
	Messages []model.CampaignItem `json:"messages" binding:"required"`
}

// CampaignResponse 活动摘要
type CampaignResponse struct {
	CampaignID   int64  `json:"campaign_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	MessageCount int    `json:"message_count"`
}

// CreateCampaignResponse 同步创建时返回活动摘要，异步时返回任务句柄
type CreateCampaignResponse struct {
	Campaign *CampaignResponse `json:"campaign,omitempty"`
	TaskID   string            `json:"task_id,omitempty"`
	Async    bool              `json:"async"`
}

// CampaignActionResponse pause/resume 等动作的影响行数
type CampaignActionResponse struct {
	CampaignID int64 `json:"campaign_id"`
	Affected   int64 `json:"affected"`
}

// PauseAllResponse 批量暂停结果
type PauseAllResponse struct {
	CampaignIDs []int64 `json:"campaign_ids"`
}

// CampaignReportResponse 活动进度报告
type CampaignReportResponse struct {
	CampaignID int64            `json:"campaign_id"`
	Name       string           `json:"name"`
	Status     string           `json:"status"`
	Total      int64            `json:"total"`
	Counts     map[string]int64 `json:"counts"`
}

// NewCampaignResponse 从模型构造活动摘要
func NewCampaignResponse(c *model.Campaign) *CampaignResponse {
	return &CampaignResponse{
		CampaignID:   c.PublicID,
		Name:         c.Name,
		Status:       string(c.Status),
		MessageCount: c.MessageCount,
	}
}
