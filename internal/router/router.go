package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"WaPulse/internal/handler"
	"WaPulse/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Healthz)

	v1 := h.Group("/v1")

	// 认证相关路由
	auth := v1.Group("/auth")
	auth.Use(middleware.AuthRateLimitMiddleware()) // 认证接口限流
	{
		auth.POST("/token", handler.IssueToken)
		auth.POST("/token/refresh", handler.RefreshToken)
	}

	// 群发活动路由
	campaigns := v1.Group("/campaigns")
	campaigns.Use(middleware.AuthMiddleware()) // 需要鉴权的路由组
	campaigns.Use(middleware.GeneralRateLimitMiddleware())
	{
		campaigns.POST("", handler.CreateCampaign)
		campaigns.POST("/pause-all", handler.PauseAllCampaigns)
		campaigns.POST("/:campaign_id/pause", handler.PauseCampaign)
		campaigns.POST("/:campaign_id/resume", handler.ResumeCampaign)
		campaigns.GET("/:campaign_id/report", handler.GetCampaignReport)
		campaigns.DELETE("/:campaign_id", handler.DeleteCampaign)
	}

	// 周期计划路由
	schedules := v1.Group("/schedules")
	schedules.Use(middleware.AuthMiddleware())
	schedules.Use(middleware.GeneralRateLimitMiddleware())
	{
		schedules.GET("", handler.ListSchedules)
		schedules.POST("", handler.CreateSchedule)
		schedules.GET("/:schedule_id", handler.GetSchedule)
		schedules.POST("/:schedule_id/activate", handler.ActivateSchedule)
		schedules.POST("/:schedule_id/deactivate", handler.DeactivateSchedule)
		schedules.POST("/:schedule_id/reschedule-now", handler.RescheduleNow)
		schedules.DELETE("/:schedule_id", handler.DeleteSchedule)
	}

	// 触发规则路由
	bots := v1.Group("/bots")
	bots.Use(middleware.AuthMiddleware())
	bots.Use(middleware.GeneralRateLimitMiddleware())
	{
		bots.GET("", handler.ListBotRules)
		bots.POST("", handler.CreateBotRule)
		bots.GET("/:rule_id", handler.GetBotRule)
		bots.POST("/:rule_id/activate", handler.ActivateBotRule)
		bots.POST("/:rule_id/deactivate", handler.DeactivateBotRule)
		bots.DELETE("/:rule_id", handler.DeleteBotRule)
	}

	// 异步任务路由
	tasks := v1.Group("/tasks")
	tasks.Use(middleware.AuthMiddleware())
	{
		tasks.GET("/:task_id", handler.GetTask)
	}
}
