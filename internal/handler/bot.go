package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"WaPulse/internal/middleware"
	"WaPulse/internal/model"
	"WaPulse/internal/model/dto"
	"WaPulse/internal/service"
	"WaPulse/pkg/errors"
	"WaPulse/pkg/response"
)

// CreateBotRule 创建触发规则
// POST /v1/bots
func CreateBotRule(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	var req dto.CreateBotRuleRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	in := service.CreateBotRuleInput{
		Name:                 req.Name,
		Include:              req.Include,
		Exclude:              req.Exclude,
		MatchSaved:           true,
		MatchUnsaved:         true,
		Triggers:             req.Triggers,
		MatchMode:            model.MatchMode(req.MatchMode),
		CaseSensitive:        req.CaseSensitive,
		CooldownSeconds:      req.CooldownSeconds,
		ResponseDelaySeconds: req.ResponseDelaySeconds,
		ActiveStart:          req.ActiveStart,
		ActiveEnd:            req.ActiveEnd,
		AllowedCountryCodes:  req.AllowedCountryCodes,
		ResponseText:         req.ResponseText,
		ResponseFiles:        req.ResponseFiles,
		ResponseCards:        req.ResponseCards,
		ResponsePolls:        req.ResponsePolls,
		ForwardTo:            req.ForwardTo,
		Nurture:              req.Nurture,
	}
	if req.MatchSaved != nil {
		in.MatchSaved = *req.MatchSaved
	}
	if req.MatchUnsaved != nil {
		in.MatchUnsaved = *req.MatchUnsaved
	}

	rule, err := service.BotRule().Create(ctx, tenant, in)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.NewBotRuleResponse(rule))
}

// ListBotRules 列出租户的触发规则
// GET /v1/bots
func ListBotRules(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	rules, err := service.BotRule().List(ctx, tenant)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	items := make([]*dto.BotRuleResponse, 0, len(rules))
	for _, r := range rules {
		items = append(items, dto.NewBotRuleResponse(r))
	}
	response.Success(ctx, c, items)
}

// GetBotRule 查询单条触发规则
// GET /v1/bots/:rule_id
func GetBotRule(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	ruleID, err := pathID(c, "rule_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	rule, err := service.BotRule().Get(ctx, tenant, ruleID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, rule)
}

// ActivateBotRule 启用触发规则
// POST /v1/bots/:rule_id/activate
func ActivateBotRule(ctx context.Context, c *app.RequestContext) {
	setBotRuleActive(ctx, c, true)
}

// DeactivateBotRule 停用触发规则
// POST /v1/bots/:rule_id/deactivate
func DeactivateBotRule(ctx context.Context, c *app.RequestContext) {
	setBotRuleActive(ctx, c, false)
}

func setBotRuleActive(ctx context.Context, c *app.RequestContext, active bool) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	ruleID, err := pathID(c, "rule_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := service.BotRule().SetActive(ctx, tenant, ruleID, active); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"rule_id": ruleID,
		"active":  active,
	})
}

// DeleteBotRule 删除触发规则
// DELETE /v1/bots/:rule_id
func DeleteBotRule(ctx context.Context, c *app.RequestContext) {
	tenant, ok := middleware.GetTenant(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return
	}

	ruleID, err := pathID(c, "rule_id")
	if err != nil {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	if err := service.BotRule().Delete(ctx, tenant, ruleID); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"rule_id": ruleID,
	})
}
