package dto

import "WaPulse/internal/model"

// ========== 触发规则相关 DTO ==========

// CreateBotRuleRequest 创建触发规则请求
// match_saved/match_unsaved 默认都放行，所以用指针区分"未传"和"显式 false"
type CreateBotRuleRequest struct {
	Name                 string             `json:"name" binding:"required"`
	Include              []string           `json:"include,omitempty"`
	Exclude              []string           `json:"exclude,omitempty"`
	MatchSaved           *bool              `json:"match_saved,omitempty"`
	MatchUnsaved         *bool              `json:"match_unsaved,omitempty"`
	Triggers             []string           `json:"triggers,omitempty"`
	MatchMode            string             `json:"match_mode,omitempty"`
	CaseSensitive        bool               `json:"case_sensitive,omitempty"`
	CooldownSeconds      int                `json:"cooldown_seconds,omitempty"`
	ResponseDelaySeconds int                `json:"response_delay_seconds,omitempty"`
	ActiveStart          string             `json:"active_start,omitempty"`
	ActiveEnd            string             `json:"active_end,omitempty"`
	AllowedCountryCodes  []string           `json:"allowed_country_codes,omitempty"`
	ResponseText         string             `json:"response_text,omitempty"`
	ResponseFiles        model.JSONBArray   `json:"response_files,omitempty"`
	ResponseCards        model.JSONBArray   `json:"response_cards,omitempty"`
	ResponsePolls        model.JSONBArray   `json:"response_polls,omitempty"`
	ForwardTo            string             `json:"forward_to,omitempty"`
	Nurture              model.NurtureSteps `json:"nurture,omitempty"`
}

// BotRuleResponse 触发规则摘要
type BotRuleResponse struct {
	RuleID        int64    `json:"rule_id"`
	Name          string   `json:"name"`
	Triggers      []string `json:"triggers,omitempty"`
	MatchMode     string   `json:"match_mode"`
	CaseSensitive bool     `json:"case_sensitive"`
	Active        bool     `json:"active"`
}

// NewBotRuleResponse 从模型构造规则摘要
func NewBotRuleResponse(r *model.BotRule) *BotRuleResponse {
	return &BotRuleResponse{
		RuleID:        r.PublicID,
		Name:          r.Name,
		Triggers:      r.Triggers,
		MatchMode:     string(r.MatchModeKind),
		CaseSensitive: r.CaseSensitive,
		Active:        r.Active,
	}
}
