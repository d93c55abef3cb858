package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	"WaPulse/internal/repository"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/snowflake"
	"WaPulse/storage/database"
)

type botRuleStore interface {
	Insert(ctx context.Context, rule *model.BotRule) error
	GetByPublicID(ctx context.Context, tenant string, publicID int64) (*model.BotRule, error)
	List(ctx context.Context, tenant string) ([]*model.BotRule, error)
	SetActive(ctx context.Context, tenant string, publicID int64, active bool) error
	Delete(ctx context.Context, tenant string, publicID int64) error
}

type BotRuleService struct {
	rules botRuleStore
}

var (
	botRuleService *BotRuleService
	botRuleOnce    sync.Once
)

func BotRule() *BotRuleService {
	botRuleOnce.Do(func() {
		botRuleService = &BotRuleService{
			rules: repository.NewBotRuleRepository(database.DB()),
		}
	})
	return botRuleService
}

type CreateBotRuleInput struct {
	Name                 string
	Include              []string
	Exclude              []string
	MatchSaved           bool
	MatchUnsaved         bool
	Triggers             []string
	MatchMode            model.MatchMode
	CaseSensitive        bool
	CooldownSeconds      int
	ResponseDelaySeconds int
	ActiveStart          string
	ActiveEnd            string
	AllowedCountryCodes  []string
	ResponseText         string
	ResponseFiles        model.JSONBArray
	ResponseCards        model.JSONBArray
	ResponsePolls        model.JSONBArray
	ForwardTo            string
	Nurture              model.NurtureSteps
}

func (s *BotRuleService) Create(ctx context.Context, tenant string, in CreateBotRuleInput) (*model.BotRule, error) {
	if in.Name == "" {
		return nil, pkgerrors.InvalidRequest
	}
	switch in.MatchMode {
	case model.MatchModeExact, model.MatchModeIncludes, model.MatchModeAnywhere:
	case "":
		in.MatchMode = model.MatchModeIncludes
	default:
		return nil, pkgerrors.InvalidRequest
	}
	// 活动时段要么都给要么都不给
	if (in.ActiveStart == "") != (in.ActiveEnd == "") {
		return nil, pkgerrors.InvalidRequest
	}
	if in.ActiveStart != "" {
		if err := validateWindow(in.ActiveStart, in.ActiveEnd); err != nil {
			return nil, pkgerrors.InvalidRequest
		}
	}
	for _, step := range in.Nurture {
		if err := validateWindow(step.StartFrom, step.EndAt); err != nil {
			return nil, pkgerrors.InvalidRequest
		}
	}

	rule := &model.BotRule{
		PublicID:             snowflake.NextID(),
		Tenant:               tenant,
		Name:                 in.Name,
		Include:              in.Include,
		Exclude:              in.Exclude,
		MatchSaved:           in.MatchSaved,
		MatchUnsaved:         in.MatchUnsaved,
		Triggers:             in.Triggers,
		MatchModeKind:        in.MatchMode,
		CaseSensitive:        in.CaseSensitive,
		CooldownSeconds:      in.CooldownSeconds,
		ResponseDelaySeconds: in.ResponseDelaySeconds,
		ActiveStart:          in.ActiveStart,
		ActiveEnd:            in.ActiveEnd,
		AllowedCountryCodes:  in.AllowedCountryCodes,
		ResponseText:         in.ResponseText,
		ResponseFiles:        in.ResponseFiles,
		ResponseCards:        in.ResponseCards,
		ResponsePolls:        in.ResponsePolls,
		ForwardTo:            in.ForwardTo,
		Nurture:              in.Nurture,
		Active:               true,
	}

	if err := s.rules.Insert(ctx, rule); err != nil {
		return nil, err
	}

	logger.Logger.Info("bot rule created",
		zap.String("tenant", tenant),
		zap.Int64("rule_id", rule.PublicID),
		zap.String("match_mode", string(rule.MatchModeKind)),
		zap.Int("triggers", len(rule.Triggers)))

	return rule, nil
}

func (s *BotRuleService) Get(ctx context.Context, tenant string, publicID int64) (*model.BotRule, error) {
	rule, err := s.rules.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, pkgerrors.BotRuleNotFound
	}
	return rule, nil
}

func (s *BotRuleService) List(ctx context.Context, tenant string) ([]*model.BotRule, error) {
	return s.rules.List(ctx, tenant)
}

func (s *BotRuleService) SetActive(ctx context.Context, tenant string, publicID int64, active bool) error {
	rule, err := s.rules.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return err
	}
	if rule == nil {
		return pkgerrors.BotRuleNotFound
	}
	return s.rules.SetActive(ctx, tenant, publicID, active)
}

func (s *BotRuleService) Delete(ctx context.Context, tenant string, publicID int64) error {
	rule, err := s.rules.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return err
	}
	if rule == nil {
		return pkgerrors.BotRuleNotFound
	}
	return s.rules.Delete(ctx, tenant, publicID)
}
