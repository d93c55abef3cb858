package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	"WaPulse/internal/timeslot"
	"WaPulse/pkg/chat"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/metrics"
	"WaPulse/pkg/snowflake"
)

type ruleStore interface {
	ListActive(ctx context.Context, tenant string) ([]*model.BotRule, error)
}

type nurtureStore interface {
	Insert(ctx context.Context, m *model.Message) error
}

type cooldownLedger interface {
	LastFired(ctx context.Context, tenant string, ruleID int64, recipient string) (time.Time, bool, error)
	RecordFired(ctx context.Context, tenant string, ruleID int64, recipient string, at time.Time, ttl time.Duration) error
}

// Engine 入站消息触发引擎，由通道的消息事件同步驱动，不做轮询
type Engine struct {
	rules     ruleStore
	messages  nurtureStore
	cooldowns cooldownLedger
	client    chat.Client
	dedup     *dedupCache

	now   func() time.Time
	sleep func(time.Duration)
}

func NewEngine(rules ruleStore, messages nurtureStore, cooldowns cooldownLedger, client chat.Client) *Engine {
	return &Engine{
		rules:     rules,
		messages:  messages,
		cooldowns: cooldowns,
		client:    client,
		dedup:     newDedupCache(dedupWindow),
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// OnInbound 处理一条入站消息：依次评估租户的启用规则，命中即派发
// 单条规则的评估异常只剔除该规则，不中断其余规则
func (e *Engine) OnInbound(ctx context.Context, ev chat.Event) {
	if ev.Type != chat.EventMessage || ev.Inbound == nil {
		return
	}
	in := ev.Inbound

	rules, err := e.rules.ListActive(ctx, ev.Tenant)
	if err != nil {
		logger.Logger.Error("failed to load bot rules",
			zap.String("tenant", ev.Tenant),
			zap.Error(err),
		)
		return
	}

	for _, rule := range rules {
		matched, reason := e.matches(ctx, ev.Tenant, rule, in)
		if !matched {
			if reason != "" {
				metrics.RecordTriggerSuppressed(ev.Tenant, reason)
			}
			continue
		}

		if e.dedup.Seen(ev.Tenant, rule.PublicID, in.Sender) {
			metrics.RecordTriggerSuppressed(ev.Tenant, "dedup")
			continue
		}

		e.dispatch(ctx, ev.Tenant, rule, in)
	}
}

// matches 按固定顺序短路评估，第一条不满足的条款剔除规则
// 返回的 reason 仅在规则被主动抑制（冷却等）时非空
func (e *Engine) matches(ctx context.Context, tenant string, rule *model.BotRule, in *chat.Inbound) (bool, string) {
	var contact *chat.Contact
	lookupContact := func() *chat.Contact {
		if contact != nil {
			return contact
		}
		c, err := e.client.Contact(ctx, tenant, in.Sender)
		if err != nil {
			logger.Logger.Warn("contact lookup failed, excluding rule",
				zap.String("tenant", tenant),
				zap.Int64("rule_id", rule.PublicID),
				zap.Error(err),
			)
			return nil
		}
		contact = c
		return contact
	}

	// 1. 国家码过滤
	if len(rule.AllowedCountryCodes) > 0 {
		c := lookupContact()
		if c == nil || !rule.AllowedCountryCodes.Contains(c.CountryCode) {
			return false, ""
		}
	}

	// 2. 活跃时段过滤，只比较一天内的时刻
	if !e.withinActiveWindow(rule) {
		return false, ""
	}

	// 3. 冷却过滤
	if rule.CooldownSeconds > 0 {
		last, found, err := e.cooldowns.LastFired(ctx, tenant, rule.PublicID, in.Sender)
		if err != nil {
			logger.Logger.Warn("cooldown lookup failed, excluding rule",
				zap.Int64("rule_id", rule.PublicID),
				zap.Error(err),
			)
			return false, ""
		}
		if found && e.now().Sub(last) < time.Duration(rule.CooldownSeconds)*time.Second {
			return false, "cooldown"
		}
	}

	// 4. 收件人过滤，exclude 永远优先
	if rule.Exclude.Contains(in.Sender) {
		return false, ""
	}
	if len(rule.Include) > 0 {
		if !rule.Include.Contains(in.Sender) {
			return false, ""
		}
	} else {
		c := lookupContact()
		if c == nil {
			return false, ""
		}
		if c.Saved && !rule.MatchSaved {
			return false, ""
		}
		if !c.Saved && !rule.MatchUnsaved {
			return false, ""
		}
	}

	// 5. 触发词过滤
	if !matchAny(in.Body, rule.Triggers, rule.MatchModeKind, rule.CaseSensitive) {
		return false, ""
	}

	return true, ""
}

func (e *Engine) withinActiveWindow(rule *model.BotRule) bool {
	if rule.ActiveStart == "" || rule.ActiveEnd == "" {
		return true
	}
	start, err := time.Parse("15:04:05", rule.ActiveStart)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04:05", rule.ActiveEnd)
	if err != nil {
		return false
	}

	now := e.now()
	cur := now.Hour()*3600 + now.Minute()*60 + now.Second()
	startSec := start.Hour()*3600 + start.Minute()*60 + start.Second()
	endSec := end.Hour()*3600 + end.Minute()*60 + end.Second()
	return cur >= startSec && cur <= endSec
}

// dispatch 按固定顺序发出响应：文本、附件、名片、投票、转发副本，最后排期培育序列
// 冷却条目在派发启动时记录，而不是全部发完之后
func (e *Engine) dispatch(ctx context.Context, tenant string, rule *model.BotRule, in *chat.Inbound) {
	if rule.ResponseDelaySeconds > 0 {
		e.sleep(time.Duration(rule.ResponseDelaySeconds) * time.Second)
	}

	if rule.CooldownSeconds > 0 {
		err := e.cooldowns.RecordFired(ctx, tenant, rule.PublicID, in.Sender, e.now(),
			time.Duration(rule.CooldownSeconds)*time.Second)
		if err != nil {
			logger.Logger.Warn("failed to record cooldown",
				zap.Int64("rule_id", rule.PublicID),
				zap.Error(err),
			)
		}
	}

	parts := []chat.Payload{
		{Text: rule.ResponseText},
		{Attachments: rule.ResponseFiles},
		{ContactCards: rule.ResponseCards},
		{Polls: rule.ResponsePolls},
	}
	for _, p := range parts {
		if p.Empty() {
			continue
		}
		if _, err := e.client.Send(ctx, tenant, in.Sender, p); err != nil {
			logger.Logger.Warn("rule response send failed",
				zap.Int64("rule_id", rule.PublicID),
				zap.String("recipient", in.Sender),
				zap.Error(err),
			)
		}
	}

	// 转发一份入站正文给指定号码
	if rule.ForwardTo != "" && in.Body != "" {
		if _, err := e.client.Send(ctx, tenant, rule.ForwardTo, chat.Payload{Text: in.Body}); err != nil {
			logger.Logger.Warn("rule forward send failed",
				zap.Int64("rule_id", rule.PublicID),
				zap.Error(err),
			)
		}
	}

	e.scheduleNurture(ctx, tenant, rule, in.Sender)
	metrics.RecordTriggerFired(tenant)
}

// scheduleNurture 把培育序列落为未来消息，第 N 步在其窗口生成器的第 after 个槽发出
func (e *Engine) scheduleNurture(ctx context.Context, tenant string, rule *model.BotRule, recipient string) {
	for i, step := range rule.Nurture {
		sendAt, err := nurtureSlot(step, e.now)
		if err != nil {
			logger.Logger.Warn("invalid nurture step window",
				zap.Int64("rule_id", rule.PublicID),
				zap.Int("step", i),
				zap.Error(err),
			)
			continue
		}

		msg := &model.Message{
			PublicID:    snowflake.NextID(),
			Tenant:      tenant,
			Recipient:   recipient,
			Body:        step.Body,
			Attachments: step.Attachments,
			Status:      model.MessageStatusPending,
			SendAt:      sendAt,
			OwnerKind:   model.ScheduledByBot,
			OwnerID:     rule.PublicID,
		}
		if err := e.messages.Insert(ctx, msg); err != nil {
			logger.Logger.Error("failed to schedule nurture message",
				zap.Int64("rule_id", rule.PublicID),
				zap.Int("step", i),
				zap.Error(err),
			)
		}
	}
}

// nurtureSlot 每一步用自己的窗口建独立生成器，取锚点之后第 after 个槽（最少一个）
// 生成器首个 Next 返回锚点本身，不算在 after 里
func nurtureSlot(step model.NurtureStep, now func() time.Time) (time.Time, error) {
	gen, err := timeslot.NewWithNow(timeslot.Config{
		MinDelay:  2 * time.Second,
		MaxDelay:  10 * time.Second,
		StartTime: step.StartFrom,
		EndTime:   step.EndAt,
	}, now)
	if err != nil {
		return time.Time{}, err
	}

	slots := step.After
	if slots < 1 {
		slots = 1
	}
	gen.Next()
	var at time.Time
	for i := 0; i < slots; i++ {
		at = gen.Next()
	}
	return at, nil
}
