package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	"WaPulse/pkg/chat"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/metrics"
)

type messageStore interface {
	Due(ctx context.Context, now time.Time, limit int) ([]*model.Message, error)
	UpdateStatusFrom(ctx context.Context, publicID int64, from, to model.MessageStatus, failReason *string) (bool, error)
}

type claimLedger interface {
	TryClaim(ctx context.Context, messageID int64) (bool, error)
	Release(ctx context.Context, messageID int64) error
}

// Dispatcher 固定节拍轮询到期消息并经通道发出
// sendAt 排序是尽力而为的：认领按序进行，传输各自独立
// 一条慢发送只占住自己的认领，不会拖住节拍
type Dispatcher struct {
	store    messageStore
	claims   claimLedger
	registry *chat.Registry
	interval time.Duration
	limit    int
	running  atomic.Bool
	inflight sync.WaitGroup
}

func New(store messageStore, claims claimLedger, registry *chat.Registry, interval time.Duration, limit int) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		store:    store,
		claims:   claims,
		registry: registry,
		interval: interval,
		limit:    limit,
	}
}

// Run 阻塞运行派发循环，直到 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	logger.Logger.Info("dispatcher started",
		zap.Duration("interval", d.interval),
		zap.Int("batch_limit", d.limit),
	)

	for {
		select {
		case <-ctx.Done():
			// 已认领的消息发完再退出
			d.inflight.Wait()
			logger.Logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick 执行一轮派发：认领同步完成，传输在各条消息自己的 goroutine 里收尾
// 上一轮认领阶段未结束时直接跳过
func (d *Dispatcher) Tick(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	defer d.running.Store(false)

	due, err := d.store.Due(ctx, time.Now(), d.limit)
	if err != nil {
		logger.Logger.Error("failed to query due messages", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	// Due 已按租户、sendAt 升序返回，这里按租户切段
	groups := make(map[string][]*model.Message)
	for _, m := range due {
		groups[m.Tenant] = append(groups[m.Tenant], m)
	}

	for tenant, batch := range groups {
		// 会话没就绪属于瞬时背压，消息保持 PENDING 下一轮再试
		if !d.registry.Ready(tenant) {
			metrics.RecordDispatchSkipped(tenant, int64(len(batch)))
			logger.Logger.Debug("tenant session not ready, skipping tick",
				zap.String("tenant", tenant),
				zap.Int("due", len(batch)),
			)
			continue
		}

		client := d.registry.Client()
		for _, m := range batch {
			if !d.claim(ctx, m.PublicID) {
				continue
			}
			d.inflight.Add(1)
			go func(m *model.Message) {
				defer d.inflight.Done()
				d.sendClaimed(ctx, client, m)
			}(m)
		}
	}
}

// claim 对消息做排他认领，已被别的进程认领或认领失败都返回 false
func (d *Dispatcher) claim(ctx context.Context, messageID int64) bool {
	if d.claims == nil {
		return true
	}
	claimed, err := d.claims.TryClaim(ctx, messageID)
	if err != nil {
		logger.Logger.Error("failed to claim message",
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
		return false
	}
	return claimed
}

func (d *Dispatcher) sendClaimed(ctx context.Context, client chat.Client, m *model.Message) {
	payload := chat.Payload{
		Text:         m.Body,
		Attachments:  m.Attachments,
		ContactCards: m.ContactCards,
		Polls:        m.Polls,
	}

	start := time.Now()
	handle, sendErr := client.Send(ctx, m.Tenant, m.Recipient, payload)
	elapsed := time.Since(start).Seconds()

	if sendErr != nil {
		reason := truncateReason(sendErr.Error())
		updated, err := d.store.UpdateStatusFrom(ctx, m.PublicID, model.MessageStatusPending, model.MessageStatusFailed, &reason)
		if err != nil {
			logger.Logger.Error("failed to record send failure",
				zap.Int64("message_id", m.PublicID),
				zap.Error(err),
			)
			return
		}
		if !updated {
			// 发送期间被暂停或删除，略过簿记
			d.releaseClaim(ctx, m.PublicID)
			return
		}
		// 终态已落库，认领不必等 TTL 过期
		d.releaseClaim(ctx, m.PublicID)
		metrics.RecordMessageFailed(m.Tenant, string(m.OwnerKind), "transport", elapsed)
		logger.Logger.Warn("message send failed",
			zap.Int64("message_id", m.PublicID),
			zap.String("tenant", m.Tenant),
			zap.String("recipient", m.Recipient),
			zap.Error(sendErr),
		)
		return
	}

	updated, err := d.store.UpdateStatusFrom(ctx, m.PublicID, model.MessageStatusPending, model.MessageStatusSent, nil)
	if err != nil {
		logger.Logger.Error("failed to record send success",
			zap.Int64("message_id", m.PublicID),
			zap.Error(err),
		)
		return
	}
	if !updated {
		d.releaseClaim(ctx, m.PublicID)
		return
	}
	// 终态已落库，认领不必等 TTL 过期
	d.releaseClaim(ctx, m.PublicID)

	// 加星失败不影响发送结果
	if starErr := client.Star(ctx, m.Tenant, handle); starErr != nil {
		logger.Logger.Debug("failed to star message",
			zap.Int64("message_id", m.PublicID),
			zap.Error(starErr),
		)
	}

	metrics.RecordMessageSent(m.Tenant, string(m.OwnerKind), elapsed)
}

func (d *Dispatcher) releaseClaim(ctx context.Context, messageID int64) {
	if d.claims == nil {
		return
	}
	if err := d.claims.Release(ctx, messageID); err != nil {
		logger.Logger.Warn("failed to release dispatch claim",
			zap.Int64("message_id", messageID),
			zap.Error(err),
		)
	}
}

func truncateReason(s string) string {
	if len(s) > 255 {
		return s[:255]
	}
	return s
}
