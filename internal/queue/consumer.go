package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/cache"
	"WaPulse/internal/model"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/storage/mq"
)

type CampaignExpander interface {
	Expand(ctx context.Context, msg model.CampaignExpandMessage) error
}

type RecurringExpander interface {
	Expand(ctx context.Context, msg model.RecurringFireMessage) error
}

var (
	campaignExpander  CampaignExpander
	recurringExpander RecurringExpander
)

// SetCampaignExpander 注入活动展开服务（worker 启动时调用）
func SetCampaignExpander(s CampaignExpander) {
	campaignExpander = s
}

// SetRecurringExpander 注入周期计划展开服务（worker 启动时调用）
func SetRecurringExpander(s RecurringExpander) {
	recurringExpander = s
}

// StartCampaignExpandConsumer 启动活动展开消费者
func StartCampaignExpandConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.CampaignExpandMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal campaign expand message: %w", err)
		}

		// 幂等性检查，重复投递直接跳过
		first, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !first {
			return &pkgerrors.SkipMessageError{
				Reason: fmt.Sprintf("message %s already processed", msg.MessageID),
			}
		}

		if campaignExpander == nil {
			logger.Logger.Error("campaign expander not initialized",
				zap.String("message_id", msg.MessageID),
			)
			_ = cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("campaign expander not initialized")
		}

		if err := campaignExpander.Expand(ctx, msg); err != nil {
			if pkgerrors.IsSkip(err) {
				return err
			}
			// 处理失败，取消标记允许重试
			_ = cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("failed to expand campaign: %w", err)
		}

		if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.QueueCampaignExpand,
		ConsumerTag:   "campaign_expand_consumer",
		PrefetchCount: 5,
		Handler:       handler,
	})
}

// StartRecurringFireConsumer 启动周期计划展开消费者
func StartRecurringFireConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.RecurringFireMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal recurring fire message: %w", err)
		}

		first, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !first {
			return &pkgerrors.SkipMessageError{
				Reason: fmt.Sprintf("message %s already processed", msg.MessageID),
			}
		}

		if recurringExpander == nil {
			logger.Logger.Error("recurring expander not initialized",
				zap.String("message_id", msg.MessageID),
			)
			_ = cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("recurring expander not initialized")
		}

		if err := recurringExpander.Expand(ctx, msg); err != nil {
			if pkgerrors.IsSkip(err) {
				return err
			}
			_ = cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("failed to expand recurring schedule: %w", err)
		}

		if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.QueueRecurringFire,
		ConsumerTag:   "recurring_fire_consumer",
		PrefetchCount: 5,
		Handler:       handler,
	})
}

// StartAllConsumers 启动全部消费者（worker 启动时调用）
func StartAllConsumers(ctx context.Context) {
	var wg sync.WaitGroup

	consumers := []struct {
		name     string
		consumer func(context.Context) error
	}{
		{"campaign_expand", StartCampaignExpandConsumer},
		{"recurring_fire", StartRecurringFireConsumer},
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(name string, consumer func(context.Context) error) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer",
				zap.String("consumer_name", name),
			)
			if err := consumer(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", name),
					zap.Error(err),
				)
			}
		}(c.name, c.consumer)
	}

	wg.Wait()
}
