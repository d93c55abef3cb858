package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/snowflake"
	"WaPulse/storage/mq"
)

// Producer 展开任务发布器，挂在 service 层的 publisher 接口上
type Producer struct{}

func NewProducer() *Producer {
	return &Producer{}
}

// PublishCampaignExpand 发布活动展开任务
func (p *Producer) PublishCampaignExpand(ctx context.Context, msg model.CampaignExpandMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("camp_expand_%d", snowflake.NextID())
	}
	if msg.ScheduledAt == "" {
		msg.ScheduledAt = time.Now().Format(time.RFC3339)
	}

	err := mq.PublishMessage(ctx, mq.ExpansionExchange, mq.QueueCampaignExpand, msg)
	if err != nil {
		logger.Logger.Error("Failed to publish campaign expand message",
			zap.String("message_id", msg.MessageID),
			zap.String("tenant", msg.Tenant),
			zap.String("name", msg.Name),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published campaign expand message",
		zap.String("message_id", msg.MessageID),
		zap.String("task_id", msg.TaskID),
		zap.String("tenant", msg.Tenant),
		zap.Int("items", len(msg.Items)),
	)
	return nil
}

// PublishRecurringFire 发布周期计划展开任务
func (p *Producer) PublishRecurringFire(ctx context.Context, msg model.RecurringFireMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("recur_fire_%d", snowflake.NextID())
	}
	if msg.ScheduledAt == "" {
		msg.ScheduledAt = time.Now().Format(time.RFC3339)
	}

	err := mq.PublishMessage(ctx, mq.ExpansionExchange, mq.QueueRecurringFire, msg)
	if err != nil {
		logger.Logger.Error("Failed to publish recurring fire message",
			zap.String("message_id", msg.MessageID),
			zap.Int64("schedule_id", msg.ScheduleID),
			zap.String("date", msg.Date),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published recurring fire message",
		zap.String("message_id", msg.MessageID),
		zap.Int64("schedule_id", msg.ScheduleID),
		zap.String("date", msg.Date),
	)
	return nil
}

// PublishEvent 把领域事件广播到事件总线，失败只记日志
func PublishEvent(eventType, eventKey string, payload map[string]interface{}) {
	msg := model.EventMessage{
		Payload:    payload,
		EventKey:   eventKey,
		EventType:  eventType,
		OccurredAt: time.Now().Format(time.RFC3339),
	}

	if err := mq.PublishMessage(context.Background(), mq.EventsExchange, eventType, msg); err != nil {
		logger.Logger.Warn("Failed to publish event",
			zap.String("event_type", eventType),
			zap.String("event_key", eventKey),
			zap.Error(err),
		)
	}
}
