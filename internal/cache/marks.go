package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"WaPulse/storage/redis"
)

const (
	messageProcessedPrefix = "message:processed"
	scheduleFiredPrefix    = "recurring:fired"

	processedTTL = 48 * time.Hour
	firedTTL     = 48 * time.Hour
)

// TryMarkMessageProcessing 尝试原子性地标记 MQ 消息正在处理（SETNX）
// 返回 true 表示首次处理，false 表示重复消息或正在处理
func TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	key := redis.Key(messageProcessedPrefix, messageID)
	if ttl <= 0 {
		ttl = processedTTL
	}

	result, err := redis.Client().SetNX(ctx, key, "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return result, nil
}

// UnmarkMessageProcessing 取消处理标记，处理失败时调用以允许重试
func UnmarkMessageProcessing(ctx context.Context, messageID string) error {
	key := redis.Key(messageProcessedPrefix, messageID)
	return redis.Client().Del(ctx, key).Err()
}

// MarkMessageProcessed 标记 MQ 消息处理完成并延长 TTL
func MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	key := redis.Key(messageProcessedPrefix, messageID)
	if ttl <= 0 {
		ttl = processedTTL
	}
	return redis.Client().Set(ctx, key, "completed", ttl).Err()
}

// TryMarkScheduleFired 尝试标记周期计划在指定日期已触发
// 同一天重复触发是 bug，靠这里的 SETNX 挡住
func TryMarkScheduleFired(ctx context.Context, date string, scheduleID int64) (bool, error) {
	key := redis.Key(scheduleFiredPrefix, date, strconv.FormatInt(scheduleID, 10))
	result, err := redis.Client().SetNX(ctx, key, "1", firedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark schedule fired: %w", err)
	}
	return result, nil
}

// UnmarkScheduleFired 清除触发标记，展开失败后调用以允许当天重试
func UnmarkScheduleFired(ctx context.Context, date string, scheduleID int64) error {
	key := redis.Key(scheduleFiredPrefix, date, strconv.FormatInt(scheduleID, 10))
	return redis.Client().Del(ctx, key).Err()
}
