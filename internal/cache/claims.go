package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"WaPulse/storage/redis"
)

const (
	dispatchClaimPrefix = "dispatch:claim"
	claimTTL            = 10 * time.Minute
)

// DispatchClaims 派发声明账本，靠 SETNX 保证同一消息不会被两个派发方同时处理
// TTL 兜底，进程崩溃不会永久卡死一条消息
type DispatchClaims struct{}

func NewDispatchClaims() *DispatchClaims {
	return &DispatchClaims{}
}

// TryClaim 尝试声明一条消息的派发权，返回 false 表示已被别处声明
func (c *DispatchClaims) TryClaim(ctx context.Context, messageID int64) (bool, error) {
	key := redis.Key(dispatchClaimPrefix, strconv.FormatInt(messageID, 10))
	ok, err := redis.Client().SetNX(ctx, key, "1", claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message %d: %w", messageID, err)
	}
	return ok, nil
}

// Release 释放声明，消息被并发暂停或删除后调用，恢复后可重新派发
func (c *DispatchClaims) Release(ctx context.Context, messageID int64) error {
	key := redis.Key(dispatchClaimPrefix, strconv.FormatInt(messageID, 10))
	return redis.Client().Del(ctx, key).Err()
}
