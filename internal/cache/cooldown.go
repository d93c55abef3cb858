package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"WaPulse/storage/redis"
)

const cooldownPrefix = "cooldown"

// CooldownLedger 基于 redis 的规则冷却台账
// key: (tenant, ruleID, recipient)，value 是上次触发的 unix 秒，TTL 即冷却期
type CooldownLedger struct{}

func NewCooldownLedger() *CooldownLedger {
	return &CooldownLedger{}
}

func cooldownKey(tenant string, ruleID int64, recipient string) string {
	return redis.Key(cooldownPrefix, tenant, strconv.FormatInt(ruleID, 10), recipient)
}

// LastFired 返回该规则对该收件人上次触发的时间
func (l *CooldownLedger) LastFired(ctx context.Context, tenant string, ruleID int64, recipient string) (time.Time, bool, error) {
	val, err := redis.Client().Get(ctx, cooldownKey(tenant, ruleID, recipient)).Int64()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cooldown ledger: %w", err)
	}
	return time.Unix(val, 0), true, nil
}

// RecordFired 记录一次触发，TTL 到期后条目自动失效
func (l *CooldownLedger) RecordFired(ctx context.Context, tenant string, ruleID int64, recipient string, at time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := cooldownKey(tenant, ruleID, recipient)
	if err := redis.Client().Set(ctx, key, at.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to record cooldown: %w", err)
	}
	return nil
}
