package bot

import (
	"fmt"
	"sync"
	"time"
)

const dedupWindow = 5 * time.Minute

// dedupCache 进程内 (tenant, ruleID, recipient) 去重缓存
// 通道重投或两个监听方看到同一事件时，同一规则只触发一次
// 不落盘，进程重启即清空
type dedupCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func newDedupCache(ttl time.Duration) *dedupCache {
	if ttl <= 0 {
		ttl = dedupWindow
	}
	return &dedupCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen 查询并记录一次触发，返回 true 表示窗口内已触发过
func (c *dedupCache) Seen(tenant string, ruleID int64, recipient string) bool {
	key := fmt.Sprintf("%s/%d/%s", tenant, ruleID, recipient)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune(now)

	if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
		return true
	}
	c.seen[key] = now
	return false
}

func (c *dedupCache) prune(now time.Time) {
	for k, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, k)
		}
	}
}
