package chat

import (
	"context"
	"sort"
	"sync"
)

// Registry 显式的租户会话注册表，由进程根持有并传入各组件
// 所有租户的事件汇入同一条流，消费者按 Tenant 字段分流
type Registry struct {
	mu      sync.RWMutex
	client  Client
	tenants map[string]struct{}
	events  chan Event
}

func NewRegistry(client Client) *Registry {
	return &Registry{
		client:  client,
		tenants: make(map[string]struct{}),
		events:  make(chan Event, 256),
	}
}

// Client 返回底层通道客户端
func (r *Registry) Client() Client {
	return r.client
}

// Connect 建立租户会话并把它的事件并入公共事件流
func (r *Registry) Connect(ctx context.Context, tenant string) error {
	events, err := r.client.Connect(ctx, tenant)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.tenants[tenant] = struct{}{}
	r.mu.Unlock()

	go func() {
		for ev := range events {
			select {
			case r.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Events 返回汇总后的事件流
func (r *Registry) Events() <-chan Event {
	return r.events
}

// Ready 报告租户会话是否可发送
func (r *Registry) Ready(tenant string) bool {
	r.mu.RLock()
	_, known := r.tenants[tenant]
	r.mu.RUnlock()
	if !known {
		return false
	}
	return r.client.Ready(tenant)
}

// Tenants 返回已注册的租户列表
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.tenants))
	for t := range r.tenants {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
