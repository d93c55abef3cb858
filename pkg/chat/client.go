package chat

import (
	"context"
	"fmt"
	"time"
)

// EventType 会话事件类型
type EventType string

const (
	EventReady        EventType = "ready"
	EventDisconnected EventType = "disconnected"
	EventMessage      EventType = "message"
)

// Inbound 入站消息
type Inbound struct {
	Sender   string
	Chat     string
	Body     string
	PushName string
}

// Event 会话事件，派发器、触发引擎和日志消费者共用同一条事件流
type Event struct {
	Type    EventType
	Tenant  string
	Inbound *Inbound
	At      time.Time
}

// Contact 联系人信息，触发过滤需要已存状态和国家码
type Contact struct {
	ID          string
	Saved       bool
	CountryCode string
}

// Payload 出站消息载荷
type Payload struct {
	Text         string
	Attachments  []map[string]interface{}
	ContactCards []map[string]interface{}
	Polls        []map[string]interface{}
}

// Empty 判断载荷是否没有任何可发送内容
func (p Payload) Empty() bool {
	return p.Text == "" && len(p.Attachments) == 0 && len(p.ContactCards) == 0 && len(p.Polls) == 0
}

// Handle 发送成功后的消息句柄，用于加星等后置操作
type Handle struct {
	ID string
}

// Client 聊天通道客户端接口，一个实现服务多个租户会话
type Client interface {
	// Connect 建立租户会话并返回其事件流
	Connect(ctx context.Context, tenant string) (<-chan Event, error)
	// Disconnect 关闭租户会话
	Disconnect(tenant string)
	// Ready 报告租户会话当前是否可发送
	Ready(tenant string) bool
	// Send 发送一条消息
	Send(ctx context.Context, tenant, recipient string, p Payload) (*Handle, error)
	// Star 对已发送消息加星，尽力而为
	Star(ctx context.Context, tenant string, h *Handle) error
	// Contact 查询联系人
	Contact(ctx context.Context, tenant, id string) (*Contact, error)
}

// New 根据配置的 provider 构建客户端
func New(provider string) (Client, error) {
	switch provider {
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", provider)
	}
}
