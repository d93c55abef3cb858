package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockCall 一次被记录的发送调用
type MockCall struct {
	Tenant    string
	Recipient string
	Payload   Payload
}

// MockClient 可配置的通道客户端 mock，实现 Client 接口
type MockClient struct {
	mu       sync.Mutex
	sessions map[string]chan Event
	ready    map[string]bool
	contacts map[string]Contact // key: tenant + "/" + id

	Calls   []MockCall
	Starred []string

	// FailNext 置为 true 时，下一次 Send 返回 mock 错误并自动复位
	FailNext bool
	// ContactErr 非空时 Contact 查询返回该错误
	ContactErr error
	// SlowRecipient 非空时，发往该收件人的 Send 阻塞到 SlowRelease 关闭
	SlowRecipient string
	SlowRelease   chan struct{}
}

func NewMockClient() *MockClient {
	return &MockClient{
		sessions: make(map[string]chan Event),
		ready:    make(map[string]bool),
		contacts: make(map[string]Contact),
		Calls:    make([]MockCall, 0),
	}
}

func (m *MockClient) Connect(ctx context.Context, tenant string) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.sessions[tenant]; ok {
		return ch, nil
	}

	ch := make(chan Event, 64)
	m.sessions[tenant] = ch
	m.ready[tenant] = true
	return ch, nil
}

func (m *MockClient) Disconnect(tenant string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.sessions[tenant]; ok {
		close(ch)
		delete(m.sessions, tenant)
	}
	m.ready[tenant] = false
}

func (m *MockClient) Ready(tenant string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready[tenant]
}

func (m *MockClient) Send(ctx context.Context, tenant, recipient string, p Payload) (*Handle, error) {
	m.mu.Lock()
	slow := m.SlowRecipient != "" && recipient == m.SlowRecipient
	release := m.SlowRelease
	m.mu.Unlock()
	// 锁外阻塞，其余收件人的 Send 不受影响
	if slow && release != nil {
		<-release
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Tenant: tenant, Recipient: recipient, Payload: p})

	if m.FailNext {
		m.FailNext = false
		return nil, errors.New("mock send failure")
	}

	return &Handle{ID: uuid.NewString()}, nil
}

func (m *MockClient) Star(ctx context.Context, tenant string, h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Starred = append(m.Starred, h.ID)
	return nil
}

func (m *MockClient) Contact(ctx context.Context, tenant, id string) (*Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ContactErr != nil {
		return nil, m.ContactErr
	}

	if c, ok := m.contacts[tenant+"/"+id]; ok {
		return &c, nil
	}
	// 未知联系人视为未保存
	return &Contact{ID: id, Saved: false}, nil
}

// SetReady 切换租户会话就绪状态并广播对应事件
func (m *MockClient) SetReady(tenant string, ready bool) {
	m.mu.Lock()
	m.ready[tenant] = ready
	ch := m.sessions[tenant]
	m.mu.Unlock()

	if ch == nil {
		return
	}
	typ := EventReady
	if !ready {
		typ = EventDisconnected
	}
	ch <- Event{Type: typ, Tenant: tenant, At: time.Now()}
}

// AddContact 注册联系人
func (m *MockClient) AddContact(tenant string, c Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[tenant+"/"+c.ID] = c
}

// EmitInbound 注入一条入站消息事件
func (m *MockClient) EmitInbound(tenant string, in Inbound) {
	m.mu.Lock()
	ch := m.sessions[tenant]
	m.mu.Unlock()

	if ch == nil {
		return
	}
	ch <- Event{Type: EventMessage, Tenant: tenant, Inbound: &in, At: time.Now()}
}

// SentTo 返回发给指定收件人的调用数
func (m *MockClient) SentTo(recipient string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.Calls {
		if c.Recipient == recipient {
			n++
		}
	}
	return n
}
