package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	"WaPulse/pkg/chat"
	"WaPulse/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	m.Run()
}

type fakeRuleStore struct {
	rules []*model.BotRule
}

func (f *fakeRuleStore) ListActive(_ context.Context, tenant string) ([]*model.BotRule, error) {
	var out []*model.BotRule
	for _, r := range f.rules {
		if r.Tenant == tenant && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeNurtureStore struct {
	msgs []*model.Message
}

func (f *fakeNurtureStore) Insert(_ context.Context, m *model.Message) error {
	f.msgs = append(f.msgs, m)
	return nil
}

type memCooldown struct {
	mu    sync.Mutex
	fired map[string]time.Time
}

func newMemCooldown() *memCooldown {
	return &memCooldown{fired: make(map[string]time.Time)}
}

func (m *memCooldown) key(tenant string, ruleID int64, recipient string) string {
	return fmt.Sprintf("%s/%d/%s", tenant, ruleID, recipient)
}

func (m *memCooldown) LastFired(_ context.Context, tenant string, ruleID int64, recipient string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.fired[m.key(tenant, ruleID, recipient)]
	return at, ok, nil
}

func (m *memCooldown) RecordFired(_ context.Context, tenant string, ruleID int64, recipient string, at time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired[m.key(tenant, ruleID, recipient)] = at
	return nil
}

func baseRule(id int64) *model.BotRule {
	return &model.BotRule{
		PublicID:      id,
		Tenant:        "acme",
		Name:          "welcome",
		MatchSaved:    true,
		MatchUnsaved:  true,
		Triggers:      []string{"hi"},
		MatchModeKind: model.MatchModeIncludes,
		ResponseText:  "welcome!",
		Active:        true,
	}
}

func inboundEvent(sender, body string) chat.Event {
	return chat.Event{
		Type:    chat.EventMessage,
		Tenant:  "acme",
		Inbound: &chat.Inbound{Sender: sender, Chat: sender, Body: body},
		At:      time.Now(),
	}
}

type testEngine struct {
	*Engine
	client   *chat.MockClient
	rules    *fakeRuleStore
	messages *fakeNurtureStore
	cooldown *memCooldown
	slept    []time.Duration
}

func newTestEngine(rules ...*model.BotRule) *testEngine {
	client := chat.NewMockClient()
	rs := &fakeRuleStore{rules: rules}
	ns := &fakeNurtureStore{}
	cd := newMemCooldown()

	te := &testEngine{
		Engine:   NewEngine(rs, ns, cd, client),
		client:   client,
		rules:    rs,
		messages: ns,
		cooldown: cd,
	}
	te.Engine.sleep = func(d time.Duration) { te.slept = append(te.slept, d) }
	return te
}

func TestEngineFiresMatchingRule(t *testing.T) {
	e := newTestEngine(baseRule(1))

	e.OnInbound(context.Background(), inboundEvent("+1555", "Hi there!"))

	if got := e.client.SentTo("+1555"); got != 1 {
		t.Fatalf("expected 1 response, got %d", got)
	}
	if e.client.Calls[0].Payload.Text != "welcome!" {
		t.Fatalf("unexpected response text %q", e.client.Calls[0].Payload.Text)
	}
}

func TestEngineIgnoresNonMatchingBody(t *testing.T) {
	e := newTestEngine(baseRule(1))

	e.OnInbound(context.Background(), inboundEvent("+1555", "anything else"))

	if len(e.client.Calls) != 0 {
		t.Fatal("rule must not fire without a trigger hit")
	}
}

func TestEngineDedupWithinWindow(t *testing.T) {
	e := newTestEngine(baseRule(1))

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))
	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))

	if got := e.client.SentTo("+1555"); got != 1 {
		t.Fatalf("redelivered event must fire once, got %d sends", got)
	}
}

func TestEngineCooldownSuppresses(t *testing.T) {
	rule := baseRule(1)
	rule.CooldownSeconds = 3600
	e := newTestEngine(rule)
	e.Engine.dedup = newDedupCache(time.Nanosecond) // 关掉去重，单测冷却

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))
	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))

	if got := e.client.SentTo("+1555"); got != 1 {
		t.Fatalf("cooldown must suppress refiring, got %d sends", got)
	}
}

func TestEngineCountryFilter(t *testing.T) {
	rule := baseRule(1)
	rule.AllowedCountryCodes = []string{"1"}
	e := newTestEngine(rule)

	e.client.AddContact("acme", chat.Contact{ID: "+44555", CountryCode: "44"})
	e.OnInbound(context.Background(), inboundEvent("+44555", "hi"))
	if len(e.client.Calls) != 0 {
		t.Fatal("sender outside allowed countries must be excluded")
	}

	e.client.AddContact("acme", chat.Contact{ID: "+1555", CountryCode: "1"})
	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))
	if got := e.client.SentTo("+1555"); got != 1 {
		t.Fatalf("allowed country must fire, got %d sends", got)
	}
}

func TestEngineExcludeAlwaysWins(t *testing.T) {
	rule := baseRule(1)
	rule.Include = []string{"+1555"}
	rule.Exclude = []string{"+1555"}
	e := newTestEngine(rule)

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))

	if len(e.client.Calls) != 0 {
		t.Fatal("exclude list must win over include list")
	}
}

func TestEngineSavedContactFilter(t *testing.T) {
	rule := baseRule(1)
	rule.MatchSaved = false // 只回应陌生人
	e := newTestEngine(rule)

	e.client.AddContact("acme", chat.Contact{ID: "+1111", Saved: true})
	e.OnInbound(context.Background(), inboundEvent("+1111", "hi"))
	if len(e.client.Calls) != 0 {
		t.Fatal("saved contact must be excluded when matchSaved is off")
	}

	e.OnInbound(context.Background(), inboundEvent("+2222", "hi")) // 未知联系人视为未保存
	if got := e.client.SentTo("+2222"); got != 1 {
		t.Fatalf("unsaved contact must fire, got %d sends", got)
	}
}

func TestEngineActiveWindow(t *testing.T) {
	rule := baseRule(1)
	rule.ActiveStart = "13:00:00"
	rule.ActiveEnd = "14:00:00"
	e := newTestEngine(rule)
	e.Engine.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)
	}

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))
	if len(e.client.Calls) != 0 {
		t.Fatal("rule must not fire outside its active window")
	}

	e.Engine.now = func() time.Time {
		return time.Date(2026, 8, 30, 13, 30, 0, 0, time.Local)
	}
	e.OnInbound(context.Background(), inboundEvent("+1556", "hi"))
	if got := e.client.SentTo("+1556"); got != 1 {
		t.Fatalf("rule must fire inside its active window, got %d sends", got)
	}
}

func TestEngineResponseDelayApplied(t *testing.T) {
	rule := baseRule(1)
	rule.ResponseDelaySeconds = 5
	e := newTestEngine(rule)

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))

	if len(e.slept) != 1 || e.slept[0] != 5*time.Second {
		t.Fatalf("expected a 5s response delay, got %v", e.slept)
	}
}

func TestEngineDispatchOrder(t *testing.T) {
	rule := baseRule(1)
	rule.ResponseFiles = model.JSONBArray{{"url": "a.pdf"}}
	rule.ResponseCards = model.JSONBArray{{"contact": "+1999"}}
	rule.ForwardTo = "+1777"
	e := newTestEngine(rule)

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))

	calls := e.client.Calls
	if len(calls) != 4 {
		t.Fatalf("expected 4 sends (text, files, cards, forward), got %d", len(calls))
	}
	if calls[0].Payload.Text != "welcome!" {
		t.Fatal("text must go first")
	}
	if len(calls[1].Payload.Attachments) != 1 {
		t.Fatal("attachments must go second")
	}
	if len(calls[2].Payload.ContactCards) != 1 {
		t.Fatal("contact cards must go third")
	}
	if calls[3].Recipient != "+1777" || calls[3].Payload.Text != "hi" {
		t.Fatalf("forward copy must go last, got %+v", calls[3])
	}
}

func TestEngineSchedulesNurtureSequence(t *testing.T) {
	rule := baseRule(1)
	rule.Nurture = model.NurtureSteps{
		{Body: "follow-up 1", After: 1, StartFrom: "09:00:00", EndAt: "18:00:00"},
		{Body: "follow-up 2", After: 3, StartFrom: "09:00:00", EndAt: "18:00:00"},
	}
	e := newTestEngine(rule)
	// 固定在窗口内，断言不受真实时钟影响
	fixed := time.Date(2026, 3, 2, 10, 30, 0, 0, time.Local)
	e.Engine.now = func() time.Time { return fixed }

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))

	if len(e.messages.msgs) != 2 {
		t.Fatalf("expected 2 nurture messages, got %d", len(e.messages.msgs))
	}
	for _, m := range e.messages.msgs {
		if m.OwnerKind != model.ScheduledByBot || m.OwnerID != 1 {
			t.Fatalf("wrong nurture ownership: %+v", m)
		}
		if m.Status != model.MessageStatusPending {
			t.Fatalf("nurture message must start pending, got %s", m.Status)
		}
	}

	// after 计的是锚点之后的槽：第 N 个槽落在 [N*2s, N*10s] 区间，
	// 绝不等于触发时刻本身
	bounds := []struct{ after int }{{1}, {3}}
	for i, m := range e.messages.msgs {
		lo := fixed.Add(time.Duration(bounds[i].after) * 2 * time.Second)
		hi := fixed.Add(time.Duration(bounds[i].after) * 10 * time.Second)
		if m.SendAt.Before(lo) {
			t.Fatalf("step %d scheduled too early: %v (floor %v)", i, m.SendAt, lo)
		}
		if m.SendAt.After(hi) {
			t.Fatalf("step %d scheduled too late: %v (ceiling %v)", i, m.SendAt, hi)
		}
	}
}

func TestEngineRuleErrorExcludesOnlyThatRule(t *testing.T) {
	flaky := baseRule(1)
	flaky.AllowedCountryCodes = []string{"1"} // 需要联系人查询
	solid := baseRule(2)
	solid.Include = []string{"+1555"} // 不需要联系人查询

	e := newTestEngine(flaky, solid)
	e.client.ContactErr = fmt.Errorf("transport lookup failed")

	e.OnInbound(context.Background(), inboundEvent("+1555", "hi"))

	if got := e.client.SentTo("+1555"); got != 1 {
		t.Fatalf("lookup failure must exclude only the failing rule, got %d sends", got)
	}
}
