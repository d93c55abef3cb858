package dispatch

import (
	"context"
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

type fakeStore struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (f *fakeStore) Due(_ context.Context, now time.Time, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Message
	for _, m := range f.msgs {
		if m.Status == model.MessageStatusPending && !m.SendAt.After(now) {
			out = append(out, m)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatusFrom(_ context.Context, publicID int64, from, to model.MessageStatus, failReason *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.msgs {
		if m.PublicID == publicID && m.Status == from {
			m.Status = to
			m.FailReason = failReason
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) get(publicID int64) *model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.PublicID == publicID {
			return m
		}
	}
	return nil
}

type fakeClaims struct {
	mu       sync.Mutex
	claimed  map[int64]bool
	released []int64
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{claimed: make(map[int64]bool)}
}

func (f *fakeClaims) TryClaim(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[id] {
		return false, nil
	}
	f.claimed[id] = true
	return true, nil
}

func (f *fakeClaims) Release(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, id)
	f.released = append(f.released, id)
	return nil
}

func pendingMsg(id int64, tenant, recipient string, sendAt time.Time) *model.Message {
	return &model.Message{
		PublicID:  id,
		Tenant:    tenant,
		Recipient: recipient,
		Body:      "hello",
		Status:    model.MessageStatusPending,
		SendAt:    sendAt,
		OwnerKind: model.ScheduledByCampaign,
		OwnerID:   1,
	}
}

func newTestDispatcher(t *testing.T, store *fakeStore, tenants ...string) (*Dispatcher, *chat.MockClient) {
	t.Helper()
	client := chat.NewMockClient()
	registry := chat.NewRegistry(client)
	for _, tenant := range tenants {
		if err := registry.Connect(context.Background(), tenant); err != nil {
			t.Fatalf("Connect(%s): %v", tenant, err)
		}
	}
	return New(store, newFakeClaims(), registry, time.Second, 100), client
}

func TestTickSendsDueMessages(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := &fakeStore{msgs: []*model.Message{
		pendingMsg(1, "acme", "+15550001", past),
		pendingMsg(2, "acme", "+15550002", past),
		pendingMsg(3, "acme", "+15550003", time.Now().Add(time.Hour)), // 未到期
	}}
	d, client := newTestDispatcher(t, store, "acme")

	d.Tick(context.Background())
	d.inflight.Wait()

	if got := len(client.Calls); got != 2 {
		t.Fatalf("expected 2 sends, got %d", got)
	}
	if store.get(1).Status != model.MessageStatusSent || store.get(2).Status != model.MessageStatusSent {
		t.Fatal("due messages not marked sent")
	}
	if store.get(3).Status != model.MessageStatusPending {
		t.Fatal("future message must stay pending")
	}
	if len(client.Starred) != 2 {
		t.Fatalf("expected 2 starred handles, got %d", len(client.Starred))
	}
}

func TestTickSkipsTenantWithoutSession(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := &fakeStore{msgs: []*model.Message{
		pendingMsg(1, "offline", "+15550001", past),
	}}
	d, client := newTestDispatcher(t, store) // 不连接任何租户

	d.Tick(context.Background())

	if len(client.Calls) != 0 {
		t.Fatal("must not send while session is down")
	}
	if store.get(1).Status != model.MessageStatusPending {
		t.Fatal("skipped message must stay pending for the next tick")
	}
}

func TestSendFailureIsTerminal(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := &fakeStore{msgs: []*model.Message{
		pendingMsg(1, "acme", "+15550001", past),
	}}
	d, client := newTestDispatcher(t, store, "acme")
	client.FailNext = true

	d.Tick(context.Background())
	d.inflight.Wait()

	m := store.get(1)
	if m.Status != model.MessageStatusFailed {
		t.Fatalf("expected failed, got %s", m.Status)
	}
	if m.FailReason == nil || *m.FailReason == "" {
		t.Fatal("failure reason not recorded")
	}

	// 终态不重试
	d.Tick(context.Background())
	d.inflight.Wait()
	if got := len(client.Calls); got != 1 {
		t.Fatalf("failed message must not be retried, got %d sends", got)
	}
}

func TestConcurrentPauseSkipsBookkeeping(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	msg := pendingMsg(1, "acme", "+15550001", past)
	store := &fakeStore{msgs: []*model.Message{msg}}

	client := chat.NewMockClient()
	registry := chat.NewRegistry(client)
	if err := registry.Connect(context.Background(), "acme"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	claims := newFakeClaims()
	d := New(store, claims, registry, time.Second, 100)

	// 在认领和发送之间模拟并发 pause
	due, _ := store.Due(context.Background(), time.Now(), 100)
	msg.Status = model.MessageStatusPaused
	for _, m := range due {
		if d.claim(context.Background(), m.PublicID) {
			d.sendClaimed(context.Background(), client, m)
		}
	}

	if msg.Status != model.MessageStatusPaused {
		t.Fatalf("pause result overwritten, got %s", msg.Status)
	}
	if len(claims.released) != 1 {
		t.Fatal("claim must be released when the terminal write loses")
	}
}

func TestClaimedMessageIsNotResent(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := &fakeStore{msgs: []*model.Message{
		pendingMsg(1, "acme", "+15550001", past),
	}}
	client := chat.NewMockClient()
	registry := chat.NewRegistry(client)
	if err := registry.Connect(context.Background(), "acme"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	claims := newFakeClaims()
	claims.claimed[1] = true // 别的进程已声明

	d := New(store, claims, registry, time.Second, 100)
	d.Tick(context.Background())

	if len(client.Calls) != 0 {
		t.Fatal("claimed message must not be sent again")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSlowSendDoesNotStallOtherMessages(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := &fakeStore{msgs: []*model.Message{
		pendingMsg(1, "acme", "+15550001", past),
		pendingMsg(2, "globex", "+15550002", past),
	}}
	d, client := newTestDispatcher(t, store, "acme", "globex")
	client.SlowRecipient = "+15550001"
	client.SlowRelease = make(chan struct{})

	d.Tick(context.Background())

	// 一条发送挂死，其他租户的消息照常走完
	waitFor(t, func() bool {
		return store.get(2).Status == model.MessageStatusSent
	})
	if store.get(1).Status != model.MessageStatusPending {
		t.Fatal("in-flight message must stay pending until its send returns")
	}

	// 后续节拍不被占住，新到期的消息继续派发
	store.mu.Lock()
	store.msgs = append(store.msgs, pendingMsg(3, "globex", "+15550003", past))
	store.mu.Unlock()
	d.Tick(context.Background())
	waitFor(t, func() bool {
		return store.get(3).Status == model.MessageStatusSent
	})

	close(client.SlowRelease)
	d.inflight.Wait()
	if store.get(1).Status != model.MessageStatusSent {
		t.Fatal("slow message must complete once the transport recovers")
	}
}

func TestClaimReleasedAfterTerminalWrite(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	store := &fakeStore{msgs: []*model.Message{
		pendingMsg(1, "acme", "+15550001", past),
	}}
	client := chat.NewMockClient()
	registry := chat.NewRegistry(client)
	if err := registry.Connect(context.Background(), "acme"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	claims := newFakeClaims()
	d := New(store, claims, registry, time.Second, 100)

	d.Tick(context.Background())
	d.inflight.Wait()

	if store.get(1).Status != model.MessageStatusSent {
		t.Fatalf("expected sent, got %s", store.get(1).Status)
	}
	claims.mu.Lock()
	if claims.claimed[1] {
		t.Fatal("claim must be released after the sent write")
	}
	claims.mu.Unlock()

	// 失败终态同样立即归还
	store.mu.Lock()
	store.msgs = append(store.msgs, pendingMsg(2, "acme", "+15550002", past))
	store.mu.Unlock()
	client.FailNext = true

	d.Tick(context.Background())
	d.inflight.Wait()

	if store.get(2).Status != model.MessageStatusFailed {
		t.Fatalf("expected failed, got %s", store.get(2).Status)
	}
	claims.mu.Lock()
	if claims.claimed[2] {
		t.Fatal("claim must be released after the failed write")
	}
	claims.mu.Unlock()
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	d, _ := newTestDispatcher(t, store, "acme")
	d.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}
}
