package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	m.Run()
}

type fakeScheduleStore struct {
	schedules []*model.RecurringSchedule
	msgs      []*model.Message
	insertErr error
}

func (f *fakeScheduleStore) ListActive(_ context.Context) ([]*model.RecurringSchedule, error) {
	var out []*model.RecurringSchedule
	for _, s := range f.schedules {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) Get(_ context.Context, publicID int64) (*model.RecurringSchedule, error) {
	for _, s := range f.schedules {
		if s.PublicID == publicID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeScheduleStore) InsertExpansion(_ context.Context, scheduleID int64, cursor int, msgs []*model.Message) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.msgs = append(f.msgs, msgs...)
	for _, s := range f.schedules {
		if s.PublicID == scheduleID {
			s.SchedulingIndex = cursor
		}
	}
	return nil
}

type fakeFiredMarker struct {
	fired map[string]bool
}

func newFakeFiredMarker() *fakeFiredMarker {
	return &fakeFiredMarker{fired: make(map[string]bool)}
}

func (f *fakeFiredMarker) key(date string, id int64) string {
	return fmt.Sprintf("%s/%d", date, id)
}

func (f *fakeFiredMarker) TryMarkScheduleFired(_ context.Context, date string, id int64) (bool, error) {
	k := f.key(date, id)
	if f.fired[k] {
		return false, nil
	}
	f.fired[k] = true
	return true, nil
}

func (f *fakeFiredMarker) UnmarkScheduleFired(_ context.Context, date string, id int64) error {
	delete(f.fired, f.key(date, id))
	return nil
}

func testSchedule(id int64, recipients []string, dailyCount int, dates ...string) *model.RecurringSchedule {
	return &model.RecurringSchedule{
		PublicID:   id,
		Tenant:     "acme",
		Name:       "daily-touch",
		Recipients: recipients,
		Body:       "hello {name}",
		Dates:      dates,
		DailyCount: dailyCount,
		StartTime:  "09:00:00",
		EndTime:    "18:00:00",
		Active:     true,
	}
}

func newTestScheduler(store *fakeScheduleStore) *RecurringScheduler {
	return &RecurringScheduler{
		logger:    zap.NewNop(),
		schedules: store,
		marks:     newFakeFiredMarker(),
	}
}

func TestFireDueExpandsMatchingSchedules(t *testing.T) {
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{
		testSchedule(1, []string{"+1", "+2", "+3"}, 2, "2026-09-01"),
		testSchedule(2, []string{"+4"}, 1, "2026-09-02"), // 其他日期
	}}
	s := newTestScheduler(store)

	if err := s.FireDue(context.Background(), "2026-09-01"); err != nil {
		t.Fatalf("FireDue: %v", err)
	}
	if len(store.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(store.msgs))
	}
	for _, m := range store.msgs {
		if m.OwnerKind != model.ScheduledByRecurring || m.OwnerID != 1 {
			t.Fatalf("wrong ownership: %+v", m)
		}
	}
}

func TestFireDueIsIdempotentPerDay(t *testing.T) {
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{
		testSchedule(1, []string{"+1", "+2", "+3"}, 2, "2026-09-01"),
	}}
	s := newTestScheduler(store)

	if err := s.FireDue(context.Background(), "2026-09-01"); err != nil {
		t.Fatalf("first FireDue: %v", err)
	}
	if err := s.FireDue(context.Background(), "2026-09-01"); err != nil {
		t.Fatalf("second FireDue: %v", err)
	}
	if len(store.msgs) != 2 {
		t.Fatalf("same-day refire must not expand again, got %d messages", len(store.msgs))
	}
}

func TestFailedExpansionCanRetrySameDay(t *testing.T) {
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{
		testSchedule(1, []string{"+1", "+2", "+3"}, 2, "2026-09-01"),
	}}
	s := newTestScheduler(store)

	// 落库失败：消息和游标都不得留下半截
	store.insertErr = fmt.Errorf("connection reset")
	if err := s.FireDue(context.Background(), "2026-09-01"); err == nil {
		t.Fatal("expected fire pass to report the failure")
	}
	if len(store.msgs) != 0 {
		t.Fatalf("failed expansion must persist nothing, got %d messages", len(store.msgs))
	}
	if store.schedules[0].SchedulingIndex != 0 {
		t.Fatal("cursor must not advance on a failed expansion")
	}

	// 库恢复后当天重跑补上配额，且只补一份
	store.insertErr = nil
	if err := s.FireDue(context.Background(), "2026-09-01"); err != nil {
		t.Fatalf("retry FireDue: %v", err)
	}
	if len(store.msgs) != 2 {
		t.Fatalf("expected 2 messages after retry, got %d", len(store.msgs))
	}
	if store.schedules[0].SchedulingIndex != 2 {
		t.Fatalf("cursor = %d, want 2", store.schedules[0].SchedulingIndex)
	}
}

func TestCursorAdvancesByDailyCount(t *testing.T) {
	recipients := []string{"+1", "+2", "+3", "+4", "+5"}
	sched := testSchedule(1, recipients, 2, "2026-09-01")
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{sched}}
	s := newTestScheduler(store)

	// 连续三次触发，游标每次恰好前进 dailyCount（mod 名册长度）
	for n := 1; n <= 3; n++ {
		err := s.Expand(context.Background(), model.RecurringFireMessage{
			ScheduleID: 1, Date: "2026-09-01", Force: true,
		})
		if err != nil {
			t.Fatalf("Expand %d: %v", n, err)
		}
		if want := (n * 2) % 5; sched.SchedulingIndex != want {
			t.Fatalf("after firing %d: cursor = %d, want %d", n, sched.SchedulingIndex, want)
		}
	}

	// 6 条消息覆盖 +1..+5 后回到 +1，轮转顺序稳定
	wantOrder := []string{"+1", "+2", "+3", "+4", "+5", "+1"}
	if len(store.msgs) != len(wantOrder) {
		t.Fatalf("expected %d messages, got %d", len(wantOrder), len(store.msgs))
	}
	for i, m := range store.msgs {
		if m.Recipient != wantOrder[i] {
			t.Fatalf("message %d: recipient = %s, want %s", i, m.Recipient, wantOrder[i])
		}
	}
}

func TestCursorClampsAfterRosterShrink(t *testing.T) {
	sched := testSchedule(1, []string{"+1", "+2"}, 1, "2026-09-01")
	sched.SchedulingIndex = 7 // 名册从 10 人缩到 2 人后留下的越界游标
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{sched}}
	s := newTestScheduler(store)

	err := s.Expand(context.Background(), model.RecurringFireMessage{
		ScheduleID: 1, Date: "2026-09-01", Force: true,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if store.msgs[0].Recipient != "+2" {
		t.Fatalf("expected clamped cursor to pick +2, got %s", store.msgs[0].Recipient)
	}
	if sched.SchedulingIndex != 0 {
		t.Fatalf("cursor not renormalized, got %d", sched.SchedulingIndex)
	}
}

func TestExpandSubstitutesVariables(t *testing.T) {
	sched := testSchedule(1, []string{"+1", "+2"}, 2, "2026-09-01")
	sched.Variables = model.JSONB{
		"+1": map[string]interface{}{"name": "Ana"},
	}
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{sched}}
	s := newTestScheduler(store)

	err := s.Expand(context.Background(), model.RecurringFireMessage{
		ScheduleID: 1, Date: "2026-09-01", Force: true,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if store.msgs[0].Body != "hello Ana" {
		t.Fatalf("variables not substituted: %q", store.msgs[0].Body)
	}
	// 没有变量的收件人保留原模板
	if store.msgs[1].Body != "hello {name}" {
		t.Fatalf("unexpected body for bare recipient: %q", store.msgs[1].Body)
	}
}

func TestExpandSkipsWholeFiringOnBrokenVariables(t *testing.T) {
	sched := testSchedule(1, []string{"+1", "+2"}, 2, "2026-09-01")
	sched.Variables = model.JSONB{
		"+2": "not a map",
	}
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{sched}}
	s := newTestScheduler(store)

	err := s.Expand(context.Background(), model.RecurringFireMessage{
		ScheduleID: 1, Date: "2026-09-01", Force: true,
	})
	if !pkgerrors.IsSkip(err) {
		t.Fatalf("expected skip error, got %v", err)
	}
	if len(store.msgs) != 0 {
		t.Fatalf("broken variables must not partially expand, got %d messages", len(store.msgs))
	}
	if sched.SchedulingIndex != 0 {
		t.Fatal("cursor must not advance on a skipped firing")
	}
}

func TestExpandRejectsEmptyRoster(t *testing.T) {
	sched := testSchedule(1, nil, 2, "2026-09-01")
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{sched}}
	s := newTestScheduler(store)

	err := s.Expand(context.Background(), model.RecurringFireMessage{
		ScheduleID: 1, Date: "2026-09-01", Force: true,
	})
	if !pkgerrors.IsSkip(err) {
		t.Fatalf("expected skip error, got %v", err)
	}
}

func TestExpandKeepsMessagesInsideWindow(t *testing.T) {
	sched := testSchedule(1, []string{"+1", "+2", "+3"}, 3, "2026-09-01")
	store := &fakeScheduleStore{schedules: []*model.RecurringSchedule{sched}}
	s := newTestScheduler(store)

	err := s.Expand(context.Background(), model.RecurringFireMessage{
		ScheduleID: 1, Date: "2026-09-01", Force: true,
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.Local)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(18 * time.Hour)
	for _, m := range store.msgs {
		if m.SendAt.Before(windowStart) || m.SendAt.After(windowEnd) {
			t.Fatalf("sendAt %v outside 09:00-18:00 window", m.SendAt)
		}
	}
}
