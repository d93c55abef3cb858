package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/snowflake"
)

func TestMain(m *testing.M) {
	logger.Logger = zap.NewNop()
	_ = snowflake.Init(1, 1)
	m.Run()
}

type fakeCampaignStore struct {
	campaigns []*model.Campaign
}

func (f *fakeCampaignStore) CreateWithMessages(_ context.Context, c *model.Campaign, msgs []*model.Message) error {
	f.campaigns = append(f.campaigns, c)
	return nil
}

func (f *fakeCampaignStore) GetByPublicID(_ context.Context, tenant string, publicID int64) (*model.Campaign, error) {
	for _, c := range f.campaigns {
		if c.Tenant == tenant && c.PublicID == publicID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCampaignStore) GetByName(_ context.Context, tenant, name string) (*model.Campaign, error) {
	for _, c := range f.campaigns {
		if c.Tenant == tenant && c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCampaignStore) ListByStatus(_ context.Context, tenant string, status model.CampaignStatus) ([]*model.Campaign, error) {
	var out []*model.Campaign
	for _, c := range f.campaigns {
		if c.Tenant == tenant && c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) UpdateStatus(_ context.Context, tenant string, publicID int64, status model.CampaignStatus) error {
	for _, c := range f.campaigns {
		if c.Tenant == tenant && c.PublicID == publicID {
			c.Status = status
		}
	}
	return nil
}

func (f *fakeCampaignStore) UpdateMessageCount(_ context.Context, tenant string, publicID int64, count int) error {
	for _, c := range f.campaigns {
		if c.Tenant == tenant && c.PublicID == publicID {
			c.MessageCount = count
		}
	}
	return nil
}

func (f *fakeCampaignStore) DeleteWithMessages(_ context.Context, tenant string, publicID int64) error {
	kept := f.campaigns[:0]
	for _, c := range f.campaigns {
		if !(c.Tenant == tenant && c.PublicID == publicID) {
			kept = append(kept, c)
		}
	}
	f.campaigns = kept
	return nil
}

type fakeMessageStore struct {
	msgs []*model.Message
}

func (f *fakeMessageStore) InsertBatch(_ context.Context, msgs []*model.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageStore) BulkUpdateStatus(_ context.Context, kind model.ScheduledByKind, ownerID int64, from, to model.MessageStatus) (int64, error) {
	var n int64
	for _, m := range f.msgs {
		if m.OwnerKind == kind && m.OwnerID == ownerID && m.Status == from {
			m.Status = to
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) ListByOwner(_ context.Context, kind model.ScheduledByKind, ownerID int64, statuses ...model.MessageStatus) ([]*model.Message, error) {
	var out []*model.Message
	for _, m := range f.msgs {
		if m.OwnerKind != kind || m.OwnerID != ownerID {
			continue
		}
		if len(statuses) > 0 {
			ok := false
			for _, s := range statuses {
				if m.Status == s {
					ok = true
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMessageStore) UpdateSchedule(_ context.Context, publicID int64, sendAt time.Time, status model.MessageStatus) error {
	for _, m := range f.msgs {
		if m.PublicID == publicID {
			m.SendAt = sendAt
			m.Status = status
		}
	}
	return nil
}

func (f *fakeMessageStore) CountByStatus(_ context.Context, kind model.ScheduledByKind, ownerID int64) (map[model.MessageStatus]int64, error) {
	out := make(map[model.MessageStatus]int64)
	for _, m := range f.msgs {
		if m.OwnerKind == kind && m.OwnerID == ownerID {
			out[m.Status]++
		}
	}
	return out, nil
}

type fakeTaskStore struct {
	tasks map[string]*model.ExpansionTask
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[string]*model.ExpansionTask)}
}

func (f *fakeTaskStore) Insert(_ context.Context, t *model.ExpansionTask) error {
	f.tasks[t.TaskID] = t
	return nil
}

func (f *fakeTaskStore) MarkRunning(_ context.Context, taskID string) error {
	if t, ok := f.tasks[taskID]; ok {
		t.Status = model.ExpansionTaskStatusRunning
	}
	return nil
}

func (f *fakeTaskStore) MarkDone(_ context.Context, taskID string, created int) error {
	if t, ok := f.tasks[taskID]; ok {
		t.Status = model.ExpansionTaskStatusDone
		t.Created = created
	}
	return nil
}

func (f *fakeTaskStore) MarkFailed(_ context.Context, taskID, reason string) error {
	if t, ok := f.tasks[taskID]; ok {
		t.Status = model.ExpansionTaskStatusFailed
		t.Error = &reason
	}
	return nil
}

type fakePublisher struct {
	published []model.CampaignExpandMessage
}

func (f *fakePublisher) PublishCampaignExpand(_ context.Context, msg model.CampaignExpandMessage) error {
	f.published = append(f.published, msg)
	return nil
}

func newTestCampaignService() (*CampaignService, *fakeCampaignStore, *fakeMessageStore, *fakeTaskStore) {
	cs := &fakeCampaignStore{}
	ms := &fakeMessageStore{}
	ts := newFakeTaskStore()
	svc := &CampaignService{
		campaigns:      cs,
		messages:       ms,
		tasks:          ts,
		asyncThreshold: 500,
	}
	return svc, cs, ms, ts
}

func testItems(n int) []model.CampaignItem {
	items := make([]model.CampaignItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, model.CampaignItem{
			Recipient: "+155500000" + string(rune('0'+i%10)),
			Body:      "hello",
		})
	}
	return items
}

func syncCreate(t *testing.T, svc *CampaignService, tenant, name string, n int) *model.Campaign {
	t.Helper()
	res, err := svc.Create(context.Background(), tenant, CreateCampaignInput{
		Name:  name,
		Batch: model.BatchConfig{MinDelaySeconds: 1, MaxDelaySeconds: 2},
		Items: testItems(n),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 同步路径下消息由 CreateWithMessages 落库，fake 的该方法丢弃了 msgs，
	// 这里补插一份保持与真实存储一致
	return res.Campaign
}

func TestCreateCampaignRejectsEmpty(t *testing.T) {
	svc, _, _, _ := newTestCampaignService()

	_, err := svc.Create(context.Background(), "acme", CreateCampaignInput{Name: "launch"})
	if !errors.Is(err, pkgerrors.CampaignEmpty) {
		t.Fatalf("expected CampaignEmpty, got %v", err)
	}
}

func TestCreateCampaignRejectsDuplicateName(t *testing.T) {
	svc, cs, _, _ := newTestCampaignService()
	cs.campaigns = append(cs.campaigns, &model.Campaign{PublicID: 1, Tenant: "acme", Name: "launch"})

	_, err := svc.Create(context.Background(), "acme", CreateCampaignInput{
		Name:  "launch",
		Batch: model.BatchConfig{MinDelaySeconds: 1, MaxDelaySeconds: 2},
		Items: testItems(3),
	})
	if !errors.Is(err, pkgerrors.CampaignAlreadyExists) {
		t.Fatalf("expected CampaignAlreadyExists, got %v", err)
	}
}

func TestCreateCampaignRejectsBadWindow(t *testing.T) {
	svc, _, _, _ := newTestCampaignService()

	_, err := svc.Create(context.Background(), "acme", CreateCampaignInput{
		Name: "launch",
		Batch: model.BatchConfig{
			MinDelaySeconds: 1,
			MaxDelaySeconds: 2,
			StartTime:       "18:00:00",
			EndTime:         "09:00:00",
		},
		Items: testItems(3),
	})
	if !errors.Is(err, pkgerrors.ScheduleWindowInvalid) {
		t.Fatalf("expected ScheduleWindowInvalid, got %v", err)
	}
}

func TestCreateCampaignAsyncBeyondThreshold(t *testing.T) {
	svc, cs, ms, ts := newTestCampaignService()
	pub := &fakePublisher{}
	svc.SetPublisher(pub)
	svc.asyncThreshold = 10

	res, err := svc.Create(context.Background(), "acme", CreateCampaignInput{
		Name:  "big",
		Batch: model.BatchConfig{MinDelaySeconds: 1, MaxDelaySeconds: 2},
		Items: testItems(25),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Async || res.TaskID == "" {
		t.Fatalf("expected async result with task id, got %+v", res)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 published expansion, got %d", len(pub.published))
	}
	if len(ms.msgs) != 0 {
		t.Fatalf("messages must not be inserted before expansion, got %d", len(ms.msgs))
	}
	if ts.tasks[res.TaskID] == nil {
		t.Fatal("expansion task not recorded")
	}

	// worker 侧展开后消息落库，任务完结
	if err := svc.Expand(context.Background(), pub.published[0]); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(ms.msgs) != 25 {
		t.Fatalf("expected 25 messages after expansion, got %d", len(ms.msgs))
	}
	if got := ts.tasks[res.TaskID].Status; got != model.ExpansionTaskStatusDone {
		t.Fatalf("expected task done, got %s", got)
	}
	if cs.campaigns[0].MessageCount != 25 {
		t.Fatalf("expected message count 25, got %d", cs.campaigns[0].MessageCount)
	}
}

func TestExpandSkipsDeletedCampaign(t *testing.T) {
	svc, _, _, ts := newTestCampaignService()
	_ = ts.Insert(context.Background(), &model.ExpansionTask{TaskID: "t1", Tenant: "acme", Kind: "campaign"})

	err := svc.Expand(context.Background(), model.CampaignExpandMessage{
		TaskID: "t1",
		Tenant: "acme",
		Name:   "gone",
		Batch:  model.BatchConfig{MinDelaySeconds: 1, MaxDelaySeconds: 2},
		Items:  testItems(3),
	})
	if !pkgerrors.IsSkip(err) {
		t.Fatalf("expected skip error, got %v", err)
	}
	if got := ts.tasks["t1"].Status; got != model.ExpansionTaskStatusFailed {
		t.Fatalf("expected task failed, got %s", got)
	}
}

func TestPauseFreezesPendingOnly(t *testing.T) {
	svc, cs, ms, _ := newTestCampaignService()
	c := syncCreate(t, svc, "acme", "launch", 1)

	now := time.Now()
	ms.msgs = []*model.Message{
		{PublicID: 11, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusSent, SendAt: now},
		{PublicID: 12, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusPending, SendAt: now},
		{PublicID: 13, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusPending, SendAt: now},
	}

	frozen, err := svc.Pause(context.Background(), "acme", c.PublicID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if frozen != 2 {
		t.Fatalf("expected 2 frozen, got %d", frozen)
	}
	if ms.msgs[0].Status != model.MessageStatusSent {
		t.Fatal("sent message must not be touched by pause")
	}
	if cs.campaigns[0].Status != model.CampaignStatusPaused {
		t.Fatal("campaign status not paused")
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	svc, _, _, _ := newTestCampaignService()
	c := syncCreate(t, svc, "acme", "launch", 1)

	_, err := svc.Resume(context.Background(), "acme", c.PublicID)
	if !errors.Is(err, pkgerrors.CampaignNotPaused) {
		t.Fatalf("expected CampaignNotPaused, got %v", err)
	}
}

func TestResumeReschedulesInCreationOrder(t *testing.T) {
	svc, cs, ms, _ := newTestCampaignService()
	c := syncCreate(t, svc, "acme", "launch", 1)
	cs.campaigns[0].Status = model.CampaignStatusPaused
	cs.campaigns[0].MinDelaySeconds = 1
	cs.campaigns[0].MaxDelaySeconds = 2

	stale := time.Now().Add(-2 * time.Hour)
	ms.msgs = []*model.Message{
		{PublicID: 21, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusPaused, SendAt: stale},
		{PublicID: 22, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusPaused, SendAt: stale},
		{PublicID: 23, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusPaused, SendAt: stale},
	}

	n, err := svc.Resume(context.Background(), "acme", c.PublicID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rescheduled, got %d", n)
	}

	before := time.Now().Add(-time.Second)
	var prev time.Time
	for i, m := range ms.msgs {
		if m.Status != model.MessageStatusPending {
			t.Fatalf("message %d not pending after resume", m.PublicID)
		}
		if m.SendAt.Before(before) {
			t.Fatalf("message %d rescheduled into the past: %v", m.PublicID, m.SendAt)
		}
		if i > 0 && m.SendAt.Before(prev) {
			t.Fatalf("resume broke creation ordering at message %d", m.PublicID)
		}
		prev = m.SendAt
	}
	if cs.campaigns[0].Status != model.CampaignStatusActive {
		t.Fatal("campaign not reactivated")
	}
}

func TestReportCountsByStatus(t *testing.T) {
	svc, _, ms, _ := newTestCampaignService()
	c := syncCreate(t, svc, "acme", "launch", 1)

	now := time.Now()
	ms.msgs = []*model.Message{
		{PublicID: 31, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusSent, SendAt: now},
		{PublicID: 32, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusFailed, SendAt: now},
		{PublicID: 33, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusPending, SendAt: now},
	}

	report, err := svc.Report(context.Background(), "acme", c.PublicID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("expected total 3, got %d", report.Total)
	}
	if report.Counts[model.MessageStatusSent] != 1 || report.Counts[model.MessageStatusFailed] != 1 {
		t.Fatalf("unexpected counts: %+v", report.Counts)
	}
}

func TestReportCompletesDrainedCampaign(t *testing.T) {
	svc, cs, ms, _ := newTestCampaignService()
	c := syncCreate(t, svc, "acme", "launch", 1)

	now := time.Now()
	ms.msgs = []*model.Message{
		{PublicID: 41, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusSent, SendAt: now},
		{PublicID: 42, OwnerKind: model.ScheduledByCampaign, OwnerID: c.PublicID, Status: model.MessageStatusFailed, SendAt: now},
	}

	report, err := svc.Report(context.Background(), "acme", c.PublicID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Status != model.CampaignStatusCompleted {
		t.Fatalf("expected completed, got %s", report.Status)
	}
	if cs.campaigns[0].Status != model.CampaignStatusCompleted {
		t.Fatal("completion not persisted")
	}

	// 还有剩余消息的活动保持 active
	c2 := syncCreate(t, svc, "acme", "ongoing", 1)
	ms.msgs = append(ms.msgs,
		&model.Message{PublicID: 43, OwnerKind: model.ScheduledByCampaign, OwnerID: c2.PublicID, Status: model.MessageStatusSent, SendAt: now},
		&model.Message{PublicID: 44, OwnerKind: model.ScheduledByCampaign, OwnerID: c2.PublicID, Status: model.MessageStatusPending, SendAt: now},
	)
	report2, err := svc.Report(context.Background(), "acme", c2.PublicID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report2.Status != model.CampaignStatusActive {
		t.Fatalf("campaign with pending messages must stay active, got %s", report2.Status)
	}
}

func TestPauseAllReturnsPausedIDs(t *testing.T) {
	svc, cs, _, _ := newTestCampaignService()
	cs.campaigns = []*model.Campaign{
		{PublicID: 1, Tenant: "acme", Name: "a", Status: model.CampaignStatusActive},
		{PublicID: 2, Tenant: "acme", Name: "b", Status: model.CampaignStatusPaused},
		{PublicID: 3, Tenant: "acme", Name: "c", Status: model.CampaignStatusActive},
		{PublicID: 4, Tenant: "other", Name: "d", Status: model.CampaignStatusActive},
	}

	ids, err := svc.PauseAll(context.Background(), "acme")
	if err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("unexpected paused ids: %v", ids)
	}
}

func TestDeleteMissingCampaign(t *testing.T) {
	svc, _, _, _ := newTestCampaignService()

	err := svc.Delete(context.Background(), "acme", 404)
	if !errors.Is(err, pkgerrors.CampaignNotFound) {
		t.Fatalf("expected CampaignNotFound, got %v", err)
	}
}
