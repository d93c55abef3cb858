package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"WaPulse/config"
	"WaPulse/internal/model"
	"WaPulse/internal/repository"
	"WaPulse/internal/timeslot"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/snowflake"
	"WaPulse/storage/database"
)

type campaignStore interface {
	CreateWithMessages(ctx context.Context, c *model.Campaign, msgs []*model.Message) error
	GetByPublicID(ctx context.Context, tenant string, publicID int64) (*model.Campaign, error)
	GetByName(ctx context.Context, tenant, name string) (*model.Campaign, error)
	ListByStatus(ctx context.Context, tenant string, status model.CampaignStatus) ([]*model.Campaign, error)
	UpdateStatus(ctx context.Context, tenant string, publicID int64, status model.CampaignStatus) error
	UpdateMessageCount(ctx context.Context, tenant string, publicID int64, count int) error
	DeleteWithMessages(ctx context.Context, tenant string, publicID int64) error
}

type campaignMessageStore interface {
	InsertBatch(ctx context.Context, msgs []*model.Message) error
	BulkUpdateStatus(ctx context.Context, kind model.ScheduledByKind, ownerID int64, from, to model.MessageStatus) (int64, error)
	ListByOwner(ctx context.Context, kind model.ScheduledByKind, ownerID int64, statuses ...model.MessageStatus) ([]*model.Message, error)
	UpdateSchedule(ctx context.Context, publicID int64, sendAt time.Time, status model.MessageStatus) error
	CountByStatus(ctx context.Context, kind model.ScheduledByKind, ownerID int64) (map[model.MessageStatus]int64, error)
}

type expansionTaskStore interface {
	Insert(ctx context.Context, t *model.ExpansionTask) error
	MarkRunning(ctx context.Context, taskID string) error
	MarkDone(ctx context.Context, taskID string, created int) error
	MarkFailed(ctx context.Context, taskID, reason string) error
}

type campaignExpandPublisher interface {
	PublishCampaignExpand(ctx context.Context, msg model.CampaignExpandMessage) error
}

type CampaignService struct {
	campaigns      campaignStore
	messages       campaignMessageStore
	tasks          expansionTaskStore
	publisher      campaignExpandPublisher
	asyncThreshold int
}

var (
	campaignService *CampaignService
	campaignOnce    sync.Once
)

func Campaign() *CampaignService {
	campaignOnce.Do(func() {
		db := database.DB()
		campaignService = &CampaignService{
			campaigns:      repository.NewCampaignRepository(db),
			messages:       repository.NewMessageRepository(db),
			tasks:          repository.NewTaskRepository(db),
			asyncThreshold: config.Cfg.AsyncExpansionThreshold,
		}
	})
	return campaignService
}

// SetPublisher 注入 MQ 发布器，未注入时所有创建都走同步展开
func (s *CampaignService) SetPublisher(p campaignExpandPublisher) {
	s.publisher = p
}

type CreateCampaignInput struct {
	Name  string
	Batch model.BatchConfig
	Items []model.CampaignItem
}

// CreateCampaignResult Async 为 true 时消息尚未落库，凭 TaskID 轮询进度
type CreateCampaignResult struct {
	Campaign *model.Campaign
	TaskID   string
	Async    bool
}

func (s *CampaignService) Create(ctx context.Context, tenant string, in CreateCampaignInput) (*CreateCampaignResult, error) {
	if len(in.Items) == 0 {
		return nil, pkgerrors.CampaignEmpty
	}

	existing, err := s.campaigns.GetByName(ctx, tenant, in.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign by name: %w", err)
	}
	if existing != nil {
		return nil, pkgerrors.CampaignAlreadyExists
	}

	// 先验证批次参数，异步路径也不能把坏配置塞进队列
	gen, err := newBatchGenerator(in.Batch)
	if err != nil {
		return nil, err
	}

	campaign := &model.Campaign{
		PublicID:     snowflake.NextID(),
		Tenant:       tenant,
		Name:         in.Name,
		Status:       model.CampaignStatusActive,
		MessageCount: len(in.Items),
	}
	campaign.ApplyBatch(in.Batch)

	if s.publisher != nil && len(in.Items) > s.asyncThreshold {
		return s.createAsync(ctx, tenant, campaign, in)
	}

	msgs := buildCampaignMessages(tenant, campaign.PublicID, in.Items, gen)
	if err := s.campaigns.CreateWithMessages(ctx, campaign, msgs); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	logger.Logger.Info("campaign created",
		zap.String("tenant", tenant),
		zap.String("name", in.Name),
		zap.Int64("campaign_id", campaign.PublicID),
		zap.Int("messages", len(msgs)),
	)
	return &CreateCampaignResult{Campaign: campaign}, nil
}

func (s *CampaignService) createAsync(ctx context.Context, tenant string, campaign *model.Campaign, in CreateCampaignInput) (*CreateCampaignResult, error) {
	if err := s.campaigns.CreateWithMessages(ctx, campaign, nil); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	task := &model.ExpansionTask{
		TaskID: uuid.NewString(),
		Tenant: tenant,
		Kind:   "campaign",
		Status: model.ExpansionTaskStatusPending,
		Total:  len(in.Items),
	}
	if err := s.tasks.Insert(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create expansion task: %w", err)
	}

	err := s.publisher.PublishCampaignExpand(ctx, model.CampaignExpandMessage{
		MessageID:   fmt.Sprintf("%d", snowflake.NextID()),
		TaskID:      task.TaskID,
		Tenant:      tenant,
		Name:        in.Name,
		Batch:       in.Batch,
		Items:       in.Items,
		ScheduledAt: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		_ = s.tasks.MarkFailed(ctx, task.TaskID, "enqueue failed")
		return nil, fmt.Errorf("failed to enqueue campaign expansion: %w", err)
	}

	logger.Logger.Info("campaign expansion enqueued",
		zap.String("tenant", tenant),
		zap.String("name", in.Name),
		zap.String("task_id", task.TaskID),
		zap.Int("items", len(in.Items)),
	)
	return &CreateCampaignResult{Campaign: campaign, TaskID: task.TaskID, Async: true}, nil
}

// Expand 由 worker 消费展开消息时调用，把活动条目落为待发消息
func (s *CampaignService) Expand(ctx context.Context, msg model.CampaignExpandMessage) error {
	if err := s.tasks.MarkRunning(ctx, msg.TaskID); err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}

	campaign, err := s.campaigns.GetByName(ctx, msg.Tenant, msg.Name)
	if err != nil {
		return fmt.Errorf("failed to query campaign: %w", err)
	}
	if campaign == nil {
		// 展开前活动已被删除，任务作废
		_ = s.tasks.MarkFailed(ctx, msg.TaskID, "campaign deleted before expansion")
		return &pkgerrors.SkipMessageError{Reason: "campaign deleted before expansion"}
	}

	gen, err := newBatchGenerator(msg.Batch)
	if err != nil {
		_ = s.tasks.MarkFailed(ctx, msg.TaskID, err.Error())
		return &pkgerrors.SkipMessageError{Reason: "invalid batch config"}
	}

	msgs := buildCampaignMessages(msg.Tenant, campaign.PublicID, msg.Items, gen)
	if err := s.messages.InsertBatch(ctx, msgs); err != nil {
		_ = s.tasks.MarkFailed(ctx, msg.TaskID, "insert failed")
		return fmt.Errorf("failed to insert campaign messages: %w", err)
	}

	if err := s.campaigns.UpdateMessageCount(ctx, msg.Tenant, campaign.PublicID, len(msgs)); err != nil {
		logger.Logger.Warn("failed to update campaign message count",
			zap.Int64("campaign_id", campaign.PublicID),
			zap.Error(err),
		)
	}
	if err := s.tasks.MarkDone(ctx, msg.TaskID, len(msgs)); err != nil {
		logger.Logger.Warn("failed to mark task done",
			zap.String("task_id", msg.TaskID),
			zap.Error(err),
		)
	}

	logger.Logger.Info("campaign expanded",
		zap.String("tenant", msg.Tenant),
		zap.Int64("campaign_id", campaign.PublicID),
		zap.Int("messages", len(msgs)),
	)
	return nil
}

// Pause 冻结活动剩余消息，已进终态的不受影响
func (s *CampaignService) Pause(ctx context.Context, tenant string, publicID int64) (int64, error) {
	campaign, err := s.campaigns.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return 0, fmt.Errorf("failed to query campaign: %w", err)
	}
	if campaign == nil {
		return 0, pkgerrors.CampaignNotFound
	}

	if err := s.campaigns.UpdateStatus(ctx, tenant, publicID, model.CampaignStatusPaused); err != nil {
		return 0, fmt.Errorf("failed to pause campaign: %w", err)
	}

	frozen, err := s.messages.BulkUpdateStatus(ctx, model.ScheduledByCampaign, publicID,
		model.MessageStatusPending, model.MessageStatusPaused)
	if err != nil {
		return 0, fmt.Errorf("failed to freeze campaign messages: %w", err)
	}

	logger.Logger.Info("campaign paused",
		zap.String("tenant", tenant),
		zap.Int64("campaign_id", publicID),
		zap.Int64("frozen", frozen),
	)
	return frozen, nil
}

// Resume 用活动原批次参数重建生成器，从当前时刻起为剩余消息重新排期
// 重排保持创建顺序，历史 sendAt 全部作废
func (s *CampaignService) Resume(ctx context.Context, tenant string, publicID int64) (int64, error) {
	campaign, err := s.campaigns.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return 0, fmt.Errorf("failed to query campaign: %w", err)
	}
	if campaign == nil {
		return 0, pkgerrors.CampaignNotFound
	}
	if campaign.Status != model.CampaignStatusPaused {
		return 0, pkgerrors.CampaignNotPaused
	}

	frozen, err := s.messages.ListByOwner(ctx, model.ScheduledByCampaign, publicID, model.MessageStatusPaused)
	if err != nil {
		return 0, fmt.Errorf("failed to list frozen messages: %w", err)
	}

	batch := campaign.Batch()
	batch.StartDate = "" // 锚回当前时刻，而不是原定开始日
	gen, err := newBatchGenerator(batch)
	if err != nil {
		return 0, err
	}

	for _, m := range frozen {
		if err := s.messages.UpdateSchedule(ctx, m.PublicID, gen.Next(), model.MessageStatusPending); err != nil {
			return 0, fmt.Errorf("failed to reschedule message %d: %w", m.PublicID, err)
		}
	}

	if err := s.campaigns.UpdateStatus(ctx, tenant, publicID, model.CampaignStatusActive); err != nil {
		return 0, fmt.Errorf("failed to activate campaign: %w", err)
	}

	logger.Logger.Info("campaign resumed",
		zap.String("tenant", tenant),
		zap.Int64("campaign_id", publicID),
		zap.Int("rescheduled", len(frozen)),
	)
	return int64(len(frozen)), nil
}

// CampaignReport 活动进度汇总
type CampaignReport struct {
	CampaignID int64                         `json:"campaign_id"`
	Name       string                        `json:"name"`
	Status     model.CampaignStatus          `json:"status"`
	Total      int64                         `json:"total"`
	Counts     map[model.MessageStatus]int64 `json:"counts"`
}

func (s *CampaignService) Report(ctx context.Context, tenant string, publicID int64) (*CampaignReport, error) {
	campaign, err := s.campaigns.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign: %w", err)
	}
	if campaign == nil {
		return nil, pkgerrors.CampaignNotFound
	}

	counts, err := s.messages.CountByStatus(ctx, model.ScheduledByCampaign, publicID)
	if err != nil {
		return nil, fmt.Errorf("failed to count campaign messages: %w", err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	// 全部消息进终态即视为活动完成，查报表时顺手落库
	status := campaign.Status
	if status == model.CampaignStatusActive && total > 0 &&
		counts[model.MessageStatusPending] == 0 && counts[model.MessageStatusPaused] == 0 {
		if err := s.campaigns.UpdateStatus(ctx, tenant, publicID, model.CampaignStatusCompleted); err != nil {
			logger.Logger.Warn("failed to complete campaign",
				zap.Int64("campaign_id", publicID),
				zap.Error(err),
			)
		} else {
			status = model.CampaignStatusCompleted
		}
	}

	return &CampaignReport{
		CampaignID: campaign.PublicID,
		Name:       campaign.Name,
		Status:     status,
		Total:      total,
		Counts:     counts,
	}, nil
}

// Delete 删除活动并清理全部消息，已排期未发送的随之取消
func (s *CampaignService) Delete(ctx context.Context, tenant string, publicID int64) error {
	campaign, err := s.campaigns.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return fmt.Errorf("failed to query campaign: %w", err)
	}
	if campaign == nil {
		return pkgerrors.CampaignNotFound
	}

	if err := s.campaigns.DeleteWithMessages(ctx, tenant, publicID); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	logger.Logger.Info("campaign deleted",
		zap.String("tenant", tenant),
		zap.Int64("campaign_id", publicID),
	)
	return nil
}

// PauseAll 暂停租户下全部进行中的活动，返回被暂停的活动 ID，掉线自保护用
func (s *CampaignService) PauseAll(ctx context.Context, tenant string) ([]int64, error) {
	active, err := s.campaigns.ListByStatus(ctx, tenant, model.CampaignStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	paused := make([]int64, 0, len(active))
	for _, c := range active {
		if _, err := s.Pause(ctx, tenant, c.PublicID); err != nil {
			logger.Logger.Error("failed to pause campaign",
				zap.String("tenant", tenant),
				zap.Int64("campaign_id", c.PublicID),
				zap.Error(err),
			)
			continue
		}
		paused = append(paused, c.PublicID)
	}
	return paused, nil
}

// ResumeMany 恢复指定活动集合，单个失败不阻断其余
func (s *CampaignService) ResumeMany(ctx context.Context, tenant string, ids []int64) {
	for _, id := range ids {
		if _, err := s.Resume(ctx, tenant, id); err != nil {
			logger.Logger.Error("failed to resume campaign",
				zap.String("tenant", tenant),
				zap.Int64("campaign_id", id),
				zap.Error(err),
			)
		}
	}
}

func buildCampaignMessages(tenant string, campaignID int64, items []model.CampaignItem, gen *timeslot.Generator) []*model.Message {
	msgs := make([]*model.Message, 0, len(items))
	for _, item := range items {
		msgs = append(msgs, &model.Message{
			PublicID:     snowflake.NextID(),
			Tenant:       tenant,
			Recipient:    item.Recipient,
			Body:         item.Body,
			Attachments:  item.Attachments,
			ContactCards: item.ContactCards,
			Polls:        item.Polls,
			Status:       model.MessageStatusPending,
			SendAt:       gen.Next(),
			OwnerKind:    model.ScheduledByCampaign,
			OwnerID:      campaignID,
		})
	}
	return msgs
}

// newBatchGenerator 把对外批次参数翻译为生成器配置
func newBatchGenerator(b model.BatchConfig) (*timeslot.Generator, error) {
	cfg := timeslot.Config{
		MinDelay:   time.Duration(b.MinDelaySeconds) * time.Second,
		MaxDelay:   time.Duration(b.MaxDelaySeconds) * time.Second,
		BatchSize:  b.BatchSize,
		BatchDelay: time.Duration(b.BatchDelaySeconds) * time.Second,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
	}
	if b.StartDate != "" {
		day, err := time.ParseInLocation("2006-01-02", b.StartDate, time.Local)
		if err != nil {
			return nil, pkgerrors.ScheduleWindowInvalid
		}
		cfg.StartDate = day
	}

	gen, err := timeslot.New(cfg)
	if err != nil {
		return nil, pkgerrors.ScheduleWindowInvalid
	}
	return gen, nil
}
