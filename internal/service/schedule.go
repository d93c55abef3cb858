package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/model"
	"WaPulse/internal/repository"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/snowflake"
	"WaPulse/storage/database"
)

type recurringStore interface {
	Insert(ctx context.Context, s *model.RecurringSchedule) error
	GetByPublicID(ctx context.Context, tenant string, publicID int64) (*model.RecurringSchedule, error)
	List(ctx context.Context, tenant string) ([]*model.RecurringSchedule, error)
	SetActive(ctx context.Context, tenant string, publicID int64, active bool) error
	Delete(ctx context.Context, tenant string, publicID int64) error
}

type recurringMessageStore interface {
	DeleteByOwner(ctx context.Context, kind model.ScheduledByKind, ownerID int64) error
}

type firePublisher interface {
	PublishRecurringFire(ctx context.Context, msg model.RecurringFireMessage) error
}

type ScheduleService struct {
	schedules recurringStore
	messages  recurringMessageStore
	publisher firePublisher
}

var (
	scheduleService *ScheduleService
	scheduleOnce    sync.Once
)

func Schedule() *ScheduleService {
	scheduleOnce.Do(func() {
		db := database.DB()
		scheduleService = &ScheduleService{
			schedules: repository.NewRecurringRepository(db),
			messages:  repository.NewMessageRepository(db),
		}
	})
	return scheduleService
}

type CreateScheduleInput struct {
	Name        string
	Recipients  []string
	Body        string
	Attachments model.JSONBArray
	Dates       []string
	DailyCount  int
	StartTime   string
	EndTime     string
	Variables   model.JSONB
}

func (s *ScheduleService) Create(ctx context.Context, tenant string, in CreateScheduleInput) (*model.RecurringSchedule, error) {
	if len(in.Recipients) == 0 {
		return nil, pkgerrors.ScheduleNoRecipients
	}
	if in.DailyCount < 1 || in.Body == "" || len(in.Dates) == 0 {
		return nil, pkgerrors.InvalidRequest
	}
	if err := validateWindow(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}
	for _, d := range in.Dates {
		if _, err := time.ParseInLocation("2006-01-02", d, time.Local); err != nil {
			return nil, pkgerrors.InvalidRequest
		}
	}

	schedule := &model.RecurringSchedule{
		PublicID:    snowflake.NextID(),
		Tenant:      tenant,
		Name:        in.Name,
		Recipients:  in.Recipients,
		Body:        in.Body,
		Attachments: in.Attachments,
		Dates:       in.Dates,
		DailyCount:  in.DailyCount,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Variables:   in.Variables,
		Active:      true,
	}

	if err := s.schedules.Insert(ctx, schedule); err != nil {
		return nil, err
	}

	logger.Logger.Info("recurring schedule created",
		zap.String("tenant", tenant),
		zap.Int64("schedule_id", schedule.PublicID),
		zap.Int("recipients", len(in.Recipients)),
		zap.Int("daily_count", in.DailyCount))

	return schedule, nil
}

func (s *ScheduleService) Get(ctx context.Context, tenant string, publicID int64) (*model.RecurringSchedule, error) {
	schedule, err := s.schedules.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, pkgerrors.ScheduleNotFound
	}
	return schedule, nil
}

func (s *ScheduleService) List(ctx context.Context, tenant string) ([]*model.RecurringSchedule, error) {
	return s.schedules.List(ctx, tenant)
}

// SetPublisher 注入 MQ 发布器，立即触发经 worker 展开
func (s *ScheduleService) SetPublisher(p firePublisher) {
	s.publisher = p
}

// FireNow 无视日期表立即触发一次展开，游标照常前进
func (s *ScheduleService) FireNow(ctx context.Context, tenant string, publicID int64) error {
	schedule, err := s.schedules.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return pkgerrors.ScheduleNotFound
	}
	if !schedule.Active {
		return pkgerrors.ScheduleInactive
	}
	if s.publisher == nil {
		return fmt.Errorf("schedule fire publisher is not configured")
	}

	msg := model.RecurringFireMessage{
		MessageID:   fmt.Sprintf("%d", snowflake.NextID()),
		ScheduleID:  publicID,
		Date:        time.Now().Format("2006-01-02"),
		Force:       true,
		ScheduledAt: time.Now().Format(time.RFC3339),
	}
	if err := s.publisher.PublishRecurringFire(ctx, msg); err != nil {
		return err
	}

	logger.Logger.Info("recurring schedule fired manually",
		zap.String("tenant", tenant),
		zap.Int64("schedule_id", publicID))

	return nil
}

// SetActive 停用的计划在每日触发时被跳过，游标保持不动
func (s *ScheduleService) SetActive(ctx context.Context, tenant string, publicID int64, active bool) error {
	schedule, err := s.schedules.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return pkgerrors.ScheduleNotFound
	}
	return s.schedules.SetActive(ctx, tenant, publicID, active)
}

// Delete 删除计划并清理它名下尚未发送的消息
func (s *ScheduleService) Delete(ctx context.Context, tenant string, publicID int64) error {
	schedule, err := s.schedules.GetByPublicID(ctx, tenant, publicID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return pkgerrors.ScheduleNotFound
	}

	if err := s.messages.DeleteByOwner(ctx, model.ScheduledByRecurring, publicID); err != nil {
		return err
	}
	if err := s.schedules.Delete(ctx, tenant, publicID); err != nil {
		return err
	}

	logger.Logger.Info("recurring schedule deleted",
		zap.String("tenant", tenant),
		zap.Int64("schedule_id", publicID))

	return nil
}

// validateWindow 检查 "15:04:05" 窗口，起点必须早于终点
func validateWindow(start, end string) error {
	st, err := time.Parse("15:04:05", start)
	if err != nil {
		return pkgerrors.ScheduleWindowInvalid
	}
	et, err := time.Parse("15:04:05", end)
	if err != nil {
		return pkgerrors.ScheduleWindowInvalid
	}
	if !st.Before(et) {
		return pkgerrors.ScheduleWindowInvalid
	}
	return nil
}
