package schedule

// 周期计划调度器：每天固定时刻扫描当日命中的计划，推进环形游标并展开当日配额

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"WaPulse/internal/cache"
	"WaPulse/internal/model"
	"WaPulse/internal/repository"
	"WaPulse/internal/timeslot"
	pkgerrors "WaPulse/pkg/errors"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/metrics"
	"WaPulse/pkg/snowflake"
	"WaPulse/storage/database"
)

type scheduleStore interface {
	ListActive(ctx context.Context) ([]*model.RecurringSchedule, error)
	Get(ctx context.Context, publicID int64) (*model.RecurringSchedule, error)
	InsertExpansion(ctx context.Context, scheduleID int64, cursor int, msgs []*model.Message) error
}

type firePublisher interface {
	PublishRecurringFire(ctx context.Context, msg model.RecurringFireMessage) error
}

type firedMarker interface {
	TryMarkScheduleFired(ctx context.Context, date string, scheduleID int64) (bool, error)
	UnmarkScheduleFired(ctx context.Context, date string, scheduleID int64) error
}

type redisFiredMarker struct{}

func (redisFiredMarker) TryMarkScheduleFired(ctx context.Context, date string, scheduleID int64) (bool, error) {
	return cache.TryMarkScheduleFired(ctx, date, scheduleID)
}

func (redisFiredMarker) UnmarkScheduleFired(ctx context.Context, date string, scheduleID int64) error {
	return cache.UnmarkScheduleFired(ctx, date, scheduleID)
}

// RecurringScheduler 同一时刻只允许一轮 FireDue 在跑，重入直接跳过
type RecurringScheduler struct {
	logger    *zap.Logger
	schedules scheduleStore
	publisher firePublisher
	marks     firedMarker

	jobRunning bool
	jobMu      sync.Mutex
	lastRun    time.Time
}

var (
	schedulerOnce sync.Once
	schedulerInst *RecurringScheduler
)

func GetScheduler() *RecurringScheduler {
	schedulerOnce.Do(func() {
		db := database.DB()
		schedulerInst = &RecurringScheduler{
			logger:    logger.Logger,
			schedules: repository.NewRecurringRepository(db),
			marks:     redisFiredMarker{},
		}
	})
	return schedulerInst
}

// SetPublisher 注入 MQ 发布器，未注入时 FireDue 在进程内直接展开
func (s *RecurringScheduler) SetPublisher(p firePublisher) {
	s.publisher = p
}

// FireDue 触发指定日期命中的全部计划，每个计划每天至多触发一次
func (s *RecurringScheduler) FireDue(ctx context.Context, date string) error {
	s.jobMu.Lock()
	if s.jobRunning {
		s.jobMu.Unlock()
		s.logger.Info("recurring job already running, skipping")
		return nil
	}
	s.jobRunning = true
	s.jobMu.Unlock()

	defer func() {
		s.jobMu.Lock()
		s.jobRunning = false
		s.jobMu.Unlock()
	}()

	start := time.Now()
	s.lastRun = start

	active, err := s.schedules.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active schedules: %w", err)
	}

	fired, failed := 0, 0
	for _, sched := range active {
		if !sched.FiresOn(date) {
			continue
		}

		first, err := s.marks.TryMarkScheduleFired(ctx, date, sched.PublicID)
		if err != nil {
			s.logger.Error("failed to mark schedule fired",
				zap.Int64("schedule_id", sched.PublicID),
				zap.Error(err),
			)
			failed++
			continue
		}
		if !first {
			s.logger.Info("schedule already fired today",
				zap.Int64("schedule_id", sched.PublicID),
				zap.String("date", date),
			)
			continue
		}

		if err := s.fireOne(ctx, sched, date); err != nil {
			// 清掉标记，当天重跑还能补上
			_ = s.marks.UnmarkScheduleFired(ctx, date, sched.PublicID)
			s.logger.Error("failed to fire schedule",
				zap.Int64("schedule_id", sched.PublicID),
				zap.String("date", date),
				zap.Error(err),
			)
			failed++
			continue
		}
		fired++
	}

	s.logger.Info("recurring fire pass completed",
		zap.String("date", date),
		zap.Int("fired", fired),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)

	if failed > 0 {
		return fmt.Errorf("recurring fire pass completed with %d failures", failed)
	}
	return nil
}

func (s *RecurringScheduler) fireOne(ctx context.Context, sched *model.RecurringSchedule, date string) error {
	msg := model.RecurringFireMessage{
		MessageID:   fmt.Sprintf("%d", snowflake.NextID()),
		ScheduleID:  sched.PublicID,
		Date:        date,
		ScheduledAt: time.Now().Format(time.RFC3339),
	}
	if s.publisher != nil {
		return s.publisher.PublishRecurringFire(ctx, msg)
	}
	return s.Expand(ctx, msg)
}

// Expand 展开一次触发：按游标取当日配额的收件人，渲染模板并落为待发消息
// 模板变量损坏时整次触发跳过，绝不半途展开
func (s *RecurringScheduler) Expand(ctx context.Context, msg model.RecurringFireMessage) error {
	sched, err := s.schedules.Get(ctx, msg.ScheduleID)
	if err != nil {
		return fmt.Errorf("failed to load schedule: %w", err)
	}
	if sched == nil {
		return &pkgerrors.SkipMessageError{Reason: "schedule deleted before expansion"}
	}
	if !sched.Active {
		return &pkgerrors.SkipMessageError{Reason: "schedule deactivated before expansion"}
	}
	if !msg.Force && !sched.FiresOn(msg.Date) {
		return &pkgerrors.SkipMessageError{Reason: "schedule does not fire on this date"}
	}

	n := len(sched.Recipients)
	if n == 0 {
		s.logger.Warn("schedule has no recipients",
			zap.Int64("schedule_id", sched.PublicID),
		)
		return &pkgerrors.SkipMessageError{Reason: pkgerrors.ScheduleNoRecipients.Code}
	}
	if sched.DailyCount <= 0 {
		return &pkgerrors.SkipMessageError{Reason: "schedule daily count is zero"}
	}

	gen, err := newWindowGenerator(sched, msg.Date)
	if err != nil {
		s.logger.Error("schedule window invalid",
			zap.Int64("schedule_id", sched.PublicID),
			zap.Error(err),
		)
		return &pkgerrors.SkipMessageError{Reason: pkgerrors.ScheduleWindowInvalid.Code}
	}

	// 名册缩水后游标可能越界，这里取模归位而不是沿用旧值
	start := sched.SchedulingIndex % n

	msgs := make([]*model.Message, 0, sched.DailyCount)
	for i := 0; i < sched.DailyCount; i++ {
		recipient := sched.Recipients[(start+i)%n]

		vars, err := recipientVariables(sched.Variables, recipient)
		if err != nil {
			// 变量损坏视为整次触发失败，一条都不展开
			s.logger.Error("schedule variables malformed, skipping firing",
				zap.Int64("schedule_id", sched.PublicID),
				zap.String("recipient", recipient),
				zap.Error(err),
			)
			return &pkgerrors.SkipMessageError{Reason: pkgerrors.ScheduleVariablesBroken.Code}
		}

		msgs = append(msgs, &model.Message{
			PublicID:    snowflake.NextID(),
			Tenant:      sched.Tenant,
			Recipient:   recipient,
			Body:        renderTemplate(sched.Body, vars),
			Attachments: sched.Attachments,
			Status:      model.MessageStatusPending,
			SendAt:      gen.Next(),
			OwnerKind:   model.ScheduledByRecurring,
			OwnerID:     sched.PublicID,
		})
	}

	// 消息与游标同一事务落库，失败时什么都没持久化，FireDue 回收标记后可安全重放
	next := (start + sched.DailyCount) % n
	if err := s.schedules.InsertExpansion(ctx, sched.PublicID, next, msgs); err != nil {
		return fmt.Errorf("failed to persist schedule expansion: %w", err)
	}

	metrics.RecordExpansion("recurring", int64(len(msgs)))
	s.logger.Info("schedule expanded",
		zap.Int64("schedule_id", sched.PublicID),
		zap.String("date", msg.Date),
		zap.Int("messages", len(msgs)),
		zap.Int("cursor", next),
	)
	return nil
}

// newWindowGenerator 把当日配额摊匀到发送窗口里
func newWindowGenerator(sched *model.RecurringSchedule, date string) (*timeslot.Generator, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, err
	}

	windowSec, err := windowSeconds(sched.StartTime, sched.EndTime)
	if err != nil {
		return nil, err
	}

	maxDelay := windowSec / sched.DailyCount
	if maxDelay < 2 {
		maxDelay = 2
	}

	return timeslot.New(timeslot.Config{
		MinDelay:  2 * time.Second,
		MaxDelay:  time.Duration(maxDelay) * time.Second,
		StartDate: day,
		StartTime: sched.StartTime,
		EndTime:   sched.EndTime,
	})
}

func windowSeconds(startTime, endTime string) (int, error) {
	start, err := time.Parse("15:04:05", startTime)
	if err != nil {
		return 0, err
	}
	end, err := time.Parse("15:04:05", endTime)
	if err != nil {
		return 0, err
	}

	sec := int(end.Sub(start).Seconds())
	if sec <= 0 {
		return 0, pkgerrors.ScheduleWindowInvalid
	}
	return sec, nil
}

// recipientVariables 取单个收件人的模板变量，形状不对即判定损坏
func recipientVariables(all model.JSONB, recipient string) (map[string]interface{}, error) {
	if all == nil {
		return nil, nil
	}
	entry, ok := all[recipient]
	if !ok || entry == nil {
		return nil, nil
	}
	vars, ok := entry.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("variables for %s are not a map", recipient)
	}
	return vars, nil
}

func renderTemplate(body string, vars map[string]interface{}) string {
	if len(vars) == 0 {
		return body
	}
	for k, v := range vars {
		body = strings.ReplaceAll(body, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return body
}
