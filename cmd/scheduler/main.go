package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"WaPulse/config"
	"WaPulse/internal/cache"
	"WaPulse/internal/queue"
	"WaPulse/internal/schedule"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/metrics"
	"WaPulse/pkg/otel"
	"WaPulse/pkg/snowflake"
	"WaPulse/storage"
)

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	otelShutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
		ServiceName:    config.Cfg.ServiceName + "-scheduler",
		ServiceVersion: "1.0.0",
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTLPEndpoint,
		SampleRatio:    config.Cfg.TraceSampler,
	})
	if err != nil {
		logger.Logger.Warn("Failed to initialize OpenTelemetry, observability disabled", zap.Error(err))
	} else {
		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()
	}

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	// 触发经 MQ 投给 worker 展开，scheduler 本身不写消息表
	schedule.GetScheduler().SetPublisher(queue.NewProducer())

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	runDailyFireLoop(ctx)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runDailyFireLoop 每天固定时间触发一次周期计划
// 触发时刻由 RECURRING_RUN_HOUR / RECURRING_RUN_MINUTE 配置
func runDailyFireLoop(ctx context.Context) {
	s := schedule.GetScheduler()

	// 在 development 环境下，为了方便本地调试，将每日调度改为每 1 分钟执行一次
	if config.Cfg.Environment == "development" {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		logger.Logger.Info("Recurring scheduler running in development mode with 1m interval")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fireOnce(ctx, s)
			}
		}
	}

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(),
			config.Cfg.RecurringRunHour, config.Cfg.RecurringRunMinute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}

		delay := time.Until(next)
		logger.Logger.Info("Scheduled next recurring fire run",
			zap.Time("now", now),
			zap.Time("next_run", next),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			fireOnce(ctx, s)
		}
	}
}

func fireOnce(ctx context.Context, s *schedule.RecurringScheduler) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	date := time.Now().Format("2006-01-02")

	// 多实例部署时同一天只允许一个 scheduler 触发
	got, err := cache.TryLock(runCtx, "recurring:fire:"+date, 10*time.Minute)
	if err != nil {
		logger.Logger.Error("Failed to acquire fire lock", zap.String("date", date), zap.Error(err))
		return
	}
	if !got {
		logger.Logger.Info("Recurring fire already running elsewhere, skipping", zap.String("date", date))
		return
	}
	defer func() {
		if err := cache.Unlock(context.Background(), "recurring:fire:"+date); err != nil {
			logger.Logger.Warn("Failed to release fire lock", zap.String("date", date), zap.Error(err))
		}
	}()

	if err := s.FireDue(runCtx, date); err != nil {
		logger.Logger.Error("Recurring fire run failed",
			zap.String("date", date),
			zap.Error(err),
		)
	}
}
