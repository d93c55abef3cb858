package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"WaPulse/config"
	"WaPulse/internal/bot"
	"WaPulse/internal/cache"
	"WaPulse/internal/dispatch"
	"WaPulse/internal/queue"
	"WaPulse/internal/repository"
	"WaPulse/internal/service"
	"WaPulse/pkg/chat"
	"WaPulse/pkg/logger"
	"WaPulse/pkg/metrics"
	"WaPulse/pkg/otel"
	"WaPulse/pkg/snowflake"
	"WaPulse/storage"
	"WaPulse/storage/database"
)

func main() {

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Gateway received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	otelShutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
		ServiceName:    config.Cfg.ServiceName + "-gateway",
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

	client, err := chat.New(config.Cfg.ChatProvider)
	if err != nil {
		logger.Logger.Fatal("Failed to create chat client",
			zap.String("provider", config.Cfg.ChatProvider),
			zap.Error(err),
		)
	}

	registry := chat.NewRegistry(client)
	for _, tenant := range config.Cfg.TenantList() {
		if err := registry.Connect(ctx, tenant); err != nil {
			logger.Logger.Error("Failed to connect tenant session",
				zap.String("tenant", tenant),
				zap.Error(err),
			)
			continue
		}
		logger.Logger.Info("Tenant session connected", zap.String("tenant", tenant))
	}

	db := database.DB()
	messageRepo := repository.NewMessageRepository(db)

	service.Campaign().SetPublisher(queue.NewProducer())

	dispatcher := dispatch.New(
		messageRepo,
		cache.NewDispatchClaims(),
		registry,
		time.Duration(config.Cfg.DispatchTickSeconds)*time.Second,
		config.Cfg.DispatchBatchLimit,
	)

	engine := bot.NewEngine(
		repository.NewBotRuleRepository(db),
		messageRepo,
		cache.NewCooldownLedger(),
		registry.Client(),
	)

	logger.Logger.Info("Gateway service starting",
		zap.String("service", config.Cfg.ServiceName+"-gateway"),
		zap.String("environment", config.Cfg.Environment),
		zap.Strings("tenants", config.Cfg.TenantList()),
	)

	go dispatcher.Run(ctx)
	runEventLoop(ctx, registry, engine)

	logger.Logger.Info("Gateway service shutting down gracefully")
}

// runEventLoop 消费汇总事件流：掉线暂停租户活动，恢复后只恢复被自动暂停的那些
func runEventLoop(ctx context.Context, registry *chat.Registry, engine *bot.Engine) {
	// tenant -> 掉线时被自动暂停的活动 ID
	autoPaused := make(map[string][]int64)
	var mu sync.Mutex

	events := registry.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			switch ev.Type {
			case chat.EventDisconnected:
				ids, err := service.Campaign().PauseAll(ctx, ev.Tenant)
				if err != nil {
					logger.Logger.Error("Failed to pause campaigns on disconnect",
						zap.String("tenant", ev.Tenant),
						zap.Error(err),
					)
					continue
				}
				mu.Lock()
				autoPaused[ev.Tenant] = ids
				mu.Unlock()
				logger.Logger.Warn("Tenant disconnected, campaigns paused",
					zap.String("tenant", ev.Tenant),
					zap.Int("campaigns", len(ids)),
				)

			case chat.EventReady:
				mu.Lock()
				ids := autoPaused[ev.Tenant]
				delete(autoPaused, ev.Tenant)
				mu.Unlock()
				if len(ids) > 0 {
					service.Campaign().ResumeMany(ctx, ev.Tenant, ids)
				}
				logger.Logger.Info("Tenant session ready",
					zap.String("tenant", ev.Tenant),
					zap.Int("campaigns_resumed", len(ids)),
				)

			case chat.EventMessage:
				// 触发评估不能阻塞事件流
				go engine.OnInbound(ctx, ev)
			}
		}
	}
}
