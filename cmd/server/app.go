package main

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/ihrahat0/whalespad-sub001/internal/cache"
	"github.com/ihrahat0/whalespad-sub001/internal/chain"
	"github.com/ihrahat0/whalespad-sub001/internal/config"
	"github.com/ihrahat0/whalespad-sub001/internal/database"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/logic"
	"github.com/ihrahat0/whalespad-sub001/internal/metrics"
	"github.com/ihrahat0/whalespad-sub001/internal/notifier"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
	"github.com/ihrahat0/whalespad-sub001/internal/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app 进程内共享的依赖
type app struct {
	cfg     *config.Config
	clock   clockwork.Clock
	db      *gorm.DB
	chains  *chain.Manager
	redis   *redis.Client
	queue   *asynq.Client
	metrics *metrics.Metrics

	campaignLogic *logic.CampaignLogic
	transition    *scheduler.TransitionJob
	reconcile     *scheduler.ReconcileJob
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// 初始化数据库
	if a.db, err = database.Init(cfg.Database); err != nil {
		return nil, err
	}

	// 初始化链客户端
	if a.chains, err = chain.NewManager(cfg.Chains); err != nil {
		return nil, err
	}

	// Redis 可选
	if a.redis, err = cache.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	campaignCache := cache.NewCampaignCache(a.redis, cfg.ViewTTL())

	campaigns := repository.NewCampaignRepository(a.db)
	history := repository.NewNotificationRepository(a.db)
	engine := phase.NewEngine(cfg.Phase.Offsets())

	n := notifier.New(history, a.metrics,
		notifier.LogHook{},
		notifier.CacheInvalidationHook{Cache: campaignCache},
		notifier.LifecycleHook{},
	)
	if cfg.Notify.QueueEnabled {
		a.queue = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		n.Register(notifier.QueueHook{Client: a.queue, Queue: cfg.Notify.Queue, MaxRetry: 5})
		logger.Info("Phase notifications are queued to %q", cfg.Notify.Queue)
	}

	a.campaignLogic = logic.NewCampaignLogic(campaigns, history, engine, n, campaignCache, a.clock)
	a.transition = scheduler.NewTransitionJob(campaigns, engine, n, a.clock, cfg.TransitionInterval(), a.metrics)
	a.reconcile = scheduler.NewReconcileJob(campaigns, a.chains, campaignCache, a.clock, scheduler.ReconcileOptions{
		Interval:    cfg.ChainInterval(),
		RPCTimeout:  cfg.RPCTimeout(),
		Concurrency: cfg.Chain.Concurrency,
	}, a.metrics)

	return a, nil
}

// Close 释放外部连接
func (a *app) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			logger.Warn("Failed to close queue client: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("Failed to close redis client: %v", err)
		}
	}
	if a.chains != nil {
		a.chains.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
