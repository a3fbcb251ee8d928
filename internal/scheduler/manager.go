package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/jonboulle/clockwork"
)

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	jobs      []Job
	cancel    context.CancelFunc
}

// NewManager 创建新的任务管理器，stopTimeout 限制停止时等待运行中任务的时长
func NewManager(clock clockwork.Clock, stopTimeout time.Duration, jobs ...Job) (*Manager, error) {
	opts := []gocron.SchedulerOption{gocron.WithClock(clock)}
	if stopTimeout > 0 {
		opts = append(opts, gocron.WithStopTimeout(stopTimeout))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Manager{
		scheduler: s,
		jobs:      jobs,
	}, nil
}

// Start 注册所有任务并启动调度器，启动后立即执行一轮
func (m *Manager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, job := range m.jobs {
		if err := m.register(runCtx, job); err != nil {
			cancel()
			return err
		}
	}

	m.scheduler.Start()
	logger.Info("Task manager started with %d jobs", len(m.jobs))
	return nil
}

// register 注册单个任务。LimitModeReschedule 让仍在运行的任务跳过本次触发，不排队。
func (m *Manager) register(ctx context.Context, job Job) error {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(func() {
			if _, err := job.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				logger.Error("Job %s failed: %v", job.GetName(), err)
			}
		}),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.GetName(), err)
	}
	return nil
}

// Stop 停止任务管理器：先取消上下文使任务不再处理新的活动，再等待运行中的任务结束
func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
		return err
	}
	logger.Info("Task manager stopped")
	return nil
}
