package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/metrics"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
	"github.com/jonboulle/clockwork"
)

const transitionJobName = "phase_transition"

// TransitionJob 阶段推进任务：按时间表推导阶段，变化时以 CAS 写入并通知
type TransitionJob struct {
	singleFlight

	store    CampaignStore
	engine   *phase.Engine
	notifier TransitionNotifier
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.Metrics
}

// NewTransitionJob 创建阶段推进任务
func NewTransitionJob(store CampaignStore, engine *phase.Engine, n TransitionNotifier, clock clockwork.Clock, interval time.Duration, m *metrics.Metrics) *TransitionJob {
	return &TransitionJob{
		store:    store,
		engine:   engine,
		notifier: n,
		clock:    clock,
		interval: interval,
		metrics:  m,
	}
}

// GetName 获取任务名称
func (j *TransitionJob) GetName() string {
	return transitionJobName
}

// GetSchedule 获取调度配置
func (j *TransitionJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// RunOnce 执行一轮。ctx 取消后不再处理新的活动，正在写入的活动会完成。
func (j *TransitionJob) RunOnce(ctx context.Context) (RunResult, error) {
	var result RunResult
	if !j.acquire() {
		j.metrics.SkippedTick(transitionJobName)
		return result, ErrRunInProgress
	}
	defer j.release()

	start := j.clock.Now()
	defer j.metrics.ObserveJob(transitionJobName, start)

	campaigns, err := j.store.ListAutoTransition(ctx)
	if err != nil {
		logger.Error("Failed to fetch campaigns for phase transition: %v", err)
		return result, err
	}

	now := j.clock.Now()
	for i := range campaigns {
		if ctx.Err() != nil {
			logger.Info("Phase transition run interrupted after %d of %d campaigns", i, len(campaigns))
			break
		}
		result.Scanned++

		changed, err := j.process(context.WithoutCancel(ctx), &campaigns[i], now)
		if err != nil {
			result.Skipped++
			continue
		}
		if changed {
			result.Changed++
		}
	}

	if result.Changed > 0 || result.Skipped > 0 {
		logger.Info("Phase transition completed. scanned=%d changed=%d skipped=%d", result.Scanned, result.Changed, result.Skipped)
	} else {
		logger.Debug("Phase transition completed. scanned=%d, no changes", result.Scanned)
	}
	return result, nil
}

// process 处理单个活动，冲突时重新读取并重试一次
func (j *TransitionJob) process(ctx context.Context, c *model.CampaignModel, now time.Time) (bool, error) {
	target, err := j.derive(c, now)
	if err != nil {
		return false, j.skip(c.Id, "invalid_schedule", err)
	}
	if target == c.CurrentPhase {
		return false, nil
	}

	from := c.CurrentPhase
	err = j.store.TransitionPhase(ctx, c.Id, from, target, now)
	if errors.Is(err, repository.ErrPersistenceConflict) {
		logger.Warn("Phase write for campaign %d conflicted, reloading", c.Id)
		var fresh *model.CampaignModel
		if fresh, err = j.store.Get(ctx, c.Id); err != nil {
			return false, j.skip(c.Id, "reload_failed", err)
		}
		c = fresh
		if c.Overridden() || c.Archived() {
			// 管理员已接管，本轮不再处理
			return false, nil
		}
		if target, err = j.derive(c, now); err != nil {
			return false, j.skip(c.Id, "invalid_schedule", err)
		}
		if target == c.CurrentPhase {
			return false, nil
		}
		from = c.CurrentPhase
		err = j.store.TransitionPhase(ctx, c.Id, from, target, now)
	}
	if errors.Is(err, repository.ErrPersistenceConflict) {
		// 留给下一轮
		return false, j.skip(c.Id, "conflict", err)
	}
	if err != nil {
		return false, j.skip(c.Id, "persist_failed", err)
	}

	c.CurrentPhase = target
	c.PhaseUpdatedAt = &now
	if target == phase.PhaseEnded {
		c.ArchivedAt = &now
	}
	logger.Info("Updated campaign %d phase from %s to %s", c.Id, from, target)
	j.notifier.OnTransition(ctx, c, from, target, model.NotificationSourceScheduler, now)
	return true, nil
}

func (j *TransitionJob) derive(c *model.CampaignModel, now time.Time) (phase.Phase, error) {
	phases, err := j.engine.ComputePhases(c.Schedule(), nil, now)
	if err != nil {
		return "", err
	}
	return phase.ActivePhase(phases).Phase, nil
}

func (j *TransitionJob) skip(id int64, reason string, err error) error {
	var invalid *phase.InvalidScheduleError
	if errors.As(err, &invalid) {
		logger.Warn("Skipping campaign %d with invalid schedule: %v", id, err)
	} else {
		logger.Error("Skipping campaign %d (%s): %v", id, reason, err)
	}
	j.metrics.SkippedItem(transitionJobName, reason)
	return err
}
