package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/ihrahat0/whalespad-sub001/internal/chain"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
	"github.com/ihrahat0/whalespad-sub001/internal/metrics"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
)

const reconcileJobName = "chain_reconcile"

// ReconcileJob 链上对账任务：读取募资池统计并写回活动记录
type ReconcileJob struct {
	singleFlight

	store       CampaignStore
	reader      PoolReader
	cache       Invalidator
	clock       clockwork.Clock
	interval    time.Duration
	rpcTimeout  time.Duration
	concurrency int
	metrics     *metrics.Metrics
}

// ReconcileOptions 对账参数
type ReconcileOptions struct {
	Interval    time.Duration
	RPCTimeout  time.Duration
	Concurrency int
}

// NewReconcileJob 创建对账任务，cache 可为空
func NewReconcileJob(store CampaignStore, reader PoolReader, cache Invalidator, clock clockwork.Clock, opts ReconcileOptions, m *metrics.Metrics) *ReconcileJob {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &ReconcileJob{
		store:       store,
		reader:      reader,
		cache:       cache,
		clock:       clock,
		interval:    opts.Interval,
		rpcTimeout:  opts.RPCTimeout,
		concurrency: opts.Concurrency,
		metrics:     m,
	}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return reconcileJobName
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// RunOnce 执行一轮对账。每个活动的 RPC 都有超时，失败的活动留到下一轮。
func (j *ReconcileJob) RunOnce(ctx context.Context) (RunResult, error) {
	var result RunResult
	if !j.acquire() {
		j.metrics.SkippedTick(reconcileJobName)
		return result, ErrRunInProgress
	}
	defer j.release()

	start := j.clock.Now()
	defer j.metrics.ObserveJob(reconcileJobName, start)

	campaigns, err := j.store.ListFundingRelevant(ctx)
	if err != nil {
		logger.Error("Failed to fetch campaigns for chain sync: %v", err)
		return result, err
	}
	if len(campaigns) == 0 {
		logger.Debug("No campaigns to reconcile")
		return result, nil
	}

	pool, err := ants.NewPool(j.concurrency)
	if err != nil {
		return result, fmt.Errorf("failed to create reconcile pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		changed atomic.Int64
		skipped atomic.Int64
	)
	itemCtx := context.WithoutCancel(ctx)
	for i := range campaigns {
		if ctx.Err() != nil {
			logger.Info("Chain sync interrupted after submitting %d of %d campaigns", i, len(campaigns))
			break
		}
		c := &campaigns[i]
		result.Scanned++

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := j.reconcile(itemCtx, c); err != nil {
				skipped.Add(1)
				return
			}
			changed.Add(1)
		})
		if err != nil {
			wg.Done()
			skipped.Add(1)
			logger.Error("Failed to submit campaign %d to reconcile pool: %v", c.Id, err)
		}
	}
	wg.Wait()

	result.Changed = int(changed.Load())
	result.Skipped = int(skipped.Load())
	logger.Info("Chain sync completed. scanned=%d synced=%d skipped=%d", result.Scanned, result.Changed, result.Skipped)
	return result, nil
}

// reconcile 同步单个活动
func (j *ReconcileJob) reconcile(ctx context.Context, c *model.CampaignModel) error {
	address, chainId, ok := c.ChainRef()
	if !ok {
		return nil
	}

	rpcCtx, cancel := context.WithTimeout(ctx, j.rpcTimeout)
	stats, err := j.reader.GetPoolStats(rpcCtx, address, chainId)
	cancel()
	if err != nil {
		var unavailable *chain.ChainUnavailableError
		if errors.As(err, &unavailable) {
			logger.Warn("Chain %d unavailable for campaign %d, keeping cached stats: %v", chainId, c.Id, err)
			j.metrics.ReconcileResult(metrics.ReconcileUnavailable)
		} else {
			logger.Error("Failed to read pool stats for campaign %d: %v", c.Id, err)
			j.metrics.ReconcileResult(metrics.ReconcileFailed)
		}
		return err
	}

	obs, err := observation(stats)
	if err != nil {
		logger.Error("Discarding pool stats for campaign %d: %v", c.Id, err)
		j.metrics.ReconcileResult(metrics.ReconcileFailed)
		return err
	}

	update, err := j.store.ApplyPoolStats(ctx, c.Id, obs, j.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrCampaignArchived) {
			logger.Info("Campaign %d archived during sync, skipping", c.Id)
		} else {
			logger.Error("Failed to persist pool stats for campaign %d: %v", c.Id, err)
		}
		j.metrics.ReconcileResult(metrics.ReconcileFailed)
		return err
	}
	if update.Persisted.GreaterThan(obs.TotalRaised) {
		logger.Warn("Campaign %d observed raised %s below cached %s, keeping cached value",
			c.Id, obs.TotalRaised, update.Previous)
	}
	if stats.HardCap != nil && !decimal.NewFromBigInt(stats.HardCap, 0).Equal(c.HardCap) {
		logger.Warn("Campaign %d hard cap on chain %s differs from stored %s", c.Id, stats.HardCap, c.HardCap)
	}

	if j.cache != nil {
		if err := j.cache.Invalidate(ctx, c.Id); err != nil {
			logger.Warn("Failed to invalidate cache for campaign %d: %v", c.Id, err)
		}
	}
	j.metrics.ReconcileResult(metrics.ReconcileUpdated)
	return nil
}

func observation(stats chain.PoolStats) (repository.PoolObservation, error) {
	if stats.TotalRaised == nil || stats.TotalRaised.Sign() < 0 {
		return repository.PoolObservation{}, errors.New("missing or negative totalRaised")
	}
	if stats.ParticipantCount > math.MaxInt64 {
		return repository.PoolObservation{}, fmt.Errorf("participantCount %d out of range", stats.ParticipantCount)
	}
	return repository.PoolObservation{
		TotalRaised:      decimal.NewFromBigInt(stats.TotalRaised, 0),
		ParticipantCount: int64(stats.ParticipantCount),
	}, nil
}
