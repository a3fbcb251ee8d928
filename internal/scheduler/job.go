package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/ihrahat0/whalespad-sub001/internal/chain"
	"github.com/ihrahat0/whalespad-sub001/internal/model"
	"github.com/ihrahat0/whalespad-sub001/internal/notifier"
	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/ihrahat0/whalespad-sub001/internal/repository"
)

// ErrRunInProgress 上一次运行尚未结束，本次跳过
var ErrRunInProgress = errors.New("previous run still in progress")

// Job 周期任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	RunOnce(ctx context.Context) (RunResult, error)
}

// RunResult 单次运行统计
type RunResult struct {
	Scanned int
	Changed int
	Skipped int
}

// CampaignStore 调度任务使用的持久化接口，由 repository.CampaignRepository 实现
type CampaignStore interface {
	Get(ctx context.Context, id int64) (*model.CampaignModel, error)
	ListAutoTransition(ctx context.Context) ([]model.CampaignModel, error)
	ListFundingRelevant(ctx context.Context) ([]model.CampaignModel, error)
	TransitionPhase(ctx context.Context, id int64, from, to phase.Phase, at time.Time) error
	ApplyPoolStats(ctx context.Context, id int64, obs repository.PoolObservation, at time.Time) (*repository.StatsUpdate, error)
}

// PoolReader 链上只读接口，由 chain.Manager 实现
type PoolReader interface {
	GetPoolStats(ctx context.Context, contractAddress string, chainId int64) (chain.PoolStats, error)
}

// TransitionNotifier 由 notifier.Notifier 实现
type TransitionNotifier interface {
	OnTransition(ctx context.Context, campaign *model.CampaignModel, oldPhase, newPhase phase.Phase, source model.NotificationSource, at time.Time) (notifier.Event, []error)
}

// Invalidator 活动缓存失效
type Invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// singleFlight 保证同一任务同时只有一次运行，定时触发与手动触发共用
type singleFlight struct {
	running atomic.Bool
}

func (s *singleFlight) acquire() bool {
	return s.running.CompareAndSwap(false, true)
}

func (s *singleFlight) release() {
	s.running.Store(false)
}
